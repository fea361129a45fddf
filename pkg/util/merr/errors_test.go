// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package merr

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/suite"
)

type ErrSuite struct {
	suite.Suite
}

func (s *ErrSuite) TestCode() {
	err := WrapErrTagMismatch("Int32", "String")
	s.ErrorIs(err, ErrFormatTagMismatch)
	s.Equal(Code(ErrFormatTagMismatch), Code(err))
	s.Equal(errUnexpected.errCode, Code(errors.New("boom")))
	s.Equal(int32(0), Code(nil))

	sameCodeErr := newSerdeError("new error", ErrFormatTagMismatch.errCode)
	s.True(sameCodeErr.Is(ErrFormatTagMismatch))
}

func (s *ErrSuite) TestClass() {
	s.True(IsFormatViolation(WrapErrDepthMismatch(1, 2)))
	s.True(IsFormatViolation(errors.Wrap(WrapErrMemberNameMismatch("x", "y"), "read")))
	s.False(IsFormatViolation(WrapErrBufferExhausted(4, 1)))
	s.True(IsBufferExhausted(WrapErrBufferExhausted(4, 1)))
	s.True(IsResolutionFailure(WrapErrProcessorNotFound("chan int")))
	s.True(IsProtocolViolation(WrapErrScopeMismatch("Array", "Object")))
	s.Equal(ClassMisuse, Class(WrapErrOpaqueUnsupported("string", "contains pointers")))
	s.Equal(ClassUnknown, Class(errors.New("plain")))
	s.Equal("format_violation", ClassFormat.String())
}

func (s *ErrSuite) TestWrap() {
	// 格式错误。
	s.ErrorIs(WrapErrTagMismatch(0x14, 0x1b), ErrFormatTagMismatch)
	s.ErrorIs(WrapErrMemberNameMismatch("x", "y"), ErrFormatMemberNameMismatch)
	s.ErrorIs(WrapErrDepthMismatch(1, 3), ErrFormatDepthMismatch)
	s.ErrorIs(WrapErrUnknownType("pkg.Missing"), ErrFormatUnknownType)
	s.ErrorIs(WrapErrVarintOverflow(5), ErrFormatVarintOverflow)
	s.ErrorIs(WrapErrTypeMismatch("a.T", "b.T"), ErrFormatTypeMismatch)
	s.ErrorIs(WrapErrLengthMismatch(4, 3), ErrFormatLengthMismatch)
	s.ErrorIs(WrapErrInvalidReference(7, 2), ErrFormatInvalidReference)
	s.ErrorIs(WrapErrBufferExhausted(8, 0, "read int64"), ErrBufferExhausted)

	// 构造期错误。
	s.ErrorIs(WrapErrProcessorNotFound("func()"), ErrProcessorNotFound)
	s.ErrorIs(WrapErrDependencyInvalid("list", "elem"), ErrDependencyInvalid)
	s.ErrorIs(WrapErrProcessorTypeMismatch("int", "string"), ErrProcessorTypeMismatch)
	s.ErrorIs(WrapErrCandidateInvalid("custom", "nil factory"), ErrCandidateInvalid)
	s.ErrorIs(WrapErrMemberResolveFailed("T", errors.New("dup")), ErrMemberResolveFailed)
	s.ErrorIs(WrapErrMemberResolveFailed("T", nil), ErrMemberResolveFailed)

	// 协议错误。
	s.ErrorIs(WrapErrScopeUnbalanced(2), ErrScopeUnbalanced)
	s.ErrorIs(WrapErrScopeMismatch("Object", "Array"), ErrScopeMismatch)
	s.ErrorIs(WrapErrDepthLimitExceeded(11, 10), ErrDepthLimitExceeded)

	s.ErrorIs(WrapErrOptionRequired("object-type"), ErrOptionRequired)
	s.ErrorIs(WrapErrReferenceUnavailable("write"), ErrReferenceUnavailable)
	s.ErrorIs(WrapErrParameterInvalid("pointer", "struct"), ErrParameterInvalid)
	s.ErrorIs(WrapErrParameterInvalidMsg("bad %s", "value"), ErrParameterInvalid)
}

func (s *ErrSuite) TestFields() {
	err := WrapErrTagMismatch("Int32", "String")
	s.Equal("tag mismatch[expected=Int32][found=String]", err.Error())

	err = WrapErrCandidateInvalid("custom", "nil factory")
	s.Equal("invalid processor candidate[candidate=custom]: nil factory", err.Error())
}

func (s *ErrSuite) TestCombine() {
	var (
		errFirst  = errors.New("first")
		errSecond = errors.New("second")
		errThird  = errors.New("third")
	)

	err := Combine(errFirst, errSecond)
	s.True(errors.Is(err, errFirst))
	s.True(errors.Is(err, errSecond))
	s.False(errors.Is(err, errThird))

	s.Equal("first: second", err.Error())
}

func (s *ErrSuite) TestCombineOnlyNil() {
	err := Combine(nil, nil)
	s.Nil(err)
}

func (s *ErrSuite) TestCombineCode() {
	err := Combine(WrapErrScopeUnbalanced(1), WrapErrDepthMismatch(0, 1))
	s.Equal(Code(ErrFormatDepthMismatch), Code(err))
}

func TestErrors(t *testing.T) {
	suite.Run(t, new(ErrSuite))
}

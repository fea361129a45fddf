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
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

type ErrorClass int32

const (
	ClassUnknown ErrorClass = iota
	ClassFormat
	ClassBuffer
	ClassResolution
	ClassProtocol
	ClassMisuse
	ClassParameter
)

var ErrorClassName = map[ErrorClass]string{
	ClassUnknown:    "unknown",
	ClassFormat:     "format_violation",
	ClassBuffer:     "buffer_exhausted",
	ClassResolution: "resolution_failure",
	ClassProtocol:   "protocol_violation",
	ClassMisuse:     "programmer_misuse",
	ClassParameter:  "invalid_parameter",
}

func (c ErrorClass) String() string {
	return ErrorClassName[c]
}

// 在此处定义叶子错误。
// WARN: 新增错误前请先确认下面已有的错误是否可以复用。
// 命名规则：Err + 相关前缀 + 错误名
var (
	// 格式错误：当前读取不可恢复，永远不会被静默纠正。
	ErrFormatTagMismatch        = newSerdeError("tag mismatch", 100)
	ErrFormatMemberNameMismatch = newSerdeError("member name mismatch", 101)
	ErrFormatDepthMismatch      = newSerdeError("nesting depth mismatch", 102)
	ErrFormatUnknownType        = newSerdeError("unknown type reference", 103)
	ErrFormatVarintOverflow     = newSerdeError("varint overflow", 104)
	ErrFormatTypeMismatch       = newSerdeError("object type mismatch", 105)
	ErrFormatLengthMismatch     = newSerdeError("length mismatch", 106)
	ErrFormatInvalidReference   = newSerdeError("invalid external reference", 107)

	// 输入被截断，区别于结构损坏。
	ErrBufferExhausted = newSerdeError("buffer exhausted", 200)

	// 配置错误，在接触任何字节之前报告。
	ErrProcessorNotFound     = newSerdeError("processor not found", 300)
	ErrDependencyInvalid     = newSerdeError("invalid processor dependency", 301)
	ErrProcessorTypeMismatch = newSerdeError("processor type mismatch", 302)
	ErrCandidateInvalid      = newSerdeError("invalid processor candidate", 303)
	ErrMemberResolveFailed   = newSerdeError("member resolve failed", 304)

	// 协议错误：Begin/End 不配对，属于编程错误，不会重试。
	ErrScopeUnbalanced    = newSerdeError("unbalanced scope", 400)
	ErrScopeMismatch      = newSerdeError("scope kind mismatch", 401)
	ErrDepthLimitExceeded = newSerdeError("nesting depth limit exceeded", 402)

	ErrOpaqueUnsupported    = newSerdeError("opaque memory copy unsupported", 500)
	ErrOptionRequired       = newSerdeError("wire option required", 501)
	ErrReferenceUnavailable = newSerdeError("external reference table unavailable", 502)

	ErrParameterInvalid = newSerdeError("invalid parameter", 1100)

	// Do NOT export this,
	// never allow programmer using this, keep only for converting unknown error to serdeError
	errUnexpected = newSerdeError("unexpected error", (1<<16)-1)
)

type errorOption func(*serdeError)

func WithDetail(detail string) errorOption {
	return func(err *serdeError) {
		err.detail = detail
	}
}

type serdeError struct {
	msg     string
	detail  string
	errCode int32
}

func newSerdeError(msg string, code int32, options ...errorOption) serdeError {
	err := serdeError{
		msg:     msg,
		detail:  msg,
		errCode: code,
	}

	for _, option := range options {
		option(&err)
	}
	return err
}

func (e serdeError) code() int32 {
	return e.errCode
}

func (e serdeError) class() ErrorClass {
	switch {
	case e.errCode >= 100 && e.errCode < 200:
		return ClassFormat
	case e.errCode >= 200 && e.errCode < 300:
		return ClassBuffer
	case e.errCode >= 300 && e.errCode < 400:
		return ClassResolution
	case e.errCode >= 400 && e.errCode < 500:
		return ClassProtocol
	case e.errCode >= 500 && e.errCode < 600:
		return ClassMisuse
	case e.errCode >= 1100 && e.errCode < 1200:
		return ClassParameter
	default:
		return ClassUnknown
	}
}

func (e serdeError) Error() string {
	return e.msg
}

func (e serdeError) Detail() string {
	return e.detail
}

func (e serdeError) Is(err error) bool {
	cause := errors.Cause(err)
	if cause, ok := cause.(serdeError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

func (e multiErrors) Unwrap() error {
	if len(e.errs) <= 1 {
		return nil
	}
	// 多错误的 cause 定义为最后一个错误，这样 Code 依然可用
	if len(e.errs) == 2 {
		return e.errs[1]
	}

	return multiErrors{
		errs: e.errs[1:],
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	for _, item := range e.errs {
		if errors.Is(item, err) {
			return true
		}
	}
	return false
}

func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{
		errs,
	}
}

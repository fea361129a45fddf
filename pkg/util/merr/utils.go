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
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回给定错误对应的错误码，nil 返回 0。
func Code(err error) int32 {
	if err == nil {
		return 0
	}

	cause := errors.Cause(err)
	if specificErr, ok := cause.(serdeError); ok {
		return specificErr.code()
	}
	return errUnexpected.code()
}

// Class 返回错误所属的分类，未知错误返回 ClassUnknown。
func Class(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	if specificErr, ok := errors.Cause(err).(serdeError); ok {
		return specificErr.class()
	}
	return ClassUnknown
}

// IsFormatViolation 判断错误是否为格式错误（tag、成员名、深度、类型引用、varint）。
func IsFormatViolation(err error) bool {
	return Class(err) == ClassFormat
}

// IsBufferExhausted 判断错误是否表示输入被截断。
func IsBufferExhausted(err error) bool {
	return Class(err) == ClassBuffer
}

// IsResolutionFailure 判断错误是否为构造期的配置错误。
func IsResolutionFailure(err error) bool {
	return Class(err) == ClassResolution
}

// IsProtocolViolation 判断错误是否为 Begin/End 协议错误。
func IsProtocolViolation(err error) bool {
	return Class(err) == ClassProtocol
}

// 格式错误封装。
func WrapErrTagMismatch(expected, found any, msg ...string) error {
	err := wrapFields(ErrFormatTagMismatch,
		value("expected", expected),
		value("found", found),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrMemberNameMismatch(expected, found string, msg ...string) error {
	err := wrapFields(ErrFormatMemberNameMismatch,
		value("expected", expected),
		value("found", found),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrDepthMismatch(expected, found int, msg ...string) error {
	err := wrapFields(ErrFormatDepthMismatch,
		value("expected", expected),
		value("found", found),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrUnknownType(ref any, msg ...string) error {
	err := wrapFields(ErrFormatUnknownType, value("type", ref))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrVarintOverflow(maxBytes int, msg ...string) error {
	err := wrapFields(ErrFormatVarintOverflow, value("maxBytes", maxBytes))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrTypeMismatch(expected, found any, msg ...string) error {
	err := wrapFields(ErrFormatTypeMismatch,
		value("expected", expected),
		value("found", found),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrLengthMismatch(expected, found int, msg ...string) error {
	err := wrapFields(ErrFormatLengthMismatch,
		value("expected", expected),
		value("found", found),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrInvalidReference(index uint32, tableSize int, msg ...string) error {
	err := wrapFields(ErrFormatInvalidReference, bound("index", index, 0, tableSize))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrBufferExhausted(need, remaining int, msg ...string) error {
	err := wrapFields(ErrBufferExhausted,
		value("need", need),
		value("remaining", remaining),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

// 构造期错误封装。
func WrapErrProcessorNotFound(typ any, msg ...string) error {
	err := wrapFields(ErrProcessorNotFound, value("type", typ))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrDependencyInvalid(processor any, slot string, msg ...string) error {
	err := wrapFields(ErrDependencyInvalid,
		value("processor", processor),
		value("slot", slot),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrProcessorTypeMismatch(expected, found any, msg ...string) error {
	err := wrapFields(ErrProcessorTypeMismatch,
		value("expected", expected),
		value("found", found),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrCandidateInvalid(candidate string, reason string) error {
	return wrapFieldsWithDesc(ErrCandidateInvalid, reason, value("candidate", candidate))
}

func WrapErrMemberResolveFailed(typ any, cause error) error {
	if cause == nil {
		return wrapFields(ErrMemberResolveFailed, value("type", typ))
	}
	return wrapFieldsWithDesc(ErrMemberResolveFailed, cause.Error(), value("type", typ))
}

// 协议错误封装。
func WrapErrScopeUnbalanced(open int, msg ...string) error {
	err := wrapFields(ErrScopeUnbalanced, value("openScopes", open))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrScopeMismatch(expected, found any, msg ...string) error {
	err := wrapFields(ErrScopeMismatch,
		value("expected", expected),
		value("found", found),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrDepthLimitExceeded(depth, limit int) error {
	return wrapFields(ErrDepthLimitExceeded, bound("depth", depth, 0, limit))
}

func WrapErrOpaqueUnsupported(typ any, reason string) error {
	return wrapFieldsWithDesc(ErrOpaqueUnsupported, reason, value("type", typ))
}

func WrapErrOptionRequired(option any, msg ...string) error {
	err := wrapFields(ErrOptionRequired, value("option", option))
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrReferenceUnavailable(msg ...string) error {
	err := error(ErrReferenceUnavailable)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	err := wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	)
	if len(msg) > 0 {
		err = errors.Wrap(err, strings.Join(msg, "->"))
	}
	return err
}

func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func wrapFields(err serdeError, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err serdeError, desc string, fields ...errorField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i].String())
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type errorField interface {
	String() string
}

type valueField struct {
	name  string
	value any
}

func value(name string, value any) valueField {
	return valueField{
		name,
		value,
	}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}

type boundField struct {
	name  string
	value any
	lower any
	upper any
}

func bound(name string, value, lower, upper any) boundField {
	return boundField{
		name,
		value,
		lower,
		upper,
	}
}

func (f boundField) String() string {
	return fmt.Sprintf("%v out of range %v <= %s <= %v", f.value, f.lower, f.name, f.upper)
}

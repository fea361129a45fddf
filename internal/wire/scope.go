package wire

import (
	"reflect"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/typeutil"
)

func topScope(scopes []ScopeKind) ScopeKind {
	if len(scopes) == 0 {
		return 0
	}
	return scopes[len(scopes)-1]
}

// popScope 弹出栈顶作用域，栈为空或类型不符都属于协议错误。
func popScope(scopes *[]ScopeKind, kind ScopeKind) error {
	top := topScope(*scopes)
	if top != kind {
		return merr.WrapErrScopeMismatch(kind, top)
	}
	*scopes = (*scopes)[:len(*scopes)-1]
	return nil
}

func checkDepth(depth int, cfg Config) error {
	if limit := cfg.maxDepth(); depth >= limit {
		return merr.WrapErrDepthLimitExceeded(depth+1, limit)
	}
	return nil
}

// checkOpaque 校验直接内存拷贝的前置条件。
func checkOpaque(opts Options, t reflect.Type) error {
	if !opts.Has(EnableDirectMemoryCopy) {
		return merr.WrapErrOpaqueUnsupported(t, "direct memory copy is disabled")
	}
	if !typeutil.IsPOD(t) {
		return merr.WrapErrOpaqueUnsupported(t, "type is not plain old data")
	}
	return nil
}

var builtinTypes = func() map[string]reflect.Type {
	m := make(map[string]reflect.Type)
	for _, v := range []any{
		false, int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0), uintptr(0),
		float32(0), float64(0), complex64(0), complex128(0), "", []byte(nil),
	} {
		t := reflect.TypeOf(v)
		m[typeutil.TypeName(t)] = t
	}
	return m
}()

// typeName 返回写入流中的类型名，优先使用注册表中的名称。
func typeName(types TypeTable, t reflect.Type) string {
	if types != nil {
		if name, ok := types.TypeName(t); ok {
			return name
		}
	}
	return typeutil.TypeName(t)
}

// lookupType 将流中的类型名解析回 reflect.Type。
// 顺序：注册表、内置基础类型、调用方期望的类型。
func lookupType(types TypeTable, name string, expected reflect.Type) (reflect.Type, bool) {
	if types != nil {
		if t, ok := types.TypeByName(name); ok {
			return t, true
		}
	}
	if t, ok := builtinTypes[name]; ok {
		return t, true
	}
	if expected != nil && typeutil.TypeName(expected) == name {
		return expected, true
	}
	return nil, false
}

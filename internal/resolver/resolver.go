package resolver

import (
	"reflect"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/typeutil"
)

// MemberDefinition 描述一个可序列化成员，由 StructureResolver 产出后不再修改。
type MemberDefinition struct {
	// Name 为序列化名称，为空时由节点树补全为 $<n>。
	Name string
	Type reflect.Type
	// Getter 返回 owner 中该成员的值；owner 可寻址时，返回值应可直接写入。
	Getter func(owner reflect.Value) reflect.Value
	// Setter 可选。设置后读方向先解码到临时值再调用 Setter 回写。
	Setter func(owner, value reflect.Value)
}

// StructureResolver 枚举复合类型的可序列化成员。
type StructureResolver interface {
	CanResolve(t reflect.Type) bool
	Resolve(t reflect.Type) ([]MemberDefinition, error)
}

// validate 校验成员定义完整且名称不重复。
func validate(t reflect.Type, members []MemberDefinition) error {
	names := typeutil.NewSet[string]()
	for i := range members {
		m := &members[i]
		if m.Type == nil || m.Getter == nil {
			return merr.WrapErrMemberResolveFailed(t, merr.WrapErrParameterInvalidMsg("member %d of %s has no type or getter", i, t))
		}
		if m.Name == "" {
			continue
		}
		if names.Contain(m.Name) {
			return merr.WrapErrMemberResolveFailed(t, merr.WrapErrParameterInvalidMsg("duplicate member name %q", m.Name))
		}
		names.Insert(m.Name)
	}
	return nil
}

// Chain 依次尝试多个 resolver，使用第一个 CanResolve 的结果。
type Chain []StructureResolver

func (c Chain) CanResolve(t reflect.Type) bool {
	for _, r := range c {
		if r != nil && r.CanResolve(t) {
			return true
		}
	}
	return false
}

func (c Chain) Resolve(t reflect.Type) ([]MemberDefinition, error) {
	for _, r := range c {
		if r != nil && r.CanResolve(t) {
			return r.Resolve(t)
		}
	}
	return nil, merr.WrapErrMemberResolveFailed(t, nil)
}

// Claim 返回链中第一个能解析 t 的 resolver，嵌套的 Chain 会被展开。
func (c Chain) Claim(t reflect.Type) StructureResolver {
	for _, r := range c {
		if r == nil || !r.CanResolve(t) {
			continue
		}
		if inner, ok := r.(Chain); ok {
			return inner.Claim(t)
		}
		return r
	}
	return nil
}

// Claimant 返回实际为 t 提供成员列表的 resolver，没有时返回 nil。
func Claimant(r StructureResolver, t reflect.Type) StructureResolver {
	if c, ok := r.(Chain); ok {
		return c.Claim(t)
	}
	if r == nil || !r.CanResolve(t) {
		return nil
	}
	return r
}

// IsFieldResolved 判断 t 的成员是否由默认的反射字段解析产生。
func IsFieldResolved(r StructureResolver, t reflect.Type) bool {
	_, ok := Claimant(r, t).(*FieldResolver)
	return ok
}

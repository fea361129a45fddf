package resolver

import (
	"reflect"
	"strings"
	"sync"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// TagName 为 FieldResolver 读取的结构体 tag 键。
const TagName = "serde"

var _ StructureResolver = (*FieldResolver)(nil)

// FieldResolver 基于反射枚举结构体的导出字段：
// `serde:"name"` 重命名，`serde:"-"` 跳过；未命名的非指针嵌入结构体会被展开。
type FieldResolver struct {
	cache sync.Map // reflect.Type -> []MemberDefinition
}

func NewFieldResolver() *FieldResolver {
	return &FieldResolver{}
}

func (r *FieldResolver) CanResolve(t reflect.Type) bool {
	return t != nil && t.Kind() == reflect.Struct
}

func (r *FieldResolver) Resolve(t reflect.Type) ([]MemberDefinition, error) {
	if !r.CanResolve(t) {
		return nil, merr.WrapErrMemberResolveFailed(t, nil)
	}
	if cached, ok := r.cache.Load(t); ok {
		return cached.([]MemberDefinition), nil
	}
	members := collectFields(t, nil, nil)
	if err := validate(t, members); err != nil {
		return nil, err
	}
	actual, _ := r.cache.LoadOrStore(t, members)
	return actual.([]MemberDefinition), nil
}

func collectFields(t reflect.Type, prefix []int, members []MemberDefinition) []MemberDefinition {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get(TagName)
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		index := make([]int, 0, len(prefix)+1)
		index = append(index, prefix...)
		index = append(index, i)

		if field.Anonymous && name == "" && field.Type.Kind() == reflect.Struct {
			members = collectFields(field.Type, index, members)
			continue
		}
		if !field.IsExported() {
			continue
		}
		if name == "" {
			name = field.Name
		}
		members = append(members, MemberDefinition{
			Name:   name,
			Type:   field.Type,
			Getter: fieldGetter(index),
		})
	}
	return members
}

func fieldGetter(index []int) func(owner reflect.Value) reflect.Value {
	if len(index) == 1 {
		i := index[0]
		return func(owner reflect.Value) reflect.Value {
			return owner.Field(i)
		}
	}
	return func(owner reflect.Value) reflect.Value {
		return owner.FieldByIndex(index)
	}
}

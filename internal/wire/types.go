package wire

import (
	"reflect"
	"sync"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/typeutil"
)

var _ TypeTable = (*TypeRegistry)(nil)

// TypeRegistry 是并发安全的类型名注册表。
// 未注册的类型写出时使用 typeutil.TypeName 作为名称。
type TypeRegistry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
}

// Register 以 typeutil.TypeName 为名注册 values 的动态类型，values 也可以直接是 reflect.Type。
func (r *TypeRegistry) Register(values ...any) error {
	for _, v := range values {
		t, ok := v.(reflect.Type)
		if !ok {
			t = reflect.TypeOf(v)
		}
		if t == nil {
			return merr.WrapErrParameterInvalidMsg("cannot register nil type")
		}
		if err := r.RegisterName(typeutil.TypeName(t), t); err != nil {
			return err
		}
	}
	return nil
}

// RegisterName 以指定名称注册类型，同名不同类型视为冲突。
func (r *TypeRegistry) RegisterName(name string, t reflect.Type) error {
	if name == "" || t == nil {
		return merr.WrapErrParameterInvalidMsg("type name and type must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if exist, ok := r.byName[name]; ok && exist != t {
		return merr.WrapErrParameterInvalidMsg("type name %q already registered for %s", name, exist)
	}
	r.byName[name] = t
	r.byType[t] = name
	return nil
}

func (r *TypeRegistry) TypeName(t reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[t]
	return name, ok
}

func (r *TypeRegistry) TypeByName(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// Len 返回已注册的类型数量。
func (r *TypeRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

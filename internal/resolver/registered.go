package resolver

import (
	"reflect"
	"sync"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

var _ StructureResolver = (*Registered)(nil)

// Registered 按类型显式登记成员列表，优先级高于反射推导。
type Registered struct {
	mu      sync.RWMutex
	members map[reflect.Type][]MemberDefinition
}

func NewRegistered() *Registered {
	return &Registered{
		members: make(map[reflect.Type][]MemberDefinition),
	}
}

// Register 为 t 登记成员列表，重复登记会覆盖之前的定义。
func (r *Registered) Register(t reflect.Type, members ...MemberDefinition) error {
	if t == nil {
		return merr.WrapErrParameterInvalidMsg("cannot register members for nil type")
	}
	if err := validate(t, members); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[t] = append([]MemberDefinition(nil), members...)
	return nil
}

func (r *Registered) CanResolve(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[t]
	return ok
}

func (r *Registered) Resolve(t reflect.Type) ([]MemberDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.members[t]
	if !ok {
		return nil, merr.WrapErrMemberResolveFailed(t, nil)
	}
	return members, nil
}

// Register 以类型参数登记 T 的成员列表。
func Register[T any](r *Registered, members ...MemberDefinition) error {
	return r.Register(reflect.TypeOf((*T)(nil)).Elem(), members...)
}

// Accessor 基于类型化的 get/set 函数构造成员定义，set 为 nil 时成员只写不读。
func Accessor[T, M any](name string, get func(*T) M, set func(*T, M)) MemberDefinition {
	def := MemberDefinition{
		Name: name,
		Type: reflect.TypeOf((*M)(nil)).Elem(),
		Getter: func(owner reflect.Value) reflect.Value {
			v := get(ownerPointer[T](owner))
			// 通过指针取值，保留 M 的静态类型（M 可能是接口）。
			return reflect.ValueOf(&v).Elem()
		},
	}
	if set != nil {
		def.Setter = func(owner, value reflect.Value) {
			m, _ := value.Interface().(M)
			set(ownerPointer[T](owner), m)
		}
	} else {
		def.Setter = func(owner, value reflect.Value) {}
	}
	return def
}

func ownerPointer[T any](owner reflect.Value) *T {
	if owner.CanAddr() {
		return owner.Addr().Interface().(*T)
	}
	p := new(T)
	reflect.ValueOf(p).Elem().Set(owner)
	return p
}

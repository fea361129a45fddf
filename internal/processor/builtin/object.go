package builtin

import (
	"reflect"
	"sync"

	"github.com/lk2023060901/danmu-garden-serde/internal/node"
	"github.com/lk2023060901/danmu-garden-serde/internal/processor"
	"github.com/lk2023060901/danmu-garden-serde/internal/resolver"
	"github.com/lk2023060901/danmu-garden-serde/internal/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/typeutil"
)

// object 为通用的结构体处理器：在对象作用域内按成员节点逐个编码。
// 成员列表在构造时解析，成员处理器作为依赖由 registry 注入，
// 缺少处理器的成员在 Resolve 时即报错。自引用类型通过构造中的处理器解决。
type object struct {
	t    reflect.Type
	root *node.Node
	// fields[i] 为第 i 个成员的处理器，注入完成后在首次处理时绑定到成员节点。
	fields   []processor.Processor
	bindOnce sync.Once
	// pod 为 true 时，直接内存拷贝模式下整体按内存写出。
	pod bool
}

func newObject(t reflect.Type, builder *node.Builder, structures resolver.StructureResolver) (*object, error) {
	p := &object{
		t: t,
		pod: typeutil.IsPOD(t) && t.Size() > 0 && plainLayout(t) &&
			resolver.IsFieldResolved(structures, t),
	}
	p.root = builder.BuildBound(t, p)
	members, err := p.root.Members()
	if err != nil {
		return nil, err
	}
	p.fields = make([]processor.Processor, len(members))
	return p, nil
}

// plainLayout 判断结构体（递归）是否所有字段都导出且没有被 tag 排除，
// 只有这样整体内存拷贝才与逐成员编码等价。
func plainLayout(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if !field.IsExported() || field.Tag.Get(resolver.TagName) == "-" || !plainLayout(field.Type) {
				return false
			}
		}
		return true
	case reflect.Array:
		return plainLayout(t.Elem())
	default:
		return true
	}
}

func (p *object) Type() reflect.Type {
	return p.t
}

func (p *object) Dependencies() []processor.Dependency {
	members, _ := p.root.Members()
	deps := make([]processor.Dependency, len(members))
	for i, m := range members {
		deps[i] = processor.Dependency{Name: m.Name(), Type: m.Type(), Target: &p.fields[i]}
	}
	return deps
}

// Node 返回该类型的根节点。
func (p *object) Node() *node.Node {
	return p.root
}

func (p *object) Process(f wire.Formatter, v reflect.Value) error {
	if p.pod && f.Options().Has(wire.EnableDirectMemoryCopy) {
		return f.FormatOpaque(v)
	}

	t := p.t
	if err := f.BeginObject(&t); err != nil {
		return err
	}
	if t != nil && t != p.t {
		return merr.WrapErrTypeMismatch(p.t, t)
	}
	members, err := p.root.Members()
	if err != nil {
		return err
	}
	p.bindOnce.Do(func() {
		for i, m := range members {
			if p.fields[i] != nil {
				m.Bind(p.fields[i])
			}
		}
	})
	for _, m := range members {
		if err := m.ProcessMember(f, v); err != nil {
			return err
		}
	}
	return f.EndObject()
}

// interfaceProcessor 处理接口类型：具体类型随 TypedObjectBegin 写入流中，
// 读取时按解码出的类型取处理器。
type interfaceProcessor struct {
	t        reflect.Type
	registry processor.Resolver
}

func (p *interfaceProcessor) Type() reflect.Type {
	return p.t
}

func (p *interfaceProcessor) Process(f wire.Formatter, v reflect.Value) error {
	if !f.Options().Has(wire.IncludeObjectType) {
		return merr.WrapErrOptionRequired(wire.IncludeObjectType, "interface "+p.t.String())
	}
	if f.Direction() == wire.DirectionWrite {
		return p.write(f, v)
	}
	return p.read(f, v)
}

func (p *interfaceProcessor) write(f wire.Formatter, v reflect.Value) error {
	var concrete reflect.Type
	if !v.IsNil() {
		concrete = v.Elem().Type()
	}
	if err := f.BeginObject(&concrete); err != nil {
		return err
	}
	if concrete != nil {
		inner, err := p.registry.Resolve(concrete)
		if err != nil {
			return err
		}
		if err := inner.Process(f, v.Elem()); err != nil {
			return err
		}
	}
	return f.EndObject()
}

func (p *interfaceProcessor) read(f wire.Formatter, v reflect.Value) error {
	var concrete reflect.Type
	if !v.IsNil() {
		concrete = v.Elem().Type()
	}
	if err := f.BeginObject(&concrete); err != nil {
		return err
	}
	if concrete == nil {
		v.SetZero()
		return f.EndObject()
	}
	if !concrete.Implements(p.t) {
		return merr.WrapErrTypeMismatch(p.t, concrete, "concrete type does not implement interface")
	}
	inner, err := p.registry.Resolve(concrete)
	if err != nil {
		return err
	}
	tmp := reflect.New(concrete).Elem()
	if !v.IsNil() && v.Elem().Type() == concrete {
		tmp.Set(v.Elem())
	}
	if err := inner.Process(f, tmp); err != nil {
		return err
	}
	v.Set(tmp)
	return f.EndObject()
}

package builtin

import (
	"reflect"

	"github.com/lk2023060901/danmu-garden-serde/internal/node"
	"github.com/lk2023060901/danmu-garden-serde/internal/processor"
	"github.com/lk2023060901/danmu-garden-serde/internal/resolver"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/typeutil"
)

// Options 为内置处理器的依赖。
type Options struct {
	// Structures 枚举结构体成员，为 nil 时使用 resolver.NewFieldResolver。
	// 只有由 FieldResolver 解析的类型才会走 POD 快速路径。
	Structures resolver.StructureResolver
	// References 中的类型按外部引用序列化，与实现 wire.ExternalObject 的类型等同。
	References []reflect.Type
}

// Register 向 registry 登记全部内置候选。
func Register(registry *processor.Registry, opts Options) error {
	for _, c := range Candidates(registry, opts) {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Candidates 返回内置候选列表，registry 用于运行时按具体类型取处理器。
func Candidates(registry processor.Resolver, opts Options) []processor.Candidate {
	structures := opts.Structures
	if structures == nil {
		structures = resolver.NewFieldResolver()
	}
	builder := node.NewBuilder(registry, structures)
	references := typeutil.NewSet[reflect.Type](opts.References...)

	return []processor.Candidate{
		{
			Name:       "primitive",
			Priority:   processor.PriorityPrimitive,
			CanProcess: isPrimitive,
			New:        newPrimitive,
		},
		{
			Name:       "enum",
			Priority:   processor.PriorityWellKnown,
			CanProcess: isEnum,
			New:        newPrimitive,
		},
		{
			Name:     "duration",
			Priority: processor.PriorityWellKnown,
			Target:   durationType,
			New:      newPrimitive,
		},
		{
			Name:       "binary-marshaler",
			Priority:   processor.PriorityWellKnown,
			CanProcess: isBinaryMarshaler,
			New:        newBinaryMarshaler,
		},
		{
			Name:     "reference",
			Priority: processor.PriorityReference,
			CanProcess: func(t reflect.Type) bool {
				return references.Contain(t) || t.Implements(externalObjectType)
			},
			New: newReference,
		},
		{
			Name:       "array",
			Priority:   processor.PriorityCollection,
			CanProcess: kindIs(reflect.Array),
			New:        newArray,
		},
		{
			Name:       "list",
			Priority:   processor.PriorityCollection,
			CanProcess: kindIs(reflect.Slice),
			New:        newList,
		},
		{
			Name:       "dictionary",
			Priority:   processor.PriorityCollection,
			CanProcess: kindIs(reflect.Map),
			New:        newDictionary,
		},
		{
			Name:       "pointer",
			Priority:   processor.PriorityCollection,
			CanProcess: kindIs(reflect.Pointer),
			New:        newPointer,
		},
		{
			Name:       "interface",
			Priority:   processor.PriorityCollection,
			CanProcess: kindIs(reflect.Interface),
			New: func(t reflect.Type) (processor.Processor, error) {
				return &interfaceProcessor{t: t, registry: registry}, nil
			},
		},
		{
			Name:     "object",
			Priority: processor.PriorityGeneric,
			CanProcess: func(t reflect.Type) bool {
				return t.Kind() == reflect.Struct && structures.CanResolve(t)
			},
			New: func(t reflect.Type) (processor.Processor, error) {
				p, err := newObject(t, builder, structures)
				if err != nil {
					return nil, err
				}
				return p, nil
			},
		},
	}
}

func kindIs(kind reflect.Kind) func(reflect.Type) bool {
	return func(t reflect.Type) bool {
		return t.Kind() == kind
	}
}

func unsupported(t reflect.Type) error {
	return merr.WrapErrProcessorNotFound(t, "unsupported kind "+t.Kind().String())
}

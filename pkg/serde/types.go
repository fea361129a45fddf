package serde

import (
	"github.com/lk2023060901/danmu-garden-serde/internal/processor"
	"github.com/lk2023060901/danmu-garden-serde/internal/resolver"
	"github.com/lk2023060901/danmu-garden-serde/internal/wire"
)

// 对外暴露的编解码类型。
type (
	WireOptions    = wire.Options
	Formatter      = wire.Formatter
	TypeRegistry   = wire.TypeRegistry
	ExternalObject = wire.ExternalObject
	ReferenceTable = wire.ReferenceTable
	Processor      = processor.Processor
	Candidate      = processor.Candidate
	Dependency     = processor.Dependency
	Priority       = processor.Priority
	Registry       = processor.Registry
	MemberDef      = resolver.MemberDefinition
	StructResolver = resolver.StructureResolver
)

const (
	IncludeTypeTags        = wire.IncludeTypeTags
	IncludeMemberNames     = wire.IncludeMemberNames
	IncludeObjectType      = wire.IncludeObjectType
	EnableVarintEncoding   = wire.EnableVarintEncoding
	EnableDirectMemoryCopy = wire.EnableDirectMemoryCopy

	Compact        = wire.Compact
	Default        = wire.Default
	SelfDescribing = wire.SelfDescribing
	Fast           = wire.Fast

	PriorityGeneric    = processor.PriorityGeneric
	PriorityCollection = processor.PriorityCollection
	PriorityWellKnown  = processor.PriorityWellKnown
	PriorityReference  = processor.PriorityReference
	PriorityCustom     = processor.PriorityCustom
	PriorityPrimitive  = processor.PriorityPrimitive
)

func NewTypeRegistry() *TypeRegistry {
	return wire.NewTypeRegistry()
}

// Accessor 以类型化的 get/set 构造成员定义，配合 Serializer.RegisterMembers 使用。
func Accessor[T, M any](name string, get func(*T) M, set func(*T, M)) MemberDef {
	return resolver.Accessor(name, get, set)
}

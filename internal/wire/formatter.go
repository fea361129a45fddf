package wire

import "reflect"

// DefaultMaxDepth 为默认允许的最大嵌套深度。
const DefaultMaxDepth = 1000

// Direction 表示 Formatter 的数据流向。
type Direction int8

const (
	DirectionWrite Direction = iota
	DirectionRead
)

func (d Direction) String() string {
	if d == DirectionRead {
		return "read"
	}
	return "write"
}

// ScopeKind 为作用域栈中的元素类型。
type ScopeKind int8

const (
	ScopeObject ScopeKind = iota + 1
	ScopeArray
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeObject:
		return "Object"
	case ScopeArray:
		return "Array"
	default:
		return "None"
	}
}

// Config 为一次编解码会话的配置。
type Config struct {
	Options Options
	// MaxDepth 限制 Begin 嵌套层数，<= 0 时使用 DefaultMaxDepth。
	MaxDepth int
	// Lenient 为 true 时，恰好位于流末尾的读取返回零值而不是报错。
	Lenient bool
	// Types 用于 IncludeObjectType 下类型名与 reflect.Type 的互相转换。
	Types TypeTable
}

func (c Config) maxDepth() int {
	if c.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return c.MaxDepth
}

// Formatter 是读写对称的编解码接口。
// 所有值都以指针传入：写方向从指针读取，读方向写回指针。
// 同一个 Formatter 实例不可并发使用。
type Formatter interface {
	Direction() Direction
	Options() Options
	Depth() int

	// BeginMember 仅在 Object 作用域内生效，作用域外为空操作。
	BeginMember(name string) error
	EndMember() error
	// BeginObject 开启对象作用域。开启 IncludeObjectType 时 t 携带具体类型，
	// 读方向会把解码出的类型写回 *t（无类型时为 nil）。
	BeginObject(t *reflect.Type) error
	EndObject() error
	// BeginArray 开启数组作用域，读方向写回元素个数。
	BeginArray(length *int) error
	EndArray() error

	FormatBool(v *bool) error
	FormatInt8(v *int8) error
	FormatInt16(v *int16) error
	FormatInt32(v *int32) error
	FormatInt64(v *int64) error
	FormatUint8(v *uint8) error
	FormatUint16(v *uint16) error
	FormatUint32(v *uint32) error
	FormatUint64(v *uint64) error
	FormatFloat32(v *float32) error
	FormatFloat64(v *float64) error
	FormatString(v *string) error
	FormatBytes(v *[]byte) error

	FormatInt8Array(v *[]int8) error
	FormatInt16Array(v *[]int16) error
	FormatUint16Array(v *[]uint16) error
	FormatInt32Array(v *[]int32) error
	FormatUint32Array(v *[]uint32) error
	FormatInt64Array(v *[]int64) error
	FormatUint64Array(v *[]uint64) error

	// FormatOpaque 按内存直接拷贝一个可寻址的 POD 值，仅在 EnableDirectMemoryCopy 下可用。
	FormatOpaque(v reflect.Value) error
	// FormatOpaqueArray 按内存直接拷贝一个可寻址的 POD 元素切片。
	FormatOpaqueArray(v reflect.Value) error
	// FormatReference 通过外部引用表序列化对象的下标，0 表示 nil。
	FormatReference(obj *any) error
}

// ExternalObject 标记只能以外部引用表下标形式序列化的对象。
type ExternalObject interface {
	ExternalReference()
}

// ReferenceWriter 在写方向上登记外部对象。
type ReferenceWriter interface {
	// RegisterReference 追加 obj 并返回从 1 开始的下标。
	RegisterReference(obj any) (uint32, error)
	ReferenceTable() []any
}

// ReferenceReader 在读方向上按下标解析外部对象。
type ReferenceReader interface {
	ResolveReference(index uint32) (any, error)
	SetReferenceTable(table []any)
}

// TypeTable 负责类型名与 reflect.Type 的双向映射。
type TypeTable interface {
	TypeName(t reflect.Type) (string, bool)
	TypeByName(name string) (reflect.Type, bool)
}

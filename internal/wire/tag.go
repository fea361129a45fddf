package wire

import "fmt"

// Tag 为单字节标记，低区间为值类型，高区间为结构标记。
// 结构标记总会写入，不受 IncludeTypeTags 控制。
type Tag byte

const (
	TagInt8 Tag = 0x10 + iota
	TagUInt8
	TagInt16
	TagUInt16
	TagInt32
	TagUInt32
	TagInt64
	TagUInt64
	TagBool
	TagFloat32
	TagFloat64
	TagString
	TagInt8Array
	TagUInt8Array
	TagInt16Array
	TagUInt16Array
	TagInt32Array
	TagUInt32Array
	TagInt64Array
	TagUInt64Array
	TagOpaqueRef
	TagUnmanagedValue
	TagUnmanagedArray
)

const (
	TagMemberBegin Tag = 0x80 + iota
	TagObjectBegin
	TagObjectEnd
	TagArrayBegin
	TagArrayEnd
	TagTypedObjectBegin
)

var tagNames = map[Tag]string{
	TagInt8:             "Int8",
	TagUInt8:            "UInt8",
	TagInt16:            "Int16",
	TagUInt16:           "UInt16",
	TagInt32:            "Int32",
	TagUInt32:           "UInt32",
	TagInt64:            "Int64",
	TagUInt64:           "UInt64",
	TagBool:             "Bool",
	TagFloat32:          "Float32",
	TagFloat64:          "Float64",
	TagString:           "String",
	TagInt8Array:        "Int8Array",
	TagUInt8Array:       "UInt8Array",
	TagInt16Array:       "Int16Array",
	TagUInt16Array:      "UInt16Array",
	TagInt32Array:       "Int32Array",
	TagUInt32Array:      "UInt32Array",
	TagInt64Array:       "Int64Array",
	TagUInt64Array:      "UInt64Array",
	TagOpaqueRef:        "OpaqueRef",
	TagUnmanagedValue:   "UnmanagedValue",
	TagUnmanagedArray:   "UnmanagedArray",
	TagMemberBegin:      "MemberBegin",
	TagObjectBegin:      "ObjectBegin",
	TagObjectEnd:        "ObjectEnd",
	TagArrayBegin:       "ArrayBegin",
	TagArrayEnd:         "ArrayEnd",
	TagTypedObjectBegin: "TypedObjectBegin",
}

// IsStructural 判断是否为结构标记。
func (t Tag) IsStructural() bool {
	return t >= 0x80
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tag(0x%02X)", byte(t))
}

// 类型信息的种类，紧跟在 TypedObjectBegin 之后。
const (
	typeKindNone   byte = 0
	typeKindByID   byte = 1
	typeKindByName byte = 2
)

package wire

import (
	"math"
	"reflect"
	"unicode/utf16"
	"unsafe"

	"golang.org/x/exp/constraints"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

const defaultBufferSize = 256

var _ Formatter = (*Writer)(nil)

// Writer 将 Formatter 调用序列编码到可增长的缓冲区。
// 容量不足时至少翻倍，本层不限制最大长度。
type Writer struct {
	cfg     Config
	buf     []byte
	scopes  []ScopeKind
	depth   int
	typeIDs map[reflect.Type]uint32
	refs    ReferenceWriter
}

func NewWriter(cfg Config, initialSize int) *Writer {
	if initialSize <= 0 {
		initialSize = defaultBufferSize
	}
	return &Writer{
		cfg: cfg,
		buf: make([]byte, 0, initialSize),
	}
}

// Configure 替换会话配置，只应在 Reset 之后调用。
func (w *Writer) Configure(cfg Config) {
	w.cfg = cfg
}

func (w *Writer) Config() Config {
	return w.cfg
}

// SetReferenceWriter 设置外部引用登记器，nil 表示不支持外部引用。
func (w *Writer) SetReferenceWriter(refs ReferenceWriter) {
	w.refs = refs
}

// Bytes 返回已写入的数据，切片在下一次 Reset 前有效。
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) Cap() int {
	return cap(w.buf)
}

// Reset 清空位置、深度、作用域栈和类型表，保留底层缓冲区。
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.scopes = w.scopes[:0]
	w.depth = 0
	clear(w.typeIDs)
	w.refs = nil
}

// Release 校验作用域已全部关闭后重置实例；存在未关闭的作用域时拒绝复用。
func (w *Writer) Release() error {
	if len(w.scopes) > 0 {
		return merr.WrapErrScopeUnbalanced(len(w.scopes), w.scopes[len(w.scopes)-1].String())
	}
	w.Reset()
	return nil
}

func (w *Writer) Direction() Direction {
	return DirectionWrite
}

func (w *Writer) Options() Options {
	return w.cfg.Options
}

func (w *Writer) Depth() int {
	return w.depth
}

func (w *Writer) BeginMember(name string) error {
	if topScope(w.scopes) != ScopeObject || !w.cfg.Options.Has(IncludeMemberNames) {
		return nil
	}
	w.writeByte(byte(TagMemberBegin))
	w.writeString(name)
	return nil
}

func (w *Writer) EndMember() error {
	return nil
}

func (w *Writer) BeginObject(t *reflect.Type) error {
	if err := checkDepth(w.depth, w.cfg); err != nil {
		return err
	}
	if w.cfg.Options.Has(IncludeObjectType) {
		w.writeByte(byte(TagTypedObjectBegin))
		w.writeType(t)
	} else {
		w.writeByte(byte(TagObjectBegin))
	}
	w.writeUvarint(uint64(w.depth))
	w.depth++
	w.scopes = append(w.scopes, ScopeObject)
	return nil
}

func (w *Writer) EndObject() error {
	return w.end(ScopeObject, TagObjectEnd)
}

func (w *Writer) BeginArray(length *int) error {
	if err := checkDepth(w.depth, w.cfg); err != nil {
		return err
	}
	if *length < 0 {
		return merr.WrapErrParameterInvalid(0, *length, "non-negative length")
	}
	w.writeByte(byte(TagArrayBegin))
	w.writeUvarint(uint64(w.depth))
	w.writeUvarint(uint64(*length))
	w.depth++
	w.scopes = append(w.scopes, ScopeArray)
	return nil
}

func (w *Writer) EndArray() error {
	return w.end(ScopeArray, TagArrayEnd)
}

func (w *Writer) end(kind ScopeKind, tag Tag) error {
	if err := popScope(&w.scopes, kind); err != nil {
		return err
	}
	w.depth--
	w.writeUvarint(uint64(w.depth))
	w.writeByte(byte(tag))
	return nil
}

func (w *Writer) FormatBool(v *bool) error {
	w.writeTag(TagBool)
	if *v {
		w.writeByte(1)
	} else {
		w.writeByte(0)
	}
	return nil
}

func (w *Writer) FormatInt8(v *int8) error {
	w.writeTag(TagInt8)
	w.writeByte(byte(*v))
	return nil
}

func (w *Writer) FormatInt16(v *int16) error {
	w.writeTag(TagInt16)
	writeSigned(w, *v, 2)
	return nil
}

func (w *Writer) FormatInt32(v *int32) error {
	w.writeTag(TagInt32)
	writeSigned(w, *v, 4)
	return nil
}

func (w *Writer) FormatInt64(v *int64) error {
	w.writeTag(TagInt64)
	writeSigned(w, *v, 8)
	return nil
}

func (w *Writer) FormatUint8(v *uint8) error {
	w.writeTag(TagUInt8)
	w.writeByte(*v)
	return nil
}

func (w *Writer) FormatUint16(v *uint16) error {
	w.writeTag(TagUInt16)
	writeUnsigned(w, *v, 2)
	return nil
}

func (w *Writer) FormatUint32(v *uint32) error {
	w.writeTag(TagUInt32)
	writeUnsigned(w, *v, 4)
	return nil
}

func (w *Writer) FormatUint64(v *uint64) error {
	w.writeTag(TagUInt64)
	writeUnsigned(w, *v, 8)
	return nil
}

func (w *Writer) FormatFloat32(v *float32) error {
	w.writeTag(TagFloat32)
	w.writeFixed(uint64(math.Float32bits(*v)), 4)
	return nil
}

func (w *Writer) FormatFloat64(v *float64) error {
	w.writeTag(TagFloat64)
	w.writeFixed(math.Float64bits(*v), 8)
	return nil
}

func (w *Writer) FormatString(v *string) error {
	w.writeTag(TagString)
	w.writeString(*v)
	return nil
}

func (w *Writer) FormatBytes(v *[]byte) error {
	w.writeTag(TagUInt8Array)
	w.writeUvarint(uint64(len(*v)))
	w.writeBytes(*v)
	return nil
}

func (w *Writer) FormatInt8Array(v *[]int8) error {
	w.writeTag(TagInt8Array)
	w.writeUvarint(uint64(len(*v)))
	if len(*v) > 0 {
		w.writeBytes(unsafe.Slice((*byte)(unsafe.Pointer(&(*v)[0])), len(*v)))
	}
	return nil
}

func (w *Writer) FormatInt16Array(v *[]int16) error {
	writeSignedArray(w, TagInt16Array, *v, 2)
	return nil
}

func (w *Writer) FormatUint16Array(v *[]uint16) error {
	writeUnsignedArray(w, TagUInt16Array, *v, 2)
	return nil
}

func (w *Writer) FormatInt32Array(v *[]int32) error {
	writeSignedArray(w, TagInt32Array, *v, 4)
	return nil
}

func (w *Writer) FormatUint32Array(v *[]uint32) error {
	writeUnsignedArray(w, TagUInt32Array, *v, 4)
	return nil
}

func (w *Writer) FormatInt64Array(v *[]int64) error {
	writeSignedArray(w, TagInt64Array, *v, 8)
	return nil
}

func (w *Writer) FormatUint64Array(v *[]uint64) error {
	writeUnsignedArray(w, TagUInt64Array, *v, 8)
	return nil
}

func (w *Writer) FormatOpaque(v reflect.Value) error {
	if err := checkOpaque(w.cfg.Options, v.Type()); err != nil {
		return err
	}
	if !v.CanAddr() {
		tmp := reflect.New(v.Type()).Elem()
		tmp.Set(v)
		v = tmp
	}
	w.writeTag(TagUnmanagedValue)
	if size := int(v.Type().Size()); size > 0 {
		w.writeBytes(unsafe.Slice((*byte)(v.Addr().UnsafePointer()), size))
	}
	return nil
}

func (w *Writer) FormatOpaqueArray(v reflect.Value) error {
	if v.Kind() != reflect.Slice {
		return merr.WrapErrParameterInvalid("slice", v.Kind().String(), "opaque array")
	}
	elem := v.Type().Elem()
	if err := checkOpaque(w.cfg.Options, elem); err != nil {
		return err
	}
	w.writeTag(TagUnmanagedArray)
	w.writeUvarint(uint64(v.Len()))
	if n := v.Len() * int(elem.Size()); n > 0 {
		w.writeBytes(unsafe.Slice((*byte)(v.UnsafePointer()), n))
	}
	return nil
}

func (w *Writer) FormatReference(obj *any) error {
	if w.refs == nil {
		return merr.WrapErrReferenceUnavailable("write")
	}
	var index uint32
	if *obj != nil {
		var err error
		if index, err = w.refs.RegisterReference(*obj); err != nil {
			return err
		}
	}
	w.writeTag(TagOpaqueRef)
	w.writeUvarint(uint64(index))
	return nil
}

func (w *Writer) writeType(t *reflect.Type) {
	if t == nil || *t == nil {
		w.writeByte(typeKindNone)
		return
	}
	if id, ok := w.typeIDs[*t]; ok {
		w.writeByte(typeKindByID)
		w.writeUvarint(uint64(id))
		return
	}
	if w.typeIDs == nil {
		w.typeIDs = make(map[reflect.Type]uint32)
	}
	id := uint32(len(w.typeIDs) + 1)
	w.typeIDs[*t] = id
	w.writeByte(typeKindByName)
	w.writeUvarint(uint64(id))
	w.writeString(typeName(w.cfg.Types, *t))
}

// ensure 保证还能追加 n 个字节，容量不足时至少翻倍。
func (w *Writer) ensure(n int) {
	need := len(w.buf) + n
	if need <= cap(w.buf) {
		return
	}
	newCap := cap(w.buf) * 2
	if newCap < need {
		newCap = need
	}
	buf := make([]byte, len(w.buf), newCap)
	copy(buf, w.buf)
	w.buf = buf
}

func (w *Writer) writeByte(b byte) {
	w.ensure(1)
	w.buf = append(w.buf, b)
}

func (w *Writer) writeBytes(p []byte) {
	w.ensure(len(p))
	w.buf = append(w.buf, p...)
}

func (w *Writer) writeTag(t Tag) {
	if w.cfg.Options.Has(IncludeTypeTags) {
		w.writeByte(byte(t))
	}
}

func (w *Writer) writeUvarint(v uint64) {
	w.ensure(MaxVarintLen64)
	w.buf = AppendUvarint(w.buf, v)
}

func (w *Writer) writeFixed(u uint64, size int) {
	w.ensure(size)
	for i := 0; i < size; i++ {
		w.buf = append(w.buf, byte(u>>(8*i)))
	}
}

// writeString 写入带长度前缀的字符串：直拷模式下为 UTF-16 码元，否则为 UTF-8 字节。
func (w *Writer) writeString(s string) {
	if w.cfg.Options.Has(EnableDirectMemoryCopy) {
		units := utf16.Encode([]rune(s))
		w.writeUvarint(uint64(len(units)))
		if len(units) > 0 {
			w.writeBytes(unsafe.Slice((*byte)(unsafe.Pointer(&units[0])), len(units)*2))
		}
		return
	}
	w.writeUvarint(uint64(len(s)))
	w.ensure(len(s))
	w.buf = append(w.buf, s...)
}

// rawArrays 表示定长整数数组可以整体按内存拷贝。
func (w *Writer) rawArrays() bool {
	return w.cfg.Options.Has(EnableDirectMemoryCopy) && !w.cfg.Options.Has(EnableVarintEncoding)
}

func writeSigned[T constraints.Signed](w *Writer, v T, size int) {
	if w.cfg.Options.Has(EnableVarintEncoding) {
		w.writeUvarint(ZigZagEncode(v))
		return
	}
	w.writeFixed(uint64(v), size)
}

func writeUnsigned[T constraints.Unsigned](w *Writer, v T, size int) {
	if w.cfg.Options.Has(EnableVarintEncoding) {
		w.writeUvarint(uint64(v))
		return
	}
	w.writeFixed(uint64(v), size)
}

func writeSignedArray[T constraints.Signed](w *Writer, tag Tag, s []T, size int) {
	w.writeTag(tag)
	w.writeUvarint(uint64(len(s)))
	if len(s) == 0 {
		return
	}
	if w.rawArrays() {
		w.writeBytes(unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*size))
		return
	}
	for _, v := range s {
		writeSigned(w, v, size)
	}
}

func writeUnsignedArray[T constraints.Unsigned](w *Writer, tag Tag, s []T, size int) {
	w.writeTag(tag)
	w.writeUvarint(uint64(len(s)))
	if len(s) == 0 {
		return
	}
	if w.rawArrays() {
		w.writeBytes(unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*size))
		return
	}
	for _, v := range s {
		writeUnsigned(w, v, size)
	}
}

package wire

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"unicode/utf16"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/exp/constraints"

	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

var _ Formatter = (*Reader)(nil)

var lenientLog = log.With(log.FieldModule("wire")).WithRateGroup("wire.lenient", 1, 60)

// Reader 从固定的字节区间解码 Formatter 调用序列。
// 读取深度由 Reader 独立计算，并与流中记录的深度逐一比对。
type Reader struct {
	cfg    Config
	buf    []byte
	pos    int
	scopes []ScopeKind
	depth  int
	types  map[uint32]reflect.Type
	refs   ReferenceReader
}

func NewReader(cfg Config, data []byte) *Reader {
	return &Reader{
		cfg: cfg,
		buf: data,
	}
}

// Reset 绑定新的数据并清空全部会话状态。
func (r *Reader) Reset(data []byte) {
	r.buf = data
	r.pos = 0
	r.scopes = r.scopes[:0]
	r.depth = 0
	clear(r.types)
	r.refs = nil
}

// Release 校验作用域已全部关闭。
func (r *Reader) Release() error {
	if len(r.scopes) > 0 {
		return merr.WrapErrScopeUnbalanced(len(r.scopes), r.scopes[len(r.scopes)-1].String())
	}
	r.Reset(nil)
	return nil
}

// SetReferenceReader 设置外部引用解析器，nil 表示不支持外部引用。
func (r *Reader) SetReferenceReader(refs ReferenceReader) {
	r.refs = refs
}

func (r *Reader) Config() Config {
	return r.cfg
}

// Remaining 返回尚未读取的字节数。
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) Position() int {
	return r.pos
}

func (r *Reader) Direction() Direction {
	return DirectionRead
}

func (r *Reader) Options() Options {
	return r.cfg.Options
}

func (r *Reader) Depth() int {
	return r.depth
}

func (r *Reader) BeginMember(name string) error {
	if topScope(r.scopes) != ScopeObject || !r.cfg.Options.Has(IncludeMemberNames) {
		return nil
	}
	if r.lenientEOF("BeginMember") {
		return nil
	}
	if err := r.expectStructural(TagMemberBegin); err != nil {
		return err
	}
	found, err := r.readString()
	if err != nil {
		return err
	}
	// $<n> 为匿名成员的占位名，不参与校验。
	if name != "" && !strings.HasPrefix(name, "$") && found != name {
		return merr.WrapErrMemberNameMismatch(name, found)
	}
	return nil
}

func (r *Reader) EndMember() error {
	return nil
}

func (r *Reader) BeginObject(t *reflect.Type) error {
	if err := checkDepth(r.depth, r.cfg); err != nil {
		return err
	}
	if r.lenientEOF("BeginObject") {
		r.push(ScopeObject)
		return nil
	}
	if r.cfg.Options.Has(IncludeObjectType) {
		if err := r.expectStructural(TagTypedObjectBegin); err != nil {
			return err
		}
		if err := r.readType(t); err != nil {
			return err
		}
	} else if err := r.expectStructural(TagObjectBegin); err != nil {
		return err
	}
	if err := r.checkDepthMarker(); err != nil {
		return err
	}
	r.push(ScopeObject)
	return nil
}

func (r *Reader) EndObject() error {
	return r.end(ScopeObject, TagObjectEnd)
}

func (r *Reader) BeginArray(length *int) error {
	if err := checkDepth(r.depth, r.cfg); err != nil {
		return err
	}
	if r.lenientEOF("BeginArray") {
		*length = 0
		r.push(ScopeArray)
		return nil
	}
	if err := r.expectStructural(TagArrayBegin); err != nil {
		return err
	}
	if err := r.checkDepthMarker(); err != nil {
		return err
	}
	n, err := r.readLength()
	if err != nil {
		return err
	}
	// 每个元素至少占用一个字节，超出剩余长度说明数据被截断。
	if n > r.Remaining() {
		return merr.WrapErrBufferExhausted(n, r.Remaining(), "array length")
	}
	*length = n
	r.push(ScopeArray)
	return nil
}

func (r *Reader) EndArray() error {
	return r.end(ScopeArray, TagArrayEnd)
}

func (r *Reader) push(kind ScopeKind) {
	r.depth++
	r.scopes = append(r.scopes, kind)
}

func (r *Reader) end(kind ScopeKind, tag Tag) error {
	if err := popScope(&r.scopes, kind); err != nil {
		return err
	}
	r.depth--
	if r.lenientEOF("End" + kind.String()) {
		return nil
	}
	if err := r.checkDepthMarker(); err != nil {
		return err
	}
	return r.expectStructural(tag)
}

// checkDepthMarker 读取流中的深度并与独立维护的深度比对。
func (r *Reader) checkDepthMarker() error {
	d, err := r.readUvarint(MaxVarintLen32)
	if err != nil {
		return err
	}
	if d != uint64(r.depth) {
		return merr.WrapErrDepthMismatch(r.depth, int(d))
	}
	return nil
}

func (r *Reader) FormatBool(v *bool) error {
	if r.lenientEOF("Bool") {
		*v = false
		return nil
	}
	if err := r.expectTag(TagBool); err != nil {
		return err
	}
	b, err := r.readByte()
	if err != nil {
		return err
	}
	*v = b != 0
	return nil
}

func (r *Reader) FormatInt8(v *int8) error {
	if r.lenientEOF("Int8") {
		*v = 0
		return nil
	}
	if err := r.expectTag(TagInt8); err != nil {
		return err
	}
	b, err := r.readByte()
	if err != nil {
		return err
	}
	*v = int8(b)
	return nil
}

func (r *Reader) FormatInt16(v *int16) error {
	return formatSigned(r, v, TagInt16, 2)
}

func (r *Reader) FormatInt32(v *int32) error {
	return formatSigned(r, v, TagInt32, 4)
}

func (r *Reader) FormatInt64(v *int64) error {
	return formatSigned(r, v, TagInt64, 8)
}

func (r *Reader) FormatUint8(v *uint8) error {
	if r.lenientEOF("UInt8") {
		*v = 0
		return nil
	}
	if err := r.expectTag(TagUInt8); err != nil {
		return err
	}
	b, err := r.readByte()
	if err != nil {
		return err
	}
	*v = b
	return nil
}

func (r *Reader) FormatUint16(v *uint16) error {
	return formatUnsigned(r, v, TagUInt16, 2)
}

func (r *Reader) FormatUint32(v *uint32) error {
	return formatUnsigned(r, v, TagUInt32, 4)
}

func (r *Reader) FormatUint64(v *uint64) error {
	return formatUnsigned(r, v, TagUInt64, 8)
}

func (r *Reader) FormatFloat32(v *float32) error {
	if r.lenientEOF("Float32") {
		*v = 0
		return nil
	}
	if err := r.expectTag(TagFloat32); err != nil {
		return err
	}
	u, err := r.readFixed(4)
	if err != nil {
		return err
	}
	*v = math.Float32frombits(uint32(u))
	return nil
}

func (r *Reader) FormatFloat64(v *float64) error {
	if r.lenientEOF("Float64") {
		*v = 0
		return nil
	}
	if err := r.expectTag(TagFloat64); err != nil {
		return err
	}
	u, err := r.readFixed(8)
	if err != nil {
		return err
	}
	*v = math.Float64frombits(u)
	return nil
}

func (r *Reader) FormatString(v *string) error {
	if r.lenientEOF("String") {
		*v = ""
		return nil
	}
	if err := r.expectTag(TagString); err != nil {
		return err
	}
	s, err := r.readString()
	if err != nil {
		return err
	}
	*v = s
	return nil
}

// FormatBytes 读出的切片不与输入缓冲区共享内存，长度为 0 时得到 nil。
func (r *Reader) FormatBytes(v *[]byte) error {
	if r.lenientEOF("Bytes") {
		*v = nil
		return nil
	}
	if err := r.expectTag(TagUInt8Array); err != nil {
		return err
	}
	n, err := r.readLength()
	if err != nil {
		return err
	}
	if n == 0 {
		*v = nil
		return nil
	}
	raw, err := r.readN(n)
	if err != nil {
		return err
	}
	*v = append([]byte(nil), raw...)
	return nil
}

func (r *Reader) FormatInt8Array(v *[]int8) error {
	if r.lenientEOF("Int8Array") {
		*v = nil
		return nil
	}
	if err := r.expectTag(TagInt8Array); err != nil {
		return err
	}
	n, err := r.readLength()
	if err != nil {
		return err
	}
	if n == 0 {
		*v = nil
		return nil
	}
	raw, err := r.readN(n)
	if err != nil {
		return err
	}
	s := make([]int8, n)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n), raw)
	*v = s
	return nil
}

func (r *Reader) FormatInt16Array(v *[]int16) error {
	return formatSignedArray(r, v, TagInt16Array, 2)
}

func (r *Reader) FormatUint16Array(v *[]uint16) error {
	return formatUnsignedArray(r, v, TagUInt16Array, 2)
}

func (r *Reader) FormatInt32Array(v *[]int32) error {
	return formatSignedArray(r, v, TagInt32Array, 4)
}

func (r *Reader) FormatUint32Array(v *[]uint32) error {
	return formatUnsignedArray(r, v, TagUInt32Array, 4)
}

func (r *Reader) FormatInt64Array(v *[]int64) error {
	return formatSignedArray(r, v, TagInt64Array, 8)
}

func (r *Reader) FormatUint64Array(v *[]uint64) error {
	return formatUnsignedArray(r, v, TagUInt64Array, 8)
}

func (r *Reader) FormatOpaque(v reflect.Value) error {
	if err := checkOpaque(r.cfg.Options, v.Type()); err != nil {
		return err
	}
	if !v.CanSet() {
		return merr.WrapErrParameterInvalid("settable value", v.Type().String(), "opaque")
	}
	if r.lenientEOF("Opaque") {
		v.SetZero()
		return nil
	}
	if err := r.expectTag(TagUnmanagedValue); err != nil {
		return err
	}
	size := int(v.Type().Size())
	raw, err := r.readN(size)
	if err != nil {
		return err
	}
	if size > 0 {
		copy(unsafe.Slice((*byte)(v.Addr().UnsafePointer()), size), raw)
	}
	return nil
}

func (r *Reader) FormatOpaqueArray(v reflect.Value) error {
	if v.Kind() != reflect.Slice {
		return merr.WrapErrParameterInvalid("slice", v.Kind().String(), "opaque array")
	}
	elem := v.Type().Elem()
	if err := checkOpaque(r.cfg.Options, elem); err != nil {
		return err
	}
	if !v.CanSet() {
		return merr.WrapErrParameterInvalid("settable value", v.Type().String(), "opaque array")
	}
	if r.lenientEOF("OpaqueArray") {
		v.SetZero()
		return nil
	}
	if err := r.expectTag(TagUnmanagedArray); err != nil {
		return err
	}
	n, err := r.readLength()
	if err != nil {
		return err
	}
	if n == 0 {
		v.SetZero()
		return nil
	}
	size := n * int(elem.Size())
	raw, err := r.readN(size)
	if err != nil {
		return err
	}
	s := reflect.MakeSlice(v.Type(), n, n)
	if size > 0 {
		copy(unsafe.Slice((*byte)(s.UnsafePointer()), size), raw)
	}
	v.Set(s)
	return nil
}

func (r *Reader) FormatReference(obj *any) error {
	if r.refs == nil {
		return merr.WrapErrReferenceUnavailable("read")
	}
	if r.lenientEOF("Reference") {
		*obj = nil
		return nil
	}
	if err := r.expectTag(TagOpaqueRef); err != nil {
		return err
	}
	index, err := r.readUvarint(MaxVarintLen32)
	if err != nil {
		return err
	}
	if index > math.MaxUint32 {
		return merr.WrapErrVarintOverflow(MaxVarintLen32, "reference index")
	}
	resolved, err := r.refs.ResolveReference(uint32(index))
	if err != nil {
		return err
	}
	*obj = resolved
	return nil
}

func (r *Reader) readTypeID() (uint32, error) {
	id, err := r.readUvarint(MaxVarintLen32)
	if err != nil {
		return 0, err
	}
	if id > math.MaxUint32 {
		return 0, merr.WrapErrVarintOverflow(MaxVarintLen32, "type id")
	}
	return uint32(id), nil
}

func (r *Reader) readType(t *reflect.Type) error {
	kind, err := r.readByte()
	if err != nil {
		return err
	}
	var expected reflect.Type
	if t != nil {
		expected = *t
	}

	var resolved reflect.Type
	switch kind {
	case typeKindNone:
	case typeKindByID:
		id, err := r.readTypeID()
		if err != nil {
			return err
		}
		found, ok := r.types[id]
		if !ok {
			return merr.WrapErrUnknownType(fmt.Sprintf("#%d", id))
		}
		resolved = found
	case typeKindByName:
		id, err := r.readTypeID()
		if err != nil {
			return err
		}
		name, err := r.readString()
		if err != nil {
			return err
		}
		found, ok := lookupType(r.cfg.Types, name, expected)
		if !ok {
			return merr.WrapErrUnknownType(name)
		}
		if r.types == nil {
			r.types = make(map[uint32]reflect.Type)
		}
		r.types[id] = found
		resolved = found
	default:
		return merr.WrapErrUnknownType(fmt.Sprintf("kind=%d", kind))
	}
	if t != nil {
		*t = resolved
	}
	return nil
}

// lenientEOF 判断是否可以用零值代替：仅当开启 Lenient 且游标恰好位于流末尾。
func (r *Reader) lenientEOF(op string) bool {
	if !r.cfg.Lenient || r.pos != len(r.buf) {
		return false
	}
	lenientLog.RatedDebug(1, "lenient read at end of stream, substituting zero value",
		zap.String("op", op), zap.Int("depth", r.depth))
	return true
}

func (r *Reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, merr.WrapErrBufferExhausted(1, 0)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *Reader) readN(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, merr.WrapErrBufferExhausted(n, r.Remaining())
	}
	p := r.buf[r.pos : r.pos+n]
	r.pos += n
	return p, nil
}

func (r *Reader) expectTag(t Tag) error {
	if !r.cfg.Options.Has(IncludeTypeTags) {
		return nil
	}
	return r.expectStructural(t)
}

// expectStructural 读取一个必然存在的标记字节并校验。
func (r *Reader) expectStructural(t Tag) error {
	b, err := r.readByte()
	if err != nil {
		return err
	}
	if Tag(b) != t {
		return merr.WrapErrTagMismatch(t, Tag(b))
	}
	return nil
}

// readUvarint 解码 LEB128，超过 limit 字节仍有延续位视为格式错误。
func (r *Reader) readUvarint(limit int) (uint64, error) {
	var x uint64
	var s uint
	for i := 0; i < limit; i++ {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		if b < 0x80 {
			if i == MaxVarintLen64-1 && b > 1 {
				return 0, merr.WrapErrVarintOverflow(limit)
			}
			return x | uint64(b)<<s, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, merr.WrapErrVarintOverflow(limit)
}

func (r *Reader) readLength() (int, error) {
	n, err := r.readUvarint(MaxVarintLen32)
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 {
		return 0, merr.WrapErrVarintOverflow(MaxVarintLen32, "length")
	}
	return int(n), nil
}

func (r *Reader) readFixed(size int) (uint64, error) {
	raw, err := r.readN(size)
	if err != nil {
		return 0, err
	}
	var u uint64
	for i := 0; i < size; i++ {
		u |= uint64(raw[i]) << (8 * i)
	}
	return u, nil
}

func (r *Reader) readString() (string, error) {
	n, err := r.readLength()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if r.cfg.Options.Has(EnableDirectMemoryCopy) {
		raw, err := r.readN(n * 2)
		if err != nil {
			return "", err
		}
		units := make([]uint16, n)
		copy(unsafe.Slice((*byte)(unsafe.Pointer(&units[0])), n*2), raw)
		return string(utf16.Decode(units)), nil
	}
	raw, err := r.readN(n)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (r *Reader) rawArrays() bool {
	return r.cfg.Options.Has(EnableDirectMemoryCopy) && !r.cfg.Options.Has(EnableVarintEncoding)
}

func readSigned[T constraints.Signed](r *Reader, size int) (T, error) {
	if r.cfg.Options.Has(EnableVarintEncoding) {
		u, err := r.readUvarint(varintLimit[T]())
		if err != nil {
			return 0, err
		}
		if size < 8 && u>>(8*size) != 0 {
			return 0, merr.WrapErrVarintOverflow(varintLimit[T]())
		}
		return ZigZagDecode[T](u), nil
	}
	u, err := r.readFixed(size)
	if err != nil {
		return 0, err
	}
	shift := uint(64 - 8*size)
	return T(int64(u<<shift) >> shift), nil
}

func readUnsigned[T constraints.Unsigned](r *Reader, size int) (T, error) {
	if r.cfg.Options.Has(EnableVarintEncoding) {
		u, err := r.readUvarint(varintLimit[T]())
		if err != nil {
			return 0, err
		}
		if size < 8 && u>>(8*size) != 0 {
			return 0, merr.WrapErrVarintOverflow(varintLimit[T]())
		}
		return T(u), nil
	}
	u, err := r.readFixed(size)
	if err != nil {
		return 0, err
	}
	return T(u), nil
}

func formatSigned[T constraints.Signed](r *Reader, v *T, tag Tag, size int) error {
	if r.lenientEOF(tag.String()) {
		*v = 0
		return nil
	}
	if err := r.expectTag(tag); err != nil {
		return err
	}
	x, err := readSigned[T](r, size)
	if err != nil {
		return err
	}
	*v = x
	return nil
}

func formatUnsigned[T constraints.Unsigned](r *Reader, v *T, tag Tag, size int) error {
	if r.lenientEOF(tag.String()) {
		*v = 0
		return nil
	}
	if err := r.expectTag(tag); err != nil {
		return err
	}
	x, err := readUnsigned[T](r, size)
	if err != nil {
		return err
	}
	*v = x
	return nil
}

func readArrayHeader(r *Reader, tag Tag) (int, bool, error) {
	if r.lenientEOF(tag.String()) {
		return 0, true, nil
	}
	if err := r.expectTag(tag); err != nil {
		return 0, false, err
	}
	n, err := r.readLength()
	if err != nil {
		return 0, false, err
	}
	// 每个元素至少一个字节。
	if n > r.Remaining() {
		return 0, false, merr.WrapErrBufferExhausted(n, r.Remaining(), tag.String())
	}
	return n, n == 0, nil
}

func formatSignedArray[T constraints.Signed](r *Reader, v *[]T, tag Tag, size int) error {
	n, empty, err := readArrayHeader(r, tag)
	if err != nil {
		return err
	}
	if empty {
		*v = nil
		return nil
	}
	s := make([]T, n)
	if r.rawArrays() {
		raw, err := r.readN(n * size)
		if err != nil {
			return err
		}
		copy(unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*size), raw)
		*v = s
		return nil
	}
	for i := range s {
		if s[i], err = readSigned[T](r, size); err != nil {
			return err
		}
	}
	*v = s
	return nil
}

func formatUnsignedArray[T constraints.Unsigned](r *Reader, v *[]T, tag Tag, size int) error {
	n, empty, err := readArrayHeader(r, tag)
	if err != nil {
		return err
	}
	if empty {
		*v = nil
		return nil
	}
	s := make([]T, n)
	if r.rawArrays() {
		raw, err := r.readN(n * size)
		if err != nil {
			return err
		}
		copy(unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), n*size), raw)
		*v = s
		return nil
	}
	for i := range s {
		if s[i], err = readUnsigned[T](r, size); err != nil {
			return err
		}
	}
	*v = s
	return nil
}

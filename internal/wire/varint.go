package wire

import (
	"unsafe"

	"golang.org/x/exp/constraints"
)

const (
	MaxVarintLen32 = 5
	MaxVarintLen64 = 10
)

// AppendUvarint 以 LEB128 编码追加 v：每字节 7 位有效数据，最高位为延续位。
func AppendUvarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// UvarintSize 返回 v 编码后的字节数。
func UvarintSize(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// ZigZagEncode 将有符号整数映射为无符号整数：(v << 1) ^ (v >> (bits-1))。
// 结果按 T 的位宽截断，小绝对值（无论正负）编码后仍然很小。
func ZigZagEncode[T constraints.Signed](v T) uint64 {
	bits := uint(unsafe.Sizeof(v)) * 8
	u := uint64((int64(v) << 1) ^ (int64(v) >> (bits - 1)))
	if bits < 64 {
		u &= 1<<bits - 1
	}
	return u
}

// ZigZagDecode 是 ZigZagEncode 的逆运算：(u >> 1) ^ -(u & 1)。
func ZigZagDecode[T constraints.Signed](u uint64) T {
	return T(int64(u>>1) ^ -int64(u&1))
}

func ZigZagEncode32(v int32) uint32 {
	return uint32(ZigZagEncode(v))
}

func ZigZagDecode32(u uint32) int32 {
	return ZigZagDecode[int32](uint64(u))
}

func ZigZagEncode64(v int64) uint64 {
	return ZigZagEncode(v)
}

func ZigZagDecode64(u uint64) int64 {
	return ZigZagDecode[int64](u)
}

// varintLimit 返回位宽对应的 varint 最大字节数。
func varintLimit[T constraints.Integer]() int {
	var zero T
	if unsafe.Sizeof(zero) > 4 {
		return MaxVarintLen64
	}
	return MaxVarintLen32
}

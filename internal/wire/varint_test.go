package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

func TestUvarintBoundaries(t *testing.T) {
	cases := []struct {
		v    uint64
		size int
	}{
		{0, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
		{2097151, 3},
		{2097152, 4},
		{math.MaxUint32, 5},
		{math.MaxUint64, 10},
	}
	for _, c := range cases {
		buf := AppendUvarint(nil, c.v)
		assert.Len(t, buf, c.size, "value %d", c.v)
		assert.Equal(t, c.size, UvarintSize(c.v))

		r := NewReader(Config{}, buf)
		got, err := r.readUvarint(MaxVarintLen64)
		require.NoError(t, err)
		assert.Equal(t, c.v, got)
		assert.Zero(t, r.Remaining())
	}

	// 每多 7 位长度加 1。
	for bits := 1; bits <= 64; bits++ {
		v := uint64(1) << (bits - 1)
		assert.Equal(t, (bits+6)/7, UvarintSize(v), "bits %d", bits)
	}
}

func TestZigZagLaw(t *testing.T) {
	values := []int32{0, 1, -1, 2, -2, 3, -7, 63, -64, math.MaxInt32, math.MinInt32}
	for v := int32(-5000); v <= 5000; v += 7 {
		values = append(values, v)
	}
	for i := int32(0); i < 31; i++ {
		values = append(values, int32(1)<<i, -(int32(1) << i))
	}
	for _, v := range values {
		u := ZigZagEncode32(v)
		assert.Equal(t, v, ZigZagDecode32(u), "value %d", v)
	}

	assert.Equal(t, uint32(6), ZigZagEncode32(3))
	assert.Equal(t, uint32(13), ZigZagEncode32(-7))
	assert.Equal(t, uint32(math.MaxUint32), ZigZagEncode32(math.MinInt32))
	assert.Equal(t, uint32(math.MaxUint32-1), ZigZagEncode32(math.MaxInt32))

	assert.Equal(t, uint64(math.MaxUint64), ZigZagEncode64(math.MinInt64))
	assert.Equal(t, int64(math.MinInt64), ZigZagDecode64(math.MaxUint64))
	assert.Equal(t, uint64(1), ZigZagEncode(int8(-1)))
	assert.Equal(t, uint64(0xFF), ZigZagEncode(int8(math.MinInt8)))
	assert.Equal(t, int16(math.MinInt16), ZigZagDecode[int16](0xFFFF))
}

func TestVarintOverflow(t *testing.T) {
	cfg := Config{Options: EnableVarintEncoding}

	// 32 位值最多 5 字节。
	r := NewReader(cfg, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x01})
	var i32 int32
	assert.ErrorIs(t, r.FormatInt32(&i32), merr.ErrFormatVarintOverflow)

	// 5 字节但超出 32 位。
	r = NewReader(cfg, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F})
	assert.ErrorIs(t, r.FormatInt32(&i32), merr.ErrFormatVarintOverflow)

	// 64 位值最多 10 字节，第 10 字节只能是 0 或 1。
	over := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x02}
	r = NewReader(cfg, over)
	var u64 uint64
	assert.ErrorIs(t, r.FormatUint64(&u64), merr.ErrFormatVarintOverflow)

	r = NewReader(cfg, append(over[:9:9], 0x80, 0x01))
	assert.ErrorIs(t, r.FormatUint64(&u64), merr.ErrFormatVarintOverflow)

	var u16 uint16
	r = NewReader(cfg, AppendUvarint(nil, 1<<16))
	assert.ErrorIs(t, r.FormatUint16(&u16), merr.ErrFormatVarintOverflow)

	// 截断的 varint 属于缓冲区耗尽，而不是格式错误。
	r = NewReader(cfg, []byte{0x80})
	err := r.FormatInt32(&i32)
	assert.ErrorIs(t, err, merr.ErrBufferExhausted)
	assert.False(t, merr.IsFormatViolation(err))
}

package writerpool

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/danmu-garden-serde/internal/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

func TestGetPut(t *testing.T) {
	p := New(128)
	w := p.Get(wire.Config{Options: wire.Compact})
	assert.Equal(t, 128, w.Cap())
	assert.Equal(t, wire.Compact, w.Options())

	v := int32(5)
	require.NoError(t, w.FormatInt32(&v))
	assert.Equal(t, 1, w.Len())
	require.NoError(t, p.Put(w))

	// 复用的实例内容为空，且采用新的配置。
	again := p.Get(wire.Config{Options: wire.Default})
	assert.Zero(t, again.Len())
	assert.Equal(t, wire.Default, again.Options())
	require.NoError(t, p.Put(again))
}

func TestPutRejectsUnbalanced(t *testing.T) {
	p := New(0)
	w := p.Get(wire.Config{})
	require.NoError(t, w.BeginObject(nil))
	err := p.Put(w)
	assert.ErrorIs(t, err, merr.ErrScopeUnbalanced)
}

func TestIndex(t *testing.T) {
	cases := map[int]int{
		0:       0,
		1:       0,
		64:      0,
		65:      1,
		128:     1,
		129:     2,
		1 << 20: 14,
		1 << 30: steps - 1,
	}
	for n, want := range cases {
		assert.Equal(t, want, index(n), "n=%d", n)
	}
}

func TestCalibrate(t *testing.T) {
	p := New(0)
	for i := 0; i < 100; i++ {
		atomic.AddUint64(&p.calls[index(1000)], 1)
	}
	atomic.AddUint64(&p.calls[index(1<<16)], 1)
	p.calibrate()

	defaultSize, maxSize := p.Sizes()
	assert.Equal(t, minSize<<index(1000), defaultSize)
	assert.GreaterOrEqual(t, maxSize, defaultSize)
}

func TestConcurrentUse(t *testing.T) {
	p := New(0)
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			for j := 0; j < 100; j++ {
				w := p.Get(wire.Config{Options: wire.Default})
				if err := w.BeginArray(&j); err != nil {
					return err
				}
				if err := w.EndArray(); err != nil {
					return err
				}
				if err := p.Put(w); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

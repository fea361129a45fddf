package log

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingLimiter struct {
	allow int
	calls int
}

func (c *countingLimiter) CheckCredit(float64) bool {
	c.calls++
	return c.calls <= c.allow
}

func TestInitTestLogger(t *testing.T) {
	for _, format := range []string{FormatText, FormatConsole, FormatJSON} {
		lg, props, err := InitTestLogger(t, &Config{Level: "info", Format: format})
		require.NoError(t, err)
		require.NotNil(t, props)
		assert.Equal(t, zapcore.InfoLevel, props.Level.Level())
		lg.Info("test logger ready", zap.String("format", format))
	}

	_, _, err := InitTestLogger(t, &Config{Level: "not-a-level"})
	assert.Error(t, err)
}

func TestCtxFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := context.WithValue(context.Background(), CtxLogKey, &MLogger{Logger: zap.New(core)})

	ctx = WithModule(ctx, "wire")
	Ctx(ctx).Info("hello", FieldType(reflect.TypeOf(int32(0))))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "wire", fields[FieldNameModule])
	assert.Equal(t, "int32", fields[FieldNameType])
}

func TestCtxNil(t *testing.T) {
	//nolint:staticcheck
	assert.NotNil(t, Ctx(nil))
	assert.NotNil(t, Ctx(context.Background()))
}

func TestFieldTypeNil(t *testing.T) {
	f := FieldType(nil)
	assert.Equal(t, "<nil>", f.String)
}

func TestRatedWarn(t *testing.T) {
	limiter := &countingLimiter{allow: 1}
	ReplaceRateLimiter(limiter)
	defer ReplaceRateLimiter(nil)

	assert.True(t, RatedWarn(1, "first"))
	assert.False(t, RatedWarn(1, "second"))
	assert.Equal(t, 2, limiter.calls)

	assert.False(t, R().CheckCredit(1000))
	ReplaceRateLimiter(nil)
	assert.True(t, R().CheckCredit(1000))
}

func TestRateGroup(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := (&MLogger{Logger: zap.New(core)}).WithRateGroup("serde.test", 0.0001, 1)

	assert.True(t, l.RatedWarn(1, "pass"))
	assert.False(t, l.RatedWarn(1, "drop"))
	assert.Equal(t, 1, logs.Len())

	child := l.With(zap.String("k", "v"))
	assert.False(t, child.RatedDebug(1, "inherits limiter"))
}

func TestBinder(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	core, logs := observer.New(zapcore.DebugLevel)
	b.SetLogger(&MLogger{Logger: zap.New(core)})
	b.Logger().Info("bound")
	assert.Equal(t, 1, logs.Len())

	b.BindComponent("registry")
	assert.NotNil(t, b.Logger())
}

func TestLevel(t *testing.T) {
	old := GetLevel()
	defer SetLevel(old)

	SetLevel(zapcore.WarnLevel)
	assert.Equal(t, zapcore.WarnLevel, GetLevel())
	assert.Equal(t, zapcore.WarnLevel, Level().Level())
}

func TestStartSpan(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "serde", "marshal")
	defer span.End()
	assert.NotNil(t, Ctx(ctx))
}

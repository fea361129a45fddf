package serde

import (
	"context"
	"reflect"
	"slices"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/internal/pool/writerpool"
	"github.com/lk2023060901/danmu-garden-serde/internal/processor"
	"github.com/lk2023060901/danmu-garden-serde/internal/processor/builtin"
	"github.com/lk2023060901/danmu-garden-serde/internal/resolver"
	"github.com/lk2023060901/danmu-garden-serde/internal/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
	"github.com/lk2023060901/danmu-garden-serde/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

const tracerName = "serde"

// Serializer 是基于反射的二进制序列化器，可以被多个 goroutine 并发使用。
//
// Marshal 与 Unmarshal 会透明地解开顶层指针：Marshal(&v) 与 Marshal(v) 输出相同，
// Unmarshal 会为 nil 的中间指针分配内存。需要保留顶层静态类型（例如接口）时使用
// Encode / Decode。
type Serializer struct {
	log.Binder

	opts      *options
	types     *wire.TypeRegistry
	overrides *resolver.Registered
	registry  *processor.Registry
	writers   *writerpool.Pool
}

func New(opts ...Option) (*Serializer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.maxDepth <= 0 {
		return nil, merr.WrapErrParameterInvalidMsg("max depth must be positive, got %d", o.maxDepth)
	}

	s := &Serializer{
		opts:      o,
		types:     o.types,
		overrides: resolver.NewRegistered(),
		writers:   writerpool.New(o.initialBufferSize),
	}
	if s.types == nil {
		s.types = wire.NewTypeRegistry()
	}
	if o.logger != nil {
		s.SetLogger(o.logger)
	} else {
		s.BindComponent("serializer")
	}

	registry, err := processor.NewRegistry()
	if err != nil {
		return nil, err
	}
	registry.SetLogger(s.Logger().With(log.FieldModule("processor")))

	structures := resolver.Chain{s.overrides, o.structures, resolver.NewFieldResolver()}
	if err := builtin.Register(registry, builtin.Options{
		Structures: structures,
		References: o.references,
	}); err != nil {
		return nil, errors.Wrap(err, "register builtin processors")
	}
	for _, c := range o.candidates {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	s.registry = registry

	s.Logger().Debug("serializer created",
		log.FieldOptions(o.wire),
		zap.Bool("lenient", o.lenient),
		zap.Int("maxDepth", o.maxDepth),
		zap.Int("candidates", len(o.candidates)))
	return s, nil
}

// Options 返回当前使用的编码选项组合。
func (s *Serializer) Options() wire.Options {
	return s.opts.wire
}

// Registry 返回处理器注册表，可用于追加候选或查看诊断信息。
func (s *Serializer) Registry() *processor.Registry {
	return s.registry
}

// Types 返回 IncludeObjectType 使用的类型名表。
func (s *Serializer) Types() *wire.TypeRegistry {
	return s.types
}

// RegisterTypes 将 values 的动态类型登记到类型名表。
func (s *Serializer) RegisterTypes(values ...any) error {
	return s.types.Register(values...)
}

// RegisterMembers 为 t 显式登记成员列表，需在该类型首次编解码之前调用。
func (s *Serializer) RegisterMembers(t reflect.Type, members ...resolver.MemberDefinition) error {
	return s.overrides.Register(t, members...)
}

// Warmup 预先构造 values 的动态类型对应的处理器。
func (s *Serializer) Warmup(values ...any) error {
	types := make([]reflect.Type, 0, len(values))
	for _, v := range values {
		t, ok := v.(reflect.Type)
		if !ok {
			t = reflect.TypeOf(v)
		}
		types = append(types, t)
	}
	return s.registry.Warmup(types...)
}

func (s *Serializer) config() wire.Config {
	return wire.Config{
		Options:  s.opts.wire,
		MaxDepth: s.opts.maxDepth,
		Lenient:  s.opts.lenient,
		Types:    s.types,
	}
}

func (s *Serializer) Marshal(v any) ([]byte, error) {
	return s.marshal(v, nil)
}

func (s *Serializer) Unmarshal(data []byte, v any) error {
	return s.unmarshal(data, v, nil)
}

// MarshalWithReferences 编码 v，外部对象按出现顺序登记到返回的引用表中。
func (s *Serializer) MarshalWithReferences(v any) ([]byte, []any, error) {
	table := &wire.ReferenceTable{}
	data, err := s.marshal(v, table)
	if err != nil {
		return nil, nil, err
	}
	return data, table.ReferenceTable(), nil
}

// UnmarshalWithReferences 解码 data，外部对象从 refs 中按下标取得。
func (s *Serializer) UnmarshalWithReferences(data []byte, v any, refs []any) error {
	return s.unmarshal(data, v, wire.NewReferenceTable(refs...))
}

// MarshalContext 与 Marshal 相同，另外记录 span 并使用上下文 Logger。
func (s *Serializer) MarshalContext(ctx context.Context, v any) ([]byte, error) {
	ctx, span := log.StartSpan(ctx, tracerName, "Marshal")
	defer span.End()

	data, err := s.Marshal(v)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Ctx(ctx).Warn("marshal failed", log.FieldType(reflect.TypeOf(v)), zap.Error(err))
		return nil, err
	}
	span.SetAttributes(attribute.Int("serde.bytes", len(data)))
	return data, nil
}

// UnmarshalContext 与 Unmarshal 相同，另外记录 span 并使用上下文 Logger。
func (s *Serializer) UnmarshalContext(ctx context.Context, data []byte, v any) error {
	ctx, span := log.StartSpan(ctx, tracerName, "Unmarshal")
	defer span.End()
	span.SetAttributes(attribute.Int("serde.bytes", len(data)))

	if err := s.Unmarshal(data, v); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Ctx(ctx).Warn("unmarshal failed", log.FieldType(reflect.TypeOf(v)), zap.Error(err))
		return err
	}
	return nil
}

func (s *Serializer) marshal(v any, refs wire.ReferenceWriter) ([]byte, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if !rv.IsValid() || rv.Kind() == reflect.Pointer {
		return nil, s.observe(metrics.OpMarshal, merr.WrapErrParameterInvalidMsg("cannot marshal nil value"))
	}
	return s.encode(rv, refs)
}

func (s *Serializer) unmarshal(data []byte, v any, refs wire.ReferenceReader) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return s.observe(metrics.OpUnmarshal, merr.WrapErrParameterInvalid("non-nil pointer", rv.Kind().String(), "unmarshal target"))
	}
	target := rv.Elem()
	for target.Kind() == reflect.Pointer {
		if target.IsNil() {
			target.Set(reflect.New(target.Type().Elem()))
		}
		target = target.Elem()
	}
	return s.decode(data, target, refs)
}

func (s *Serializer) encode(rv reflect.Value, refs wire.ReferenceWriter) ([]byte, error) {
	p, err := s.registry.Resolve(rv.Type())
	if err != nil {
		return nil, s.observe(metrics.OpMarshal, err)
	}
	w := s.writers.Get(s.config())
	w.SetReferenceWriter(refs)
	if err := p.Process(w, rv); err != nil {
		// 出错的 Writer 可能残留未关闭的作用域，直接丢弃不再归还。
		return nil, s.observe(metrics.OpMarshal, err)
	}
	data := slices.Clone(w.Bytes())
	if err := s.writers.Put(w); err != nil {
		return nil, s.observe(metrics.OpMarshal, err)
	}
	metrics.EncodedBytes.Observe(float64(len(data)))
	return data, nil
}

func (s *Serializer) decode(data []byte, target reflect.Value, refs wire.ReferenceReader) error {
	p, err := s.registry.Resolve(target.Type())
	if err != nil {
		return s.observe(metrics.OpUnmarshal, err)
	}
	r := wire.NewReader(s.config(), data)
	if refs != nil {
		r.SetReferenceReader(refs)
	}
	if err := p.Process(r, target); err != nil {
		return s.observe(metrics.OpUnmarshal, err)
	}
	if r.Remaining() > 0 && !s.opts.lenient {
		return s.observe(metrics.OpUnmarshal,
			merr.WrapErrLengthMismatch(len(data), r.Position(), "trailing bytes after value"))
	}
	if err := r.Release(); err != nil {
		return s.observe(metrics.OpUnmarshal, err)
	}
	return nil
}

func (s *Serializer) observe(op string, err error) error {
	metrics.CodecErrors.WithLabelValues(op, merr.Class(err).String()).Inc()
	return err
}

// Encode 按静态类型 T 编码 v，T 可以是接口类型。
func Encode[T any](s *Serializer, v T) ([]byte, error) {
	return s.encode(reflect.ValueOf(&v).Elem(), nil)
}

// Decode 按静态类型 T 解码 data。
func Decode[T any](s *Serializer, data []byte) (T, error) {
	var v T
	err := s.decode(data, reflect.ValueOf(&v).Elem(), nil)
	return v, err
}

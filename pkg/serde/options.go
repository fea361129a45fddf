package serde

import (
	"reflect"

	"github.com/lk2023060901/danmu-garden-serde/internal/processor"
	"github.com/lk2023060901/danmu-garden-serde/internal/resolver"
	"github.com/lk2023060901/danmu-garden-serde/internal/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
)

type options struct {
	wire              wire.Options
	lenient           bool
	maxDepth          int
	initialBufferSize int
	structures        resolver.StructureResolver
	types             *wire.TypeRegistry
	candidates        []processor.Candidate
	references        []reflect.Type
	logger            *log.MLogger
}

func defaultOptions() *options {
	return &options{
		wire:     wire.Default,
		maxDepth: wire.DefaultMaxDepth,
	}
}

// Option 配置 Serializer。
type Option func(*options)

// WithWireOptions 指定编码选项组合，读写双方必须一致。
func WithWireOptions(o wire.Options) Option {
	return func(opts *options) {
		opts.wire = o
	}
}

// WithLenient 允许读取恰好停在流末尾时以零值补齐。
func WithLenient(lenient bool) Option {
	return func(opts *options) {
		opts.lenient = lenient
	}
}

func WithMaxDepth(depth int) Option {
	return func(opts *options) {
		opts.maxDepth = depth
	}
}

// WithResolver 追加一个结构体成员解析器，优先级高于默认的反射字段解析。
func WithResolver(r resolver.StructureResolver) Option {
	return func(opts *options) {
		opts.structures = r
	}
}

// WithTypeRegistry 指定 IncludeObjectType 使用的类型名表。
func WithTypeRegistry(types *wire.TypeRegistry) Option {
	return func(opts *options) {
		opts.types = types
	}
}

// WithCandidates 追加自定义处理器候选，默认优先级为 PriorityCustom。
func WithCandidates(candidates ...processor.Candidate) Option {
	return func(opts *options) {
		opts.candidates = append(opts.candidates, candidates...)
	}
}

// WithReferenceTypes 将类型登记为外部引用，流中只写入引用表下标。
func WithReferenceTypes(types ...reflect.Type) Option {
	return func(opts *options) {
		opts.references = append(opts.references, types...)
	}
}

func WithInitialBufferSize(size int) Option {
	return func(opts *options) {
		opts.initialBufferSize = size
	}
}

func WithLogger(logger *log.MLogger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

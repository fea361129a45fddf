package processor

import (
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-serde/pkg/log"
	"github.com/lk2023060901/danmu-garden-serde/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/conc"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/typeutil"
)

var _ Resolver = (*Registry)(nil)

type entry struct {
	Candidate
	order int
}

// Registry 维护候选列表，并按类型构造、注入、缓存处理器。
// 可以被多个 goroutine 并发使用。
type Registry struct {
	log.Binder

	mu         sync.RWMutex
	candidates []*entry
	names      typeutil.Set[string]
	order      int

	cache  sync.Map // reflect.Type -> Processor
	hits   atomic.Uint64
	misses atomic.Uint64
}

// Stats 为缓存统计快照。
type Stats struct {
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Cached  int    `json:"cached"`
	Entries int    `json:"candidates"`
}

func NewRegistry(candidates ...Candidate) (*Registry, error) {
	r := &Registry{
		names: typeutil.NewSet[string](),
	}
	r.BindComponent("processor-registry")
	for _, c := range candidates {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register 登记一个候选。登记会清空已缓存的处理器，之后的 Resolve 会重建整条依赖链，
// 使新候选同样作用于结构体成员和集合元素。此前取得的处理器保留原有的注入结果，
// 调用方不应跨 Register 持有处理器。
func (r *Registry) Register(c Candidate) error {
	if c.Name == "" {
		return merr.WrapErrCandidateInvalid(c.Name, "empty name")
	}
	if c.New == nil {
		return merr.WrapErrCandidateInvalid(c.Name, "nil factory")
	}
	if c.Inherit && c.Target == nil {
		return merr.WrapErrCandidateInvalid(c.Name, "inherit requires a target type")
	}
	if c.Priority == 0 {
		c.Priority = PriorityCustom
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.names.Contain(c.Name) {
		return merr.WrapErrCandidateInvalid(c.Name, "duplicate name")
	}
	r.names.Insert(c.Name)
	r.order++
	r.candidates = append(r.candidates, &entry{Candidate: c, order: r.order})
	r.cache.Range(func(key, _ any) bool {
		r.cache.Delete(key)
		return true
	})
	return nil
}

// Lookup 只查询缓存，不触发构造。
func (r *Registry) Lookup(t reflect.Type) (Processor, bool) {
	p, ok := r.cache.Load(t)
	if !ok {
		return nil, false
	}
	return p.(Processor), true
}

// Resolve 返回 t 的处理器，未命中缓存时构造并注入依赖。
// 并发未命中可能重复构造，先写入缓存的实例胜出。
func (r *Registry) Resolve(t reflect.Type) (Processor, error) {
	if t == nil {
		return nil, merr.WrapErrProcessorNotFound("<nil>")
	}
	if p, ok := r.cache.Load(t); ok {
		r.hits.Inc()
		metrics.ProcessorCacheHits.Inc()
		return p.(Processor), nil
	}
	r.misses.Inc()
	metrics.ProcessorCacheMisses.Inc()

	start := time.Now()
	b := &build{registry: r, inflight: make(map[reflect.Type]Processor)}
	p, err := b.resolve(t)
	if err != nil {
		metrics.ProcessorBuildFailures.WithLabelValues(merr.Class(err).String()).Inc()
		r.Logger().Warn("failed to resolve processor", log.FieldType(t), zap.Error(err))
		return nil, err
	}
	for _, built := range b.built {
		actual, _ := r.cache.LoadOrStore(built, b.inflight[built])
		if built == t {
			p = actual.(Processor)
		}
	}
	metrics.ProcessorResolveLatency.Observe(float64(time.Since(start).Microseconds()) / 1000)
	return p, nil
}

// match 按匹配程度、优先级、登记顺序排序后，返回第一个接受 t 的候选。
func (r *Registry) match(t reflect.Type) (*entry, Specificity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type ranked struct {
		*entry
		specificity Specificity
	}
	matched := lo.FilterMap(r.candidates, func(e *entry, _ int) (ranked, bool) {
		s := e.specificity(t)
		return ranked{entry: e, specificity: s}, s != SpecificityNone
	})
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.specificity != b.specificity {
			return a.specificity > b.specificity
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.order < b.order
	})
	found, ok := lo.Find(matched, func(c ranked) bool {
		return c.accepts(t)
	})
	if !ok {
		return nil, SpecificityNone, merr.WrapErrProcessorNotFound(t)
	}
	return found.entry, found.specificity, nil
}

// Candidates 按登记顺序返回所有候选的诊断视图。
func (r *Registry) Candidates() []CandidateInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.candidates, func(e *entry, _ int) CandidateInfo {
		info := CandidateInfo{
			Name:     e.Name,
			Priority: e.Priority.String(),
			Level:    int32(e.Priority),
			Inherit:  e.Inherit,
			Filtered: e.CanProcess != nil,
			Order:    e.order,
		}
		if e.Target != nil {
			info.Target = e.Target.String()
		}
		return info
	})
}

// DescribeCandidates 以 JSON 形式输出候选表。
func (r *Registry) DescribeCandidates() ([]byte, error) {
	data, err := sonic.ConfigStd.MarshalIndent(r.Candidates(), "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal candidate table")
	}
	return data, nil
}

func (r *Registry) Stats() Stats {
	cached := 0
	r.cache.Range(func(_, _ any) bool {
		cached++
		return true
	})
	r.mu.RLock()
	entries := len(r.candidates)
	r.mu.RUnlock()
	return Stats{
		Hits:    r.hits.Load(),
		Misses:  r.misses.Load(),
		Cached:  cached,
		Entries: entries,
	}
}

// Warmup 在协程池上并发解析一组类型，返回所有失败的合并错误。
func (r *Registry) Warmup(types ...reflect.Type) error {
	if len(types) == 0 {
		return nil
	}
	pool := conc.NewPool[Processor](min(len(types), 8))
	defer pool.Release()

	futures := lo.Map(types, func(t reflect.Type, _ int) *conc.Future[Processor] {
		return pool.Submit(func() (Processor, error) {
			return r.Resolve(t)
		})
	})
	if err := conc.AwaitAll(futures...); err != nil {
		return errors.Wrap(err, "warm up processors")
	}
	r.Logger().Debug("processors warmed up", zap.Int("types", len(types)))
	return nil
}

// build 为一次解析的上下文。构造中的处理器对递归的依赖解析可见，
// 全部成功后才写入共享缓存。
type build struct {
	registry *Registry
	inflight map[reflect.Type]Processor
	built    []reflect.Type
}

func (b *build) resolve(t reflect.Type) (Processor, error) {
	if p, ok := b.registry.cache.Load(t); ok {
		return p.(Processor), nil
	}
	if p, ok := b.inflight[t]; ok {
		return p, nil
	}

	e, specificity, err := b.registry.match(t)
	if err != nil {
		return nil, err
	}
	created, err := e.New(t)
	if err != nil {
		return nil, errors.Wrapf(err, "candidate %s failed to build processor for %s", e.Name, t)
	}
	if created == nil {
		return nil, merr.WrapErrProcessorNotFound(t, "candidate "+e.Name+" returned nil")
	}
	p, err := adapt(created, t)
	if err != nil {
		return nil, err
	}
	b.inflight[t] = p
	b.built = append(b.built, t)

	b.registry.Logger().Debug("processor resolved",
		log.FieldType(t),
		zap.String("candidate", e.Name),
		zap.Stringer("priority", e.Priority),
		zap.Stringer("specificity", specificity))

	if declarer, ok := created.(DependencyDeclarer); ok {
		for _, dep := range declarer.Dependencies() {
			if err := b.inject(e.Name, dep); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (b *build) inject(owner string, dep Dependency) error {
	slot, ok := dep.Target.(*Processor)
	if !ok || slot == nil {
		return merr.WrapErrDependencyInvalid(owner, dep.Name, "target must be *Processor")
	}
	if dep.Type == nil {
		return merr.WrapErrDependencyInvalid(owner, dep.Name, "nil dependency type")
	}
	p, err := b.resolve(dep.Type)
	if err != nil {
		return errors.Wrapf(err, "resolve dependency %s of %s", dep.Name, owner)
	}
	*slot = p
	return nil
}

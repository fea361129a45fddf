package node

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"github.com/lk2023060901/danmu-garden-serde/internal/processor"
	"github.com/lk2023060901/danmu-garden-serde/internal/resolver"
	"github.com/lk2023060901/danmu-garden-serde/internal/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/typeutil"
)

type Kind int8

const (
	KindAtomic Kind = iota
	KindArray
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindArray:
		return "Array"
	case KindStruct:
		return "Struct"
	default:
		return "Atomic"
	}
}

// Builder 根据类型构造节点，子节点的处理器通过 registry 延迟绑定。
type Builder struct {
	registry processor.Resolver
	resolver resolver.StructureResolver
}

func NewBuilder(registry processor.Resolver, structures resolver.StructureResolver) *Builder {
	return &Builder{
		registry: registry,
		resolver: structures,
	}
}

// Build 构造根节点，处理器在首次使用时解析。
func (b *Builder) Build(t reflect.Type) *Node {
	return b.newNode(t, nil, -1, nil)
}

// BuildBound 构造已绑定处理器的根节点，供处理器为自身类型建树时使用。
func (b *Builder) BuildBound(t reflect.Type, p processor.Processor) *Node {
	n := b.newNode(t, nil, -1, nil)
	n.processor = p
	n.bound = true
	return n
}

func (b *Builder) newNode(t reflect.Type, parent *Node, index int, def *resolver.MemberDefinition) *Node {
	n := &Node{
		builder: b,
		typ:     t,
		parent:  parent,
		index:   index,
		def:     def,
	}
	switch {
	case b.resolver != nil && b.resolver.CanResolve(t):
		n.kind = KindStruct
	case t.Kind() == reflect.Array || t.Kind() == reflect.Slice:
		n.kind = KindArray
		for e := t; e.Kind() == reflect.Array || e.Kind() == reflect.Slice; e = e.Elem() {
			n.rank++
		}
	default:
		n.kind = KindAtomic
	}
	if def != nil {
		n.name = def.Name
	}
	if n.name == "" && parent != nil {
		n.name = fmt.Sprintf("$%d", index)
	}
	return n
}

// Node 为某一类型在结构树中的描述。Struct 节点的成员延迟解析，
// 解析结果（包括错误）在节点生命周期内缓存。节点可以被并发读取。
type Node struct {
	builder *Builder
	kind    Kind
	typ     reflect.Type
	name    string
	index   int
	rank    int
	parent  *Node
	def     *resolver.MemberDefinition

	bindMu    sync.Mutex
	bound     bool
	processor processor.Processor
	bindErr   error

	membersOnce sync.Once
	members     []*Node
	membersErr  error
}

func (n *Node) Kind() Kind {
	return n.kind
}

func (n *Node) Type() reflect.Type {
	return n.typ
}

func (n *Node) Name() string {
	return n.name
}

// Index 为节点在父节点成员中的下标，根节点为 -1。
func (n *Node) Index() int {
	return n.index
}

// Rank 为 Array 节点的数组嵌套维数。
func (n *Node) Rank() int {
	return n.rank
}

func (n *Node) Parent() *Node {
	return n.parent
}

// Path 返回从根节点开始、以 . 分隔的路径，根节点使用类型名。
func (n *Node) Path() string {
	if n.parent == nil {
		return typeutil.ShortTypeName(n.typ)
	}
	return n.parent.Path() + "." + n.name
}

// Processor 返回绑定到节点类型的处理器，首次调用时解析并缓存。
func (n *Node) Processor() (processor.Processor, error) {
	n.bindMu.Lock()
	defer n.bindMu.Unlock()
	if !n.bound {
		n.processor, n.bindErr = n.builder.registry.Resolve(n.typ)
		n.bound = true
	}
	return n.processor, n.bindErr
}

// Bind 为尚未绑定的节点指定处理器，已绑定时不做任何事。
func (n *Node) Bind(p processor.Processor) {
	n.bindMu.Lock()
	defer n.bindMu.Unlock()
	if !n.bound {
		n.processor = p
		n.bound = true
	}
}

// Members 返回 Struct 节点的成员。resolver 只会被调用一次。
func (n *Node) Members() ([]*Node, error) {
	if n.kind != KindStruct {
		return nil, nil
	}
	n.membersOnce.Do(func() {
		defs, err := n.builder.resolver.Resolve(n.typ)
		if err != nil {
			if !errors.Is(err, merr.ErrMemberResolveFailed) {
				err = merr.WrapErrMemberResolveFailed(n.typ, err)
			}
			n.membersErr = err
			return
		}
		n.members = make([]*Node, len(defs))
		for i := range defs {
			def := defs[i]
			n.members[i] = n.builder.newNode(def.Type, n, i, &def)
		}
	})
	return n.members, n.membersErr
}

// TryGetMember 按名称（区分大小写）查找成员，成员解析失败时返回 false。
func (n *Node) TryGetMember(name string) (*Node, bool) {
	members, err := n.Members()
	if err != nil {
		return nil, false
	}
	return lo.Find(members, func(m *Node) bool {
		return m.name == name
	})
}

// Get 从 owner 中读取该成员的值。
func (n *Node) Get(owner reflect.Value) reflect.Value {
	return n.def.Getter(owner)
}

// Set 将 value 写入 owner 中的该成员。
func (n *Node) Set(owner, value reflect.Value) {
	if n.def.Setter != nil {
		n.def.Setter(owner, value)
		return
	}
	n.def.Getter(owner).Set(value)
}

// ProcessMember 在成员作用域内处理 owner 中的该成员。
// 读方向上，有 Setter 的成员先解码到临时值再回写。
func (n *Node) ProcessMember(f wire.Formatter, owner reflect.Value) error {
	p, err := n.Processor()
	if err != nil {
		return err
	}
	if err := f.BeginMember(n.name); err != nil {
		return err
	}
	if f.Direction() == wire.DirectionRead && n.def.Setter != nil {
		tmp := reflect.New(n.typ).Elem()
		if err := p.Process(f, tmp); err != nil {
			return errors.Wrap(err, n.name)
		}
		n.def.Setter(owner, tmp)
	} else {
		if err := p.Process(f, n.def.Getter(owner)); err != nil {
			return errors.Wrap(err, n.name)
		}
	}
	return f.EndMember()
}

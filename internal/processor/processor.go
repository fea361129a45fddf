package processor

import (
	"reflect"

	"github.com/lk2023060901/danmu-garden-serde/internal/wire"
)

// Processor 负责某一具体类型的双向编解码。
// 同一个 Processor 被所有调用方共享，Process 不得保存调用间状态。
type Processor interface {
	Type() reflect.Type
	// Process 按 f 的方向处理 v：写方向读取 v，读方向写回 v（v 必须可设置）。
	Process(f wire.Formatter, v reflect.Value) error
}

// Resolver 按类型取得处理器，Registry 是其默认实现。
type Resolver interface {
	Resolve(t reflect.Type) (Processor, error)
}

// Dependency 声明一个需要注入的子处理器槽位。
type Dependency struct {
	Name string
	Type reflect.Type
	// Target 必须是 *Processor，解析完成后写入子处理器。
	Target any
}

// DependencyDeclarer 由需要子处理器的处理器实现，
// 所有槽位在处理器首次被使用前完成注入。
type DependencyDeclarer interface {
	Dependencies() []Dependency
}

// Func 将函数适配为 Processor。
type Func struct {
	T  reflect.Type
	Fn func(f wire.Formatter, v reflect.Value) error
}

func (p *Func) Type() reflect.Type {
	return p.T
}

func (p *Func) Process(f wire.Formatter, v reflect.Value) error {
	return p.Fn(f, v)
}

// TypeOf 返回 T 的静态类型，T 为接口时同样适用。
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

package processor

import (
	"fmt"
	"reflect"
)

// Priority 为候选处理器的优先级，数值越大越优先。
type Priority int32

const (
	PriorityGeneric    Priority = 100
	PriorityCollection Priority = 200
	PriorityWellKnown  Priority = 300
	PriorityReference  Priority = 400
	// PriorityCustom 为用户候选的默认优先级，Priority 为零值时使用。
	PriorityCustom    Priority = 500
	PriorityPrimitive Priority = 600
)

var priorityNames = map[Priority]string{
	PriorityGeneric:    "generic",
	PriorityCollection: "collection",
	PriorityWellKnown:  "well-known",
	PriorityReference:  "reference",
	PriorityCustom:     "custom",
	PriorityPrimitive:  "primitive",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int32(p))
}

// Specificity 为候选与查询类型的匹配程度，排序时先于优先级比较。
type Specificity int8

const (
	SpecificityNone Specificity = iota
	SpecificityWildcard
	SpecificityInherited
	SpecificityExact
)

func (s Specificity) String() string {
	switch s {
	case SpecificityExact:
		return "exact"
	case SpecificityInherited:
		return "inherited"
	case SpecificityWildcard:
		return "wildcard"
	default:
		return "none"
	}
}

// Candidate 描述一个可以构造处理器的候选。
type Candidate struct {
	Name     string
	Priority Priority
	// Target 为 nil 时候选匹配任意类型。
	Target reflect.Type
	// Inherit 为 true 时，可赋值给 Target 的类型也会匹配（实现接口或同一底层类型）。
	Inherit bool
	// CanProcess 可选，对匹配到的类型做进一步筛选。
	CanProcess func(t reflect.Type) bool
	New        func(t reflect.Type) (Processor, error)
}

// specificity 计算候选对 t 的匹配程度。
func (c *Candidate) specificity(t reflect.Type) Specificity {
	switch {
	case c.Target == nil:
		return SpecificityWildcard
	case c.Target == t:
		return SpecificityExact
	case c.Inherit && t.AssignableTo(c.Target):
		return SpecificityInherited
	default:
		return SpecificityNone
	}
}

func (c *Candidate) accepts(t reflect.Type) bool {
	return c.CanProcess == nil || c.CanProcess(t)
}

// CandidateInfo 为候选的诊断视图。
type CandidateInfo struct {
	Name     string `json:"name"`
	Priority string `json:"priority"`
	Level    int32  `json:"level"`
	Target   string `json:"target,omitempty"`
	Inherit  bool   `json:"inherit,omitempty"`
	Filtered bool   `json:"filtered,omitempty"`
	Order    int    `json:"order"`
}

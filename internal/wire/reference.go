package wire

import "github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"

var (
	_ ReferenceWriter = (*ReferenceTable)(nil)
	_ ReferenceReader = (*ReferenceTable)(nil)
)

// ReferenceTable 是只追加的外部对象表，下标从 1 开始，0 表示 nil。
// 不做去重，同一对象登记两次会得到两个下标。
type ReferenceTable struct {
	objects []any
}

// NewReferenceTable 以已有对象列表创建引用表，通常用于读方向。
func NewReferenceTable(objects ...any) *ReferenceTable {
	return &ReferenceTable{objects: objects}
}

func (t *ReferenceTable) RegisterReference(obj any) (uint32, error) {
	if obj == nil {
		return 0, nil
	}
	t.objects = append(t.objects, obj)
	return uint32(len(t.objects)), nil
}

func (t *ReferenceTable) ReferenceTable() []any {
	return t.objects
}

func (t *ReferenceTable) ResolveReference(index uint32) (any, error) {
	if index == 0 {
		return nil, nil
	}
	if int(index) > len(t.objects) {
		return nil, merr.WrapErrInvalidReference(index, len(t.objects))
	}
	return t.objects[index-1], nil
}

func (t *ReferenceTable) SetReferenceTable(table []any) {
	t.objects = table
}

// Len 返回已登记的对象数量。
func (t *ReferenceTable) Len() int {
	return len(t.objects)
}

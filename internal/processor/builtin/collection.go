package builtin

import (
	"cmp"
	"reflect"
	"slices"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-garden-serde/internal/processor"
	"github.com/lk2023060901/danmu-garden-serde/internal/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/typeutil"
)

// array 处理定长数组 [N]T。
type array struct {
	t    reflect.Type
	elem processor.Processor
}

func newArray(t reflect.Type) (processor.Processor, error) {
	return &array{t: t}, nil
}

func (p *array) Type() reflect.Type {
	return p.t
}

func (p *array) Dependencies() []processor.Dependency {
	return []processor.Dependency{{Name: "elem", Type: p.t.Elem(), Target: &p.elem}}
}

func (p *array) Process(f wire.Formatter, v reflect.Value) error {
	n := p.t.Len()
	if err := f.BeginArray(&n); err != nil {
		return err
	}
	if n != p.t.Len() {
		// 宽松模式下流末尾的空数组按零值处理。
		if n != 0 {
			return merr.WrapErrLengthMismatch(p.t.Len(), n, p.t.String())
		}
		v.SetZero()
		return f.EndArray()
	}
	for i := 0; i < n; i++ {
		if err := p.elem.Process(f, v.Index(i)); err != nil {
			return errors.Wrapf(err, "[%d]", i)
		}
	}
	return f.EndArray()
}

// list 处理切片。POD 元素在直接内存拷贝模式下整体拷贝。
type list struct {
	t    reflect.Type
	elem processor.Processor
	pod  bool
}

func newList(t reflect.Type) (processor.Processor, error) {
	return &list{t: t, pod: typeutil.IsPOD(t.Elem()) && t.Elem().Size() > 0}, nil
}

func (p *list) Type() reflect.Type {
	return p.t
}

func (p *list) Dependencies() []processor.Dependency {
	return []processor.Dependency{{Name: "elem", Type: p.t.Elem(), Target: &p.elem}}
}

func (p *list) Process(f wire.Formatter, v reflect.Value) error {
	if p.pod && f.Options().Has(wire.EnableDirectMemoryCopy) {
		return f.FormatOpaqueArray(v)
	}
	n := v.Len()
	if err := f.BeginArray(&n); err != nil {
		return err
	}
	if f.Direction() == wire.DirectionRead {
		if n == 0 {
			v.SetZero()
		} else {
			v.Set(reflect.MakeSlice(p.t, n, n))
		}
	}
	for i := 0; i < n; i++ {
		if err := p.elem.Process(f, v.Index(i)); err != nil {
			return errors.Wrapf(err, "[%d]", i)
		}
	}
	return f.EndArray()
}

// dictionary 处理 map，每个条目依次编码键和值。
// 键为可排序类型时按升序写出，保证相同内容的输出一致。
type dictionary struct {
	t     reflect.Type
	key   processor.Processor
	value processor.Processor
}

func newDictionary(t reflect.Type) (processor.Processor, error) {
	return &dictionary{t: t}, nil
}

func (p *dictionary) Type() reflect.Type {
	return p.t
}

func (p *dictionary) Dependencies() []processor.Dependency {
	return []processor.Dependency{
		{Name: "key", Type: p.t.Key(), Target: &p.key},
		{Name: "value", Type: p.t.Elem(), Target: &p.value},
	}
}

func (p *dictionary) Process(f wire.Formatter, v reflect.Value) error {
	if f.Direction() == wire.DirectionWrite {
		return p.write(f, v)
	}
	return p.read(f, v)
}

func (p *dictionary) write(f wire.Formatter, v reflect.Value) error {
	n := v.Len()
	if err := f.BeginArray(&n); err != nil {
		return err
	}
	keys := v.MapKeys()
	sortKeys(keys)
	for _, k := range keys {
		if err := p.key.Process(f, k); err != nil {
			return errors.Wrap(err, "key")
		}
		if err := p.value.Process(f, v.MapIndex(k)); err != nil {
			return errors.Wrapf(err, "[%v]", k)
		}
	}
	return f.EndArray()
}

func (p *dictionary) read(f wire.Formatter, v reflect.Value) error {
	var n int
	if err := f.BeginArray(&n); err != nil {
		return err
	}
	if n == 0 {
		v.SetZero()
		return f.EndArray()
	}
	m := reflect.MakeMapWithSize(p.t, n)
	k := reflect.New(p.t.Key()).Elem()
	val := reflect.New(p.t.Elem()).Elem()
	for i := 0; i < n; i++ {
		k.SetZero()
		val.SetZero()
		if err := p.key.Process(f, k); err != nil {
			return errors.Wrap(err, "key")
		}
		if err := p.value.Process(f, val); err != nil {
			return errors.Wrapf(err, "[%v]", k)
		}
		m.SetMapIndex(k, val)
	}
	v.Set(m)
	return f.EndArray()
}

func sortKeys(keys []reflect.Value) {
	if len(keys) < 2 {
		return
	}
	switch keys[0].Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.Int(), b.Int()) })
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.Uint(), b.Uint()) })
	case reflect.Float32, reflect.Float64:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.Float(), b.Float()) })
	case reflect.String:
		slices.SortFunc(keys, func(a, b reflect.Value) int { return cmp.Compare(a.String(), b.String()) })
	case reflect.Bool:
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			if a.Bool() == b.Bool() {
				return 0
			}
			if b.Bool() {
				return -1
			}
			return 1
		})
	}
}

// pointer 先写入是否为 nil，再写入指向的值。
type pointer struct {
	t    reflect.Type
	elem processor.Processor
}

func newPointer(t reflect.Type) (processor.Processor, error) {
	return &pointer{t: t}, nil
}

func (p *pointer) Type() reflect.Type {
	return p.t
}

func (p *pointer) Dependencies() []processor.Dependency {
	return []processor.Dependency{{Name: "elem", Type: p.t.Elem(), Target: &p.elem}}
}

func (p *pointer) Process(f wire.Formatter, v reflect.Value) error {
	present := !v.IsNil()
	if err := f.FormatBool(&present); err != nil {
		return err
	}
	if !present {
		if f.Direction() == wire.DirectionRead {
			v.SetZero()
		}
		return nil
	}
	if f.Direction() == wire.DirectionRead && v.IsNil() {
		v.Set(reflect.New(p.t.Elem()))
	}
	return p.elem.Process(f, v.Elem())
}

package builtin

import (
	"encoding"
	"reflect"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-garden-serde/internal/processor"
	"github.com/lk2023060901/danmu-garden-serde/internal/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

var (
	binaryMarshalerType   = reflect.TypeOf((*encoding.BinaryMarshaler)(nil)).Elem()
	binaryUnmarshalerType = reflect.TypeOf((*encoding.BinaryUnmarshaler)(nil)).Elem()
	externalObjectType    = reflect.TypeOf((*wire.ExternalObject)(nil)).Elem()
)

// isBinaryMarshaler 匹配值可编码、指针可解码的具体类型，例如 time.Time。
func isBinaryMarshaler(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
		return false
	}
	ptr := reflect.PointerTo(t)
	return ptr.Implements(binaryMarshalerType) && ptr.Implements(binaryUnmarshalerType)
}

type binaryMarshaler struct {
	t reflect.Type
}

func newBinaryMarshaler(t reflect.Type) (processor.Processor, error) {
	return &binaryMarshaler{t: t}, nil
}

func (p *binaryMarshaler) Type() reflect.Type {
	return p.t
}

func (p *binaryMarshaler) Process(f wire.Formatter, v reflect.Value) error {
	if f.Direction() == wire.DirectionWrite {
		ptr := addressOf(v)
		data, err := ptr.Interface().(encoding.BinaryMarshaler).MarshalBinary()
		if err != nil {
			return errors.Wrapf(err, "marshal %s", p.t)
		}
		return f.FormatBytes(&data)
	}

	var data []byte
	if err := f.FormatBytes(&data); err != nil {
		return err
	}
	if !v.CanAddr() {
		return merr.WrapErrParameterInvalid("addressable value", p.t.String(), "binary unmarshal")
	}
	if len(data) == 0 {
		v.SetZero()
		return nil
	}
	if err := v.Addr().Interface().(encoding.BinaryUnmarshaler).UnmarshalBinary(data); err != nil {
		return errors.Wrapf(err, "unmarshal %s", p.t)
	}
	return nil
}

// addressOf 返回 v 的指针，不可寻址时先拷贝一份。
func addressOf(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v.Addr()
	}
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)
	return ptr
}

// reference 将对象登记到外部引用表，流中只写入下标。
type reference struct {
	t reflect.Type
}

func newReference(t reflect.Type) (processor.Processor, error) {
	return &reference{t: t}, nil
}

func (p *reference) Type() reflect.Type {
	return p.t
}

func (p *reference) Process(f wire.Formatter, v reflect.Value) error {
	var obj any
	if f.Direction() == wire.DirectionWrite {
		if !isNil(v) {
			obj = v.Interface()
		}
		return f.FormatReference(&obj)
	}

	if err := f.FormatReference(&obj); err != nil {
		return err
	}
	if obj == nil {
		v.SetZero()
		return nil
	}
	rv := reflect.ValueOf(obj)
	if !rv.Type().AssignableTo(p.t) {
		return merr.WrapErrTypeMismatch(p.t, rv.Type(), "external reference")
	}
	v.Set(rv)
	return nil
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}

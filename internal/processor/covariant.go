package processor

import (
	"reflect"

	"github.com/lk2023060901/danmu-garden-serde/internal/wire"
	"github.com/lk2023060901/danmu-garden-serde/pkg/util/merr"
)

// covariant 将基类型处理器对外声明为派生类型 t。
type covariant struct {
	t     reflect.Type
	inner Processor
}

// adapt 校验处理器声明的类型，必要时包装为协变适配器。
func adapt(p Processor, t reflect.Type) (Processor, error) {
	pt := p.Type()
	if pt == t {
		return p, nil
	}
	if pt == nil || !t.AssignableTo(pt) {
		return nil, merr.WrapErrProcessorTypeMismatch(t, pt)
	}
	return &covariant{t: t, inner: p}, nil
}

func (c *covariant) Type() reflect.Type {
	return c.t
}

func (c *covariant) Unwrap() Processor {
	return c.inner
}

func (c *covariant) Process(f wire.Formatter, v reflect.Value) error {
	base := reflect.New(c.inner.Type()).Elem()
	base.Set(v)
	if err := c.inner.Process(f, base); err != nil {
		return err
	}
	if f.Direction() == wire.DirectionWrite {
		return nil
	}
	if base.Kind() == reflect.Interface {
		base = base.Elem()
	}
	switch {
	case !base.IsValid():
		v.SetZero()
	case base.Type().AssignableTo(c.t):
		v.Set(base)
	case base.Type().ConvertibleTo(c.t):
		v.Set(base.Convert(c.t))
	default:
		return merr.WrapErrTypeMismatch(c.t, base.Type())
	}
	return nil
}

// Unwrap 返回协变适配器内部的处理器，其余处理器原样返回。
func Unwrap(p Processor) Processor {
	if c, ok := p.(*covariant); ok {
		return c.inner
	}
	return p
}

package builtin

import (
	"reflect"
	"time"

	"golang.org/x/exp/constraints"

	"github.com/lk2023060901/danmu-garden-serde/internal/processor"
	"github.com/lk2023060901/danmu-garden-serde/internal/wire"
)

var durationType = reflect.TypeOf(time.Duration(0))

type formatFunc func(f wire.Formatter, v reflect.Value) error

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	default:
		return false
	}
}

// isEnum 判断是否为具名整数类型。
func isEnum(t reflect.Type) bool {
	return isIntegerKind(t.Kind()) && t.PkgPath() != ""
}

func isPrimitive(t reflect.Type) bool {
	k := t.Kind()
	switch {
	case isIntegerKind(k):
		return !isEnum(t)
	case k == reflect.Bool, k == reflect.String,
		k == reflect.Float32, k == reflect.Float64,
		k == reflect.Complex64, k == reflect.Complex128:
		return true
	case k == reflect.Slice:
		return sliceFormat(t) != nil
	default:
		return false
	}
}

func newPrimitive(t reflect.Type) (processor.Processor, error) {
	fn := scalarFormat(t)
	if fn == nil && t.Kind() == reflect.Slice {
		fn = sliceFormat(t)
	}
	if fn == nil {
		return nil, unsupported(t)
	}
	return &processor.Func{T: t, Fn: fn}, nil
}

func scalarFormat(t reflect.Type) formatFunc {
	switch t.Kind() {
	case reflect.Bool:
		return func(f wire.Formatter, v reflect.Value) error {
			x := v.Bool()
			if err := f.FormatBool(&x); err != nil {
				return err
			}
			if f.Direction() == wire.DirectionRead {
				v.SetBool(x)
			}
			return nil
		}
	case reflect.Int8:
		return signed(wire.Formatter.FormatInt8)
	case reflect.Int16:
		return signed(wire.Formatter.FormatInt16)
	case reflect.Int32:
		return signed(wire.Formatter.FormatInt32)
	case reflect.Int64, reflect.Int:
		return signed(wire.Formatter.FormatInt64)
	case reflect.Uint8:
		return unsigned(wire.Formatter.FormatUint8)
	case reflect.Uint16:
		return unsigned(wire.Formatter.FormatUint16)
	case reflect.Uint32:
		return unsigned(wire.Formatter.FormatUint32)
	case reflect.Uint64, reflect.Uint, reflect.Uintptr:
		return unsigned(wire.Formatter.FormatUint64)
	case reflect.Float32:
		return float(wire.Formatter.FormatFloat32)
	case reflect.Float64:
		return float(wire.Formatter.FormatFloat64)
	case reflect.Complex64:
		return complexFormat(wire.Formatter.FormatFloat32)
	case reflect.Complex128:
		return complexFormat(wire.Formatter.FormatFloat64)
	case reflect.String:
		return func(f wire.Formatter, v reflect.Value) error {
			x := v.String()
			if err := f.FormatString(&x); err != nil {
				return err
			}
			if f.Direction() == wire.DirectionRead {
				v.SetString(x)
			}
			return nil
		}
	default:
		return nil
	}
}

func signed[T constraints.Signed](format func(wire.Formatter, *T) error) formatFunc {
	return func(f wire.Formatter, v reflect.Value) error {
		x := T(v.Int())
		if err := format(f, &x); err != nil {
			return err
		}
		if f.Direction() == wire.DirectionRead {
			v.SetInt(int64(x))
		}
		return nil
	}
}

func unsigned[T constraints.Unsigned](format func(wire.Formatter, *T) error) formatFunc {
	return func(f wire.Formatter, v reflect.Value) error {
		x := T(v.Uint())
		if err := format(f, &x); err != nil {
			return err
		}
		if f.Direction() == wire.DirectionRead {
			v.SetUint(uint64(x))
		}
		return nil
	}
}

func float[T constraints.Float](format func(wire.Formatter, *T) error) formatFunc {
	return func(f wire.Formatter, v reflect.Value) error {
		x := T(v.Float())
		if err := format(f, &x); err != nil {
			return err
		}
		if f.Direction() == wire.DirectionRead {
			v.SetFloat(float64(x))
		}
		return nil
	}
}

// complexFormat 依次编码实部和虚部。
func complexFormat[T constraints.Float](format func(wire.Formatter, *T) error) formatFunc {
	return func(f wire.Formatter, v reflect.Value) error {
		c := v.Complex()
		re, im := T(real(c)), T(imag(c))
		if err := format(f, &re); err != nil {
			return err
		}
		if err := format(f, &im); err != nil {
			return err
		}
		if f.Direction() == wire.DirectionRead {
			v.SetComplex(complex(float64(re), float64(im)))
		}
		return nil
	}
}

// sliceFormat 返回字节切片与定长整数切片的整体编码函数，其余切片返回 nil。
// 元素为具名类型的切片交给 list 处理器逐个编码。
func sliceFormat(t reflect.Type) formatFunc {
	elem := t.Elem()
	if elem.PkgPath() != "" {
		return nil
	}
	switch elem.Kind() {
	case reflect.Uint8:
		return func(f wire.Formatter, v reflect.Value) error {
			b := v.Bytes()
			if err := f.FormatBytes(&b); err != nil {
				return err
			}
			if f.Direction() == wire.DirectionRead {
				v.SetBytes(b)
			}
			return nil
		}
	case reflect.Int8:
		return intSlice(wire.Formatter.FormatInt8Array)
	case reflect.Int16:
		return intSlice(wire.Formatter.FormatInt16Array)
	case reflect.Uint16:
		return intSlice(wire.Formatter.FormatUint16Array)
	case reflect.Int32:
		return intSlice(wire.Formatter.FormatInt32Array)
	case reflect.Uint32:
		return intSlice(wire.Formatter.FormatUint32Array)
	case reflect.Int64:
		return intSlice(wire.Formatter.FormatInt64Array)
	case reflect.Uint64:
		return intSlice(wire.Formatter.FormatUint64Array)
	default:
		return nil
	}
}

func intSlice[T constraints.Integer](format func(wire.Formatter, *[]T) error) formatFunc {
	plain := reflect.TypeOf([]T(nil))
	return func(f wire.Formatter, v reflect.Value) error {
		s := v.Convert(plain).Interface().([]T)
		if err := format(f, &s); err != nil {
			return err
		}
		if f.Direction() == wire.DirectionRead {
			v.Set(reflect.ValueOf(s).Convert(v.Type()))
		}
		return nil
	}
}

package log

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameType      = "type"
	FieldNameOptions   = "options"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldType 返回一个包含 Go 类型名的 zap 字段，nil 类型输出 "<nil>"。
func FieldType(t reflect.Type) zap.Field {
	if t == nil {
		return zap.String(FieldNameType, "<nil>")
	}
	return zap.Stringer(FieldNameType, t)
}

// FieldOptions 返回一个包含编码选项的 zap 字段。
func FieldOptions(opts fmt.Stringer) zap.Field {
	return zap.Stringer(FieldNameOptions, opts)
}

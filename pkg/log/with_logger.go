package log

import "go.uber.org/atomic"

var (
	_ WithLogger   = &Binder{}
	_ LoggerBinder = &Binder{}
)

// WithLogger 是一个用于访问组件 Logger 的接口。
type WithLogger interface {
	Logger() *MLogger
}

// LoggerBinder 是一个用于设置组件 Logger 的接口。
type LoggerBinder interface {
	SetLogger(logger *MLogger)
}

// Binder 嵌入到长生命周期组件（Registry、Serializer）中统一管理 Logger。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

// SetLogger 将 Logger 绑定到 Binder 上，传入 nil 表示解绑。
func (w *Binder) SetLogger(logger *MLogger) {
	w.logger.Store(logger)
}

// BindComponent 绑定一个携带 component 字段的全局 Logger 派生实例。
func (w *Binder) BindComponent(component string) {
	w.logger.Store(With(FieldComponent(component)))
}

// Logger 返回当前绑定的 Logger，尚未绑定时退回到全局 Logger。
func (w *Binder) Logger() *MLogger {
	l := w.logger.Load()
	if l == nil {
		return With()
	}
	return l
}

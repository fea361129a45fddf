// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap/zapcore"
)

// lazyCore 把 With 的字段编码推迟到第一次真正写日志时，
// 序列化器在热路径上为每个组件派生 Logger，多数从不输出。
// 参考 https://github.com/uber-go/zap/issues/1426 处理并发初始化。
type lazyCore struct {
	core   atomic.Pointer[zapcore.Core]
	once   sync.Once
	fields []zapcore.Field
}

var _ zapcore.Core = (*lazyCore)(nil)

// NewLazyWith 返回一个在首次使用时才附加 fields 的 Core。
func NewLazyWith(core zapcore.Core, fields []zapcore.Field) zapcore.Core {
	c := &lazyCore{fields: fields}
	c.core.Store(&core)
	return c
}

func (c *lazyCore) load() zapcore.Core {
	return *c.core.Load()
}

func (c *lazyCore) materialize() zapcore.Core {
	c.once.Do(func() {
		bound := c.load().With(c.fields)
		c.core.Store(&bound)
		c.fields = nil
	})
	return c.load()
}

// Enabled 只读取级别，不触发字段编码。
func (c *lazyCore) Enabled(level zapcore.Level) bool {
	return c.load().Enabled(level)
}

func (c *lazyCore) With(fields []zapcore.Field) zapcore.Core {
	return c.materialize().With(fields)
}

func (c *lazyCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return c.materialize().Check(entry, ce)
}

func (c *lazyCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.materialize().Write(entry, fields)
}

func (c *lazyCore) Sync() error {
	return c.materialize().Sync()
}

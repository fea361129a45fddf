// Copyright (c) 2019 The Gnet Authors. All rights reserved.
// Copyright (c) 2016 Aliaksandr Valialkin, VertaMedia
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Use of this source code is governed by a MIT license that can be found
// at https://github.com/valyala/bytebufferpool/blob/master/LICENSE

// Package writerpool 实现 wire.Writer 的对象池，复用编码缓冲区以降低 GC 压力。
package writerpool

import (
	"math/bits"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lk2023060901/danmu-garden-serde/internal/wire"
)

const (
	minBitSize = 6 // 2**6=64，为典型 CPU cache line 大小
	steps      = 20

	minSize = 1 << minBitSize

	calibrateCallsThreshold = 42000
	maxPercentile           = 0.95
)

// Pool 为 wire.Writer 的对象池。
//
// 说明：
//   - 根据归还时的编码长度自动校准新建 Writer 的初始容量和最大可回收容量；
//   - 归还时存在未关闭作用域的 Writer 直接丢弃，不会再被复用。
type Pool struct {
	calls       [steps]uint64
	calibrating uint64

	defaultSize uint64
	maxSize     uint64

	pool sync.Pool
}

// New 创建初始容量为 initialSize 的对象池，<= 0 时使用 wire 的默认容量。
func New(initialSize int) *Pool {
	p := &Pool{}
	if initialSize > 0 {
		p.defaultSize = uint64(initialSize)
	}
	return p
}

// Get 取出一个已按 cfg 配置、内容为空的 Writer。
func (p *Pool) Get(cfg wire.Config) *wire.Writer {
	if v := p.pool.Get(); v != nil {
		w := v.(*wire.Writer)
		w.Configure(cfg)
		return w
	}
	return wire.NewWriter(cfg, int(atomic.LoadUint64(&p.defaultSize)))
}

// Put 归还 Writer。作用域不平衡时返回错误且不回收该实例。
//
// 注意：归还后的 Writer 及其 Bytes 不允许再被访问。
func (p *Pool) Put(w *wire.Writer) error {
	idx := index(w.Len())
	if err := w.Release(); err != nil {
		return err
	}

	if atomic.AddUint64(&p.calls[idx], 1) > calibrateCallsThreshold {
		p.calibrate()
	}

	maxSize := int(atomic.LoadUint64(&p.maxSize))
	if maxSize == 0 || w.Cap() <= maxSize {
		p.pool.Put(w)
	}
	return nil
}

// Sizes 返回当前校准结果：新建 Writer 的初始容量和最大可回收容量。
func (p *Pool) Sizes() (defaultSize, maxSize int) {
	return int(atomic.LoadUint64(&p.defaultSize)), int(atomic.LoadUint64(&p.maxSize))
}

func (p *Pool) calibrate() {
	if !atomic.CompareAndSwapUint64(&p.calibrating, 0, 1) {
		return
	}

	a := make(callSizes, 0, steps)
	var callsSum uint64
	for i := uint64(0); i < steps; i++ {
		calls := atomic.SwapUint64(&p.calls[i], 0)
		callsSum += calls
		a = append(a, callSize{
			calls: calls,
			size:  minSize << i,
		})
	}
	sort.Sort(a)

	defaultSize := a[0].size
	maxSize := defaultSize

	maxSum := uint64(float64(callsSum) * maxPercentile)
	callsSum = 0
	for i := 0; i < steps; i++ {
		if callsSum > maxSum {
			break
		}
		callsSum += a[i].calls
		if size := a[i].size; size > maxSize {
			maxSize = size
		}
	}

	atomic.StoreUint64(&p.defaultSize, defaultSize)
	atomic.StoreUint64(&p.maxSize, maxSize)

	atomic.StoreUint64(&p.calibrating, 0)
}

type callSize struct {
	calls uint64
	size  uint64
}

type callSizes []callSize

func (ci callSizes) Len() int {
	return len(ci)
}

func (ci callSizes) Less(i, j int) bool {
	return ci[i].calls > ci[j].calls
}

func (ci callSizes) Swap(i, j int) {
	ci[i], ci[j] = ci[j], ci[i]
}

func index(n int) int {
	n--
	n >>= minBitSize
	idx := 0
	if n > 0 {
		idx = bits.Len(uint(n))
	}
	if idx >= steps {
		idx = steps - 1
	}
	return idx
}

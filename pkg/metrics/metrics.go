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

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// serdeNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	serdeNamespace = "serde"

	processorSubsystem = "processor"
	codecSubsystem     = "codec"

	// 以下为当前使用的通用标签名。
	reasonLabelName = "reason"
	opLabelName     = "op"
	classLabelName  = "class"

	OpMarshal   = "marshal"
	OpUnmarshal = "unmarshal"
)

var (
	// latencyBuckets 为处理器构造耗时的桶划分，单位为毫秒。
	// [0.01 0.02 0.04 ... 163.84]
	latencyBuckets = prometheus.ExponentialBuckets(0.01, 2, 15)

	// sizeBuckets 为编码结果大小的桶划分，单位为字节。
	sizeBuckets = prometheus.ExponentialBuckets(16, 4, 10)

	ProcessorCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serdeNamespace,
		Subsystem: processorSubsystem,
		Name:      "cache_hits_total",
		Help:      "按类型查询处理器时命中缓存的次数",
	})

	ProcessorCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: serdeNamespace,
		Subsystem: processorSubsystem,
		Name:      "cache_misses_total",
		Help:      "按类型查询处理器时未命中缓存、需要构造的次数",
	})

	ProcessorBuildFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: serdeNamespace,
		Subsystem: processorSubsystem,
		Name:      "build_failures_total",
		Help:      "处理器构造失败次数，按失败原因分类",
	}, []string{reasonLabelName})

	ProcessorResolveLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: serdeNamespace,
		Subsystem: processorSubsystem,
		Name:      "resolve_latency",
		Help:      "未命中缓存时构造处理器的耗时，单位毫秒",
		Buckets:   latencyBuckets,
	})

	EncodedBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: serdeNamespace,
		Name:      "encoded_bytes",
		Help:      "单次 Marshal 输出的字节数",
		Buckets:   sizeBuckets,
	})

	CodecErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: serdeNamespace,
		Subsystem: codecSubsystem,
		Name:      "errors_total",
		Help:      "编解码失败次数，按操作和错误分类统计",
	}, []string{opLabelName, classLabelName})

	registerOnce     sync.Once
	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 RegisterSerdeMetrics 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// RegisterSerdeMetrics 注册当前定义的所有指标，重复调用只生效一次。
func RegisterSerdeMetrics(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(ProcessorCacheHits)
		r.MustRegister(ProcessorCacheMisses)
		r.MustRegister(ProcessorBuildFailures)
		r.MustRegister(ProcessorResolveLatency)
		r.MustRegister(EncodedBytes)
		r.MustRegister(CodecErrors)
		metricRegisterer = r
	})
}

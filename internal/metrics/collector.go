// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// 执行指标
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	executionsRunning prometheus.Gauge

	// 任务指标
	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	// 消息指标
	messagesSent    prometheus.Counter
	messagesDropped prometheus.Counter

	// 记忆指标
	memoryOperations *prometheus.CounterVec

	// 冲突指标
	conflictsTotal *prometheus.CounterVec

	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到默认 registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegisterer(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegisterer 创建指标收集器并注册到指定 registry。
// 测试中传入独立 registry 避免重复注册 panic。
func NewCollectorWithRegisterer(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 执行指标
	c.executionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Total number of team executions by mode and final status",
		},
		[]string{"mode", "status"},
	)

	c.executionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Team execution duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600},
		},
		[]string{"mode"},
	)

	c.executionsRunning = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executions_running",
			Help:      "Number of executions currently running",
		},
	)

	// 任务指标
	c.tasksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total number of tasks by terminal status",
		},
		[]string{"status"},
	)

	c.taskDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// 消息指标
	c.messagesSent = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total number of messages delivered by the bus",
		},
	)

	c.messagesDropped = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Total number of messages dropped on full queues",
		},
	)

	// 记忆指标
	c.memoryOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_operations_total",
			Help:      "Total number of shared memory operations",
		},
		[]string{"operation"},
	)

	// 冲突指标
	c.conflictsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_total",
			Help:      "Total number of conflicts by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	return c
}

// =============================================================================
// 🎯 记录方法
// =============================================================================

// RecordExecutionStarted 记录执行开始
func (c *Collector) RecordExecutionStarted() {
	c.executionsRunning.Inc()
}

// RecordExecutionFinished 记录执行结束
func (c *Collector) RecordExecutionFinished(mode, status string, duration time.Duration) {
	c.executionsRunning.Dec()
	c.executionsTotal.WithLabelValues(mode, status).Inc()
	c.executionDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordTask 记录任务终态
func (c *Collector) RecordTask(mode, status string, duration time.Duration) {
	c.tasksTotal.WithLabelValues(status).Inc()
	c.taskDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordMessages 记录消息计数增量
func (c *Collector) RecordMessages(sent, dropped int64) {
	if sent > 0 {
		c.messagesSent.Add(float64(sent))
	}
	if dropped > 0 {
		c.messagesDropped.Add(float64(dropped))
	}
}

// RecordMemoryOperation 记录记忆操作
func (c *Collector) RecordMemoryOperation(operation string) {
	c.memoryOperations.WithLabelValues(operation).Inc()
}

// RecordConflict 记录冲突裁决
func (c *Collector) RecordConflict(strategy, outcome string) {
	c.conflictsTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	status := statusBucket(statusCode)
	c.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// statusBucket 将状态码归并为 2xx/3xx/4xx/5xx
func statusBucket(code int) string {
	if code >= 100 && code < 600 {
		return strconv.Itoa(code/100) + "xx"
	}
	return "unknown"
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 外部 API 调用延迟（秒）
	APICallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_call_duration_seconds",
			Help:    "External task API call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"endpoint", "status"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 当前活跃会话数
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Number of session workspaces held in memory",
		},
	)

	// 领域事件计数
	TaskEventCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_event_count",
			Help: "Total number of task domain events published",
		},
		[]string{"type"}, // type: task.completed, task.reopened, task.deleted
	)

	// 被丢弃的过期刷新结果
	StaleRefreshDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stale_refresh_discarded_total",
			Help: "Task refresh results discarded because a newer refresh was issued",
		},
	)
)

// RecordAPICallLatency 记录外部 API 调用延迟
func RecordAPICallLatency(endpoint, status string, duration time.Duration) {
	APICallLatency.WithLabelValues(endpoint, status).Observe(duration.Seconds())
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// SetActiveSessions 更新活跃会话数
func SetActiveSessions(n int) {
	ActiveSessions.Set(float64(n))
}

// IncrementTaskEvent 增加领域事件计数
func IncrementTaskEvent(eventType string) {
	TaskEventCount.WithLabelValues(eventType).Inc()
}

// IncrementStaleRefresh 记录一次被丢弃的刷新
func IncrementStaleRefresh() {
	StaleRefreshDiscarded.Inc()
}

// Package metrics 暴露Prometheus指标
package metrics

import (
	"strconv"
	"time"

	"social-connect/pkg/apperr"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "social_connect"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	connectionOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_operations_total",
			Help:      "Total number of connection operations by outcome kind",
		},
		[]string{"operation", "outcome"},
	)

	connectionOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "connection_operation_duration_seconds",
			Help:      "Duration of connection operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	throttleDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttle_denials_total",
			Help:      "Total number of actions refused by the usage throttle",
		},
		[]string{"feature"},
	)

	pushFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_failures_total",
			Help:      "Total number of push notifications that could not be delivered or queued",
		},
	)
)

// GinMiddleware 记录HTTP请求数与耗时
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveOperation 记录一次好友操作；outcome 为 ok 或错误类别
func ObserveOperation(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	connectionOpsTotal.WithLabelValues(operation, outcome).Inc()
	connectionOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ThrottleDenied 记录一次限额拒绝
func ThrottleDenied(feature string) {
	throttleDenialsTotal.WithLabelValues(feature).Inc()
}

// PushFailed 记录一次推送失败
func PushFailed() {
	pushFailuresTotal.Inc()
}

// Handler 返回 /metrics 处理器
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

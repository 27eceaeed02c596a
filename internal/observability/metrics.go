package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "allowctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"app", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "allowctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"app", "method", "path", "status"},
	)
	chainCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "allowctl",
			Subsystem: "chain",
			Name:      "calls_total",
			Help:      "Remote chain calls issued by the session controller.",
		},
		[]string{"app", "op", "success"},
	)
	chainCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "allowctl",
			Subsystem: "chain",
			Name:      "call_duration_seconds",
			Help:      "Remote chain call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"app", "op", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, chainCalls, chainCallDuration)
	})
}

func RecordHTTPRequest(app, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(app, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(app, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordChainCall(app, op string, duration time.Duration, success bool) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	chainCalls.WithLabelValues(app, op, successLabel).Inc()
	chainCallDuration.WithLabelValues(app, op, successLabel).Observe(duration.Seconds())
}

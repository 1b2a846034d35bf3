package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/caffeineduck/quickhub/protocol"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Each instance owns its registry so
// several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// Channel metrics
	Executions  *prometheus.CounterVec
	LogMessages *prometheus.CounterVec
	Retries     prometheus.Counter

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quickhub_executions_total",
				Help: "Finished sandbox executions by outcome",
			},
			[]string{"outcome"},
		),
		LogMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quickhub_console_messages_total",
				Help: "Console messages emitted by sandboxed code",
			},
			[]string{"level"},
		),
		Retries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "quickhub_channel_retries_total",
				Help: "Submissions deferred because the sandbox was not ready",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quickhub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quickhub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "quickhub_websocket_connections",
				Help: "Open console WebSocket connections",
			},
		),
	}
}

// ExecutionFinished implements channel.Metrics.
func (m *Metrics) ExecutionFinished(ok bool) {
	outcome := "error"
	if ok {
		outcome = "ok"
	}
	m.Executions.WithLabelValues(outcome).Inc()
}

// LogMessage implements channel.Metrics.
func (m *Metrics) LogMessage(level protocol.Level) {
	m.LogMessages.WithLabelValues(level.String()).Inc()
}

// Retry implements channel.Metrics.
func (m *Metrics) Retry() {
	m.Retries.Inc()
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Middleware creates a Gin middleware for metrics collection. Requests are
// labelled by route pattern so ids do not explode the label space.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(c.Request.Method, path, status, time.Since(start))
	}
}

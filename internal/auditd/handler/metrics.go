package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	entriesLogged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_entries_logged_total",
		Help: "Total audit entries appended via the public logging endpoint.",
	})

	chainVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_chain_verifications_total",
		Help: "Chain verification runs by result.",
	}, []string{"result"})

	reportsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_reports_generated_total",
		Help: "Total compliance reports generated.",
	})

	alertDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_alert_deliveries_total",
		Help: "Real-time alert webhook deliveries by success status.",
	}, []string{"status"})

	integritySweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_integrity_sweeps_total",
		Help: "Background chain integrity sweeps by result.",
	}, []string{"result"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "audit_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "audit_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// RecordAlertDelivery is the alerts.MetricsRecorder wired in cmd/auditd.
func RecordAlertDelivery(success bool) {
	status := "failed"
	if success {
		status = "ok"
	}
	alertDeliveries.WithLabelValues(status).Inc()
}

// RecordIntegritySweep is the health.MetricsRecordFunc wired in cmd/auditd.
func RecordIntegritySweep(success bool) {
	result := "failed"
	if success {
		result = "ok"
	}
	integritySweeps.WithLabelValues(result).Inc()
}

// PrometheusMiddleware returns a Gin middleware that records per-request
// metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		requestsTotal.WithLabelValues(method, path, status).Inc()
		requestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns the Prometheus scrape handler wrapped for Gin.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// Package metrics provides Prometheus instrumentation for the PiTrust backend.
package metrics

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pitrust",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pitrust",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ScoreEventsTotal counts reputation score events by type.
	ScoreEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pitrust",
			Name:      "score_events_total",
			Help:      "Total reputation score events applied, by event type.",
		},
		[]string{"type"},
	)

	// CheckInRejectionsTotal counts check-ins rejected by the daily guard.
	CheckInRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pitrust",
			Name:      "checkin_rejections_total",
			Help:      "Total daily check-ins rejected because the user already checked in.",
		},
	)

	// WalletScansTotal counts wallet scans by outcome.
	WalletScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pitrust",
			Name:      "wallet_scans_total",
			Help:      "Total wallet scans by outcome (first, delta, zero).",
		},
		[]string{"outcome"},
	)

	// PaymentsTotal counts payment state transitions by resulting status.
	PaymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pitrust",
			Name:      "payments_total",
			Help:      "Total payment transitions by resulting status.",
		},
		[]string{"status"},
	)

	// PayoutsTotal counts payout requests by result.
	PayoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pitrust",
			Name:      "payouts_total",
			Help:      "Total payout requests by result (created, duplicate, pending_conflict, rejected).",
		},
		[]string{"result"},
	)

	// LedgerFetchesTotal counts ledger API fetches by result.
	LedgerFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pitrust",
			Name:      "ledger_fetches_total",
			Help:      "Total ledger wallet fetches by result (ok, not_found, error, cached).",
		},
		[]string{"result"},
	)

	// VIPGrantsTotal counts VIP grants issued.
	VIPGrantsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pitrust",
			Name:      "vip_grants_total",
			Help:      "Total VIP grants issued by completed payments.",
		},
	)

	// ActiveWebSocketClients tracks currently connected realtime clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pitrust",
			Name:      "websocket_clients",
			Help:      "Currently connected realtime WebSocket clients.",
		},
	)
)

var registerOnce sync.Once

// Register registers all collectors with the default registry.
// Safe to call more than once; only the first call registers.
func Register() {
	registerOnce.Do(register)
}

func register() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ScoreEventsTotal,
		CheckInRejectionsTotal,
		WalletScansTotal,
		PaymentsTotal,
		PayoutsTotal,
		LedgerFetchesTotal,
		VIPGrantsTotal,
		ActiveWebSocketClients,
	)
}

// GinMiddleware records request counts and latency per route pattern.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := statusLabel(c.Writer.Status())

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the /metrics endpoint handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

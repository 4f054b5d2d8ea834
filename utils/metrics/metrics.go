package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marketplace"

type Metrics struct {
	// HTTP Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Business Metrics
	CheckoutsTotal        *prometheus.CounterVec
	CallbacksTotal        *prometheus.CounterVec
	EntitlementsGranted   prometheus.Counter
	EntitlementsSkipped   prometheus.Counter
	CartAmountMismatches  prometheus.Counter
	StalePaymentsTotal    *prometheus.CounterVec
	GatewayVerifyDuration prometheus.Histogram
	GatewayVerifyErrors   *prometheus.CounterVec
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being served",
			},
		),

		CheckoutsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkouts_total",
				Help:      "Pending payments created, by checkout mode",
			},
			[]string{"mode"},
		),
		CallbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_callbacks_total",
				Help:      "Gateway callbacks processed, by outcome",
			},
			[]string{"outcome"},
		),
		EntitlementsGranted: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entitlements_granted_total",
				Help:      "Course entitlements created",
			},
		),
		EntitlementsSkipped: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "entitlements_skipped_total",
				Help:      "Grants skipped because the entitlement already existed",
			},
		),
		CartAmountMismatches: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cart_amount_mismatches_total",
				Help:      "Cart checkouts whose declared amount differs from the catalog total",
			},
		),
		StalePaymentsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stale_payments_total",
				Help:      "Pending payments found by the stale payment audit, by gateway status",
			},
			[]string{"gateway_status"},
		),
		GatewayVerifyDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_verify_duration_seconds",
				Help:      "Latency of verify_payment calls",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
		),
		GatewayVerifyErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_verify_errors_total",
				Help:      "Failed verify_payment calls, by reason",
			},
			[]string{"reason"},
		),
	}
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(duration.Seconds())
}

// RecordGatewayVerify records one verify_payment round trip
func (m *Metrics) RecordGatewayVerify(duration time.Duration, errReason string) {
	m.GatewayVerifyDuration.Observe(duration.Seconds())
	if errReason != "" {
		m.GatewayVerifyErrors.WithLabelValues(errReason).Inc()
	}
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Result labels
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
	ResultDropped  = "dropped"
)

// Metrics holds the Prometheus collectors of the service
type Metrics struct {
	Borrows       *prometheus.CounterVec
	Returns       *prometheus.CounterVec
	Deposits      *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Borrows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_borrows_total",
				Help: "Borrow attempts by result",
			},
			[]string{"result"},
		),
		Returns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_returns_total",
				Help: "Return attempts by result",
			},
			[]string{"result"},
		),
		Deposits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_deposits_total",
				Help: "Deposit attempts by result",
			},
			[]string{"result"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_notifications_total",
				Help: "Notifications by delivery result",
			},
			[]string{"result"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "library_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(m.Borrows, m.Returns, m.Deposits, m.Notifications, m.HTTPRequests, m.HTTPDuration)

	return m
}

// CounterValue reads the current value of one series of cv
func CounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	var m dto.Metric
	if err := cv.WithLabelValues(labels...).Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

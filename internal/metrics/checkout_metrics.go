package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты оформления заказа для label result.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// CheckoutMetrics содержит метрики оформления и отмены заказов.
type CheckoutMetrics struct {
	attempts      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	cancellations prometheus.Counter
	inFlight      prometheus.Gauge
}

// NewCheckoutMetrics создаёт метрики checkout в default registry.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer создаёт метрики checkout в указанном registry.
func NewCheckoutMetricsWithRegisterer(registerer prometheus.Registerer) *CheckoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		attempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "teashop_checkout_attempts_total",
			Help: "Total number of checkout attempts grouped by result",
		}, []string{"result"}),
		duration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "teashop_checkout_duration_seconds",
			Help:    "Duration of checkout requests in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"result"}),
		cancellations: registerCounter(registerer, prometheus.CounterOpts{
			Name: "teashop_order_cancellations_total",
			Help: "Total number of cancelled orders",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "teashop_checkout_in_flight",
			Help: "Number of checkout requests currently being processed",
		}),
	}
}

// CheckoutStarted увеличивает число активных оформлений.
func (m *CheckoutMetrics) CheckoutStarted() {
	m.inFlight.Inc()
}

// CheckoutFinished фиксирует результат и длительность оформления.
// result - ResultSuccess, ResultError или код бизнес-отказа.
func (m *CheckoutMetrics) CheckoutFinished(result string, duration time.Duration) {
	m.inFlight.Dec()
	m.attempts.WithLabelValues(result).Inc()
	m.duration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordCancellation увеличивает счётчик отменённых заказов.
func (m *CheckoutMetrics) RecordCancellation() {
	m.cancellations.Inc()
}

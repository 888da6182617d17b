package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics содержит метрики обработки webhook платёжного шлюза.
type WebhookMetrics struct {
	events         *prometheus.CounterVec
	orphanPayments prometheus.Counter
}

// NewWebhookMetrics создаёт метрики webhook в default registry.
func NewWebhookMetrics() *WebhookMetrics {
	return NewWebhookMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWebhookMetricsWithRegisterer создаёт метрики webhook в указанном registry.
func NewWebhookMetricsWithRegisterer(registerer prometheus.Registerer) *WebhookMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WebhookMetrics{
		events: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "teashop_webhook_events_total",
			Help: "Total number of gateway webhook events grouped by event type and result",
		}, []string{"event", "result"}),
		orphanPayments: registerCounter(registerer, prometheus.CounterOpts{
			Name: "teashop_orphan_payments_total",
			Help: "Total number of captured payments recorded without an order",
		}),
	}
}

// RecordEvent учитывает обработанное событие.
func (m *WebhookMetrics) RecordEvent(event, result string) {
	m.events.WithLabelValues(event, result).Inc()
}

// RecordOrphanPayment увеличивает счётчик платежей-сирот.
func (m *WebhookMetrics) RecordOrphanPayment() {
	m.orphanPayments.Inc()
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCheckoutMetrics_FinishedUpdatesCountersAndGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetricsWithRegisterer(reg)

	m.CheckoutStarted()
	m.CheckoutStarted()
	m.CheckoutFinished(ResultSuccess, 120*time.Millisecond)

	if got := testutil.ToFloat64(m.attempts.WithLabelValues(ResultSuccess)); got != 1 {
		t.Fatalf("expected 1 successful attempt, got %f", got)
	}

	metric := &dto.Metric{}
	if err := m.inFlight.Write(metric); err != nil {
		t.Fatalf("failed to write gauge: %v", err)
	}
	if metric.Gauge.GetValue() != 1 {
		t.Fatalf("expected 1 checkout in flight, got %f", metric.Gauge.GetValue())
	}

	m.RecordCancellation()
	if got := testutil.ToFloat64(m.cancellations); got != 1 {
		t.Fatalf("expected 1 cancellation, got %f", got)
	}
}

func TestMetrics_DoubleRegistrationReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewWebhookMetricsWithRegisterer(reg)
	second := NewWebhookMetricsWithRegisterer(reg)

	first.RecordEvent("payment.captured", "processed")
	second.RecordEvent("payment.captured", "processed")
	second.RecordOrphanPayment()

	if got := testutil.ToFloat64(first.events.WithLabelValues("payment.captured", "processed")); got != 2 {
		t.Fatalf("expected shared counter value 2, got %f", got)
	}
	if got := testutil.ToFloat64(first.orphanPayments); got != 1 {
		t.Fatalf("expected orphan counter 1, got %f", got)
	}
}

func TestHTTPMetrics_ObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetricsWithRegisterer(reg)

	m.ObserveRequest("POST", "/api/orders", 201, 10*time.Millisecond)
	m.ObserveRequest("GET", "", 404, time.Millisecond)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("POST", "/api/orders", "201")); got != 1 {
		t.Fatalf("expected 1 request, got %f", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("expected unmatched route label, got %f", got)
	}
}

func TestRegisterCounter_PanicsOnTypeMismatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	registerGauge(reg, prometheus.GaugeOpts{Name: "teashop_conflicting_metric", Help: "gauge"})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on collector type mismatch")
		}
	}()
	registerCounter(reg, prometheus.CounterOpts{Name: "teashop_conflicting_metric", Help: "counter"})
}

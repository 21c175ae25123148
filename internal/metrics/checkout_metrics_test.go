package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCheckoutMetrics_Counters(t *testing.T) {
	m := NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordCartCreated()
	m.RecordCartMutation("add", nil)
	m.RecordCartMutation("update_quantity", errors.New("invalid"))
	m.RecordCheckoutStarted()
	m.RecordStepCompleted("order_information", 10*time.Millisecond)
	m.RecordValidationFailure("login")
	m.RecordAccessDenied("empty_order")
	m.RecordOrderCompleted(90 * time.Second)
	m.RecordRegistration(nil)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"carts created", testutil.ToFloat64(m.cartsCreated), 1},
		{"cart add ok", testutil.ToFloat64(m.cartMutations.WithLabelValues("add", "ok")), 1},
		{"cart update error", testutil.ToFloat64(m.cartMutations.WithLabelValues("update_quantity", "error")), 1},
		{"checkout started", testutil.ToFloat64(m.checkoutStarted), 1},
		{"step completed", testutil.ToFloat64(m.stepsCompleted.WithLabelValues("order_information")), 1},
		{"validation failure", testutil.ToFloat64(m.validationFailures.WithLabelValues("login")), 1},
		{"access denied", testutil.ToFloat64(m.accessDenied.WithLabelValues("empty_order")), 1},
		{"orders completed", testutil.ToFloat64(m.ordersCompleted), 1},
		{"registrations ok", testutil.ToFloat64(m.registrations.WithLabelValues("ok")), 1},
		{"open checkouts", testutil.ToFloat64(m.openCheckouts), 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestCheckoutMetrics_Histogram(t *testing.T) {
	m := NewCheckoutMetricsWithRegisterer(prometheus.NewRegistry())
	m.RecordOrderCompleted(2 * time.Minute)

	metric := &dto.Metric{}
	if err := m.checkoutDuration.Write(metric); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Fatalf("expected 1 sample, got %d", metric.Histogram.GetSampleCount())
	}
	if metric.Histogram.GetSampleSum() != 120 {
		t.Fatalf("expected sum 120, got %v", metric.Histogram.GetSampleSum())
	}
}

func TestCheckoutMetrics_ReRegistrationReturnsExisting(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewCheckoutMetricsWithRegisterer(registry)
	second := NewCheckoutMetricsWithRegisterer(registry)

	first.RecordCartCreated()
	if got := testutil.ToFloat64(second.cartsCreated); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestCheckoutMetrics_NilSafe(t *testing.T) {
	var m *CheckoutMetrics
	m.RecordCartCreated()
	m.RecordCheckoutStarted()
	m.RecordOrderCompleted(time.Second)
}

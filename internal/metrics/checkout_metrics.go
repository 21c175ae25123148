package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics содержит метрики корзины и оформления заказа.
// Методы безопасно вызывать на nil.
type CheckoutMetrics struct {
	cartsCreated  prometheus.Counter
	cartMutations *prometheus.CounterVec

	checkoutStarted    prometheus.Counter
	stepsCompleted     *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	accessDenied       *prometheus.CounterVec
	ordersCompleted    prometheus.Counter
	registrations      *prometheus.CounterVec

	checkoutDuration prometheus.Histogram
	submitDuration   *prometheus.HistogramVec

	openCheckouts prometheus.Gauge
}

// NewCheckoutMetrics регистрирует метрики в default registry.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в переданном registry (тесты).
func NewCheckoutMetricsWithRegisterer(r prometheus.Registerer) *CheckoutMetrics {
	return &CheckoutMetrics{
		cartsCreated: counter(r, prometheus.CounterOpts{
			Name: "commerce_carts_created_total",
			Help: "Total number of carts created",
		}),
		cartMutations: counterVec(r, prometheus.CounterOpts{
			Name: "commerce_cart_mutations_total",
			Help: "Cart mutations grouped by operation and result",
		}, "operation", "result"),
		checkoutStarted: counter(r, prometheus.CounterOpts{
			Name: "commerce_checkout_started_total",
			Help: "Total number of orders that entered checkout",
		}),
		stepsCompleted: counterVec(r, prometheus.CounterOpts{
			Name: "commerce_checkout_steps_completed_total",
			Help: "Checkout steps submitted successfully",
		}, "step"),
		validationFailures: counterVec(r, prometheus.CounterOpts{
			Name: "commerce_checkout_validation_failures_total",
			Help: "Checkout submissions rejected by pane validation",
		}, "step"),
		accessDenied: counterVec(r, prometheus.CounterOpts{
			Name: "commerce_checkout_access_denied_total",
			Help: "Checkout access denials grouped by rule",
		}, "reason"),
		ordersCompleted: counter(r, prometheus.CounterOpts{
			Name: "commerce_orders_completed_total",
			Help: "Total number of orders placed",
		}),
		registrations: counterVec(r, prometheus.CounterOpts{
			Name: "commerce_checkout_registrations_total",
			Help: "Inline registrations grouped by result",
		}, "result"),
		checkoutDuration: histogram(r, prometheus.HistogramOpts{
			Name:    "commerce_checkout_duration_seconds",
			Help:    "Time from checkout start to order placement",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		submitDuration: histogramVec(r, prometheus.HistogramOpts{
			Name:    "commerce_checkout_submit_duration_seconds",
			Help:    "Duration of checkout step submission handling",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, "step"),
		openCheckouts: gauge(r, prometheus.GaugeOpts{
			Name: "commerce_checkout_open",
			Help: "Orders in checkout started by this process and not yet placed",
		}),
	}
}

func (m *CheckoutMetrics) RecordCartCreated() {
	if m == nil {
		return
	}
	m.cartsCreated.Inc()
}

// RecordCartMutation фиксирует операцию над корзиной: add, update_quantity, remove, empty, assign.
func (m *CheckoutMetrics) RecordCartMutation(operation string, err error) {
	if m == nil {
		return
	}
	m.cartMutations.WithLabelValues(operation, result(err)).Inc()
}

func (m *CheckoutMetrics) RecordCheckoutStarted() {
	if m == nil {
		return
	}
	m.checkoutStarted.Inc()
	m.openCheckouts.Inc()
}

func (m *CheckoutMetrics) RecordStepCompleted(step string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepsCompleted.WithLabelValues(step).Inc()
	m.submitDuration.WithLabelValues(step).Observe(duration.Seconds())
}

func (m *CheckoutMetrics) RecordValidationFailure(step string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(step).Inc()
}

func (m *CheckoutMetrics) RecordAccessDenied(reason string) {
	if m == nil {
		return
	}
	m.accessDenied.WithLabelValues(reason).Inc()
}

// RecordOrderCompleted учитывает оформленный заказ и длительность checkout.
func (m *CheckoutMetrics) RecordOrderCompleted(sinceStart time.Duration) {
	if m == nil {
		return
	}
	m.ordersCompleted.Inc()
	m.openCheckouts.Dec()
	if sinceStart > 0 {
		m.checkoutDuration.Observe(sinceStart.Seconds())
	}
}

func (m *CheckoutMetrics) RecordRegistration(err error) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

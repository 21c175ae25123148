package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics: метрики публикации transactional outbox.
type OutboxMetrics struct {
	publishAttempts *prometheus.CounterVec
	pending         prometheus.Gauge
	oldestAge       prometheus.Gauge
}

func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewOutboxMetricsWithRegisterer(r prometheus.Registerer) *OutboxMetrics {
	return &OutboxMetrics{
		publishAttempts: counterVec(r, prometheus.CounterOpts{
			Name: "commerce_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, "result"),
		pending: gauge(r, prometheus.GaugeOpts{
			Name: "commerce_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		}),
		oldestAge: gauge(r, prometheus.GaugeOpts{
			Name: "commerce_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
	}
}

// RecordAttempt учитывает попытку публикации: sent, retry_error, failed, dlq_failed.
func (m *OutboxMetrics) RecordAttempt(result string) {
	if m == nil {
		return
	}
	m.publishAttempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер и возраст backlog.
func (m *OutboxMetrics) SetBacklog(pending int, oldest time.Time) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	if pending == 0 || oldest.IsZero() {
		m.oldestAge.Set(0)
		return
	}
	m.oldestAge.Set(max(time.Since(oldest).Seconds(), 0))
}

// IdempotencyMetrics: метрики очистки ключей повторной отправки форм.
type IdempotencyMetrics struct {
	cleanupRuns    *prometheus.CounterVec
	deletedRecords prometheus.Counter
}

func NewIdempotencyMetrics() *IdempotencyMetrics {
	return NewIdempotencyMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewIdempotencyMetricsWithRegisterer(r prometheus.Registerer) *IdempotencyMetrics {
	return &IdempotencyMetrics{
		cleanupRuns: counterVec(r, prometheus.CounterOpts{
			Name: "commerce_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, "result"),
		deletedRecords: counter(r, prometheus.CounterOpts{
			Name: "commerce_idempotency_cleanup_deleted_total",
			Help: "Total number of expired idempotency keys deleted.",
		}),
	}
}

func (m *IdempotencyMetrics) RecordCleanup(deleted int, err error) {
	if m == nil {
		return
	}
	m.cleanupRuns.WithLabelValues(result(err)).Inc()
	if deleted > 0 {
		m.deletedRecords.Add(float64(deleted))
	}
}

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics: метрики HTTP-слоя корзины и оформления.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return NewHTTPMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewHTTPMetricsWithRegisterer(r prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		requests: counterVec(r, prometheus.CounterOpts{
			Name: "commerce_http_requests_total",
			Help: "HTTP requests grouped by route pattern and status code",
		}, "method", "route", "code"),
		duration: histogramVec(r, prometheus.HistogramOpts{
			Name:    "commerce_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, "method", "route"),
	}
}

// Observe ожидает в route шаблон маршрута chi, а не сырой путь.
func (m *HTTPMetrics) Observe(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

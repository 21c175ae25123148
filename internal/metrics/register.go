package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// register регистрирует коллектор; при повторной регистрации возвращает уже существующий.
func register[T prometheus.Collector](registerer prometheus.Registerer, collector T, name string) T {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	err := registerer.Register(collector)
	if err == nil {
		return collector
	}

	var alreadyRegistered prometheus.AlreadyRegisteredError
	if errors.As(err, &alreadyRegistered) {
		existing, ok := alreadyRegistered.ExistingCollector.(T)
		if !ok {
			panic(fmt.Sprintf("collector %q already registered with unexpected type", name))
		}
		return existing
	}
	panic(fmt.Sprintf("register collector %q: %v", name, err))
}

func counter(r prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	return register(r, prometheus.NewCounter(opts), opts.Name)
}

func counterVec(r prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) *prometheus.CounterVec {
	return register(r, prometheus.NewCounterVec(opts, labels), opts.Name)
}

func histogram(r prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	return register(r, prometheus.NewHistogram(opts), opts.Name)
}

func histogramVec(r prometheus.Registerer, opts prometheus.HistogramOpts, labels ...string) *prometheus.HistogramVec {
	return register(r, prometheus.NewHistogramVec(opts, labels), opts.Name)
}

func gauge(r prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	return register(r, prometheus.NewGauge(opts), opts.Name)
}

package client

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tonbridge"

// Drop reasons reported in dropped_responses_total.
const (
	dropUnknown       = "unknown_request"
	dropAfterFinished = "after_finished"
	dropClosed        = "closed"
)

type metrics struct {
	requests    *prometheus.CounterVec
	responses   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	panics      prometheus.Counter
	inflight    prometheus.Gauge
	contexts    prometheus.Gauge
	syncLatency prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests dispatched to the engine by mode (async, sync).",
		}, []string{"mode"}),
		responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Responses delivered to consumers by response type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_responses_total",
			Help:      "Responses dropped before reaching a consumer by reason.",
		}, []string{"reason"}),
		panics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_panics_total",
			Help:      "Consumer panics recovered during response delivery.",
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_inflight",
			Help:      "Asynchronous requests awaiting their final response.",
		}),
		contexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "contexts_active",
			Help:      "Live client context handles.",
		}),
		syncLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_sync_seconds",
			Help:      "Duration of synchronous engine requests.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.responses, err = register(reg, m.responses); err != nil {
		return nil, err
	}
	if m.dropped, err = register(reg, m.dropped); err != nil {
		return nil, err
	}
	if m.panics, err = register(reg, m.panics); err != nil {
		return nil, err
	}
	if m.inflight, err = register(reg, m.inflight); err != nil {
		return nil, err
	}
	if m.contexts, err = register(reg, m.contexts); err != nil {
		return nil, err
	}
	if m.syncLatency, err = register(reg, m.syncLatency); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector that another
// Library already registered.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

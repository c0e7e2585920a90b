package grove

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the container's collectors. A nil *metrics records nothing.
type metrics struct {
	created      *prometheus.CounterVec
	failures     *prometheus.CounterVec
	openContexts prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grove",
			Name:      "instances_created_total",
			Help:      "Instances produced by providers, by lifetime.",
		}, []string{"lifetime"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grove",
			Name:      "resolve_failures_total",
			Help:      "Top-level resolutions that failed, by reason.",
		}, []string{"reason"}),
		openContexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grove",
			Name:      "request_contexts_open",
			Help:      "Request contexts created and not yet closed.",
		}),
	}

	var err error
	m.created, err = register(reg, m.created)
	if err != nil {
		return nil, err
	}
	m.failures, err = register(reg, m.failures)
	if err != nil {
		return nil, err
	}
	m.openContexts, err = register(reg, m.openContexts)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// register registers col, reusing an identical collector that is already
// registered.
func register[C prometheus.Collector](reg prometheus.Registerer, col C) (C, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return col, err
	}
	return col, nil
}

func (m *metrics) instanceCreated(l Lifetime) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(l.String()).Inc()
}

func (m *metrics) resolveFailed(err error) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(failureReason(err)).Inc()
}

func (m *metrics) requestContextOpened() {
	if m == nil {
		return
	}
	m.openContexts.Inc()
}

func (m *metrics) requestContextClosed() {
	if m == nil {
		return
	}
	m.openContexts.Dec()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrProviderNotFound):
		return "not_found"
	case errors.Is(err, ErrCircularDependency):
		return "circular"
	case errors.Is(err, ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, ErrRequestContextClosed), errors.Is(err, ErrForeignRequestContext):
		return "request_context"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "provider"
	}
}

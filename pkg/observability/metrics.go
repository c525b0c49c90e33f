package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/aretw0/labflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels of labflow_transitions_total.
const (
	OutcomePerformed = "performed"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeForced    = "forced"
)

// Metrics holds the engine collectors.
type Metrics struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	hookErrors  *prometheus.CounterVec
	storeOps    *prometheus.HistogramVec
	gatherer    prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them on reg. A nil reg uses
// the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labflow_transitions_total",
				Help: "Transition requests by entity type, transition and outcome.",
			},
			[]string{"type", "transition", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "labflow_transition_duration_seconds",
				Help:    "Duration of performed transitions, hooks and cascades included.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type", "transition"},
		),
		hookErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labflow_hook_failures_total",
				Help: "Hooks that returned an error.",
			},
			[]string{"type", "transition", "kind"},
		),
		storeOps: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "labflow_store_operation_duration_seconds",
				Help:    "Latency of state store calls.",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"operation"},
		),
	}
	for _, c := range []prometheus.Collector{m.transitions, m.duration, m.hookErrors, m.storeOps} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m, nil
}

// Hooks returns the lifecycle callbacks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(_ context.Context, ev *domain.TransitionEvent) {
			outcome := OutcomeRejected
			switch ev.Type {
			case domain.EventTransitionPerformed:
				outcome = OutcomePerformed
				m.duration.WithLabelValues(string(ev.Entity.Type), string(ev.Transition)).Observe(ev.Duration.Seconds())
			case domain.EventTransitionFailed:
				outcome = OutcomeFailed
			}
			m.transitions.WithLabelValues(string(ev.Entity.Type), string(ev.Transition), outcome).Inc()
		},
		OnStateForced: func(_ context.Context, ev *domain.TransitionEvent) {
			m.transitions.WithLabelValues(string(ev.Entity.Type), "change_state", OutcomeForced).Inc()
		},
		OnHookFailed: func(_ context.Context, ev *domain.HookEvent) {
			m.hookErrors.WithLabelValues(string(ev.Entity.Type), string(ev.Transition), string(ev.Kind)).Inc()
		},
	}
}

// ObserveStore records the latency of one store call. It matches the
// middleware.Observer signature.
func (m *Metrics) ObserveStore(operation string, elapsed time.Duration) {
	m.storeOps.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Handler serves the registry the metrics were registered on.
func (m *Metrics) Handler() http.Handler {
	if m.gatherer != nil {
		return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// TransitionCounter exposes one child of labflow_transitions_total, for tests
// and for callers that want to read the value back.
func (m *Metrics) TransitionCounter(entityType, transition, outcome string) prometheus.Counter {
	return m.transitions.WithLabelValues(entityType, transition, outcome)
}

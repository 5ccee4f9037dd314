// Package metrics exports locator activity to Prometheus.
package metrics

import (
	"errors"

	"github.com/AnatoleLucet/finder"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "finder"
	subsystem = "locator"
)

// Outcome label values.
const (
	OutcomeFound    = "found"
	OutcomeEmpty    = "empty"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics implements finder.Observer.
// Labels are the mode and shape of the lookup, never the locator id, to keep cardinality bounded.
type Metrics struct {
	// Resolutions counts finished lookups.
	// Labels: mode, shape (single, multiple), outcome (found, empty, not_found, error)
	Resolutions *prometheus.CounterVec

	// CacheLookups counts lookups made while caching was on.
	// Labels: shape, result (hit, miss)
	CacheLookups *prometheus.CounterVec

	// CacheClears counts cache resets, from rule changes or explicit clears.
	CacheClears prometheus.Counter

	// Duration measures lookups that reached the host graph.
	// Labels: mode, shape
	Duration *prometheus.HistogramVec
}

var _ finder.Observer = (*Metrics)(nil)

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer to
// expose them on the default handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resolutions_total",
			Help:      "Locator lookups by mode, shape and outcome",
		}, []string{"mode", "shape", "outcome"}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_lookups_total",
			Help:      "Cached locator lookups by shape and result",
		}, []string{"shape", "result"}),

		CacheClears: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cache_clears_total",
			Help:      "Locator cache resets",
		}),

		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "resolve_duration_seconds",
			Help:      "Time spent resolving lookups that reached the host graph",
			Buckets:   []float64{1e-6, 5e-6, 1e-5, 5e-5, 1e-4, 5e-4, 1e-3, 5e-3, 1e-2},
		}, []string{"mode", "shape"}),
	}
}

func (m *Metrics) ObserveResolve(ev finder.ResolveEvent) {
	mode := ev.Mode.String()
	shape := ev.Shape.String()

	m.Resolutions.WithLabelValues(mode, shape, outcome(ev)).Inc()

	if ev.CacheHit {
		m.CacheLookups.WithLabelValues(shape, "hit").Inc()
		return
	}
	if ev.Cached {
		m.CacheLookups.WithLabelValues(shape, "miss").Inc()
	}

	m.Duration.WithLabelValues(mode, shape).Observe(ev.Duration.Seconds())
}

func (m *Metrics) ObserveCacheClear(uuid.UUID) {
	m.CacheClears.Inc()
}

func outcome(ev finder.ResolveEvent) string {
	switch {
	case ev.Err == nil && ev.Found:
		return OutcomeFound
	case ev.Err == nil:
		return OutcomeEmpty
	case errors.Is(ev.Err, finder.ErrNotFound):
		return OutcomeNotFound
	default:
		return OutcomeError
	}
}

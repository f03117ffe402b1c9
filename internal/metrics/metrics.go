// Package metrics exports engine activity as Prometheus collectors. It is fed
// from engine events, so the engine itself has no metrics dependency.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"nudge/internal/engine"
	"nudge/internal/eventbus"
)

const namespace = "nudge"

type Metrics struct {
	Queued     *prometheus.CounterVec
	Shown      *prometheus.CounterVec
	Rejected   *prometheus.CounterVec
	Superseded prometheus.Counter
	Cancelled  prometheus.Counter
	Actions    *prometheus.CounterVec
	Released   *prometheus.CounterVec
	Lifetime   *prometheus.HistogramVec

	Active        prometheus.Gauge
	QueueDepth    prometheus.Gauge
	MaxConcurrent prometheus.Gauge

	EffectsSkipped *prometheus.CounterVec
	EventsDropped  prometheus.CounterFunc

	factory promauto.Factory
}

// New registers every collector on reg. Passing nil uses a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		factory: f,
		Queued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queued_total",
			Help:      "Requests admitted to the queue",
		}, []string{"type"}),
		Shown: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shown_total",
			Help:      "Requests promoted to active",
		}, []string{"type", "level"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_total",
			Help:      "Requests refused at admission",
		}, []string{"reason"}),
		Superseded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "superseded_total",
			Help:      "Queued requests replaced by an identical newer request",
		}),
		Cancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancelled_total",
			Help:      "Queued requests removed before activation",
		}),
		Actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Action button presses",
		}, []string{"action"}),
		Released: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "released_total",
			Help:      "Active requests released, by cause",
		}, []string{"cause"}),
		Lifetime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "active_seconds",
			Help:      "Time a request spent active",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 8, 13, 30, 60, 300},
		}, []string{"level"}),
		Active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active",
			Help:      "Currently active requests",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued",
			Help:      "Requests waiting for a slot",
		}),
		MaxConcurrent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_concurrent",
			Help:      "Configured concurrency limit",
		}),
		EffectsSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effects_skipped_total",
			Help:      "Sound or haptic effects dropped by the rate limiter",
		}, []string{"kind"}),
	}
}

// TrackDropped exports the event bus drop count. Call it at most once.
func (m *Metrics) TrackDropped(dropped func() uint64) {
	m.EventsDropped = m.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Event deliveries skipped because a subscriber was full",
	}, func() float64 { return float64(dropped()) })
}

// Observe updates counters for one engine event.
func (m *Metrics) Observe(ev eventbus.Event) {
	switch d := ev.Data.(type) {
	case engine.Queued:
		m.Queued.WithLabelValues(string(d.Type)).Inc()
	case engine.Activated:
		m.Shown.WithLabelValues(string(d.Type), string(d.Level)).Inc()
	case engine.Rejected:
		m.Rejected.WithLabelValues(d.Reason).Inc()
	case engine.Superseded:
		m.Superseded.Inc()
	case engine.Cancelled:
		m.Cancelled.Inc()
	case engine.ActionInvoked:
		m.Actions.WithLabelValues(d.ActionID).Inc()
	case engine.Released:
		m.Released.WithLabelValues(string(d.Cause)).Inc()
		m.Lifetime.WithLabelValues(string(d.Level)).Observe(d.ActiveFor.Seconds())
	}
}

func (m *Metrics) SetStats(s engine.Stats) {
	m.Active.Set(float64(s.Active))
	m.QueueDepth.Set(float64(s.Queued))
	m.MaxConcurrent.Set(float64(s.MaxConcurrent))
}

// EffectSkipped matches effects.Options.OnSkipped.
func (m *Metrics) EffectSkipped(kind string) {
	m.EffectsSkipped.WithLabelValues(kind).Inc()
}

// Run consumes events until ctx is done or events closes, refreshing the
// gauges from stats after each one.
func (m *Metrics) Run(ctx context.Context, events <-chan eventbus.Event, stats func() engine.Stats) {
	if stats != nil {
		m.SetStats(stats())
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.Observe(ev)
			if stats != nil {
				m.SetStats(stats())
			}
		}
	}
}

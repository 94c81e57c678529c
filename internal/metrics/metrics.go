// Package metrics exposes Prometheus collectors for trigger scheduling.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgard/shamebot/internal/database"
)

const namespace = "shamebot"

// Metrics records scheduler activity. It satisfies trigger.Recorder.
type Metrics struct {
	registered   *prometheus.CounterVec
	removed      *prometheus.CounterVec
	fired        *prometheus.CounterVec
	regFailures  *prometheus.CounterVec
	activeGauge  prometheus.Gauge
	reconcileDur prometheus.Histogram
	reconcileErr prometheus.Counter
}

// MustNew constructs Metrics registered with reg. Registration errors panic,
// mirroring promauto.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triggers",
			Name:      "registered_total",
			Help:      "Triggers registered with the dispatch loop.",
		}, []string{"type"}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triggers",
			Name:      "removed_total",
			Help:      "Live triggers cancelled.",
		}, []string{"type"}),
		fired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triggers",
			Name:      "fired_total",
			Help:      "Trigger firings by notifier outcome.",
		}, []string{"type", "status"}),
		regFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "triggers",
			Name:      "registration_failures_total",
			Help:      "Triggers the dispatch loop refused to register.",
		}, []string{"type"}),
		activeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "triggers",
			Name:      "active",
			Help:      "Live triggers held by this process.",
		}),
		reconcileDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "duration_seconds",
			Help:      "Duration of startup reconciliation passes.",
			Buckets:   prometheus.DefBuckets,
		}),
		reconcileErr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconciler",
			Name:      "failures_total",
			Help:      "Reconciliation passes that could not list persisted triggers.",
		}),
	}

	m.registered = register(reg, m.registered)
	m.removed = register(reg, m.removed)
	m.fired = register(reg, m.fired)
	m.regFailures = register(reg, m.regFailures)
	m.activeGauge = register(reg, m.activeGauge)
	m.reconcileDur = register(reg, m.reconcileDur)
	m.reconcileErr = register(reg, m.reconcileErr)

	return m
}

// register adds c to reg, reusing an identical collector registered earlier.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) TriggerRegistered(t database.TriggerType) {
	m.registered.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) TriggerRemoved(t database.TriggerType) {
	m.removed.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) TriggerFired(t database.TriggerType, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.fired.WithLabelValues(string(t), status).Inc()
}

func (m *Metrics) RegistrationFailed(t database.TriggerType) {
	m.regFailures.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) ActiveTriggers(n int) {
	m.activeGauge.Set(float64(n))
}

// ObserveReconcile records the duration of one reconciliation pass in seconds.
func (m *Metrics) ObserveReconcile(seconds float64) {
	m.reconcileDur.Observe(seconds)
}

// ReconcileFailed counts a reconciliation pass that aborted.
func (m *Metrics) ReconcileFailed() {
	m.reconcileErr.Inc()
}

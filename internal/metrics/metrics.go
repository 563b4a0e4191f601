// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "locker"

// Metrics groups every collector the daemon updates.
type Metrics struct {
	ReaderPolls             prometheus.Counter
	ReaderReads             prometheus.Counter
	ReaderErrors            prometheus.Counter
	ReaderConsecutiveErrors prometheus.Gauge
	ReaderReinits           *prometheus.CounterVec
	Assignments             *prometheus.CounterVec
	Pickups                 *prometheus.CounterVec
	PersistFailures         prometheus.Counter
	RemoteSync              *prometheus.CounterVec
	AvailableLockers        prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which is what most tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReaderPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reader", Name: "polls_total",
			Help: "Card reader poll attempts.",
		}),
		ReaderReads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reader", Name: "reads_total",
			Help: "Polls that returned a card.",
		}),
		ReaderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reader", Name: "errors_total",
			Help: "Card reader faults.",
		}),
		ReaderConsecutiveErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "reader", Name: "consecutive_errors",
			Help: "Current run of consecutive card reader faults.",
		}),
		ReaderReinits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "reader", Name: "reinit_total",
			Help: "Card reader reinitialisation attempts by result.",
		}, []string{"result"}),
		Assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "assignments_total",
			Help: "Drop-off attempts by outcome.",
		}, []string{"outcome"}),
		Pickups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pickups_total",
			Help: "Pickup attempts by resolution path.",
		}, []string{"path"}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "persist_failures_total",
			Help: "Failed writes of the locker state.",
		}),
		RemoteSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "remote", Name: "posts_total",
			Help: "Telemetry posts by result.",
		}, []string{"result"}),
		AvailableLockers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "available_lockers",
			Help: "Lockers currently free.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.ReaderPolls, m.ReaderReads, m.ReaderErrors, m.ReaderConsecutiveErrors,
			m.ReaderReinits, m.Assignments, m.Pickups, m.PersistFailures,
			m.RemoteSync, m.AvailableLockers,
		)
	}
	return m
}

// Package metrics exposes Prometheus counters for registration
// lifecycle events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registration lifecycle.
type Metrics struct {
	Submitted *prometheus.CounterVec
	Decisions *prometheus.CounterVec
	Deleted   prometheus.Counter
}

// New creates and registers all registration metrics.
func New() *Metrics {
	return &Metrics{
		Submitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_registry_registrations_submitted_total",
			Help: "Total number of registration submissions by outcome",
		}, []string{"outcome"}),
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "mcp_registry_registration_decisions_total",
			Help: "Total number of admin decisions by resulting status",
		}, []string{"status"}),
		Deleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mcp_registry_registrations_deleted_total",
			Help: "Total number of registrations deleted",
		}),
	}
}

// IncrementSubmitted records one submission attempt outcome
// ("created", "conflict" or "error").
func (m *Metrics) IncrementSubmitted(outcome string) {
	m.Submitted.WithLabelValues(outcome).Inc()
}

// IncrementDecision records one successful decision by status.
func (m *Metrics) IncrementDecision(status string) {
	m.Decisions.WithLabelValues(status).Inc()
}

// IncrementDeleted records one successful deletion.
func (m *Metrics) IncrementDeleted() {
	m.Deleted.Inc()
}

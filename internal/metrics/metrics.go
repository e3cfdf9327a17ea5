// ABOUTME: Prometheus metrics for the intake gateway.
// ABOUTME: Counters for events, jobs, dedupe hits, and session read fallbacks.

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's instruments on a private registry so tests can
// create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	// EventsTotal counts processed inbound events by kind
	// (command name or "text").
	EventsTotal *prometheus.CounterVec

	// JobsSavedTotal counts persisted job records by status.
	JobsSavedTotal *prometheus.CounterVec

	// DedupeHitsTotal counts webhook deliveries dropped as duplicates.
	DedupeHitsTotal prometheus.Counter

	// SessionFallbacksTotal counts session reads that failed and were
	// substituted with the safe default.
	SessionFallbacksTotal prometheus.Counter

	// TurnDuration observes end-to-end handling time per delivery.
	TurnDuration prometheus.Histogram
}

// New creates and registers the gateway instruments.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_events_total",
				Help: "Total inbound events processed, by kind",
			},
			[]string{"kind"},
		),
		JobsSavedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "intake_jobs_saved_total",
				Help: "Total job records persisted, by status",
			},
			[]string{"status"},
		),
		DedupeHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "intake_dedupe_hits_total",
				Help: "Webhook deliveries dropped as duplicates",
			},
		),
		SessionFallbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "intake_session_read_fallbacks_total",
				Help: "Session reads that fell back to the safe default",
			},
		),
		TurnDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "intake_turn_duration_seconds",
				Help:    "End-to-end handling time per webhook delivery",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	registry.MustRegister(
		m.EventsTotal,
		m.JobsSavedTotal,
		m.DedupeHitsTotal,
		m.SessionFallbacksTotal,
		m.TurnDuration,
	)
	return m
}

// Handler returns the scrape endpoint handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics holds the Prometheus instrumentation for the entitlement core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nutrition_bot"

// Metrics groups the collectors updated by the core services. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	limitDecisions   *prometheus.CounterVec
	trialActivations *prometheus.CounterVec
	ledgerWrites     *prometheus.CounterVec
	streakUpdates    *prometheus.CounterVec
	analyzerCalls    *prometheus.CounterVec
	analyzerLatency  prometheus.Histogram
	analyticsDropped prometheus.Counter
	duplicateUpdates prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		limitDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "limits",
				Name:      "decisions_total",
				Help:      "Limit evaluations by outcome",
			},
			[]string{"outcome"},
		),
		trialActivations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "trial",
				Name:      "activations_total",
				Help:      "Promo code activation attempts by result",
			},
			[]string{"result", "trigger"},
		),
		ledgerWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "writes_total",
				Help:      "Analysis events appended to the usage ledger",
			},
			[]string{"kind", "result"},
		),
		streakUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "streak",
				Name:      "updates_total",
				Help:      "Streak recomputations by outcome",
			},
			[]string{"outcome"},
		),
		analyzerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "analyzer",
				Name:      "calls_total",
				Help:      "Food analyzer calls by result",
			},
			[]string{"result"},
		),
		analyzerLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "analyzer",
				Name:      "latency_seconds",
				Help:      "Food analyzer call latency",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160, 240},
			},
		),
		analyticsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "analytics",
				Name:      "dropped_total",
				Help:      "Analytics events dropped because the buffer was full or the sink failed",
			},
		),
		duplicateUpdates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "duplicate_updates_total",
				Help:      "Webhook deliveries dropped as duplicates",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.limitDecisions,
			m.trialActivations,
			m.ledgerWrites,
			m.streakUpdates,
			m.analyzerCalls,
			m.analyzerLatency,
			m.analyticsDropped,
			m.duplicateUpdates,
		)
	}

	return m
}

// LimitDecision records a limit evaluation outcome: premium, allowed, exhausted, error.
func (m *Metrics) LimitDecision(outcome string) {
	if m == nil {
		return
	}
	m.limitDecisions.WithLabelValues(outcome).Inc()
}

// TrialActivation records an activation attempt. trigger is "explicit" or "auto".
func (m *Metrics) TrialActivation(result, trigger string) {
	if m == nil {
		return
	}
	m.trialActivations.WithLabelValues(result, trigger).Inc()
}

// LedgerWrite records a ledger append.
func (m *Metrics) LedgerWrite(hasImage bool, ok bool) {
	if m == nil {
		return
	}
	kind := "text"
	if hasImage {
		kind = "image"
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.ledgerWrites.WithLabelValues(kind, result).Inc()
}

// StreakUpdate records a streak outcome: continued, reset, noop, error.
func (m *Metrics) StreakUpdate(outcome string) {
	if m == nil {
		return
	}
	m.streakUpdates.WithLabelValues(outcome).Inc()
}

// AnalyzerCall records one analyzer call and its latency.
func (m *Metrics) AnalyzerCall(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.analyzerCalls.WithLabelValues(result).Inc()
	m.analyzerLatency.Observe(elapsed.Seconds())
}

// AnalyticsDropped records a dropped analytics event.
func (m *Metrics) AnalyticsDropped() {
	if m == nil {
		return
	}
	m.analyticsDropped.Inc()
}

// DuplicateUpdate records a webhook delivery dropped as a duplicate.
func (m *Metrics) DuplicateUpdate() {
	if m == nil {
		return
	}
	m.duplicateUpdates.Inc()
}

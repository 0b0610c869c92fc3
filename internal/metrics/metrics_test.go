package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.LimitDecision("exhausted")
	m.LimitDecision("exhausted")
	m.TrialActivation("activated", "auto")
	m.LedgerWrite(true, true)
	m.StreakUpdate("continued")
	m.AnalyzerCall("ok", 1500*time.Millisecond)
	m.AnalyticsDropped()
	m.DuplicateUpdate()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.limitDecisions.WithLabelValues("exhausted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.trialActivations.WithLabelValues("activated", "auto")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ledgerWrites.WithLabelValues("image", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.streakUpdates.WithLabelValues("continued")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.analyticsDropped))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.duplicateUpdates))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LimitDecision("allowed")
		m.TrialActivation("rejected", "explicit")
		m.LedgerWrite(false, false)
		m.StreakUpdate("noop")
		m.AnalyzerCall("error", time.Second)
		m.AnalyticsDropped()
		m.DuplicateUpdate()
	})
}

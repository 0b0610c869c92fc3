package service

import (
	"context"
	"time"

	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/metrics"
	"github.com/nutrition-bot/internal/models"
)

// UsageLedger appends completed analyses to the event store
type UsageLedger struct {
	events  EventStore
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewUsageLedger creates a new usage ledger
func NewUsageLedger(events EventStore, m *metrics.Metrics, logger *logging.Logger) *UsageLedger {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &UsageLedger{events: events, metrics: m, logger: logger.WithComponent("ledger")}
}

// RecordAnalysis appends one row for a successful analysis. Failed analyses
// must never be recorded. Returns false if the write failed.
func (l *UsageLedger) RecordAnalysis(ctx context.Context, userID int64, hasImage bool, at time.Time) bool {
	event := &models.AnalysisEvent{
		UserID:     userID,
		OccurredAt: at.UTC(),
		HasImage:   hasImage,
	}
	if err := l.events.Insert(ctx, event); err != nil {
		l.metrics.LedgerWrite(hasImage, false)
		l.logger.WithUser(userID).WithError(err).Error("Failed to record analysis")
		return false
	}
	l.metrics.LedgerWrite(hasImage, true)
	return true
}

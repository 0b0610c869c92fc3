package models

import "time"

// AnalysisEvent is one ledger row per completed analysis. Rows are immutable.
type AnalysisEvent struct {
	ID         string    `json:"id" db:"id"`
	UserID     int64     `json:"userId" db:"user_id"`
	OccurredAt time.Time `json:"occurredAt" db:"occurred_at"`
	HasImage   bool      `json:"hasImage" db:"has_image"`
}

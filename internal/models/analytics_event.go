package models

import (
	"time"

	"github.com/nutrition-bot/internal/types"
)

// AnalyticsEvent is one fire-and-forget product event stored in ClickHouse
type AnalyticsEvent struct {
	EventID    string          `json:"eventId" ch:"event_id"`
	UserID     int64           `json:"userId" ch:"user_id"`
	Platform   types.Platform  `json:"platform" ch:"platform"`
	EventType  types.EventType `json:"eventType" ch:"event_type"`
	Properties map[string]any  `json:"properties,omitempty" ch:"-"`
	CreatedAt  time.Time       `json:"createdAt" ch:"created_at"`
}

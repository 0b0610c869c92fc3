// Package analytics records product events. Tracking never fails the caller:
// sinks swallow and log their own errors.
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/models"
	"github.com/nutrition-bot/internal/types"
)

// Tracker accepts analytics events
type Tracker interface {
	Track(ctx context.Context, event *models.AnalyticsEvent)
}

// NewEvent builds an event with a fresh id.
func NewEvent(userID int64, platform types.Platform, eventType types.EventType, at time.Time, props map[string]any) *models.AnalyticsEvent {
	return &models.AnalyticsEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		Platform:   platform,
		EventType:  eventType,
		Properties: props,
		CreatedAt:  at.UTC(),
	}
}

// LogTracker writes events to the structured log. Used when no analytics
// store is configured.
type LogTracker struct {
	logger *logging.Logger
}

// NewLogTracker creates a log-only tracker
func NewLogTracker(logger *logging.Logger) *LogTracker {
	return &LogTracker{logger: logger.WithComponent("analytics")}
}

// Track logs the event
func (t *LogTracker) Track(_ context.Context, event *models.AnalyticsEvent) {
	t.logger.WithFields(map[string]interface{}{
		"eventId":    event.EventID,
		"userId":     event.UserID,
		"platform":   event.Platform,
		"eventType":  event.EventType,
		"properties": event.Properties,
	}).Info("analytics event")
}

// Nop discards every event
type Nop struct{}

// Track does nothing
func (Nop) Track(context.Context, *models.AnalyticsEvent) {}

// Recorder keeps events in memory, for tests
type Recorder struct {
	mu     sync.Mutex
	events []*models.AnalyticsEvent
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Track stores the event
func (r *Recorder) Track(_ context.Context, event *models.AnalyticsEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []*models.AnalyticsEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.AnalyticsEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order
func (r *Recorder) Types() []types.EventType {
	events := r.Events()
	out := make([]types.EventType, len(events))
	for i, e := range events {
		out[i] = e.EventType
	}
	return out
}

type platformKey struct{}

// WithPlatform tags ctx with the platform events should be attributed to
func WithPlatform(ctx context.Context, p types.Platform) context.Context {
	return context.WithValue(ctx, platformKey{}, p)
}

// PlatformFrom returns the platform stored in ctx, Telegram by default
func PlatformFrom(ctx context.Context) types.Platform {
	if p, ok := ctx.Value(platformKey{}).(types.Platform); ok {
		return p
	}
	return types.PlatformTelegram
}

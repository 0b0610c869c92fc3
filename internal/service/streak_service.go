package service

import (
	"context"
	"errors"
	"time"

	"github.com/nutrition-bot/internal/analytics"
	"github.com/nutrition-bot/internal/clock"
	apperrors "github.com/nutrition-bot/internal/errors"
	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/metrics"
	"github.com/nutrition-bot/internal/types"
)

// StreakService maintains consecutive-day usage counters from the ledger
type StreakService struct {
	users   UserStore
	events  EventStore
	tracker analytics.Tracker
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewStreakService creates a new streak service
func NewStreakService(users UserStore, events EventStore, tracker analytics.Tracker, m *metrics.Metrics, logger *logging.Logger) *StreakService {
	if tracker == nil {
		tracker = analytics.Nop{}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &StreakService{
		users:   users,
		events:  events,
		tracker: tracker,
		metrics: m,
		logger:  logger.WithComponent("streak"),
	}
}

// NextStreak returns the counters after the first analysis of a day.
// A day with activity before it continues the streak, otherwise it restarts at 1.
func NextStreak(prev types.StreakStats, activeYesterday bool) types.StreakStats {
	current := 1
	if activeYesterday {
		current = prev.CurrentStreak + 1
	}
	longest := prev.LongestStreak
	if current > longest {
		longest = current
	}
	return types.StreakStats{CurrentStreak: current, LongestStreak: longest}
}

// UpdateStreaks runs after a recorded analysis. Only the first call per
// user per UTC day changes the counters. Returns the stored counters, or
// zero values when they could not be read.
func (s *StreakService) UpdateStreaks(ctx context.Context, userID int64, now time.Time) types.StreakStats {
	logger := s.logger.WithUser(userID)

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.fail(logger, "load user", err)
		return types.StreakStats{}
	}

	today := clock.DayWindow(now)
	if user.StreakUpdatedOn != nil && clock.SameUTCDay(*user.StreakUpdatedOn, now) {
		s.metrics.StreakUpdate("noop")
		return user.Streaks()
	}

	countToday, err := s.events.CountInRange(ctx, userID, today.From, today.To, nil)
	if err != nil {
		s.fail(logger, "count today", err)
		return user.Streaks()
	}
	if countToday == 0 {
		// Nothing recorded today; the ledger is the source of truth.
		s.metrics.StreakUpdate("noop")
		return user.Streaks()
	}

	yesterday := clock.PreviousDayWindow(now)
	countYesterday, err := s.events.CountInRange(ctx, userID, yesterday.From, yesterday.To, nil)
	if err != nil {
		s.fail(logger, "count yesterday", err)
		return user.Streaks()
	}

	next := NextStreak(user.Streaks(), countYesterday > 0)
	err = s.users.ApplyStreak(ctx, userID, next.CurrentStreak, next.LongestStreak, today.Date())
	if errors.Is(err, apperrors.ErrStaleDay) {
		// A concurrent invocation already counted today.
		s.metrics.StreakUpdate("noop")
		if fresh, err := s.users.GetByID(ctx, userID); err == nil {
			return fresh.Streaks()
		}
		return user.Streaks()
	}
	if err != nil {
		s.fail(logger, "apply", err)
		return user.Streaks()
	}

	outcome := "reset"
	if countYesterday > 0 {
		outcome = "continued"
	}
	s.metrics.StreakUpdate(outcome)
	logger.WithFields(map[string]interface{}{
		"current": next.CurrentStreak,
		"longest": next.LongestStreak,
		"outcome": outcome,
	}).Debug("Streak updated")
	s.tracker.Track(ctx, analytics.NewEvent(userID, analytics.PlatformFrom(ctx), types.EventStreakUpdated, now, map[string]any{
		"current": next.CurrentStreak,
		"longest": next.LongestStreak,
		"outcome": outcome,
	}))
	return next
}

func (s *StreakService) fail(logger *logging.Logger, step string, err error) {
	s.metrics.StreakUpdate("error")
	logger.WithError(err).WithField("step", step).Error("Streak update failed")
}

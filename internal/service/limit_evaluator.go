package service

import (
	"context"
	"time"

	"github.com/nutrition-bot/internal/clock"
	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/metrics"
	"github.com/nutrition-bot/internal/models"
	"github.com/nutrition-bot/internal/types"
)

// LimitEvaluator decides what a user may analyze right now
type LimitEvaluator struct {
	users      UserStore
	events     EventStore
	dailyLimit int
	metrics    *metrics.Metrics
	logger     *logging.Logger
}

// NewLimitEvaluator creates a new limit evaluator. A dailyLimit <= 0 falls
// back to types.DefaultDailyTextLimit.
func NewLimitEvaluator(users UserStore, events EventStore, dailyLimit int, m *metrics.Metrics, logger *logging.Logger) *LimitEvaluator {
	if dailyLimit <= 0 {
		dailyLimit = types.DefaultDailyTextLimit
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &LimitEvaluator{
		users:      users,
		events:     events,
		dailyLimit: dailyLimit,
		metrics:    m,
		logger:     logger.WithComponent("limits"),
	}
}

// DailyLimit returns the free text analyses allowed per UTC day
func (e *LimitEvaluator) DailyLimit() int {
	return e.dailyLimit
}

// EvaluateLimits returns the user's capabilities at now. Missing users and
// storage errors yield DeniedLimits.
func (e *LimitEvaluator) EvaluateLimits(ctx context.Context, userID int64, now time.Time) types.UserLimits {
	logger := e.logger.WithUser(userID)

	user, err := e.users.GetByID(ctx, userID)
	if err != nil {
		logger.WithError(err).Warn("Limit check failed to load user")
		e.metrics.LimitDecision("error")
		return types.DeniedLimits()
	}

	if user.IsPremiumAt(now) {
		e.metrics.LimitDecision("premium")
		return types.UnlimitedLimits()
	}

	window := clock.DayWindow(now)
	count, err := e.events.CountInRange(ctx, userID, window.From, window.To, nil)
	if err != nil {
		logger.WithError(err).Warn("Limit check failed to count today's analyses")
		e.metrics.LimitDecision("error")
		return types.DeniedLimits()
	}

	limits := ComputeLimits(user, count, e.dailyLimit, now)
	if limits.CanAnalyzeText {
		e.metrics.LimitDecision("allowed")
	} else {
		e.metrics.LimitDecision("exhausted")
	}
	return limits
}

// ComputeLimits derives limits from a user snapshot and the number of
// ledger rows in the current UTC day.
func ComputeLimits(user *models.User, countToday, dailyLimit int, now time.Time) types.UserLimits {
	if user == nil {
		return types.DeniedLimits()
	}
	if user.IsPremiumAt(now) {
		return types.UnlimitedLimits()
	}

	remaining := dailyLimit - countToday
	if remaining < 0 {
		remaining = 0
	}
	return types.UserLimits{
		CanAnalyzeText:             remaining > 0,
		CanAnalyzeImage:            false,
		TextAnalysesRemainingToday: remaining,
		IsPremium:                  false,
	}
}

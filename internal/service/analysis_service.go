package service

import (
	"context"
	"errors"
	"time"

	"github.com/nutrition-bot/internal/analytics"
	"github.com/nutrition-bot/internal/clock"
	"github.com/nutrition-bot/internal/guard"
	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/metrics"
	"github.com/nutrition-bot/internal/types"
)

// AnalysisStatus is the outcome of one analysis request
type AnalysisStatus string

const (
	StatusCompleted       AnalysisStatus = "completed"
	StatusLimitReached    AnalysisStatus = "limit_reached"
	StatusImageNotAllowed AnalysisStatus = "image_not_allowed"
	StatusFailed          AnalysisStatus = "failed"
	StatusBusy            AnalysisStatus = "busy"
)

// AnalysisOutcome is what the router needs to answer the user
type AnalysisOutcome struct {
	Status         AnalysisStatus        `json:"status"`
	Result         *types.AnalysisResult `json:"result,omitempty"`
	Limits         types.UserLimits      `json:"limits"`
	Streak         types.StreakStats     `json:"streak"`
	TrialActivated bool                  `json:"trialActivated"`
}

// AnalysisService gates, runs and records one food analysis
type AnalysisService struct {
	limits   *LimitEvaluator
	trial    *TrialService
	ledger   *UsageLedger
	streaks  *StreakService
	analyzer FoodAnalyzer
	locker   UserLocker
	clock    clock.Clock
	tracker  analytics.Tracker
	metrics  *metrics.Metrics
	logger   *logging.Logger
}

// AnalysisServiceConfig holds the analysis service dependencies. Locker is
// optional.
type AnalysisServiceConfig struct {
	Limits   *LimitEvaluator
	Trial    *TrialService
	Ledger   *UsageLedger
	Streaks  *StreakService
	Analyzer FoodAnalyzer
	Locker   UserLocker
	Clock    clock.Clock
	Tracker  analytics.Tracker
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(cfg AnalysisServiceConfig) *AnalysisService {
	c := cfg.Clock
	if c == nil {
		c = clock.System()
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = analytics.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &AnalysisService{
		limits:   cfg.Limits,
		trial:    cfg.Trial,
		ledger:   cfg.Ledger,
		streaks:  cfg.Streaks,
		analyzer: cfg.Analyzer,
		locker:   cfg.Locker,
		clock:    c,
		tracker:  tracker,
		metrics:  cfg.Metrics,
		logger:   logger.WithComponent("analysis"),
	}
}

// WithTrial returns a copy using trial for auto activation
func (s *AnalysisService) WithTrial(trial *TrialService) *AnalysisService {
	cp := *s
	cp.trial = trial
	return &cp
}

// CheckAccess evaluates limits and, when a non-premium user is blocked,
// gives auto activation one chance before evaluating again.
func (s *AnalysisService) CheckAccess(ctx context.Context, userID int64, hasImage bool) (types.UserLimits, bool) {
	limits := s.limits.EvaluateLimits(ctx, userID, s.clock.Now())
	if limits.Allows(hasImage) || limits.IsPremium || s.trial == nil {
		return limits, false
	}

	if !s.trial.TryAutoActivateIfAvailable(ctx, userID) {
		return limits, false
	}
	return s.limits.EvaluateLimits(ctx, userID, s.clock.Now()), true
}

// Analyze runs the full pipeline for one request. The ledger and streaks
// are only touched after the analyzer succeeded.
func (s *AnalysisService) Analyze(ctx context.Context, userID int64, req *types.AnalysisRequest) *AnalysisOutcome {
	logger := s.logger.WithUser(userID)
	hasImage := req.HasImage()
	platform := analytics.PlatformFrom(ctx)

	if s.locker != nil {
		lease, err := s.locker.Acquire(ctx, userID)
		switch {
		case errors.Is(err, guard.ErrLockHeld):
			return &AnalysisOutcome{Status: StatusBusy}
		case err != nil:
			// Redis is an optimization here; the store's conditional updates still hold.
			logger.WithError(err).Warn("Analysis lock unavailable, continuing without it")
		default:
			defer func() {
				if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
					logger.WithError(err).Warn("Failed to release analysis lock")
				}
			}()
		}
	}

	limits, activated := s.CheckAccess(ctx, userID, hasImage)
	outcome := &AnalysisOutcome{Limits: limits, TrialActivated: activated}

	if !limits.Allows(hasImage) {
		outcome.Status = StatusLimitReached
		if hasImage && !limits.IsPremium {
			outcome.Status = StatusImageNotAllowed
		}
		s.tracker.Track(ctx, analytics.NewEvent(userID, platform, types.EventLimitReached, s.clock.Now(), map[string]any{
			"hasImage":  hasImage,
			"remaining": limits.TextAnalysesRemainingToday,
		}))
		return outcome
	}

	s.tracker.Track(ctx, analytics.NewEvent(userID, platform, types.EventAnalysisRequested, s.clock.Now(), map[string]any{
		"hasImage": hasImage,
	}))

	start := time.Now()
	result, err := s.analyzer.Analyze(ctx, req)
	if err != nil {
		s.metrics.AnalyzerCall("error", time.Since(start))
		logger.WithError(err).Warn("Food analysis failed")
		s.tracker.Track(ctx, analytics.NewEvent(userID, platform, types.EventAnalysisFailed, s.clock.Now(), map[string]any{
			"hasImage": hasImage,
			"error":    err.Error(),
		}))
		outcome.Status = StatusFailed
		return outcome
	}
	s.metrics.AnalyzerCall("ok", time.Since(start))

	// A finished analysis is recorded even if the caller gave up meanwhile.
	recordCtx := context.WithoutCancel(ctx)
	at := s.clock.Now()
	if s.ledger.RecordAnalysis(recordCtx, userID, hasImage, at) {
		outcome.Streak = s.streaks.UpdateStreaks(recordCtx, userID, at)
		outcome.Limits = consumeOne(limits)
	}

	s.tracker.Track(ctx, analytics.NewEvent(userID, platform, types.EventAnalysisCompleted, at, map[string]any{
		"hasImage":       hasImage,
		"calories":       result.Calories,
		"nutritionScore": result.NutritionScore,
	}))

	outcome.Status = StatusCompleted
	outcome.Result = result
	return outcome
}

func consumeOne(l types.UserLimits) types.UserLimits {
	if l.IsPremium || l.TextAnalysesRemainingToday <= 0 {
		return l
	}
	l.TextAnalysesRemainingToday--
	l.CanAnalyzeText = l.TextAnalysesRemainingToday > 0
	return l
}

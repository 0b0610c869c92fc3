package service

import (
	"context"
	"errors"
	"strings"

	"github.com/nutrition-bot/internal/analytics"
	"github.com/nutrition-bot/internal/clock"
	apperrors "github.com/nutrition-bot/internal/errors"
	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/metrics"
	"github.com/nutrition-bot/internal/models"
	"github.com/nutrition-bot/internal/types"
)

// Activation triggers, used as a metrics label.
const (
	TriggerExplicit = "explicit"
	TriggerAuto     = "auto"
)

// TrialService grants free premium periods through promo codes
type TrialService struct {
	users        UserStore
	plans        PlanStore
	clock        clock.Clock
	defaultPromo string
	tracker      analytics.Tracker
	metrics      *metrics.Metrics
	logger       *logging.Logger
}

// TrialServiceConfig holds the trial service dependencies
type TrialServiceConfig struct {
	Users            UserStore
	Plans            PlanStore
	Clock            clock.Clock
	DefaultPromoCode string
	Tracker          analytics.Tracker
	Metrics          *metrics.Metrics
	Logger           *logging.Logger
}

// NewTrialService creates a new trial service
func NewTrialService(cfg TrialServiceConfig) *TrialService {
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
	return &TrialService{
		users:        cfg.Users,
		plans:        cfg.Plans,
		clock:        c,
		defaultPromo: NormalizePromoCode(cfg.DefaultPromoCode),
		tracker:      tracker,
		metrics:      cfg.Metrics,
		logger:       logger.WithComponent("trial"),
	}
}

// WithDefaultPromoCode returns a copy that auto-activates code instead of
// the configured default. Used for bots with their own default offer.
func (s *TrialService) WithDefaultPromoCode(code string) *TrialService {
	cp := *s
	cp.defaultPromo = NormalizePromoCode(code)
	return &cp
}

// DefaultPromoCode returns the code used when a user has none selected
func (s *TrialService) DefaultPromoCode() string {
	return s.defaultPromo
}

// NormalizePromoCode trims and upper-cases a promo code
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// SelectTrialPlan picks the active free plan with the longest duration.
// Equal durations resolve to the lowest plan id. Returns nil when no plan
// qualifies.
func SelectTrialPlan(plans []*models.SubscriptionPlan) *models.SubscriptionPlan {
	var best *models.SubscriptionPlan
	for _, p := range plans {
		if p == nil || !p.IsActive || !p.IsTrial() {
			continue
		}
		if best == nil ||
			p.DurationDays > best.DurationDays ||
			(p.DurationDays == best.DurationDays && p.ID < best.ID) {
			best = p
		}
	}
	return best
}

// ActivateByPromoCode consumes code for the user and extends their premium
// by the selected free plan. Every failure returns false.
func (s *TrialService) ActivateByPromoCode(ctx context.Context, userID int64, code string) bool {
	return s.activate(ctx, userID, NormalizePromoCode(code), TriggerExplicit)
}

// TryAutoActivateIfAvailable activates the user's selected promo code, or
// the default one, if it has not been consumed yet.
func (s *TrialService) TryAutoActivateIfAvailable(ctx context.Context, userID int64) bool {
	logger := s.logger.WithUser(userID)

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		logger.WithError(err).Warn("Auto activation failed to load user")
		s.metrics.TrialActivation(activationResult(err), TriggerAuto)
		return false
	}
	if user.IsPremiumAt(s.clock.Now()) {
		return false
	}

	code := NormalizePromoCode(user.ActivePromoCode)
	if code == "" {
		code = s.defaultPromo
	}
	if code == "" || user.HasUsedPromoCode(code) {
		logger.WithField("promoCode", code).Debug("No unused promo code for auto activation")
		return false
	}

	return s.activate(ctx, userID, code, TriggerAuto)
}

func (s *TrialService) activate(ctx context.Context, userID int64, code, trigger string) bool {
	logger := s.logger.WithUser(userID).WithFields(map[string]interface{}{
		"promoCode": code,
		"trigger":   trigger,
	})

	if code == "" {
		s.reject(ctx, logger, userID, code, trigger, apperrors.NewValidationError("promoCode", "must not be empty"))
		return false
	}

	plans, err := s.plans.ListByPromoCode(ctx, code)
	if err != nil {
		s.reject(ctx, logger, userID, code, trigger, err)
		return false
	}
	plan := SelectTrialPlan(plans)
	if plan == nil {
		s.reject(ctx, logger, userID, code, trigger, apperrors.NewNoTrialPlanError(code))
		return false
	}

	now := s.clock.Now()
	expiresAt, err := s.users.ConsumePromoCode(ctx, userID, code, plan.DurationDays, now)
	if err != nil {
		s.reject(ctx, logger, userID, code, trigger, err)
		return false
	}

	s.metrics.TrialActivation("activated", trigger)
	logger.WithFields(map[string]interface{}{
		"planId":    plan.ID,
		"days":      plan.DurationDays,
		"expiresAt": expiresAt,
	}).Info("Trial activated")
	s.tracker.Track(ctx, analytics.NewEvent(userID, analytics.PlatformFrom(ctx), types.EventTrialActivated, now, map[string]any{
		"promoCode": code,
		"planId":    plan.ID,
		"days":      plan.DurationDays,
		"trigger":   trigger,
	}))
	return true
}

func (s *TrialService) reject(ctx context.Context, logger *logging.Logger, userID int64, code, trigger string, err error) {
	result := activationResult(err)
	s.metrics.TrialActivation(result, trigger)

	entry := logger.WithError(err).WithField("result", result)
	if apperrors.CategoryOf(err) == apperrors.CategoryDatabase {
		entry.Error("Trial activation failed")
	} else {
		entry.Info("Trial activation rejected")
	}

	s.tracker.Track(ctx, analytics.NewEvent(userID, analytics.PlatformFrom(ctx), types.EventPromoRejected, s.clock.Now(), map[string]any{
		"promoCode": code,
		"reason":    result,
		"trigger":   trigger,
	}))
}

func activationResult(err error) string {
	switch {
	case apperrors.IsConflict(err):
		return "already_used"
	case apperrors.CategoryOf(err) == apperrors.CategoryValidation:
		return "invalid"
	case errors.Is(err, apperrors.ErrNoTrialPlan):
		return "no_plan"
	case apperrors.IsNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}

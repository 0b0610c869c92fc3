package service

import (
	"context"

	"github.com/nutrition-bot/internal/clock"
	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/models"
	"github.com/nutrition-bot/internal/types"
)

// UserService handles user bootstrap and profile-level settings
type UserService struct {
	users  UserStore
	clock  clock.Clock
	logger *logging.Logger
}

// NewUserService creates a new user service
func NewUserService(users UserStore, c clock.Clock, logger *logging.Logger) *UserService {
	if c == nil {
		c = clock.System()
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &UserService{users: users, clock: c, logger: logger.WithComponent("users")}
}

// EnsureUser creates the user on first contact and refreshes last activity
func (s *UserService) EnsureUser(ctx context.Context, in *models.UserProfileInput) (*models.User, error) {
	user, err := s.users.Upsert(ctx, in, s.clock.Now().UTC())
	if err != nil {
		s.logger.WithUser(in.ID).WithError(err).Error("Failed to upsert user")
		return nil, err
	}
	return user, nil
}

// GetUser returns the stored user
func (s *UserService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.users.GetByID(ctx, userID)
}

// SetActivePromoCode stores the code the user selected, normalized to upper
// case. Empty codes are rejected.
func (s *UserService) SetActivePromoCode(ctx context.Context, userID int64, code string) bool {
	code = NormalizePromoCode(code)
	if code == "" {
		return false
	}
	if err := s.users.SetActivePromoCode(ctx, userID, code); err != nil {
		s.logger.WithUser(userID).WithError(err).Warn("Failed to set active promo code")
		return false
	}
	return true
}

// SetPremiumFlag sets or clears the explicit premium override
func (s *UserService) SetPremiumFlag(ctx context.Context, userID int64, premium bool) bool {
	if err := s.users.SetPremiumFlag(ctx, userID, premium); err != nil {
		s.logger.WithUser(userID).WithError(err).Warn("Failed to set premium flag")
		return false
	}
	s.logger.WithUser(userID).WithField("premium", premium).Info("Premium flag changed")
	return true
}

// GetStreak returns the user's streak counters, zero on failure
func (s *UserService) GetStreak(ctx context.Context, userID int64) types.StreakStats {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		s.logger.WithUser(userID).WithError(err).Warn("Failed to load streak")
		return types.StreakStats{}
	}
	return user.Streaks()
}

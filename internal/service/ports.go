package service

import (
	"context"
	"time"

	"github.com/nutrition-bot/internal/models"
	"github.com/nutrition-bot/internal/types"
)

// Store interfaces for dependency injection. The Postgres repositories in
// internal/storage implement them; tests use in-memory fakes.

// UserStore is the entitlement store
type UserStore interface {
	GetByID(ctx context.Context, userID int64) (*models.User, error)
	Upsert(ctx context.Context, in *models.UserProfileInput, now time.Time) (*models.User, error)
	// ConsumePromoCode must check membership and write in one atomic step.
	ConsumePromoCode(ctx context.Context, userID int64, code string, durationDays int, now time.Time) (time.Time, error)
	// ApplyStreak must apply at most once per user per UTC day.
	ApplyStreak(ctx context.Context, userID int64, current, longest int, day time.Time) error
	SetActivePromoCode(ctx context.Context, userID int64, code string) error
	SetPremiumFlag(ctx context.Context, userID int64, premium bool) error
}

// PlanStore looks up subscription plans
type PlanStore interface {
	ListByPromoCode(ctx context.Context, code string) ([]*models.SubscriptionPlan, error)
	GetByID(ctx context.Context, planID int64) (*models.SubscriptionPlan, error)
	List(ctx context.Context) ([]*models.SubscriptionPlan, error)
}

// EventStore is the usage ledger
type EventStore interface {
	Insert(ctx context.Context, event *models.AnalysisEvent) error
	CountInRange(ctx context.Context, userID int64, from, to time.Time, withImage *bool) (int, error)
}

// PaymentStore records payments
type PaymentStore interface {
	RecordAndExtend(ctx context.Context, payment *models.Payment, durationDays int, now time.Time) (bool, error)
}

// FoodAnalyzer is the external AI analysis call
type FoodAnalyzer interface {
	Analyze(ctx context.Context, req *types.AnalysisRequest) (*types.AnalysisResult, error)
}

// Lease is a held per-user lock
type Lease interface {
	Release(ctx context.Context) error
}

// UserLocker serializes work per user across invocations
type UserLocker interface {
	Acquire(ctx context.Context, userID int64) (Lease, error)
}

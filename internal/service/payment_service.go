package service

import (
	"context"
	"strings"

	"github.com/nutrition-bot/internal/analytics"
	"github.com/nutrition-bot/internal/clock"
	"github.com/nutrition-bot/internal/logging"
	"github.com/nutrition-bot/internal/models"
	"github.com/nutrition-bot/internal/types"
)

// DefaultCurrency is Telegram Stars
const DefaultCurrency = "XTR"

// PaymentService turns settled payments into premium time
type PaymentService struct {
	plans    PlanStore
	payments PaymentStore
	clock    clock.Clock
	tracker  analytics.Tracker
	logger   *logging.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(plans PlanStore, payments PaymentStore, c clock.Clock, tracker analytics.Tracker, logger *logging.Logger) *PaymentService {
	if c == nil {
		c = clock.System()
	}
	if tracker == nil {
		tracker = analytics.Nop{}
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &PaymentService{
		plans:    plans,
		payments: payments,
		clock:    c,
		tracker:  tracker,
		logger:   logger.WithComponent("payments"),
	}
}

// RecordPaymentInput describes a settled charge
type RecordPaymentInput struct {
	UserID   int64  `json:"userId"`
	PlanID   int64  `json:"planId"`
	ChargeID string `json:"chargeId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency,omitempty"`
}

// RecordPayment stores the charge and extends premium by the plan duration.
// A charge id seen before is acknowledged without extending again.
func (s *PaymentService) RecordPayment(ctx context.Context, in *RecordPaymentInput) bool {
	logger := s.logger.WithUser(in.UserID).WithFields(map[string]interface{}{
		"chargeId": in.ChargeID,
		"planId":   in.PlanID,
	})

	chargeID := strings.TrimSpace(in.ChargeID)
	if chargeID == "" || in.Amount < 0 {
		logger.Warn("Rejected malformed payment")
		return false
	}

	plan, err := s.plans.GetByID(ctx, in.PlanID)
	if err != nil {
		logger.WithError(err).Warn("Payment references unknown plan")
		return false
	}

	currency := in.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	now := s.clock.Now()
	applied, err := s.payments.RecordAndExtend(ctx, &models.Payment{
		ChargeID: chargeID,
		UserID:   in.UserID,
		PlanID:   plan.ID,
		Amount:   in.Amount,
		Currency: currency,
	}, plan.DurationDays, now)
	if err != nil {
		logger.WithError(err).Error("Failed to record payment")
		return false
	}
	if !applied {
		logger.Info("Duplicate payment ignored")
		return true
	}

	logger.WithField("days", plan.DurationDays).Info("Payment recorded")
	s.tracker.Track(ctx, analytics.NewEvent(in.UserID, analytics.PlatformFrom(ctx), types.EventPaymentRecorded, now, map[string]any{
		"planId":   plan.ID,
		"amount":   in.Amount,
		"currency": currency,
	}))
	return true
}

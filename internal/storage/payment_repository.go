package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	apperrors "github.com/nutrition-bot/internal/errors"
	"github.com/nutrition-bot/internal/models"
)

// PaymentRepository records settled payments
type PaymentRepository struct {
	db *PostgresDB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *PostgresDB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// RecordAndExtend stores payment and extends the user's premium by
// durationDays in one transaction. A charge ID seen before rolls the
// extension back and reports applied=false.
func (r *PaymentRepository) RecordAndExtend(ctx context.Context, payment *models.Payment, durationDays int, now time.Time) (applied bool, err error) {
	err = r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var expiresAt time.Time
		err := tx.QueryRow(ctx, `
			UPDATE users
			SET premium_expires_at = `+extendExpiry("$2", "$3")+`,
				updated_at = $2
			WHERE user_id = $1
			RETURNING premium_expires_at`,
			payment.UserID, now, durationDays).Scan(&expiresAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewUserNotFoundError(payment.UserID)
			}
			return apperrors.NewDatabaseError("extend premium", err)
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO payments (charge_id, user_id, plan_id, amount, currency, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (charge_id) DO NOTHING`,
			payment.ChargeID, payment.UserID, payment.PlanID, payment.Amount, payment.Currency, now)
		if err != nil {
			return apperrors.NewDatabaseError("insert payment", err)
		}
		if tag.RowsAffected() == 0 {
			return errDuplicateCharge
		}
		applied = true
		return nil
	})
	if errors.Is(err, errDuplicateCharge) {
		return false, nil
	}
	return applied, err
}

var errDuplicateCharge = errors.New("duplicate charge")

// ListByUser returns the user's payments, newest first
func (r *PaymentRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Payment, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT charge_id, user_id, plan_id, amount, currency, created_at
		FROM payments WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list payments", err)
	}
	defer rows.Close()

	payments := make([]*models.Payment, 0)
	for rows.Next() {
		var p models.Payment
		if err := rows.Scan(&p.ChargeID, &p.UserID, &p.PlanID, &p.Amount, &p.Currency, &p.CreatedAt); err != nil {
			return nil, apperrors.NewDatabaseError("scan payment", err)
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}

package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	apperrors "github.com/nutrition-bot/internal/errors"
	"github.com/nutrition-bot/internal/models"
)

// PlanRepository handles subscription plan persistence
type PlanRepository struct {
	db *PostgresDB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *PostgresDB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, name, price, duration_days, COALESCE(promo_code, ''), is_active`

func scanPlans(rows pgx.Rows) ([]*models.SubscriptionPlan, error) {
	defer rows.Close()

	plans := make([]*models.SubscriptionPlan, 0)
	for rows.Next() {
		var plan models.SubscriptionPlan
		if err := rows.Scan(&plan.ID, &plan.Name, &plan.Price, &plan.DurationDays, &plan.PromoCode, &plan.IsActive); err != nil {
			return nil, err
		}
		plans = append(plans, &plan)
	}
	return plans, rows.Err()
}

// ListByPromoCode returns the active plans tied to code, ordered by id
func (r *PlanRepository) ListByPromoCode(ctx context.Context, code string) ([]*models.SubscriptionPlan, error) {
	query := `SELECT ` + planColumns + `
		FROM subscription_plans
		WHERE promo_code = $1 AND is_active
		ORDER BY id`

	rows, err := r.db.Pool().Query(ctx, query, code)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list plans by promo code", err)
	}
	plans, err := scanPlans(rows)
	if err != nil {
		return nil, apperrors.NewDatabaseError("scan plans", err)
	}
	return plans, nil
}

// List returns every plan, including inactive ones
func (r *PlanRepository) List(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT `+planColumns+` FROM subscription_plans ORDER BY id`)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list plans", err)
	}
	plans, err := scanPlans(rows)
	if err != nil {
		return nil, apperrors.NewDatabaseError("scan plans", err)
	}
	return plans, nil
}

// GetByID retrieves a plan by ID
func (r *PlanRepository) GetByID(ctx context.Context, planID int64) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := r.db.Pool().QueryRow(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, planID).
		Scan(&plan.ID, &plan.Name, &plan.Price, &plan.DurationDays, &plan.PromoCode, &plan.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewPlanNotFoundError(planID)
		}
		return nil, apperrors.NewDatabaseError("get plan", err)
	}
	return &plan, nil
}

// Create inserts a plan and fills in its generated ID
func (r *PlanRepository) Create(ctx context.Context, plan *models.SubscriptionPlan) error {
	query := `
		INSERT INTO subscription_plans (name, price, duration_days, promo_code, is_active)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING id`

	err := r.db.Pool().QueryRow(ctx, query, plan.Name, plan.Price, plan.DurationDays, plan.PromoCode, plan.IsActive).Scan(&plan.ID)
	if err != nil {
		return apperrors.NewDatabaseError("create plan", err)
	}
	return nil
}

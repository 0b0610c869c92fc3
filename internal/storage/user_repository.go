package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	apperrors "github.com/nutrition-bot/internal/errors"
	"github.com/nutrition-bot/internal/models"
)

// UserRepository is the Postgres entitlement store. Every mutation is a
// single conditional statement so concurrent webhook deliveries cannot
// interleave a read and a write.
type UserRepository struct {
	db *PostgresDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *PostgresDB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	user_id,
	COALESCE(username, ''),
	COALESCE(language_code, ''),
	is_premium,
	premium_expires_at,
	trial_used,
	used_promo_codes,
	COALESCE(active_promo_code, ''),
	current_streak,
	longest_streak,
	streak_updated_on,
	last_activity_at,
	created_at,
	updated_at`

// extendExpiry returns the SQL expression that adds days to a premium expiry
// still in the future, or starts a fresh period at now otherwise. now and
// days are placeholder names such as "$3".
func extendExpiry(now, days string) string {
	return fmt.Sprintf(`CASE
		WHEN premium_expires_at IS NOT NULL AND premium_expires_at > %[1]s::timestamptz
			THEN premium_expires_at + make_interval(days => %[2]s::int)
		ELSE %[1]s::timestamptz + make_interval(days => %[2]s::int)
	END`, now, days)
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.LanguageCode,
		&user.IsPremiumFlag,
		&user.PremiumExpiresAt,
		&user.TrialUsed,
		&user.UsedPromoCodes,
		&user.ActivePromoCode,
		&user.CurrentStreak,
		&user.LongestStreak,
		&user.StreakUpdatedOn,
		&user.LastActivityAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if user.UsedPromoCodes == nil {
		user.UsedPromoCodes = []string{}
	}
	return &user, nil
}

// Upsert creates the user on first contact or refreshes profile fields and
// last activity on later ones.
func (r *UserRepository) Upsert(ctx context.Context, in *models.UserProfileInput, now time.Time) (*models.User, error) {
	query := `
		INSERT INTO users (user_id, username, language_code, last_activity_at, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $4, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			username = COALESCE(EXCLUDED.username, users.username),
			language_code = COALESCE(EXCLUDED.language_code, users.language_code),
			last_activity_at = EXCLUDED.last_activity_at,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns

	user, err := scanUser(r.db.Pool().QueryRow(ctx, query, in.ID, in.Username, in.LanguageCode, now))
	if err != nil {
		return nil, apperrors.NewDatabaseError("upsert user", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := scanUser(r.db.Pool().QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUserNotFoundError(userID)
		}
		return nil, apperrors.NewDatabaseError("get user", err)
	}
	return user, nil
}

// Exists checks if a user exists by ID
func (r *UserRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.Pool().QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, userID).Scan(&exists)
	if err != nil {
		return false, apperrors.NewDatabaseError("check user existence", err)
	}
	return exists, nil
}

// ConsumePromoCode adds code to the user's used set and moves the premium
// expiry forward by durationDays, in one statement. The membership check is
// part of the WHERE clause so a second concurrent call matches no row.
func (r *UserRepository) ConsumePromoCode(ctx context.Context, userID int64, code string, durationDays int, now time.Time) (time.Time, error) {
	query := `
		UPDATE users
		SET premium_expires_at = ` + extendExpiry("$3", "$4") + `,
			used_promo_codes = array_append(used_promo_codes, $2::text),
			trial_used = TRUE,
			updated_at = $3
		WHERE user_id = $1 AND NOT ($2::text = ANY(used_promo_codes))
		RETURNING premium_expires_at`

	var expiresAt time.Time
	err := r.db.Pool().QueryRow(ctx, query, userID, code, now, durationDays).Scan(&expiresAt)
	if err == nil {
		return expiresAt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, apperrors.NewDatabaseError("consume promo code", err)
	}

	exists, existsErr := r.Exists(ctx, userID)
	if existsErr != nil {
		return time.Time{}, existsErr
	}
	if !exists {
		return time.Time{}, apperrors.NewUserNotFoundError(userID)
	}
	return time.Time{}, apperrors.NewPromoAlreadyUsedError(userID, code)
}

// ApplyStreak stores the streak counters for day. It only matches while the
// stored day marker is older than day, so at most one update lands per user
// per UTC day.
func (r *UserRepository) ApplyStreak(ctx context.Context, userID int64, current, longest int, day time.Time) error {
	query := `
		UPDATE users
		SET current_streak = $2,
			longest_streak = GREATEST(longest_streak, $3, $2),
			streak_updated_on = $4::date,
			updated_at = now()
		WHERE user_id = $1 AND (streak_updated_on IS NULL OR streak_updated_on < $4::date)`

	tag, err := r.db.Pool().Exec(ctx, query, userID, current, longest, day)
	if err != nil {
		return apperrors.NewDatabaseError("apply streak", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	exists, err := r.Exists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NewUserNotFoundError(userID)
	}
	return fmt.Errorf("apply streak for user %d: %w", userID, apperrors.ErrStaleDay)
}

// SetActivePromoCode stores the promo code the user arrived with
func (r *UserRepository) SetActivePromoCode(ctx context.Context, userID int64, code string) error {
	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE users SET active_promo_code = $2, updated_at = now() WHERE user_id = $1`,
		userID, code)
	if err != nil {
		return apperrors.NewDatabaseError("set active promo code", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewUserNotFoundError(userID)
	}
	return nil
}

// SetPremiumFlag sets or clears the explicit premium override
func (r *UserRepository) SetPremiumFlag(ctx context.Context, userID int64, premium bool) error {
	tag, err := r.db.Pool().Exec(ctx,
		`UPDATE users SET is_premium = $2, updated_at = now() WHERE user_id = $1`,
		userID, premium)
	if err != nil {
		return apperrors.NewDatabaseError("set premium flag", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewUserNotFoundError(userID)
	}
	return nil
}

// Count returns the total number of users
func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, apperrors.NewDatabaseError("count users", err)
	}
	return count, nil
}

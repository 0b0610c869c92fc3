package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/nutrition-bot/internal/errors"
	"github.com/nutrition-bot/internal/models"
)

// AnalysisEventRepository is the append-only usage ledger
type AnalysisEventRepository struct {
	db *PostgresDB
}

// NewAnalysisEventRepository creates a new analysis event repository
func NewAnalysisEventRepository(db *PostgresDB) *AnalysisEventRepository {
	return &AnalysisEventRepository{db: db}
}

// Insert appends one event. An empty ID is replaced with a fresh UUID.
func (r *AnalysisEventRepository) Insert(ctx context.Context, event *models.AnalysisEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	_, err := r.db.Pool().Exec(ctx,
		`INSERT INTO analysis_events (id, user_id, occurred_at, has_image) VALUES ($1, $2, $3, $4)`,
		event.ID, event.UserID, event.OccurredAt.UTC(), event.HasImage)
	if err != nil {
		return apperrors.NewDatabaseError("insert analysis event", err)
	}
	return nil
}

// CountInRange counts the user's events with from <= occurred_at < to.
// withImage nil counts every event; otherwise only events matching it.
func (r *AnalysisEventRepository) CountInRange(ctx context.Context, userID int64, from, to time.Time, withImage *bool) (int, error) {
	query := `
		SELECT COUNT(*) FROM analysis_events
		WHERE user_id = $1 AND occurred_at >= $2 AND occurred_at < $3
			AND ($4::boolean IS NULL OR has_image = $4)`

	var count int
	if err := r.db.Pool().QueryRow(ctx, query, userID, from.UTC(), to.UTC(), withImage).Scan(&count); err != nil {
		return 0, apperrors.NewDatabaseError("count analysis events", err)
	}
	return count, nil
}

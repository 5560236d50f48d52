package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"morning_brief/internal/domain"
)

type GenerationStateStore struct {
	db *sqlx.DB
}

func NewGenerationStateStore(db *sqlx.DB) *GenerationStateStore {
	return &GenerationStateStore{db: db}
}

func (s *GenerationStateStore) Get(ctx context.Context, userID string) (*domain.GenerationState, error) {
	var state domain.GenerationState
	query := `
		SELECT id, user_id, last_generated_at, last_item_count, total_created
		FROM generation_state
		WHERE user_id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		// Users that never ran get an empty state
		return &domain.GenerationState{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// Record upserts the user's row. total_created is incremented in place so
// concurrent runs never overwrite each other's counts.
func (s *GenerationStateStore) Record(ctx context.Context, userID string, generatedAt time.Time, itemCount, created int) (*domain.GenerationState, error) {
	var state domain.GenerationState
	query := `
		INSERT INTO generation_state (user_id, last_generated_at, last_item_count, total_created)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			last_generated_at = EXCLUDED.last_generated_at,
			last_item_count = EXCLUDED.last_item_count,
			total_created = generation_state.total_created + EXCLUDED.total_created
		RETURNING id, user_id, last_generated_at, last_item_count, total_created`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query,
		userID,
		generatedAt,
		itemCount,
		created,
	)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

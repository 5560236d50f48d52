package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"morning_brief/internal/domain"
)

const uniqueViolation = "23505"

const briefItemColumns = `id, user_id, type, source, urgency, text, metadata,
	external_id, external_url, created_at, processed_at`

type briefItemRow struct {
	ID          string          `db:"id"`
	UserID      string          `db:"user_id"`
	Type        domain.ItemType `db:"type"`
	Source      domain.Source   `db:"source"`
	Urgency     domain.Urgency  `db:"urgency"`
	Text        string          `db:"text"`
	Metadata    []byte          `db:"metadata"`
	ExternalID  *string         `db:"external_id"`
	ExternalURL *string         `db:"external_url"`
	CreatedAt   time.Time       `db:"created_at"`
	ProcessedAt *time.Time      `db:"processed_at"`
}

func (r *briefItemRow) toDomain() (domain.BriefItem, error) {
	item := domain.BriefItem{
		ID:          r.ID,
		UserID:      r.UserID,
		Type:        r.Type,
		Source:      r.Source,
		Urgency:     r.Urgency,
		Text:        r.Text,
		ExternalID:  r.ExternalID,
		ExternalURL: r.ExternalURL,
		CreatedAt:   r.CreatedAt,
		ProcessedAt: r.ProcessedAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &item.Metadata); err != nil {
			return item, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return item, nil
}

type BriefItemStore struct {
	db *sqlx.DB
}

func NewBriefItemStore(db *sqlx.DB) *BriefItemStore {
	return &BriefItemStore{db: db}
}

// Create inserts item, assigning its id and creation time. A natural key
// collision yields domain.ErrDuplicateItem.
func (s *BriefItemStore) Create(ctx context.Context, item *domain.BriefItem) error {
	meta := item.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	id := uuid.NewString()

	query := `
		INSERT INTO brief_items (
			id, user_id, type, source, urgency, text, metadata,
			external_id, external_url, processed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING created_at`

	var createdAt time.Time
	err = GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		id,
		item.UserID,
		item.Type,
		item.Source,
		item.Urgency,
		item.Text,
		metaJSON,
		item.ExternalID,
		item.ExternalURL,
		item.ProcessedAt,
	).Scan(&createdAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return domain.ErrDuplicateItem
	}
	if err != nil {
		return err
	}

	item.ID = id
	item.CreatedAt = createdAt
	return nil
}

func (s *BriefItemStore) FindByExternalID(ctx context.Context, userID string, source domain.Source, externalID string) (*domain.BriefItem, error) {
	query := `SELECT ` + briefItemColumns + `
		FROM brief_items
		WHERE user_id = $1 AND source = $2 AND external_id = $3`

	var row briefItemRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, userID, source, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}

	item, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListByUser returns the user's items, most urgent first and newest first
// within a tier. A non-positive limit returns every item.
func (s *BriefItemStore) ListByUser(ctx context.Context, userID string, limit int) ([]domain.BriefItem, error) {
	query := `SELECT ` + briefItemColumns + `
		FROM brief_items
		WHERE user_id = $1
		ORDER BY
			CASE urgency
				WHEN 'urgent' THEN 1
				WHEN 'attention' THEN 2
				WHEN 'followup' THEN 3
				WHEN 'org' THEN 4
				ELSE 5
			END,
			created_at DESC
		LIMIT $2`

	// LIMIT NULL is LIMIT ALL
	var capped *int
	if limit > 0 {
		capped = &limit
	}

	var rows []briefItemRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, userID, capped); err != nil {
		return nil, err
	}

	items := make([]domain.BriefItem, 0, len(rows))
	for i := range rows {
		item, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Delete removes one of the user's items. Items owned by someone else are
// reported as not found.
func (s *BriefItemStore) Delete(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrItemNotFound
	}

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`DELETE FROM brief_items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrItemNotFound
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"morning_brief/internal/domain"
)

const integrationColumns = `id, user_id, provider, access_token, refresh_token, token_expires_at,
	token_version, config, is_active, created_at, updated_at`

type integrationRow struct {
	domain.Integration
	ConfigJSON []byte `db:"config"`
}

func (r *integrationRow) toDomain() (*domain.Integration, error) {
	in := r.Integration
	if len(r.ConfigJSON) > 0 {
		if err := json.Unmarshal(r.ConfigJSON, &in.Config); err != nil {
			return nil, fmt.Errorf("decode integration config: %w", err)
		}
	}
	return &in, nil
}

type IntegrationStore struct {
	db *sqlx.DB
}

func NewIntegrationStore(db *sqlx.DB) *IntegrationStore {
	return &IntegrationStore{db: db}
}

func (s *IntegrationStore) Get(ctx context.Context, userID string, provider domain.Provider) (*domain.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE user_id = $1 AND provider = $2`

	var row integrationRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, query, userID, provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrIntegrationNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// ListByUser returns every integration of the user, active or not.
func (s *IntegrationStore) ListByUser(ctx context.Context, userID string) ([]domain.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE user_id = $1 ORDER BY provider`
	return s.list(ctx, query, userID)
}

func (s *IntegrationStore) ListActiveByUser(ctx context.Context, userID string) ([]domain.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE user_id = $1 AND is_active ORDER BY provider`
	return s.list(ctx, query, userID)
}

func (s *IntegrationStore) list(ctx context.Context, query string, args ...any) ([]domain.Integration, error) {
	var rows []integrationRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]domain.Integration, 0, len(rows))
	for i := range rows {
		in, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}
	return out, nil
}

// Upsert stores new credentials for (user, provider) and reactivates the
// integration. A nil refresh token keeps the stored one.
func (s *IntegrationStore) Upsert(ctx context.Context, in *domain.Integration) error {
	cfg := in.Config
	if cfg == nil {
		cfg = map[string]string{}
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode integration config: %w", err)
	}

	query := `
		INSERT INTO integrations (
			user_id, provider, access_token, refresh_token, token_expires_at, config, is_active
		) VALUES (
			$1, $2, $3, $4, $5, $6, TRUE
		)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, integrations.refresh_token),
			token_expires_at = EXCLUDED.token_expires_at,
			config = EXCLUDED.config,
			is_active = TRUE,
			token_version = integrations.token_version + 1,
			updated_at = NOW()
		RETURNING id, refresh_token, token_version, is_active, created_at, updated_at`

	return GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		in.UserID,
		in.Provider,
		in.AccessToken,
		in.RefreshToken,
		in.TokenExpiresAt,
		cfgJSON,
	).Scan(&in.ID, &in.RefreshToken, &in.TokenVersion, &in.IsActive, &in.CreatedAt, &in.UpdatedAt)
}

// UpdateTokens swaps in refreshed tokens only if the row is still at
// expectedVersion. It reports whether the swap happened.
func (s *IntegrationStore) UpdateTokens(ctx context.Context, id, expectedVersion int64, tokens domain.Tokens) (bool, error) {
	var refresh *string
	if tokens.RefreshToken != "" {
		refresh = &tokens.RefreshToken
	}

	query := `
		UPDATE integrations SET
			access_token = $1,
			refresh_token = COALESCE($2, refresh_token),
			token_expires_at = $3,
			token_version = token_version + 1,
			updated_at = NOW()
		WHERE id = $4 AND token_version = $5`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		tokens.AccessToken, refresh, tokens.ExpiresAt, id, expectedVersion,
	)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Deactivate marks the integration inactive. Tokens are retained.
func (s *IntegrationStore) Deactivate(ctx context.Context, userID string, provider domain.Provider) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE integrations SET is_active = FALSE, updated_at = NOW() WHERE user_id = $1 AND provider = $2`,
		userID, provider,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrIntegrationNotFound
	}
	return nil
}

func (s *IntegrationStore) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &ids,
		`SELECT DISTINCT user_id FROM integrations WHERE is_active ORDER BY user_id`)
	return ids, err
}

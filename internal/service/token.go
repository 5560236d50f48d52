package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"morning_brief/internal/domain"
	"morning_brief/internal/source"
)

const DefaultRefreshWindow = 5 * time.Minute

// TokenManager hands out access tokens and refreshes them shortly before
// they expire. Refreshes for one (user, provider) are collapsed in-process
// with singleflight and across processes by the token_version check in
// IntegrationStore.UpdateTokens.
type TokenManager struct {
	integrations IntegrationStore
	registry     *source.Registry
	logger       *slog.Logger
	window       time.Duration

	group singleflight.Group
	now   func() time.Time
}

func NewTokenManager(integrations IntegrationStore, registry *source.Registry, logger *slog.Logger, window time.Duration) *TokenManager {
	if window <= 0 {
		window = DefaultRefreshWindow
	}
	return &TokenManager{
		integrations: integrations,
		registry:     registry,
		logger:       logger,
		window:       window,
		now:          time.Now,
	}
}

// GetValidToken returns the access token for an active integration. A failed
// refresh is logged and the stored token is returned as is.
func (m *TokenManager) GetValidToken(ctx context.Context, userID string, provider domain.Provider) (string, error) {
	in, err := m.integrations.Get(ctx, userID, provider)
	if err != nil {
		return "", err
	}
	if !in.IsActive {
		return "", domain.ErrIntegrationNotFound
	}

	if !in.NeedsRefresh(m.now(), m.window) {
		return in.AccessToken, nil
	}

	logger := m.logger.With("user_id", userID, "provider", provider)

	if in.RefreshToken == nil || *in.RefreshToken == "" {
		logger.Warn("token expiring without refresh token", "expires_at", in.TokenExpiresAt)
		return in.AccessToken, nil
	}

	key := userID + "/" + string(provider)
	v, err, shared := m.group.Do(key, func() (any, error) {
		return m.refresh(ctx, userID, provider)
	})
	if err != nil {
		logger.Warn("using existing token",
			"error", &domain.TokenRefreshError{Provider: provider, UserID: userID, Err: err},
		)
		return in.AccessToken, nil
	}

	logger.Debug("token refreshed", "shared", shared)
	return v.(string), nil
}

func (m *TokenManager) refresh(ctx context.Context, userID string, provider domain.Provider) (string, error) {
	// Re-read under the flight: a caller that queued behind a finished
	// refresh sees the new expiry and returns without calling the provider.
	in, err := m.integrations.Get(ctx, userID, provider)
	if err != nil {
		return "", err
	}
	if !in.NeedsRefresh(m.now(), m.window) {
		return in.AccessToken, nil
	}
	if in.RefreshToken == nil || *in.RefreshToken == "" {
		return "", domain.ErrNoRefreshToken
	}

	adapter, ok := m.registry.Lookup(provider)
	if !ok {
		return "", domain.ErrUnknownProvider
	}

	tokens, err := adapter.Refresh(ctx, *in.RefreshToken)
	if err != nil {
		return "", err
	}
	if tokens == nil || tokens.AccessToken == "" {
		return "", errors.New("provider returned an empty access token")
	}

	swapped, err := m.integrations.UpdateTokens(ctx, in.ID, in.TokenVersion, *tokens)
	if err != nil {
		return "", fmt.Errorf("store refreshed tokens: %w", err)
	}
	if !swapped {
		// Another process rotated the tokens first; theirs are authoritative.
		current, err := m.integrations.Get(ctx, userID, provider)
		if err != nil {
			return "", err
		}
		m.logger.Info("token refreshed concurrently", "user_id", userID, "provider", provider)
		return current.AccessToken, nil
	}

	return tokens.AccessToken, nil
}

// SaveIntegration stores tokens from a completed OAuth flow, replacing any
// previous connection for (userID, provider).
func (m *TokenManager) SaveIntegration(ctx context.Context, userID string, provider domain.Provider, tokens domain.Tokens, config map[string]string) (*domain.Integration, error) {
	in := &domain.Integration{
		UserID:         userID,
		Provider:       provider,
		AccessToken:    tokens.AccessToken,
		TokenExpiresAt: tokens.ExpiresAt,
		Config:         config,
	}
	if tokens.RefreshToken != "" {
		rt := tokens.RefreshToken
		in.RefreshToken = &rt
	}

	if err := m.integrations.Upsert(ctx, in); err != nil {
		return nil, fmt.Errorf("save %s integration: %w", provider, err)
	}

	m.logger.Info("integration saved", "user_id", userID, "provider", provider, "token_version", in.TokenVersion)
	return in, nil
}

package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"morning_brief/internal/domain"
	"morning_brief/internal/source"
)

// ErrNoStateStore is returned by Begin and Complete when the service was
// built without a state store, e.g. for listing and disconnecting only.
var ErrNoStateStore = errors.New("oauth state store is not configured")

// OAuthService drives the connect/callback/disconnect flow for provider
// integrations.
type OAuthService struct {
	registry     *source.Registry
	states       StateStore
	tokens       *TokenManager
	integrations IntegrationStore
	logger       *slog.Logger
	now          func() time.Time
}

func NewOAuthService(registry *source.Registry, states StateStore, tokens *TokenManager, integrations IntegrationStore, logger *slog.Logger) *OAuthService {
	return &OAuthService{
		registry:     registry,
		states:       states,
		tokens:       tokens,
		integrations: integrations,
		logger:       logger,
		now:          time.Now,
	}
}

// Begin creates a single-use state for userID and returns the provider's
// authorization URL. config is stored on the integration once the flow
// completes.
func (s *OAuthService) Begin(ctx context.Context, userID string, provider domain.Provider, config map[string]string) (string, string, error) {
	if s.states == nil {
		return "", "", ErrNoStateStore
	}
	adapter, ok := s.registry.Lookup(provider)
	if !ok {
		return "", "", domain.ErrUnknownProvider
	}

	state, err := newState()
	if err != nil {
		return "", "", fmt.Errorf("generate state: %w", err)
	}

	authURL, err := adapter.AuthURL(state)
	if err != nil {
		return "", "", fmt.Errorf("%s auth url: %w", provider, err)
	}

	err = s.states.Save(ctx, state, domain.OAuthState{
		UserID:    userID,
		Provider:  provider,
		Config:    config,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return "", "", fmt.Errorf("save oauth state: %w", err)
	}

	s.logger.Info("oauth flow started", "user_id", userID, "provider", provider)
	return authURL, state, nil
}

// Complete handles the provider callback. Invalid input yields *domain.AuthError.
func (s *OAuthService) Complete(ctx context.Context, provider domain.Provider, code, state string) (*domain.Integration, error) {
	adapter, ok := s.registry.Lookup(provider)
	if !ok {
		return nil, &domain.AuthError{Provider: provider, Reason: "unknown provider", Err: domain.ErrUnknownProvider}
	}
	if state == "" {
		return nil, &domain.AuthError{Provider: provider, Reason: "missing state"}
	}
	if s.states == nil {
		return nil, ErrNoStateStore
	}

	st, err := s.states.Consume(ctx, state)
	if errors.Is(err, domain.ErrStateNotFound) {
		return nil, &domain.AuthError{Provider: provider, Reason: "unknown or expired state", Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("load oauth state: %w", err)
	}
	if st.Provider != provider {
		return nil, &domain.AuthError{Provider: provider, Reason: fmt.Sprintf("state was issued for %s", st.Provider)}
	}
	if code == "" {
		return nil, &domain.AuthError{Provider: provider, Reason: "missing code"}
	}

	tokens, err := adapter.ExchangeCode(ctx, code)
	if err == nil && tokens == nil {
		err = errors.New("empty token response")
	}
	if err != nil {
		s.logger.Warn("code exchange failed", "user_id", st.UserID, "provider", provider, "error", err)
		return nil, &domain.AuthError{Provider: provider, Reason: "code exchange failed", Err: err}
	}

	return s.tokens.SaveIntegration(ctx, st.UserID, provider, *tokens, st.Config)
}

// Disconnect deactivates the integration; stored tokens are kept.
func (s *OAuthService) Disconnect(ctx context.Context, userID string, provider domain.Provider) error {
	if err := s.integrations.Deactivate(ctx, userID, provider); err != nil {
		return fmt.Errorf("disconnect %s: %w", provider, err)
	}
	s.logger.Info("integration disconnected", "user_id", userID, "provider", provider)
	return nil
}

func (s *OAuthService) List(ctx context.Context, userID string) ([]domain.Integration, error) {
	return s.integrations.ListByUser(ctx, userID)
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"morning_brief/internal/domain"
)

// memoryItemStore enforces the natural key the way the brief_items unique
// index does.
type memoryItemStore struct {
	mu    sync.Mutex
	seq   int
	items []domain.BriefItem
}

func (m *memoryItemStore) key(userID string, src domain.Source, externalID string) string {
	return userID + "|" + string(src) + "|" + externalID
}

func (m *memoryItemStore) FindByExternalID(_ context.Context, userID string, src domain.Source, externalID string) (*domain.BriefItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.HasExternalID() && m.key(it.UserID, it.Source, *it.ExternalID) == m.key(userID, src, externalID) {
			found := it
			return &found, nil
		}
	}
	return nil, domain.ErrItemNotFound
}

func (m *memoryItemStore) Create(_ context.Context, item *domain.BriefItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.HasExternalID() {
		for _, it := range m.items {
			if it.HasExternalID() && m.key(it.UserID, it.Source, *it.ExternalID) == m.key(item.UserID, item.Source, *item.ExternalID) {
				return domain.ErrDuplicateItem
			}
		}
	}
	m.seq++
	item.ID = fmt.Sprintf("item-%d", m.seq)
	item.CreatedAt = time.Now()
	m.items = append(m.items, *item)
	return nil
}

func (m *memoryItemStore) ListByUser(_ context.Context, userID string, limit int) ([]domain.BriefItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BriefItem
	for _, it := range m.items {
		if it.UserID == userID && (limit <= 0 || len(out) < limit) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memoryItemStore) Delete(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, it := range m.items {
		if it.UserID == userID && it.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return domain.ErrItemNotFound
}

func (m *memoryItemStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// memoryIntegrationStore keeps one integration and implements the
// token_version compare-and-swap.
type memoryIntegrationStore struct {
	mu sync.Mutex
	in domain.Integration
}

func (m *memoryIntegrationStore) Get(_ context.Context, userID string, provider domain.Provider) (*domain.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.in.UserID != userID || m.in.Provider != provider {
		return nil, domain.ErrIntegrationNotFound
	}
	cp := m.in
	return &cp, nil
}

func (m *memoryIntegrationStore) ListByUser(ctx context.Context, userID string) ([]domain.Integration, error) {
	return m.ListActiveByUser(ctx, userID)
}

func (m *memoryIntegrationStore) ListActiveByUser(_ context.Context, userID string) ([]domain.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.in.UserID != userID || !m.in.IsActive {
		return nil, nil
	}
	return []domain.Integration{m.in}, nil
}

func (m *memoryIntegrationStore) Upsert(_ context.Context, in *domain.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	in.ID = 1
	in.IsActive = true
	in.TokenVersion = m.in.TokenVersion + 1
	m.in = *in
	return nil
}

func (m *memoryIntegrationStore) UpdateTokens(_ context.Context, id, expectedVersion int64, tokens domain.Tokens) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.in.ID != id || m.in.TokenVersion != expectedVersion {
		return false, nil
	}
	m.in.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		rt := tokens.RefreshToken
		m.in.RefreshToken = &rt
	}
	m.in.TokenExpiresAt = tokens.ExpiresAt
	m.in.TokenVersion++
	return true, nil
}

func (m *memoryIntegrationStore) Deactivate(_ context.Context, userID string, provider domain.Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.in.UserID != userID || m.in.Provider != provider {
		return domain.ErrIntegrationNotFound
	}
	m.in.IsActive = false
	return nil
}

// slowRefresher counts refresh calls and holds each one long enough for
// concurrent callers to pile up behind it.
type slowRefresher struct {
	provider domain.Provider
	delay    time.Duration
	calls    atomic.Int32
}

func (a *slowRefresher) Provider() domain.Provider { return a.provider }

func (a *slowRefresher) FetchSignals(context.Context, domain.Credentials) ([]domain.RawSignal, error) {
	return nil, nil
}

func (a *slowRefresher) AuthURL(string) (string, error) { return "", domain.ErrAuthNotSupported }

func (a *slowRefresher) ExchangeCode(context.Context, string) (*domain.Tokens, error) {
	return nil, domain.ErrAuthNotSupported
}

func (a *slowRefresher) Refresh(_ context.Context, refreshToken string) (*domain.Tokens, error) {
	n := a.calls.Add(1)
	time.Sleep(a.delay)
	exp := time.Now().Add(time.Hour)
	return &domain.Tokens{
		AccessToken:  fmt.Sprintf("access-%d", n),
		RefreshToken: refreshToken + "-rotated",
		ExpiresAt:    &exp,
	}, nil
}

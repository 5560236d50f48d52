package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"morning_brief/internal/domain"
)

type BriefItemStore interface {
	FindByExternalID(ctx context.Context, userID string, source domain.Source, externalID string) (*domain.BriefItem, error)
	Create(ctx context.Context, item *domain.BriefItem) error
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.BriefItem, error)
	Delete(ctx context.Context, userID, id string) error
}

type IntegrationStore interface {
	Get(ctx context.Context, userID string, provider domain.Provider) (*domain.Integration, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Integration, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.Integration, error)
	Upsert(ctx context.Context, in *domain.Integration) error
	UpdateTokens(ctx context.Context, id, expectedVersion int64, tokens domain.Tokens) (bool, error)
	Deactivate(ctx context.Context, userID string, provider domain.Provider) error
}

type GenerationStateStore interface {
	// Record stamps a finished run and adds created to the running total
	// in one statement.
	Record(ctx context.Context, userID string, generatedAt time.Time, itemCount, created int) (*domain.GenerationState, error)
}

type StateStore interface {
	Save(ctx context.Context, state string, data domain.OAuthState) error
	Consume(ctx context.Context, state string) (*domain.OAuthState, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type TokenProvider interface {
	GetValidToken(ctx context.Context, userID string, provider domain.Provider) (string, error)
}

type Publisher interface {
	Publish(ctx context.Context, item *domain.BriefItem) error
	Close() error
}

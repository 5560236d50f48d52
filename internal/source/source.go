// Package source defines the provider adapter capability and the registry
// used to look adapters up by provider.
package source

//go:generate mockgen -destination=mocks/mocks.go -package=mocks . Adapter

import (
	"context"
	"sort"

	"morning_brief/internal/domain"
)

// Adapter is implemented once per provider.
type Adapter interface {
	Provider() domain.Provider
	FetchSignals(ctx context.Context, creds domain.Credentials) ([]domain.RawSignal, error)

	AuthURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code string) (*domain.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.Tokens, error)
}

// Registry maps providers to adapters. It is built once at startup and read
// concurrently afterwards.
type Registry struct {
	adapters map[domain.Provider]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// Lookup returns the adapter for provider.
func (r *Registry) Lookup(provider domain.Provider) (Adapter, bool) {
	a, ok := r.adapters[provider]
	return a, ok
}

// Providers lists registered providers in a stable order.
func (r *Registry) Providers() []domain.Provider {
	out := make([]domain.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Package redis keeps short-lived OAuth state in Redis so a callback can be
// handled by any instance.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"morning_brief/internal/domain"
)

const DefaultPrefix = "oauth_state:"

// StateStore holds pending OAuth states with a TTL. Each state can be
// consumed once.
type StateStore struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
}

// Connect parses redisURL and checks the server is reachable.
func Connect(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return client, nil
}

func NewStateStore(client *goredis.Client, prefix string, ttl time.Duration) *StateStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &StateStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *StateStore) key(state string) string {
	return s.prefix + state
}

// Save records state for ttl. An existing entry for the same state is not
// overwritten.
func (s *StateStore) Save(ctx context.Context, state string, data domain.OAuthState) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal oauth state: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(state), payload, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	if !ok {
		return fmt.Errorf("save oauth state: state already exists")
	}
	return nil
}

// Consume returns and deletes state atomically. Unknown or expired states
// yield domain.ErrStateNotFound.
func (s *StateStore) Consume(ctx context.Context, state string) (*domain.OAuthState, error) {
	payload, err := s.client.GetDel(ctx, s.key(state)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume oauth state: %w", err)
	}

	var data domain.OAuthState
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("unmarshal oauth state: %w", err)
	}
	return &data, nil
}

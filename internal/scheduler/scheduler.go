package scheduler

import (
	"context"
	"log/slog"
	"time"

	"morning_brief/internal/domain"
)

// Generator defines the interface for brief generation.
type Generator interface {
	Generate(ctx context.Context, userID string) *domain.Brief
}

// UserLister returns the users that have at least one active integration.
type UserLister interface {
	ListActiveUserIDs(ctx context.Context) ([]string, error)
}

type Scheduler struct {
	generator Generator
	users     UserLister
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

func NewScheduler(generator Generator, users UserLister, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		generator: generator,
		users:     users,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "generate_timeout", s.timeout)

	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	users, err := s.users.ListActiveUserIDs(ctx)
	if err != nil {
		s.logger.Error("list users failed", "error", err)
		return
	}

	created := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return
		}
		created += s.generate(ctx, userID)
	}

	s.logger.Info("scheduled run completed", "users", len(users), "created", created)
}

func (s *Scheduler) generate(ctx context.Context, userID string) int {
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	brief := s.generator.Generate(genCtx, userID)
	if brief == nil {
		return 0
	}
	return brief.Stats.Created
}

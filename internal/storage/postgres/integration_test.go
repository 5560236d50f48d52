//go:build integration

package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"morning_brief/internal/domain"
	"morning_brief/migrations"
	"morning_brief/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db

	from, to, err := Migrate(s.ctx, s.db, migrations.FS, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Require().NoError(err)
	s.Require().Equal(uint(0), from)
	s.Require().Equal(uint(3), to)
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM brief_items")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM integrations")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM generation_state")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestMigrate_Idempotent() {
	from, to, err := Migrate(s.ctx, s.db, migrations.FS, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.NoError(err)
	s.Equal(uint(3), from)
	s.Equal(uint(3), to)

	// The migrator must hand its connection back without closing the pool.
	s.NoError(s.db.PingContext(s.ctx))
}

func (s *PostgresIntegrationSuite) newItem(userID string, source domain.Source, externalID *string, u domain.Urgency) *domain.BriefItem {
	now := time.Now().UTC()
	return &domain.BriefItem{
		UserID:      userID,
		Type:        domain.ItemTypeItem,
		Source:      source,
		Urgency:     u,
		Text:        "item " + string(u),
		Metadata:    map[string]any{"channel": "C1", "message_count": 3},
		ExternalID:  externalID,
		ExternalURL: utils.Ptr("https://example.com/x"),
		ProcessedAt: &now,
	}
}

func (s *PostgresIntegrationSuite) TestBriefItemStore_CreateAndFind() {
	store := NewBriefItemStore(s.db)

	item := s.newItem("u1", domain.SourceSlack, utils.Ptr("C1-1.0"), domain.UrgencyAttention)
	s.Require().NoError(store.Create(s.ctx, item))
	s.NotEmpty(item.ID)
	s.False(item.CreatedAt.IsZero())

	found, err := store.FindByExternalID(s.ctx, "u1", domain.SourceSlack, "C1-1.0")
	s.Require().NoError(err)
	s.Equal(item.ID, found.ID)
	s.Equal("C1", found.Metadata["channel"])
	s.EqualValues(3, found.Metadata["message_count"])
	s.NotNil(found.ProcessedAt)
}

func (s *PostgresIntegrationSuite) TestBriefItemStore_DuplicateNaturalKey() {
	store := NewBriefItemStore(s.db)

	s.Require().NoError(store.Create(s.ctx, s.newItem("u1", domain.SourceGitHub, utils.Ptr("pr-1"), domain.UrgencyFYI)))

	err := store.Create(s.ctx, s.newItem("u1", domain.SourceGitHub, utils.Ptr("pr-1"), domain.UrgencyUrgent))
	s.ErrorIs(err, domain.ErrDuplicateItem)

	// Same external id from a different source or user is a different item.
	s.NoError(store.Create(s.ctx, s.newItem("u1", domain.SourceJira, utils.Ptr("pr-1"), domain.UrgencyFYI)))
	s.NoError(store.Create(s.ctx, s.newItem("u2", domain.SourceGitHub, utils.Ptr("pr-1"), domain.UrgencyFYI)))
}

func (s *PostgresIntegrationSuite) TestBriefItemStore_NullExternalIDNeverCollides() {
	store := NewBriefItemStore(s.db)

	s.NoError(store.Create(s.ctx, s.newItem("u1", domain.SourceGeneric, nil, domain.UrgencyFYI)))
	s.NoError(store.Create(s.ctx, s.newItem("u1", domain.SourceGeneric, nil, domain.UrgencyFYI)))

	items, err := store.ListByUser(s.ctx, "u1", 10)
	s.NoError(err)
	s.Len(items, 2)
}

func (s *PostgresIntegrationSuite) TestBriefItemStore_FindMissing() {
	_, err := NewBriefItemStore(s.db).FindByExternalID(s.ctx, "u1", domain.SourceSlack, "nope")
	s.ErrorIs(err, domain.ErrItemNotFound)
}

func (s *PostgresIntegrationSuite) TestBriefItemStore_ListOrdersByUrgency() {
	store := NewBriefItemStore(s.db)

	for i, u := range []domain.Urgency{domain.UrgencyFYI, domain.UrgencyUrgent, domain.UrgencyOrg, domain.UrgencyAttention, domain.UrgencyFollowUp} {
		s.Require().NoError(store.Create(s.ctx, s.newItem("u1", domain.SourceJira, utils.Ptr(string(rune('a'+i))), u)))
	}
	s.Require().NoError(store.Create(s.ctx, s.newItem("other", domain.SourceJira, utils.Ptr("z"), domain.UrgencyUrgent)))

	items, err := store.ListByUser(s.ctx, "u1", 10)
	s.Require().NoError(err)
	s.Require().Len(items, 5)

	got := make([]domain.Urgency, 0, len(items))
	for _, it := range items {
		got = append(got, it.Urgency)
	}
	s.Equal([]domain.Urgency{
		domain.UrgencyUrgent, domain.UrgencyAttention, domain.UrgencyFollowUp, domain.UrgencyOrg, domain.UrgencyFYI,
	}, got)

	limited, err := store.ListByUser(s.ctx, "u1", 2)
	s.NoError(err)
	s.Len(limited, 2)

	all, err := store.ListByUser(s.ctx, "u1", 0)
	s.NoError(err)
	s.Len(all, len(got))
}

func (s *PostgresIntegrationSuite) TestBriefItemStore_Delete() {
	store := NewBriefItemStore(s.db)
	item := s.newItem("u1", domain.SourceSlack, utils.Ptr("C1-2.0"), domain.UrgencyFYI)
	s.Require().NoError(store.Create(s.ctx, item))

	s.ErrorIs(store.Delete(s.ctx, "someone-else", item.ID), domain.ErrItemNotFound)
	s.NoError(store.Delete(s.ctx, "u1", item.ID))
	s.ErrorIs(store.Delete(s.ctx, "u1", item.ID), domain.ErrItemNotFound)
	s.ErrorIs(store.Delete(s.ctx, "u1", "not-a-uuid"), domain.ErrItemNotFound)
}

func (s *PostgresIntegrationSuite) TestIntegrationStore_UpsertAndGet() {
	store := NewIntegrationStore(s.db)
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)

	in := &domain.Integration{
		UserID:         "u1",
		Provider:       domain.ProviderJira,
		AccessToken:    "a1",
		RefreshToken:   utils.Ptr("r1"),
		TokenExpiresAt: &expires,
		Config:         map[string]string{"base_url": "https://acme.atlassian.net"},
	}
	s.Require().NoError(store.Upsert(s.ctx, in))
	s.Greater(in.ID, int64(0))
	s.Equal(int64(1), in.TokenVersion)

	got, err := store.Get(s.ctx, "u1", domain.ProviderJira)
	s.Require().NoError(err)
	s.Equal("a1", got.AccessToken)
	s.Equal("r1", *got.RefreshToken)
	s.True(got.IsActive)
	s.Equal("https://acme.atlassian.net", got.Config["base_url"])
	s.True(expires.Equal(*got.TokenExpiresAt))

	// Reconnecting without a refresh token keeps the old one and bumps the version.
	again := &domain.Integration{UserID: "u1", Provider: domain.ProviderJira, AccessToken: "a2"}
	s.Require().NoError(store.Upsert(s.ctx, again))
	s.Equal(in.ID, again.ID)
	s.Equal(int64(2), again.TokenVersion)
	s.Equal("r1", *again.RefreshToken)
}

func (s *PostgresIntegrationSuite) TestIntegrationStore_GetMissing() {
	_, err := NewIntegrationStore(s.db).Get(s.ctx, "nobody", domain.ProviderSlack)
	s.ErrorIs(err, domain.ErrIntegrationNotFound)
}

func (s *PostgresIntegrationSuite) TestIntegrationStore_UpdateTokensCompareAndSwap() {
	store := NewIntegrationStore(s.db)
	in := &domain.Integration{UserID: "u1", Provider: domain.ProviderSlack, AccessToken: "old", RefreshToken: utils.Ptr("r")}
	s.Require().NoError(store.Upsert(s.ctx, in))

	ok, err := store.UpdateTokens(s.ctx, in.ID, in.TokenVersion, domain.Tokens{AccessToken: "new"})
	s.NoError(err)
	s.True(ok)

	// A second writer holding the stale version loses.
	ok, err = store.UpdateTokens(s.ctx, in.ID, in.TokenVersion, domain.Tokens{AccessToken: "stale"})
	s.NoError(err)
	s.False(ok)

	got, err := store.Get(s.ctx, "u1", domain.ProviderSlack)
	s.Require().NoError(err)
	s.Equal("new", got.AccessToken)
	s.Equal("r", *got.RefreshToken)
	s.Equal(in.TokenVersion+1, got.TokenVersion)
}

func (s *PostgresIntegrationSuite) TestIntegrationStore_DeactivateAndListActive() {
	store := NewIntegrationStore(s.db)
	for _, p := range []domain.Provider{domain.ProviderSlack, domain.ProviderGitHub} {
		s.Require().NoError(store.Upsert(s.ctx, &domain.Integration{UserID: "u1", Provider: p, AccessToken: "t"}))
	}
	s.Require().NoError(store.Upsert(s.ctx, &domain.Integration{UserID: "u2", Provider: domain.ProviderSlack, AccessToken: "t"}))

	s.NoError(store.Deactivate(s.ctx, "u2", domain.ProviderSlack))
	s.ErrorIs(store.Deactivate(s.ctx, "u3", domain.ProviderSlack), domain.ErrIntegrationNotFound)

	active, err := store.ListActiveByUser(s.ctx, "u1")
	s.NoError(err)
	s.Len(active, 2)

	all, err := store.ListByUser(s.ctx, "u2")
	s.NoError(err)
	s.Require().Len(all, 1)
	s.False(all[0].IsActive)
	s.Equal("t", all[0].AccessToken)

	ids, err := store.ListActiveUserIDs(s.ctx)
	s.NoError(err)
	s.Equal([]string{"u1"}, ids)
}

func (s *PostgresIntegrationSuite) TestGenerationStateStore() {
	store := NewGenerationStateStore(s.db)

	state, err := store.Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.Nil(state.LastGeneratedAt)
	s.Zero(state.TotalCreated)

	now := time.Now().UTC().Truncate(time.Microsecond)
	recorded, err := store.Record(s.ctx, "u1", now, 4, 9)
	s.Require().NoError(err)
	s.Equal(int64(9), recorded.TotalCreated)

	later := now.Add(time.Minute)
	recorded, err = store.Record(s.ctx, "u1", later, 2, 1)
	s.Require().NoError(err)
	s.Equal(int64(10), recorded.TotalCreated)

	got, err := store.Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(2, got.LastItemCount)
	s.Equal(int64(10), got.TotalCreated)
	s.True(later.Equal(*got.LastGeneratedAt))
}

func (s *PostgresIntegrationSuite) TestGenerationStateStore_ConcurrentRecords() {
	store := NewGenerationStateStore(s.db)
	tm := NewTransactionManager(s.db)

	const runs = 20
	var wg sync.WaitGroup
	errs := make(chan error, runs)

	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(created int) {
			defer wg.Done()
			errs <- tm.WithTransaction(s.ctx, func(ctx context.Context) error {
				_, err := store.Record(ctx, "u1", time.Now().UTC(), created, created)
				return err
			})
		}(i + 1)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.Require().NoError(err)
	}

	got, err := store.Get(s.ctx, "u1")
	s.Require().NoError(err)
	s.Equal(int64(runs*(runs+1)/2), got.TotalCreated)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	store := NewBriefItemStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if err := store.Create(ctx, s.newItem("u1", domain.SourceSlack, utils.Ptr("tx"), domain.UrgencyFYI)); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.EqualError(err, "abort")

	_, err = store.FindByExternalID(s.ctx, "u1", domain.SourceSlack, "tx")
	s.ErrorIs(err, domain.ErrItemNotFound)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	store := NewBriefItemStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		return store.Create(ctx, s.newItem("u1", domain.SourceSlack, utils.Ptr("tx-ok"), domain.UrgencyFYI))
	})
	s.NoError(err)

	_, err = store.FindByExternalID(s.ctx, "u1", domain.SourceSlack, "tx-ok")
	s.NoError(err)
}

package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"morning_brief/internal/config"
	"morning_brief/internal/domain"
	"morning_brief/internal/publisher"
	"morning_brief/internal/service"
	"morning_brief/internal/source"
	"morning_brief/internal/source/calendar"
	"morning_brief/internal/source/fixture"
	"morning_brief/internal/source/github"
	"morning_brief/internal/source/httpx"
	"morning_brief/internal/source/jira"
	"morning_brief/internal/source/oauth"
	"morning_brief/internal/source/search"
	"morning_brief/internal/source/slack"
	"morning_brief/internal/storage/postgres"
	"morning_brief/internal/storage/redis"
)

// app holds the wired dependencies shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sqlx.DB

	integrations *postgres.IntegrationStore
	registry     *source.Registry
	tokens       *service.TokenManager

	closers []func() error
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := setupLogger(cfg.LogLevel)

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Debug("connected to database")

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	integrations := postgres.NewIntegrationStore(db)

	return &app{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		integrations: integrations,
		registry:     registry,
		tokens:       service.NewTokenManager(integrations, registry, logger, cfg.OAuth.RefreshWindow),
		closers:      []func() error{db.Close},
	}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// httpClient builds the retrying client used by the search backend.
func (a *app) httpClient(rps float64) *httpx.Client {
	return httpx.New(httpx.Config{
		Timeout:           a.cfg.HTTP.Timeout,
		MaxAttempts:       a.cfg.HTTP.Retry.MaxAttempts,
		InitialBackoff:    a.cfg.HTTP.Retry.InitialBackoff,
		MaxBackoff:        a.cfg.HTTP.Retry.MaxBackoff,
		RequestsPerSecond: rps,
	}, a.logger)
}

func oauthConfig(p config.ProviderConfig) oauth.Config {
	return oauth.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURI:  p.RedirectURI,
		AuthURL:      p.AuthURL,
		TokenURL:     p.TokenURL,
		Scopes:       p.Scopes,
	}
}

func buildRegistry(cfg *config.Config, logger *slog.Logger) (*source.Registry, error) {
	p := cfg.Providers

	gh, err := github.New(github.Config{
		BaseURL:           p.GitHub.BaseURL,
		Timeout:           cfg.HTTP.Timeout,
		RequestsPerSecond: p.GitHub.RequestsPerSecond,
		OAuth:             oauthConfig(p.GitHub),
	}, logger)
	if err != nil {
		return nil, err
	}

	return source.NewRegistry(
		slack.New(slack.Config{
			BaseURL:           p.Slack.BaseURL,
			Timeout:           cfg.HTTP.Timeout,
			RequestsPerSecond: p.Slack.RequestsPerSecond,
			OAuth:             oauthConfig(p.Slack),
		}, logger),
		gh,
		jira.New(jira.Config{
			BaseURL:           p.Jira.BaseURL,
			Timeout:           cfg.HTTP.Timeout,
			RequestsPerSecond: p.Jira.RequestsPerSecond,
			OAuth:             oauthConfig(p.Jira),
		}, logger),
		calendar.New(calendar.Config{
			BaseURL: p.Calendar.BaseURL,
			Timeout: cfg.HTTP.Timeout,
			OAuth:   oauthConfig(p.Calendar),
		}, logger),
	), nil
}

func (a *app) sources() (service.Sources, error) {
	sources := service.Sources{Registry: a.registry}

	if a.cfg.Brief.Mode == config.ModeFixtures || a.cfg.Brief.FallbackToFixtures {
		fixtures, err := fixture.Adapters(nil)
		if err != nil {
			return sources, err
		}
		sources.Fixtures = fixtures
	}

	if a.cfg.Brief.Mode == config.ModeUnifiedSearch {
		s := a.cfg.Providers.Search
		sources.Search = search.New(search.Config{
			APIURL:     s.APIURL,
			APIKey:     s.APIKey,
			OAuthToken: s.OAuthToken,
			Queries:    s.Queries,
			MaxResults: s.MaxResults,
		}, a.httpClient(s.RequestsPerSecond), a.logger)
	}

	return sources, nil
}

// briefService wires the aggregator. The publisher is only connected when
// withPublisher is set and RabbitMQ is enabled.
func (a *app) briefService(withPublisher bool) (*service.BriefService, error) {
	sources, err := a.sources()
	if err != nil {
		return nil, err
	}

	var pub service.Publisher
	if withPublisher && a.cfg.RabbitMQ.Enabled {
		r, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        a.cfg.RabbitMQ.URL,
			Exchange:   a.cfg.RabbitMQ.Exchange,
			RoutingKey: a.cfg.RabbitMQ.RoutingKey,
			QueueName:  a.cfg.RabbitMQ.QueueName,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		pub = r
	}

	return service.NewBriefService(
		postgres.NewBriefItemStore(a.db),
		a.integrations,
		a.tokens,
		sources,
		postgres.NewGenerationStateStore(a.db),
		postgres.NewTransactionManager(a.db),
		pub,
		a.logger,
		service.BriefOptionsFromConfig(a.cfg.Brief),
	), nil
}

// integrationService manages stored integrations only; it has no state
// store, so it cannot begin or complete a connect flow.
func (a *app) integrationService() *service.OAuthService {
	return service.NewOAuthService(a.registry, nil, a.tokens, a.integrations, a.logger)
}

func (a *app) oauthService(ctx context.Context) (*service.OAuthService, error) {
	client, err := redis.Connect(ctx, a.cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	states := redis.NewStateStore(client, a.cfg.Redis.KeyPrefix, a.cfg.OAuth.StateTTL)
	return service.NewOAuthService(a.registry, states, a.tokens, a.integrations, a.logger), nil
}

func parseProvider(s string) (domain.Provider, error) {
	p, err := domain.ParseProvider(s)
	if err != nil {
		return "", fmt.Errorf("%q: %w", s, err)
	}
	return p, nil
}

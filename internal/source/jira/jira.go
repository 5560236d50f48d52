// Package jira surfaces open issues assigned to the user.
package jira

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	jiraapi "github.com/andygrunwald/go-jira"
	"golang.org/x/time/rate"

	"morning_brief/internal/domain"
	"morning_brief/internal/source/oauth"
	"morning_brief/internal/urgency"
)

const (
	DefaultAuthURL  = "https://auth.atlassian.com/authorize"
	DefaultTokenURL = "https://auth.atlassian.com/oauth/token"

	// ConfigBaseURL is the integration config key holding the site URL.
	ConfigBaseURL = "base_url"

	assignedJQL = "assignee=currentUser() AND status != Done ORDER BY updated DESC"
	maxResults  = 50

	dueDateLayout = "2006-01-02"

	statusDone = "Done"
)

var DefaultScopes = []string{"read:jira-work", "write:jira-work"}

var ErrNoBaseURL = errors.New("jira base url is not configured")

type Config struct {
	// BaseURL is used when the integration does not carry its own.
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	OAuth             oauth.Config
}

type Adapter struct {
	defaultBaseURL string
	timeout        time.Duration
	limiter        *rate.Limiter
	endpoint       *oauth.Endpoint
	logger         *slog.Logger
	now            func() time.Time
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	if cfg.OAuth.AuthURL == "" {
		cfg.OAuth.AuthURL = DefaultAuthURL
	}
	if cfg.OAuth.TokenURL == "" {
		cfg.OAuth.TokenURL = DefaultTokenURL
	}
	if len(cfg.OAuth.Scopes) == 0 {
		cfg.OAuth.Scopes = DefaultScopes
	}
	if cfg.OAuth.ExtraAuthParams == nil {
		cfg.OAuth.ExtraAuthParams = map[string]string{}
	}
	cfg.OAuth.ExtraAuthParams["audience"] = "api.atlassian.com"

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Adapter{
		defaultBaseURL: cfg.BaseURL,
		timeout:        cfg.Timeout,
		limiter:        rate.NewLimiter(limit, 1),
		endpoint:       oauth.NewEndpoint(cfg.OAuth),
		logger:         logger.With("provider", domain.ProviderJira),
		now:            time.Now,
	}
}

func (a *Adapter) Provider() domain.Provider {
	return domain.ProviderJira
}

func (a *Adapter) AuthURL(state string) (string, error) {
	return a.endpoint.AuthURL(state)
}

func (a *Adapter) ExchangeCode(ctx context.Context, code string) (*domain.Tokens, error) {
	return a.endpoint.Exchange(ctx, code)
}

func (a *Adapter) Refresh(ctx context.Context, refreshToken string) (*domain.Tokens, error) {
	return a.endpoint.Refresh(ctx, refreshToken)
}

func (a *Adapter) client(ctx context.Context, token, baseURL string) (*jiraapi.Client, error) {
	hc := oauth.StaticClient(ctx, token)
	hc.Timeout = a.timeout

	c, err := jiraapi.NewClient(hc, baseURL)
	if err != nil {
		return nil, fmt.Errorf("jira client: %w", err)
	}
	return c, nil
}

func (a *Adapter) FetchSignals(ctx context.Context, creds domain.Credentials) ([]domain.RawSignal, error) {
	baseURL := strings.TrimRight(creds.Config[ConfigBaseURL], "/")
	if baseURL == "" {
		baseURL = strings.TrimRight(a.defaultBaseURL, "/")
	}
	if baseURL == "" {
		return nil, ErrNoBaseURL
	}

	c, err := a.client(ctx, creds.AccessToken, baseURL)
	if err != nil {
		return nil, err
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	issues, resp, err := c.Issue.SearchWithContext(ctx, assignedJQL, &jiraapi.SearchOptions{
		MaxResults: maxResults,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}

	now := a.now()
	signals := make([]domain.RawSignal, 0, len(issues))
	for _, raw := range issues {
		signals = append(signals, NormalizeIssue(fromAPI(raw, baseURL), now))
	}

	return signals, nil
}

// Issue is the subset of an issue the brief cares about.
type Issue struct {
	ID       string     `yaml:"id"`
	Key      string     `yaml:"key"`
	Summary  string     `yaml:"summary"`
	Status   string     `yaml:"status"`
	Priority string     `yaml:"priority"`
	Updated  time.Time  `yaml:"-"`
	DueDate  *time.Time `yaml:"-"`
	URL      string     `yaml:"url"`
}

func NormalizeIssue(issue Issue, now time.Time) domain.RawSignal {
	var dueDate any
	if issue.DueDate != nil {
		dueDate = issue.DueDate.Format(dueDateLayout)
	}

	return domain.RawSignal{
		Type:       domain.ItemTypeItem,
		Source:     domain.SourceJira,
		ExternalID: issue.ID,
		SourceURL:  issue.URL,
		Text:       fmt.Sprintf("%s: %s", issue.Key, issue.Summary),
		Timestamp:  issue.Updated,
		Metadata: map[string]any{
			"issue_key": issue.Key,
			"status":    issue.Status,
			"priority":  issue.Priority,
			"due_date":  dueDate,
		},
		Factors: domain.UrgencyFactors{
			DaysWaiting: urgency.DaysSince(issue.Updated, now),
			DueDate:     issue.DueDate,
			SprintRisk:  issue.Status != statusDone,
		},
	}
}

func fromAPI(i jiraapi.Issue, baseURL string) Issue {
	out := Issue{
		ID:  i.ID,
		Key: i.Key,
		URL: baseURL + "/browse/" + i.Key,
	}

	f := i.Fields
	if f == nil {
		return out
	}
	out.Summary = f.Summary
	out.Updated = time.Time(f.Updated)
	if f.Status != nil {
		out.Status = f.Status.Name
	}
	if f.Priority != nil {
		out.Priority = f.Priority.Name
	}
	if due := time.Time(f.Duedate); !due.IsZero() {
		due = time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
		out.DueDate = &due
	}
	return out
}

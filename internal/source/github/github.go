// Package github surfaces pull requests waiting on the user's review.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"
	"golang.org/x/time/rate"

	"morning_brief/internal/domain"
	"morning_brief/internal/source/oauth"
	"morning_brief/internal/urgency"
)

const (
	DefaultAuthURL  = "https://github.com/login/oauth/authorize"
	DefaultTokenURL = "https://github.com/login/oauth/access_token"

	searchPageSize = 50
)

var DefaultScopes = []string{"repo", "read:org", "read:user"}

type Config struct {
	// BaseURL overrides the REST API root, e.g. for GitHub Enterprise.
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	OAuth             oauth.Config
}

type Adapter struct {
	baseURL  *url.URL
	timeout  time.Duration
	limiter  *rate.Limiter
	endpoint *oauth.Endpoint
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config, logger *slog.Logger) (*Adapter, error) {
	if cfg.OAuth.AuthURL == "" {
		cfg.OAuth.AuthURL = DefaultAuthURL
	}
	if cfg.OAuth.TokenURL == "" {
		cfg.OAuth.TokenURL = DefaultTokenURL
	}
	if len(cfg.OAuth.Scopes) == 0 {
		cfg.OAuth.Scopes = DefaultScopes
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	a := &Adapter{
		timeout:  cfg.Timeout,
		limiter:  rate.NewLimiter(limit, 1),
		endpoint: oauth.NewEndpoint(cfg.OAuth),
		logger:   logger.With("provider", domain.ProviderGitHub),
		now:      time.Now,
	}

	if cfg.BaseURL != "" {
		u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		a.baseURL = u
	}

	return a, nil
}

func (a *Adapter) Provider() domain.Provider {
	return domain.ProviderGitHub
}

func (a *Adapter) AuthURL(state string) (string, error) {
	return a.endpoint.AuthURL(state)
}

func (a *Adapter) ExchangeCode(ctx context.Context, code string) (*domain.Tokens, error) {
	return a.endpoint.Exchange(ctx, code)
}

// Refresh only works for GitHub Apps with expiring tokens; classic OAuth apps
// never hand out a refresh token.
func (a *Adapter) Refresh(ctx context.Context, refreshToken string) (*domain.Tokens, error) {
	return a.endpoint.Refresh(ctx, refreshToken)
}

func (a *Adapter) client(ctx context.Context, token string) *gh.Client {
	hc := oauth.StaticClient(ctx, token)
	hc.Timeout = a.timeout

	c := gh.NewClient(hc)
	if a.baseURL != nil {
		c.BaseURL = a.baseURL
	}
	return c
}

func (a *Adapter) FetchSignals(ctx context.Context, creds domain.Credentials) ([]domain.RawSignal, error) {
	c := a.client(ctx, creds.AccessToken)

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	user, _, err := c.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("get authenticated user: %w", err)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("is:pr is:open review-requested:%s", user.GetLogin())
	result, _, err := c.Search.Issues(ctx, query, &gh.SearchOptions{
		Sort:        "updated",
		Order:       "desc",
		ListOptions: gh.ListOptions{PerPage: searchPageSize},
	})
	if err != nil {
		return nil, fmt.Errorf("search pull requests: %w", err)
	}

	now := a.now()
	signals := make([]domain.RawSignal, 0, len(result.Issues))

	for _, issue := range result.Issues {
		if !issue.IsPullRequest() {
			continue
		}

		owner, repo, ok := repoFromURL(issue.GetRepositoryURL())
		if !ok {
			a.logger.Warn("unrecognized repository url", "url", issue.GetRepositoryURL())
			continue
		}

		if err := a.limiter.Wait(ctx); err != nil {
			return signals, err
		}
		pr, _, err := c.PullRequests.Get(ctx, owner, repo, issue.GetNumber())
		if err != nil {
			a.logger.Warn("failed to get pull request, skipping",
				"repo", owner+"/"+repo,
				"number", issue.GetNumber(),
				"error", err,
			)
			continue
		}

		signals = append(signals, NormalizePullRequest(fromAPI(pr), now))
	}

	return signals, nil
}

// repoFromURL extracts owner and name from ".../repos/<owner>/<repo>".
func repoFromURL(raw string) (owner, repo string, ok bool) {
	parts := strings.Split(strings.TrimRight(raw, "/"), "/")
	if len(parts) < 2 {
		return "", "", false
	}
	owner, repo = parts[len(parts)-2], parts[len(parts)-1]
	return owner, repo, owner != "" && repo != ""
}

// PullRequest is the subset of a pull request the brief cares about.
type PullRequest struct {
	ID                 int64     `yaml:"id"`
	Number             int       `yaml:"number"`
	Title              string    `yaml:"title"`
	HTMLURL            string    `yaml:"html_url"`
	UpdatedAt          time.Time `yaml:"-"`
	Additions          int       `yaml:"additions"`
	Deletions          int       `yaml:"deletions"`
	ChangedFiles       int       `yaml:"changed_files"`
	RequestedReviewers []string  `yaml:"requested_reviewers"`
}

func fromAPI(pr *gh.PullRequest) PullRequest {
	out := PullRequest{
		ID:           pr.GetID(),
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		HTMLURL:      pr.GetHTMLURL(),
		UpdatedAt:    pr.GetUpdatedAt().Time,
		Additions:    pr.GetAdditions(),
		Deletions:    pr.GetDeletions(),
		ChangedFiles: pr.GetChangedFiles(),
	}
	for _, r := range pr.RequestedReviewers {
		out.RequestedReviewers = append(out.RequestedReviewers, r.GetLogin())
	}
	return out
}

func NormalizePullRequest(pr PullRequest, now time.Time) domain.RawSignal {
	daysWaiting := urgency.DaysSince(pr.UpdatedAt, now)

	blocking := 0
	if len(pr.RequestedReviewers) > 0 {
		blocking = 1
	}

	blocked := make([]map[string]any, 0, len(pr.RequestedReviewers))
	for _, login := range pr.RequestedReviewers {
		blocked = append(blocked, map[string]any{"n": login})
	}

	return domain.RawSignal{
		Type:       domain.ItemTypeItem,
		Source:     domain.SourceGitHub,
		ExternalID: fmt.Sprintf("pr-%d", pr.ID),
		SourceURL:  pr.HTMLURL,
		Text:       fmt.Sprintf("PR #%d: %s - %d files changed", pr.Number, pr.Title, pr.ChangedFiles),
		Timestamp:  pr.UpdatedAt,
		Metadata: map[string]any{
			"pr_number":     pr.Number,
			"pr_url":        pr.HTMLURL,
			"additions":     pr.Additions,
			"deletions":     pr.Deletions,
			"changed_files": pr.ChangedFiles,
			"blocked":       blocked,
		},
		Factors: domain.UrgencyFactors{
			BlockingCount: blocking,
			DaysWaiting:   daysWaiting,
			SprintRisk:    daysWaiting >= 1,
		},
	}
}

// Package search pulls signals for every tool at once from a unified
// enterprise search backend.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.uber.org/multierr"

	"morning_brief/internal/domain"
	"morning_brief/internal/source/httpx"
)

const searchPath = "/api/v1/search"

type Config struct {
	APIURL     string
	APIKey     string
	OAuthToken string
	Queries    []string
	MaxResults int
}

// Adapter authenticates with a service-level credential from configuration,
// so it takes no part in the per-user OAuth flow.
type Adapter struct {
	cfg    Config
	client *httpx.Client
	logger *slog.Logger
}

func New(cfg Config, client *httpx.Client, logger *slog.Logger) *Adapter {
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &Adapter{
		cfg:    cfg,
		client: client,
		logger: logger.With("provider", domain.ProviderSearch),
	}
}

func (a *Adapter) Provider() domain.Provider {
	return domain.ProviderSearch
}

func (a *Adapter) AuthURL(string) (string, error) {
	return "", domain.ErrAuthNotSupported
}

func (a *Adapter) ExchangeCode(context.Context, string) (*domain.Tokens, error) {
	return nil, domain.ErrAuthNotSupported
}

func (a *Adapter) Refresh(context.Context, string) (*domain.Tokens, error) {
	return nil, domain.ErrAuthNotSupported
}

// FetchSignals runs every configured query and merges the hits, keeping the
// first occurrence of each id. It fails only when every query failed.
func (a *Adapter) FetchSignals(ctx context.Context, creds domain.Credentials) ([]domain.RawSignal, error) {
	if a.cfg.APIURL == "" {
		return nil, errors.New("search api url is not configured")
	}

	var (
		signals []domain.RawSignal
		seen    = make(map[string]struct{})
		errs    error
		failed  int
	)

	for _, query := range a.cfg.Queries {
		hits, err := a.search(ctx, query, creds.UserID)
		if err != nil {
			if ctx.Err() != nil {
				return signals, ctx.Err()
			}
			a.logger.Warn("search query failed", "query", query, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("query %q: %w", query, err))
			failed++
			continue
		}

		for _, h := range hits {
			key := h.key()
			if key != "" {
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
			signals = append(signals, Normalize(h))
		}
	}

	if failed > 0 && failed == len(a.cfg.Queries) {
		return nil, errs
	}

	return signals, nil
}

func (a *Adapter) search(ctx context.Context, query, userID string) ([]Hit, error) {
	req := searchRequest{
		Query:      query,
		UserID:     userID,
		MaxResults: a.cfg.MaxResults,
	}

	var resp searchResponse
	if err := a.client.PostJSON(ctx, a.cfg.APIURL+searchPath, a.authHeader(), req, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (a *Adapter) authHeader() http.Header {
	if a.cfg.OAuthToken != "" {
		h := httpx.Bearer(a.cfg.OAuthToken)
		h.Set("X-Glean-Auth-Type", "OAUTH")
		return h
	}
	h := http.Header{}
	if a.cfg.APIKey != "" {
		h.Set("X-API-Key", a.cfg.APIKey)
	}
	return h
}

type searchRequest struct {
	Query      string `json:"query"`
	UserID     string `json:"user_id"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []Hit `json:"results"`
}

// Hit is one search result as returned by the backend.
type Hit struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Summary  string         `json:"summary"`
	Text     string         `json:"text"`
	URL      string         `json:"url"`
	Link     string         `json:"link"`
	Source   string         `json:"source"`
	Type     string         `json:"type"`
	Priority string         `json:"priority"`
	Urgency  string         `json:"urgency"`
	Metadata map[string]any `json:"metadata"`
}

func (h Hit) key() string {
	if h.ID != "" {
		return h.ID
	}
	return h.link()
}

func (h Hit) link() string {
	if h.URL != "" {
		return h.URL
	}
	return h.Link
}

func (h Hit) title() string {
	for _, s := range []string{h.Title, h.Summary, h.Text} {
		if s != "" {
			return s
		}
	}
	return ""
}

func Normalize(h Hit) domain.RawSignal {
	typ := domain.ItemTypeItem
	if strings.EqualFold(h.Type, string(domain.ItemTypeCalendar)) {
		typ = domain.ItemTypeCalendar
	}

	meta := make(map[string]any, len(h.Metadata)+2)
	for k, v := range h.Metadata {
		meta[k] = v
	}
	meta["search_id"] = h.ID
	meta["search_url"] = h.link()

	return domain.RawSignal{
		Type:       typ,
		Source:     DetectSource(h),
		ExternalID: h.key(),
		SourceURL:  h.link(),
		Text:       h.title(),
		Metadata:   meta,
		Urgency:    DetectUrgency(h),
	}
}

// DetectSource guesses the originating tool from the hit's URL.
func DetectSource(h Hit) domain.Source {
	u := strings.ToLower(h.link())
	switch {
	case strings.Contains(u, "slack.com"):
		return domain.SourceSlack
	case strings.Contains(u, "github.com"):
		return domain.SourceGitHub
	case strings.Contains(u, "atlassian.net"), strings.Contains(u, "jira"):
		return domain.SourceJira
	case strings.Contains(u, "calendar.google.com"), strings.Contains(u, "calendar"):
		return domain.SourceCalendar
	}

	switch s := domain.Source(strings.ToLower(h.Source)); s {
	case domain.SourceSlack, domain.SourceGitHub, domain.SourceJira, domain.SourceCalendar:
		return s
	}
	return domain.SourceGeneric
}

var exactUrgency = map[string]domain.Urgency{
	"urgent":    domain.UrgencyUrgent,
	"high":      domain.UrgencyUrgent,
	"critical":  domain.UrgencyUrgent,
	"attention": domain.UrgencyAttention,
	"medium":    domain.UrgencyAttention,
	"followup":  domain.UrgencyFollowUp,
	"follow-up": domain.UrgencyFollowUp,
	"low":       domain.UrgencyFYI,
	"fyi":       domain.UrgencyFYI,
	"org":       domain.UrgencyOrg,
}

// DetectUrgency maps the hit's priority label onto a tier: exact tier names
// first, then keyword matches, otherwise fyi.
func DetectUrgency(h Hit) domain.Urgency {
	label := h.Urgency
	if label == "" {
		label = h.Priority
	}
	label = strings.ToLower(strings.TrimSpace(label))

	if u, ok := exactUrgency[label]; ok {
		return u
	}

	switch {
	case strings.Contains(label, "urgent"), strings.Contains(label, "critical"), strings.Contains(label, "high"):
		return domain.UrgencyUrgent
	case strings.Contains(label, "medium"), strings.Contains(label, "attention"):
		return domain.UrgencyAttention
	case strings.Contains(label, "follow"):
		return domain.UrgencyFollowUp
	}
	return domain.UrgencyFYI
}

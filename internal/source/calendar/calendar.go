// Package calendar summarizes the user's agenda for the current day.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"morning_brief/internal/domain"
	"morning_brief/internal/source/oauth"
)

const (
	DefaultAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"

	primaryCalendar = "primary"
	dateLayout      = "2006-01-02"
)

var DefaultScopes = []string{gcal.CalendarReadonlyScope}

type Config struct {
	// BaseURL overrides the Calendar API endpoint.
	BaseURL  string
	Timeout  time.Duration
	Location *time.Location
	OAuth    oauth.Config
}

type Adapter struct {
	baseURL  string
	timeout  time.Duration
	loc      *time.Location
	endpoint *oauth.Endpoint
	logger   *slog.Logger
	now      func() time.Time
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
	cfg.OAuth.ExtraAuthParams["access_type"] = "offline"
	cfg.OAuth.ExtraAuthParams["prompt"] = "consent"

	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	return &Adapter{
		baseURL:  cfg.BaseURL,
		timeout:  cfg.Timeout,
		loc:      cfg.Location,
		endpoint: oauth.NewEndpoint(cfg.OAuth),
		logger:   logger.With("provider", domain.ProviderCalendar),
		now:      time.Now,
	}
}

func (a *Adapter) Provider() domain.Provider {
	return domain.ProviderCalendar
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

// FetchSignals returns at most one signal: the summary of today's events.
func (a *Adapter) FetchSignals(ctx context.Context, creds domain.Credentials) ([]domain.RawSignal, error) {
	svc, err := a.service(ctx, creds.AccessToken)
	if err != nil {
		return nil, err
	}

	now := a.now().In(a.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.loc)
	end := start.AddDate(0, 0, 1)

	var events []Event
	err = svc.Events.List(primaryCalendar).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Pages(ctx, func(page *gcal.Events) error {
			for _, item := range page.Items {
				events = append(events, fromAPI(item))
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	sig, ok := Summarize(events, now)
	if !ok {
		return nil, nil
	}
	return []domain.RawSignal{sig}, nil
}

func (a *Adapter) service(ctx context.Context, token string) (*gcal.Service, error) {
	hc := oauth.StaticClient(ctx, token)
	hc.Timeout = a.timeout

	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if a.baseURL != "" {
		opts = append(opts, option.WithEndpoint(a.baseURL))
	}

	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return svc, nil
}

type Event struct {
	Time     string `yaml:"time"`
	Summary  string `yaml:"summary"`
	Location string `yaml:"location"`
}

func fromAPI(e *gcal.Event) Event {
	out := Event{Summary: e.Summary, Location: e.Location}
	if e.Start != nil {
		out.Time = e.Start.DateTime
		if out.Time == "" {
			out.Time = e.Start.Date
		}
	}
	return out
}

// Summarize folds the day's events into a single calendar item. A day
// without events produces nothing.
func Summarize(events []Event, day time.Time) (domain.RawSignal, bool) {
	if len(events) == 0 {
		return domain.RawSignal{}, false
	}

	noun := "event"
	if len(events) > 1 {
		noun = "events"
	}

	list := make([]map[string]any, 0, len(events))
	for _, e := range events {
		list = append(list, map[string]any{
			"time":     e.Time,
			"summary":  e.Summary,
			"location": e.Location,
		})
	}

	return domain.RawSignal{
		Type:       domain.ItemTypeCalendar,
		Source:     domain.SourceCalendar,
		ExternalID: "calendar-" + day.Format(dateLayout),
		Text:       fmt.Sprintf("Today's schedule: %d %s", len(events), noun),
		Timestamp:  day,
		Metadata:   map[string]any{"events": list},
		Urgency:    domain.UrgencyFYI,
	}, true
}

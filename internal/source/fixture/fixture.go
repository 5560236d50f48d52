// Package fixture serves canned demo data through the same normalizers as
// the live adapters, so a brief can be generated without any OAuth setup.
package fixture

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"morning_brief/internal/domain"
	"morning_brief/internal/source"
	"morning_brief/internal/source/calendar"
	"morning_brief/internal/source/github"
	"morning_brief/internal/source/jira"
	"morning_brief/internal/source/slack"
)

//go:embed fixtures.yaml
var defaultData []byte

type Data struct {
	Slack    []slackThread   `yaml:"slack"`
	GitHub   []pullRequest   `yaml:"github"`
	Jira     []issue         `yaml:"jira"`
	Calendar []calendarEvent `yaml:"calendar"`
}

type slackThread struct {
	Channel  string        `yaml:"channel"`
	ThreadTS string        `yaml:"thread_ts"`
	Age      time.Duration `yaml:"age"`
	Messages []struct {
		User string `yaml:"user"`
		Text string `yaml:"text"`
	} `yaml:"messages"`
}

type pullRequest struct {
	github.PullRequest `yaml:",inline"`
	UpdatedAge         time.Duration `yaml:"updated_age"`
}

type issue struct {
	jira.Issue `yaml:",inline"`
	UpdatedAge time.Duration `yaml:"updated_age"`
	DueIn      time.Duration `yaml:"due_in"`
}

type calendarEvent struct {
	calendar.Event `yaml:",inline"`
	At             string `yaml:"at"`
}

// Parse decodes fixture data in the embedded file's format.
func Parse(raw []byte) (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return &d, nil
}

// Adapters returns one fixture adapter per live provider backed by the
// embedded data.
func Adapters(loc *time.Location) ([]source.Adapter, error) {
	d, err := Parse(defaultData)
	if err != nil {
		return nil, err
	}
	return d.Adapters(loc), nil
}

func (d *Data) Adapters(loc *time.Location) []source.Adapter {
	if loc == nil {
		loc = time.Local
	}
	providers := []domain.Provider{
		domain.ProviderSlack,
		domain.ProviderGitHub,
		domain.ProviderJira,
		domain.ProviderCalendar,
	}

	out := make([]source.Adapter, 0, len(providers))
	for _, p := range providers {
		out = append(out, &Adapter{provider: p, data: d, loc: loc, now: time.Now})
	}
	return out
}

// Adapter replays fixture data for a single provider.
type Adapter struct {
	provider domain.Provider
	data     *Data
	loc      *time.Location
	now      func() time.Time
}

func (a *Adapter) Provider() domain.Provider {
	return a.provider
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

func (a *Adapter) FetchSignals(ctx context.Context, _ domain.Credentials) ([]domain.RawSignal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := a.now()

	switch a.provider {
	case domain.ProviderSlack:
		return a.slack(now), nil
	case domain.ProviderGitHub:
		return a.github(now), nil
	case domain.ProviderJira:
		return a.jira(now), nil
	case domain.ProviderCalendar:
		return a.calendar(now)
	}
	return nil, domain.ErrUnknownProvider
}

func (a *Adapter) slack(now time.Time) []domain.RawSignal {
	var out []domain.RawSignal
	for _, t := range a.data.Slack {
		// The thread key stays fixed so repeated runs dedupe; message
		// timestamps follow the configured age.
		started := now.Add(-t.Age).Unix()

		thread := slack.Thread{Channel: t.Channel, ThreadTS: t.ThreadTS}
		for i, m := range t.Messages {
			thread.Messages = append(thread.Messages, slack.Message{
				TS:       fmt.Sprintf("%d.000000", started+int64(i)),
				ThreadTS: t.ThreadTS,
				User:     m.User,
				Text:     m.Text,
			})
		}

		if sig, ok := slack.NormalizeThread(thread, now); ok {
			out = append(out, sig)
		}
	}
	return out
}

func (a *Adapter) github(now time.Time) []domain.RawSignal {
	out := make([]domain.RawSignal, 0, len(a.data.GitHub))
	for _, pr := range a.data.GitHub {
		p := pr.PullRequest
		p.UpdatedAt = now.Add(-pr.UpdatedAge)
		out = append(out, github.NormalizePullRequest(p, now))
	}
	return out
}

func (a *Adapter) jira(now time.Time) []domain.RawSignal {
	out := make([]domain.RawSignal, 0, len(a.data.Jira))
	for _, is := range a.data.Jira {
		i := is.Issue
		i.Updated = now.Add(-is.UpdatedAge)
		if is.DueIn != 0 {
			due := now.Add(is.DueIn)
			i.DueDate = &due
		}
		out = append(out, jira.NormalizeIssue(i, now))
	}
	return out
}

func (a *Adapter) calendar(now time.Time) ([]domain.RawSignal, error) {
	local := now.In(a.loc)
	events := make([]calendar.Event, 0, len(a.data.Calendar))

	for _, e := range a.data.Calendar {
		clock, err := time.Parse("15:04", e.At)
		if err != nil {
			return nil, fmt.Errorf("calendar fixture %q: %w", e.Summary, err)
		}
		start := time.Date(local.Year(), local.Month(), local.Day(), clock.Hour(), clock.Minute(), 0, 0, a.loc)

		ev := e.Event
		ev.Time = start.Format(time.RFC3339)
		events = append(events, ev)
	}

	sig, ok := calendar.Summarize(events, local)
	if !ok {
		return nil, nil
	}
	return []domain.RawSignal{sig}, nil
}

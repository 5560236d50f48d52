// Package slack turns long-running chat threads into brief signals.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"morning_brief/internal/domain"
	"morning_brief/internal/source/oauth"
	"morning_brief/internal/urgency"
)

const (
	DefaultBaseURL  = "https://slack.com/api/"
	DefaultAuthURL  = "https://slack.com/oauth/v2/authorize"
	DefaultTokenURL = "https://slack.com/api/oauth.v2.access"

	listLimit    = 200
	historyLimit = 50
	repliesLimit = 100

	// Threads shorter than this are not surfaced.
	minThreadMessages = 3
	textPreviewLen    = 100
)

var DefaultScopes = []string{
	"chat:write", "channels:read", "groups:read", "im:read", "users:read", "users:read.email",
}

type Config struct {
	// BaseURL overrides the Web API root.
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	OAuth             oauth.Config
}

type Adapter struct {
	baseURL  string
	timeout  time.Duration
	limiter  *rate.Limiter
	endpoint *oauth.Endpoint
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config, logger *slog.Logger) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.OAuth.AuthURL == "" {
		cfg.OAuth.AuthURL = DefaultAuthURL
	}
	if cfg.OAuth.TokenURL == "" {
		cfg.OAuth.TokenURL = DefaultTokenURL
	}
	if len(cfg.OAuth.Scopes) == 0 {
		cfg.OAuth.Scopes = DefaultScopes
	}
	cfg.OAuth.ScopeSeparator = ","

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Adapter{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/") + "/",
		timeout:  cfg.Timeout,
		limiter:  rate.NewLimiter(limit, 1),
		endpoint: oauth.NewEndpoint(cfg.OAuth),
		logger:   logger.With("provider", domain.ProviderSlack),
		now:      time.Now,
	}
}

func (a *Adapter) Provider() domain.Provider {
	return domain.ProviderSlack
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

func (a *Adapter) client(ctx context.Context, token string) *slackapi.Client {
	hc := oauth.StaticClient(ctx, token)
	hc.Timeout = a.timeout

	return slackapi.New(token,
		slackapi.OptionHTTPClient(hc),
		slackapi.OptionAPIURL(a.baseURL),
	)
}

// FetchSignals walks the user's conversations and returns one signal per
// thread that has grown to at least three messages.
func (a *Adapter) FetchSignals(ctx context.Context, creds domain.Credentials) ([]domain.RawSignal, error) {
	c := a.client(ctx, creds.AccessToken)

	channels, err := a.listChannels(ctx, c)
	if err != nil {
		return nil, err
	}

	now := a.now()
	var signals []domain.RawSignal

	for _, ch := range channels {
		if ch.ID == "" {
			continue
		}

		threads, err := a.channelThreads(ctx, c, ch.ID)
		for _, t := range threads {
			if sig, ok := NormalizeThread(t, now); ok {
				signals = append(signals, sig)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return signals, ctx.Err()
			}
			a.logger.Warn("failed to read channel, skipping",
				"channel", ch.ID,
				"error", err,
			)
		}
	}

	return signals, nil
}

// channelThreads returns the threads of one channel. A thread whose replies
// cannot be read is logged and left out; the others are kept.
func (a *Adapter) channelThreads(ctx context.Context, c *slackapi.Client, channelID string) ([]Thread, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	history, err := c.GetConversationHistoryContext(ctx, &slackapi.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     historyLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("conversations.history: %w", err)
	}

	var threads []Thread
	for _, msg := range history.Messages {
		if msg.ThreadTimestamp == "" && msg.ReplyCount == 0 {
			continue
		}
		threadTS := msg.ThreadTimestamp
		if threadTS == "" {
			threadTS = msg.Timestamp
		}

		if err := a.limiter.Wait(ctx); err != nil {
			return threads, err
		}
		replies, _, _, err := c.GetConversationRepliesContext(ctx, &slackapi.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: threadTS,
			Limit:     repliesLimit,
		})
		if err != nil {
			if ctx.Err() != nil {
				return threads, ctx.Err()
			}
			a.logger.Warn("failed to read thread, skipping",
				"channel", channelID,
				"thread_ts", threadTS,
				"error", err,
			)
			continue
		}

		threads = append(threads, Thread{
			Channel:  channelID,
			ThreadTS: threadTS,
			Messages: fromAPI(replies),
		})
	}

	return threads, nil
}

func (a *Adapter) listChannels(ctx context.Context, c *slackapi.Client) ([]slackapi.Channel, error) {
	var (
		all    []slackapi.Channel
		cursor string
	)
	for {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, next, err := c.GetConversationsContext(ctx, &slackapi.GetConversationsParameters{
			Types:  []string{"public_channel", "private_channel", "im"},
			Limit:  listLimit,
			Cursor: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		all = append(all, page...)
		if next == "" {
			return all, nil
		}
		cursor = next
	}
}

func fromAPI(msgs []slackapi.Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{
			TS:         m.Timestamp,
			ThreadTS:   m.ThreadTimestamp,
			User:       m.User,
			Text:       m.Text,
			ReplyCount: m.ReplyCount,
		})
	}
	return out
}

// NormalizeThread converts a thread into a signal. Threads with fewer than
// three messages, or whose first message has an unreadable timestamp, are
// rejected.
func NormalizeThread(t Thread, now time.Time) (domain.RawSignal, bool) {
	if len(t.Messages) < minThreadMessages {
		return domain.RawSignal{}, false
	}

	first := t.Messages[0]
	started, ok := ParseTS(first.TS)
	if !ok {
		return domain.RawSignal{}, false
	}
	replyCount := len(t.Messages) - 1

	blocking := 0
	if replyCount >= 3 {
		blocking = 1
	}

	blocked := make([]map[string]any, 0, replyCount)
	for _, m := range t.Messages[1:] {
		user := m.User
		if user == "" {
			user = "Unknown"
		}
		blocked = append(blocked, map[string]any{"n": user})
	}

	return domain.RawSignal{
		Type:       domain.ItemTypeItem,
		Source:     domain.SourceSlack,
		ExternalID: t.Channel + "-" + t.ThreadTS,
		SourceURL: fmt.Sprintf("https://slack.com/app_redirect?channel=%s&ts=%s",
			url.QueryEscape(t.Channel), url.QueryEscape(t.ThreadTS)),
		Text:      fmt.Sprintf("Thread in %s: %s... (%d replies)", t.Channel, preview(first.Text), replyCount),
		Timestamp: started,
		Metadata: map[string]any{
			"channel":       t.Channel,
			"thread_ts":     t.ThreadTS,
			"message_count": replyCount,
			"blocked":       blocked,
		},
		Factors: domain.UrgencyFactors{
			BlockingCount: blocking,
			DaysWaiting:   urgency.DaysSince(started, now),
		},
	}, true
}

// ParseTS parses a message timestamp of the form "1700000000.000100".
func ParseTS(ts string) (time.Time, bool) {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil || s <= 0 {
		return time.Time{}, false
	}
	var nsec int64
	if frac != "" {
		frac = (frac + "000000000")[:9]
		if nsec, err = strconv.ParseInt(frac, 10, 64); err != nil {
			return time.Time{}, false
		}
	}
	return time.Unix(s, nsec).UTC(), true
}

func preview(text string) string {
	r := []rune(text)
	if len(r) > textPreviewLen {
		r = r[:textPreviewLen]
	}
	return string(r)
}

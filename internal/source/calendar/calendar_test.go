package calendar

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morning_brief/internal/domain"
)

var testNow = time.Date(2024, 3, 10, 7, 30, 0, 0, time.UTC)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a := New(Config{BaseURL: srv.URL + "/", Location: time.UTC, Timeout: time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return testNow }
	return a
}

func TestFetchSignals_SummarizesToday(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/calendars/primary/events"), r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "2024-03-10T00:00:00Z", q.Get("timeMin"))
		assert.Equal(t, "2024-03-11T00:00:00Z", q.Get("timeMax"))
		assert.Equal(t, "true", q.Get("singleEvents"))
		assert.Equal(t, "startTime", q.Get("orderBy"))
		assert.Equal(t, "Bearer ya29.token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		if q.Get("pageToken") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{
					{"summary": "Standup", "location": "Zoom", "start": map[string]any{"dateTime": "2024-03-10T09:30:00Z"}},
				},
				"nextPageToken": "p2",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"summary": "Offsite", "start": map[string]any{"date": "2024-03-10"}},
			},
		})
	})

	signals, err := a.FetchSignals(context.Background(), domain.Credentials{AccessToken: "ya29.token"})
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, domain.ItemTypeCalendar, sig.Type)
	assert.Equal(t, domain.UrgencyFYI, sig.Urgency)
	assert.Equal(t, "Today's schedule: 2 events", sig.Text)
	assert.Equal(t, "calendar-2024-03-10", sig.ExternalID)
	assert.Equal(t, []map[string]any{
		{"time": "2024-03-10T09:30:00Z", "summary": "Standup", "location": "Zoom"},
		{"time": "2024-03-10", "summary": "Offsite", "location": ""},
	}, sig.Metadata["events"])
}

func TestFetchSignals_NoEvents(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[]}`))
	})

	signals, err := a.FetchSignals(context.Background(), domain.Credentials{AccessToken: "t"})
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestSummarize_SingleEvent(t *testing.T) {
	sig, ok := Summarize([]Event{{Time: "09:00", Summary: "Standup"}}, testNow)
	require.True(t, ok)
	assert.Equal(t, "Today's schedule: 1 event", sig.Text)
}

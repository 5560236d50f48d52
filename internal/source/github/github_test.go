package github

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morning_brief/internal/domain"
	"morning_brief/internal/urgency"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestFetchSignals(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_token", r.Header.Get("Authorization"))
		writeJSON(w, map[string]any{"login": "octo"})
	})
	mux.HandleFunc("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "is:pr is:open review-requested:octo", q.Get("q"))
		assert.Equal(t, "updated", q.Get("sort"))
		assert.Equal(t, "50", q.Get("per_page"))
		writeJSON(w, map[string]any{
			"total_count": 3,
			"items": []map[string]any{
				{"number": 42, "repository_url": "https://api.github.com/repos/acme/api", "pull_request": map[string]any{"url": "x"}},
				{"number": 7, "repository_url": "https://api.github.com/repos/acme/api"},
				{"number": 43, "repository_url": "https://api.github.com/repos/acme/web", "pull_request": map[string]any{"url": "y"}},
			},
		})
	})
	mux.HandleFunc("/repos/acme/api/pulls/42", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"id":                  12345,
			"number":              42,
			"title":               "Add payment service",
			"html_url":            "https://github.com/acme/api/pull/42",
			"updated_at":          testNow.Add(-50 * time.Hour).Format(time.RFC3339),
			"additions":           150,
			"deletions":           30,
			"changed_files":       12,
			"requested_reviewers": []map[string]any{{"login": "octo"}},
		})
	})
	mux.HandleFunc("/repos/acme/web/pulls/43", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]any{"message": "Not Found"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	a, err := New(Config{BaseURL: srv.URL, Timeout: time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	a.now = func() time.Time { return testNow }

	signals, err := a.FetchSignals(context.Background(), domain.Credentials{AccessToken: "gho_token"})
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, "pr-12345", sig.ExternalID)
	assert.Equal(t, "PR #42: Add payment service - 12 files changed", sig.Text)
	assert.Equal(t, "https://github.com/acme/api/pull/42", sig.SourceURL)
	assert.Equal(t, domain.UrgencyFactors{BlockingCount: 1, DaysWaiting: 2, SprintRisk: true}, sig.Factors)
	assert.Equal(t, domain.UrgencyUrgent, urgency.Classify(sig.Factors, testNow))
}

func TestFetchSignals_UserLookupFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]any{"message": "Bad credentials"})
	}))
	defer srv.Close()

	a, err := New(Config{BaseURL: srv.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	_, err = a.FetchSignals(context.Background(), domain.Credentials{AccessToken: "bad"})
	assert.ErrorContains(t, err, "get authenticated user")
}

func TestNormalizePullRequest_NoReviewers(t *testing.T) {
	sig := NormalizePullRequest(PullRequest{
		ID:        1,
		Number:    43,
		Title:     "Fix auth",
		UpdatedAt: testNow.Add(-4 * 24 * time.Hour),
	}, testNow)

	assert.Equal(t, 0, sig.Factors.BlockingCount)
	assert.Equal(t, 4, sig.Factors.DaysWaiting)
	assert.True(t, sig.Factors.SprintRisk)
	assert.Equal(t, domain.UrgencyAttention, urgency.Classify(sig.Factors, testNow))
}

func TestRepoFromURL(t *testing.T) {
	owner, repo, ok := repoFromURL("https://api.github.com/repos/acme/api")
	assert.True(t, ok)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "api", repo)

	_, _, ok = repoFromURL("")
	assert.False(t, ok)
}

func TestRefresh_WithoutRefreshToken(t *testing.T) {
	a, err := New(Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	_, err = a.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrNoRefreshToken)
}

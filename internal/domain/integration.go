package domain

import "time"

// Provider identifies an external work-tool service.
type Provider string

const (
	ProviderSlack    Provider = "slack"
	ProviderGitHub   Provider = "github"
	ProviderJira     Provider = "jira"
	ProviderCalendar Provider = "calendar"
	ProviderSearch   Provider = "search"
)

// ParseProvider validates a provider name coming from the outside.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(s); p {
	case ProviderSlack, ProviderGitHub, ProviderJira, ProviderCalendar, ProviderSearch:
		return p, nil
	}
	return "", ErrUnknownProvider
}

// Integration is the per-(user, provider) OAuth connection.
type Integration struct {
	ID             int64             `db:"id"`
	UserID         string            `db:"user_id"`
	Provider       Provider          `db:"provider"`
	AccessToken    string            `db:"access_token"`
	RefreshToken   *string           `db:"refresh_token"`
	TokenExpiresAt *time.Time        `db:"token_expires_at"`
	TokenVersion   int64             `db:"token_version"`
	Config         map[string]string `db:"-"`
	IsActive       bool              `db:"is_active"`
	CreatedAt      time.Time         `db:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at"`
}

// NeedsRefresh reports whether the access token expires within window of now.
// Integrations without an expiry never need a refresh.
func (i *Integration) NeedsRefresh(now time.Time, window time.Duration) bool {
	if i.TokenExpiresAt == nil {
		return false
	}
	return i.TokenExpiresAt.Sub(now) < window
}

// Tokens is the result of a code exchange or a refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// Credentials is what an adapter needs to call its provider for one user.
type Credentials struct {
	UserID      string
	AccessToken string
	Config      map[string]string
}

// OAuthState correlates an authorization callback with the user who started it.
type OAuthState struct {
	UserID    string            `json:"user_id"`
	Provider  Provider          `json:"provider"`
	Config    map[string]string `json:"config,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

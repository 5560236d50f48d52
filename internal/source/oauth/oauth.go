// Package oauth wraps golang.org/x/oauth2 for the authorization-code flow
// shared by the provider adapters.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"morning_brief/internal/domain"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	Scopes       []string

	// ScopeSeparator joins scopes into a single "scope" parameter when the
	// provider does not accept the space-separated form.
	ScopeSeparator string

	// ExtraAuthParams are appended to the authorization URL.
	ExtraAuthParams map[string]string

	HTTPClient *http.Client
}

type Endpoint struct {
	cfg        oauth2.Config
	scope      string
	extra      map[string]string
	httpClient *http.Client
}

func NewEndpoint(cfg Config) *Endpoint {
	e := &Endpoint{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		extra:      cfg.ExtraAuthParams,
		httpClient: cfg.HTTPClient,
	}

	if cfg.ScopeSeparator != "" {
		for i, s := range cfg.Scopes {
			if i > 0 {
				e.scope += cfg.ScopeSeparator
			}
			e.scope += s
		}
	} else {
		e.cfg.Scopes = cfg.Scopes
	}

	return e
}

// AuthURL builds the provider's consent URL carrying state.
func (e *Endpoint) AuthURL(state string) (string, error) {
	if e.cfg.ClientID == "" {
		return "", fmt.Errorf("oauth client id is not configured")
	}

	opts := make([]oauth2.AuthCodeOption, 0, len(e.extra)+1)
	if e.scope != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope", e.scope))
	}
	for k, v := range e.extra {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	return e.cfg.AuthCodeURL(state, opts...), nil
}

func (e *Endpoint) Exchange(ctx context.Context, code string) (*domain.Tokens, error) {
	tok, err := e.cfg.Exchange(e.context(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return toTokens(tok), nil
}

// Refresh trades refreshToken for a new access token.
func (e *Endpoint) Refresh(ctx context.Context, refreshToken string) (*domain.Tokens, error) {
	if refreshToken == "" {
		return nil, domain.ErrNoRefreshToken
	}

	expired := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}

	tok, err := e.cfg.TokenSource(e.context(ctx), expired).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return toTokens(tok), nil
}

func (e *Endpoint) context(ctx context.Context) context.Context {
	if e.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

func toTokens(tok *oauth2.Token) *domain.Tokens {
	out := &domain.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		out.ExpiresAt = &expiry
	}
	return out
}

// StaticClient returns an HTTP client that sends accessToken as a bearer token.
func StaticClient(ctx context.Context, accessToken string) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
}

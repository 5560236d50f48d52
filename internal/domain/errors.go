package domain

import (
	"errors"
	"fmt"
)

var (
	ErrIntegrationNotFound = errors.New("integration not found or inactive")
	ErrItemNotFound        = errors.New("brief item not found")
	ErrDuplicateItem       = errors.New("brief item already exists")
	ErrStateNotFound       = errors.New("oauth state not found or expired")
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrAuthNotSupported    = errors.New("provider does not support oauth")
	ErrNoRefreshToken      = errors.New("no refresh token")
)

// AuthError is returned to the OAuth callback handler for an invalid state or code.
type AuthError struct {
	Provider Provider
	Reason   string
	Err      error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s auth: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s auth: %s", e.Provider, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

type TokenRefreshError struct {
	Provider Provider
	UserID   string
	Err      error
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("refresh %s token for user %s: %v", e.Provider, e.UserID, e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }

type ProviderFetchError struct {
	Provider Provider
	Err      error
}

func (e *ProviderFetchError) Error() string {
	return fmt.Sprintf("fetch %s signals: %v", e.Provider, e.Err)
}

func (e *ProviderFetchError) Unwrap() error { return e.Err }

type PersistenceError struct {
	Source     Source
	ExternalID string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s item %q: %v", e.Source, e.ExternalID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

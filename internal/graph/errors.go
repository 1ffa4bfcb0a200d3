package graph

import (
	"errors"
	"fmt"
)

// AuthError indicates the refresh token was rejected by the provider.
// The user must re-authenticate externally; the worker pauses.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ProviderError is a structured non-retryable 4xx response from the
// provider, carrying the Graph error code when one was supplied.
type ProviderError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error (%d): %s", e.StatusCode, e.Message)
}

// CursorExpiredError indicates the provider no longer recognizes the
// stored delta cursor (410 Gone). Recovery is a fresh initial sync.
type CursorExpiredError struct {
	Cursor string
}

func (e *CursorExpiredError) Error() string {
	return "delta cursor expired"
}

// IsCursorExpired reports whether err is a CursorExpiredError.
func IsCursorExpired(err error) bool {
	var expired *CursorExpiredError
	return errors.As(err, &expired)
}

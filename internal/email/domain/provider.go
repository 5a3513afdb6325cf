package domain

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// TokenUpdateFunc is a callback function that handles token updates
type TokenUpdateFunc func(token *oauth2.Token) error

// OutgoingMessage is a reply handed to a provider for delivery.
type OutgoingMessage struct {
	From    string
	To      string
	Subject string
	Body    string
	// ThreadID and InReplyTo* thread the reply under the original message.
	ThreadID            string
	InReplyToProviderID string
	InReplyToMessageID  string
}

var (
	ErrTokenExpired     = errors.New("provider token expired or revoked")
	ErrQuotaExceeded    = errors.New("provider quota exceeded")
	ErrPermissionDenied = errors.New("provider permission denied")
	ErrUnknownProvider  = errors.New("unknown mail provider")
	ErrWatchUnsupported = errors.New("provider does not support push notifications")
)

// ProviderError wraps a failed upstream mail API call.
type ProviderError struct {
	Provider   Provider
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error (%d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP status to one of the sentinel provider errors,
// or returns cause unchanged.
func ClassifyStatus(status int, cause error) error {
	switch status {
	case 401:
		return fmt.Errorf("%w: %v", ErrTokenExpired, cause)
	case 403:
		return fmt.Errorf("%w: %v", ErrPermissionDenied, cause)
	case 429:
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, cause)
	}
	return cause
}

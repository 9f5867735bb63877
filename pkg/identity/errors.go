package identity

import (
	"errors"
	"fmt"
	"time"
)

// Authentication failure taxonomy. Provider responses are mapped onto these
// sentinels by Classify; local validation failures use ErrInvalidInput and
// ErrInvalidDomain and never reach the provider.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidDomain        = errors.New("email domain is not permitted")
	ErrAlreadyRegistered    = errors.New("identity already registered")
	ErrNotFound             = errors.New("identity not found")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrEmailNotVerified     = errors.New("email not verified")
	ErrInvalidOrExpiredCode = errors.New("verification code is invalid or expired")
	ErrRateLimited          = errors.New("rate limited by identity provider")
	ErrProviderUnavailable  = errors.New("identity provider unavailable")
)

// ProviderError is the raw error shape returned by identity providers.
type ProviderError struct {
	Message    string
	Status     int
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider error (status %d): %s", e.Status, e.Message)
	}
	return "provider error: " + e.Message
}

// RetryAfter extracts the provider-declared retry interval from a classified
// error chain, so rate-limit feedback can start a precise cooldown instead of
// a generic one. Returns zero when the chain carries no interval.
func RetryAfter(err error) time.Duration {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.RetryAfter
	}
	return 0
}

package identity

import (
	"context"
	"errors"
	"strings"
)

// Throttling phrases observed across hosted identity providers. A message
// matching any of them is treated as a rate limit even without a 429 status.
var throttlePhrases = []string{
	"rate limit",
	"too many requests",
	"for security purposes",
}

// Classify maps a provider failure onto the package's error taxonomy. The
// original error stays in the chain, so RetryAfter and errors.As on
// *ProviderError keep working on the classified result. Context cancellation
// passes through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pe *ProviderError
	if !errors.As(err, &pe) {
		// Transport-level failure with no provider response.
		return errors.Join(ErrProviderUnavailable, err)
	}

	msg := strings.ToLower(pe.Message)

	if pe.Status == 429 || containsAny(msg, throttlePhrases...) {
		return errors.Join(ErrRateLimited, err)
	}

	if containsAny(msg, "invalid", "expired") && containsAny(msg, "otp", "code", "token") {
		return errors.Join(ErrInvalidOrExpiredCode, err)
	}

	if strings.Contains(msg, "invalid login credentials") {
		return errors.Join(ErrInvalidCredentials, err)
	}

	if containsAny(msg, "email not confirmed", "not verified") {
		return errors.Join(ErrEmailNotVerified, err)
	}

	if containsAny(msg, "already registered", "already exists") || pe.Status == 409 {
		return errors.Join(ErrAlreadyRegistered, err)
	}

	if pe.Status == 404 || strings.Contains(msg, "not found") {
		return errors.Join(ErrNotFound, err)
	}

	if pe.Status >= 500 {
		return errors.Join(ErrProviderUnavailable, err)
	}

	// Unrecognized provider failures degrade to "unavailable" so the flow
	// renders a recoverable error instead of crashing on an unknown shape.
	return errors.Join(ErrProviderUnavailable, err)
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

package session

import "errors"

var (
	// ErrNoActiveChallenge is returned by verify and resend when no code
	// request cycle is in progress.
	ErrNoActiveChallenge = errors.New("no active verification challenge")

	// ErrSessionNotVisible is returned when a freshly issued session did not
	// become readable at the provider within the polling window. The session
	// itself is still returned alongside this error.
	ErrSessionNotVisible = errors.New("session not yet visible at provider")

	// ErrNotAuthenticated is returned by operations that need a current
	// session when none is held.
	ErrNotAuthenticated = errors.New("not authenticated")
)

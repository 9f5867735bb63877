package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is the provider-side identity record.
type User struct {
	ID            uuid.UUID
	Email         string
	EmailVerified bool
	Metadata      map[string]string
	CreatedAt     time.Time
}

// Session is an issued authentication session. Sessions are value types:
// every change produces a new value, never an in-place mutation.
type Session struct {
	UserID       uuid.UUID
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// IsZero reports whether the session is the empty value.
func (s Session) IsZero() bool {
	return s.AccessToken == "" && s.RefreshToken == ""
}

// IsExpired reports whether the session's access token has expired.
func (s Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// ChallengeSent acknowledges a pending one-time-code verification cycle.
type ChallengeSent struct {
	Email      string
	SentAt     time.Time
	RetryAfter time.Duration // provider-declared minimum until the next send
}

// Provider is the external identity provider consumed by the session
// controller. Implementations return *ProviderError for provider-signalled
// failures so Classify can map them onto the error taxonomy.
type Provider interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]string) (*ChallengeSent, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignInWithOTP(ctx context.Context, email string) (*ChallengeSent, error)
	VerifyOTP(ctx context.Context, email, code string) (*User, *Session, error)
	ResetPasswordForEmail(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, accessToken, newPassword string) error
	GetSession(ctx context.Context, accessToken string) (*Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

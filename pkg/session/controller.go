package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/alumnihub/authflow/pkg/identity"
	"github.com/alumnihub/authflow/pkg/logger"
	"github.com/alumnihub/authflow/pkg/observable"
	"github.com/alumnihub/authflow/pkg/sanitizer"
	"github.com/alumnihub/authflow/pkg/validator"
)

// ChallengePhase tracks the one-time-code cycle between a send and its
// verification.
type ChallengePhase string

const (
	PhaseNone     ChallengePhase = "none"
	PhaseSent     ChallengePhase = "sent"
	PhaseVerified ChallengePhase = "verified"
)

// Challenge is the controller's view of the pending code cycle.
type Challenge struct {
	Phase    ChallengePhase
	Email    string
	IsSignUp bool
	SentAt   time.Time
}

// Controller orchestrates authentication against an identity provider. It
// owns exactly one current session, published through an observable holder so
// that flow code can react to sign-in and sign-out without polling.
type Controller struct {
	provider  identity.Provider
	allowlist *validator.DomainAllowlist
	log       *slog.Logger
	now       func() time.Time

	// Visibility polling after VerifyOTP. A session issued by the provider
	// may not be readable immediately; attempts*interval bounds the wait.
	visibilityAttempts uint64
	visibilityInterval time.Duration

	current *observable.Value[identity.Session]

	mu        sync.Mutex
	challenge Challenge
}

// Option configures a Controller.
type Option func(*Controller)

// WithAllowlist restricts sign-up to institutional email domains.
func WithAllowlist(a *validator.DomainAllowlist) Option {
	return func(c *Controller) { c.allowlist = a }
}

// WithLogger sets the controller logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithVisibilityPolling tunes the post-verification session readback loop.
// Attempts counts total tries including the first.
func WithVisibilityPolling(attempts uint64, interval time.Duration) Option {
	return func(c *Controller) {
		if attempts > 0 {
			c.visibilityAttempts = attempts
		}
		if interval > 0 {
			c.visibilityInterval = interval
		}
	}
}

// WithTimeSource overrides the clock, for tests.
func WithTimeSource(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a Controller over the given provider.
func NewController(provider identity.Provider, opts ...Option) *Controller {
	c := &Controller{
		provider:           provider,
		log:                logger.Discard(),
		now:                time.Now,
		visibilityAttempts: 5,
		visibilityInterval: 200 * time.Millisecond,
		current:            observable.NewValue[identity.Session](),
		challenge:          Challenge{Phase: PhaseNone},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current exposes the observable session holder. Subscribers see every
// sign-in and sign-out; Get distinguishes "still unknown" from "known signed
// out" via the holder's Known method.
func (c *Controller) Current() *observable.Value[identity.Session] {
	return c.current
}

// Session returns the current session, if one is held.
func (c *Controller) Session() (identity.Session, bool) {
	return c.current.Get()
}

// Challenge returns a snapshot of the pending code cycle.
func (c *Controller) Challenge() Challenge {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.challenge
}

// SignUpWithOTP registers a new identity and starts a verification cycle.
// The email is normalized and checked against the institutional allowlist
// before the provider is contacted.
func (c *Controller) SignUpWithOTP(ctx context.Context, email, password string, metadata map[string]string) (*identity.ChallengeSent, error) {
	email = sanitizer.NormalizeEmail(email)
	if err := validator.Apply(
		validator.RequiredString("email", email),
		validator.ValidEmail("email", email),
	); err != nil {
		return nil, errors.Join(identity.ErrInvalidInput, err)
	}
	if err := validator.Apply(validator.InstitutionalEmail("email", email, c.allowlist)); err != nil {
		return nil, errors.Join(identity.ErrInvalidDomain, err)
	}

	sent, err := c.provider.SignUp(ctx, email, password, metadata)
	if err != nil {
		return nil, identity.Classify(err)
	}

	c.setChallenge(Challenge{Phase: PhaseSent, Email: email, IsSignUp: true, SentAt: c.now()})
	c.log.Info("sign-up challenge sent",
		logger.Component("session"),
		logger.Email(email),
	)
	return sent, nil
}

// SignInWithOTP starts a verification cycle for an existing identity.
func (c *Controller) SignInWithOTP(ctx context.Context, email string) (*identity.ChallengeSent, error) {
	email = sanitizer.NormalizeEmail(email)
	if err := validator.Apply(
		validator.RequiredString("email", email),
		validator.ValidEmail("email", email),
	); err != nil {
		return nil, errors.Join(identity.ErrInvalidInput, err)
	}

	sent, err := c.provider.SignInWithOTP(ctx, email)
	if err != nil {
		return nil, identity.Classify(err)
	}

	c.setChallenge(Challenge{Phase: PhaseSent, Email: email, IsSignUp: false, SentAt: c.now()})
	c.log.Info("sign-in challenge sent",
		logger.Component("session"),
		logger.Email(email),
	)
	return sent, nil
}

// SignInWithPassword authenticates directly and publishes the session.
func (c *Controller) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	email = sanitizer.NormalizeEmail(email)
	if err := validator.Apply(
		validator.RequiredString("email", email),
		validator.ValidEmail("email", email),
		validator.RequiredString("password", password),
	); err != nil {
		return nil, errors.Join(identity.ErrInvalidInput, err)
	}

	sess, err := c.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, identity.Classify(err)
	}

	c.current.Set(*sess)
	c.log.Info("signed in with password",
		logger.Component("session"),
		logger.Email(email),
		logger.UserID(sess.UserID.String()),
	)
	return sess, nil
}

// VerifyOTP submits the one-time code for the active challenge. On success
// the controller polls the provider until the new session is readable, then
// publishes it. If the polling window is exhausted the session is still
// returned and published, together with ErrSessionNotVisible so the caller
// can decide whether to proceed.
func (c *Controller) VerifyOTP(ctx context.Context, code string) (*identity.User, *identity.Session, error) {
	c.mu.Lock()
	ch := c.challenge
	c.mu.Unlock()
	if ch.Phase != PhaseSent {
		return nil, nil, ErrNoActiveChallenge
	}

	if err := validator.Apply(validator.OneTimeCode("code", code)); err != nil {
		return nil, nil, errors.Join(identity.ErrInvalidOrExpiredCode, err)
	}

	user, sess, err := c.provider.VerifyOTP(ctx, ch.Email, code)
	if err != nil {
		return nil, nil, identity.Classify(err)
	}

	c.setChallenge(Challenge{Phase: PhaseVerified, Email: ch.Email, IsSignUp: ch.IsSignUp})

	if err := c.awaitVisibility(ctx, sess.AccessToken); err != nil {
		c.current.Set(*sess)
		c.log.Warn("session issued but not yet visible",
			logger.Component("session"),
			logger.Email(ch.Email),
			logger.Error(err),
		)
		return user, sess, fmt.Errorf("%w: %w", ErrSessionNotVisible, err)
	}

	c.current.Set(*sess)
	c.log.Info("code verified, session established",
		logger.Component("session"),
		logger.Email(ch.Email),
		logger.UserID(sess.UserID.String()),
	)
	return user, sess, nil
}

// ResendOTP requests a fresh code for the active challenge. The provider's
// sign-in send path covers both sign-up and sign-in cycles: once SignUp has
// been accepted the identity record exists, so a plain code send is all a
// resend needs.
func (c *Controller) ResendOTP(ctx context.Context) (*identity.ChallengeSent, error) {
	c.mu.Lock()
	ch := c.challenge
	c.mu.Unlock()
	if ch.Phase != PhaseSent {
		return nil, ErrNoActiveChallenge
	}

	sent, err := c.provider.SignInWithOTP(ctx, ch.Email)
	if err != nil {
		return nil, identity.Classify(err)
	}

	c.setChallenge(Challenge{Phase: PhaseSent, Email: ch.Email, IsSignUp: ch.IsSignUp, SentAt: c.now()})
	return sent, nil
}

// ResetPassword asks the provider to start a password reset for the email.
func (c *Controller) ResetPassword(ctx context.Context, email string) error {
	email = sanitizer.NormalizeEmail(email)
	if err := validator.Apply(
		validator.RequiredString("email", email),
		validator.ValidEmail("email", email),
	); err != nil {
		return errors.Join(identity.ErrInvalidInput, err)
	}

	if err := c.provider.ResetPasswordForEmail(ctx, email); err != nil {
		return identity.Classify(err)
	}
	return nil
}

// UpdatePassword changes the password on the current session.
func (c *Controller) UpdatePassword(ctx context.Context, newPassword string) error {
	sess, ok := c.current.Get()
	if !ok {
		return ErrNotAuthenticated
	}
	if err := validator.Apply(validator.RequiredString("password", newPassword)); err != nil {
		return errors.Join(identity.ErrInvalidInput, err)
	}

	if err := c.provider.UpdatePassword(ctx, sess.AccessToken, newPassword); err != nil {
		return identity.Classify(err)
	}
	return nil
}

// Refresh exchanges the current refresh token for a new session and
// publishes it.
func (c *Controller) Refresh(ctx context.Context) (*identity.Session, error) {
	sess, ok := c.current.Get()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	renewed, err := c.provider.RefreshSession(ctx, sess.RefreshToken)
	if err != nil {
		return nil, identity.Classify(err)
	}

	c.current.Set(*renewed)
	return renewed, nil
}

// SignOut revokes the current session at the provider and clears local state.
// The local session is cleared even when revocation fails, so a broken
// provider cannot keep a user signed in.
func (c *Controller) SignOut(ctx context.Context) error {
	sess, ok := c.current.Get()

	c.current.Clear()
	c.setChallenge(Challenge{Phase: PhaseNone})

	if !ok {
		return nil
	}
	if err := c.provider.SignOut(ctx, sess.AccessToken); err != nil {
		c.log.Warn("provider sign-out failed, local session cleared anyway",
			logger.Component("session"),
			logger.Error(err),
		)
		return identity.Classify(err)
	}
	return nil
}

func (c *Controller) setChallenge(ch Challenge) {
	c.mu.Lock()
	c.challenge = ch
	c.mu.Unlock()
}

func (c *Controller) awaitVisibility(ctx context.Context, accessToken string) error {
	backoff := retry.WithMaxRetries(c.visibilityAttempts-1, retry.NewConstant(c.visibilityInterval))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := c.provider.GetSession(ctx, accessToken)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

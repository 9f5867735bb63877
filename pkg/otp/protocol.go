// Package otp enforces the client-side rules around one-time-code
// verification: a cooldown between code sends and a cap on failed verify
// attempts, both applied before the identity provider is contacted.
package otp

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alumnihub/authflow/pkg/flowstash"
	"github.com/alumnihub/authflow/pkg/identity"
	"github.com/alumnihub/authflow/pkg/logger"
)

var (
	// ErrTooManyAttempts is returned once the failed-verify cap is reached.
	// Further codes are rejected locally until a resend issues a fresh one.
	ErrTooManyAttempts = errors.New("too many failed verification attempts")

	// ErrCooldownActive is returned when a resend is requested before the
	// cooldown from the previous send has elapsed.
	ErrCooldownActive = errors.New("resend cooldown is active")
)

// Verifier is the slice of the session controller the protocol drives.
type Verifier interface {
	VerifyOTP(ctx context.Context, code string) (*identity.User, *identity.Session, error)
	ResendOTP(ctx context.Context) (*identity.ChallengeSent, error)
}

// Protocol applies cooldown and attempt limiting on top of a Verifier.
type Protocol struct {
	verifier Verifier
	stash    flowstash.Stash
	log      *slog.Logger
	now      func() time.Time

	maxAttempts     int
	resendCooldown  time.Duration
	minLimitBackoff time.Duration

	mu            sync.Mutex
	failedVerifys int
	cooldownUntil time.Time
}

// ProtocolOption configures a Protocol.
type ProtocolOption func(*Protocol)

// WithStash attaches the flow stash so pending challenge data can be cleared
// once verification succeeds.
func WithStash(s flowstash.Stash) ProtocolOption {
	return func(p *Protocol) { p.stash = s }
}

// WithProtocolLogger sets the protocol logger.
func WithProtocolLogger(log *slog.Logger) ProtocolOption {
	return func(p *Protocol) { p.log = log }
}

// WithMaxAttempts overrides the failed-verify cap.
func WithMaxAttempts(n int) ProtocolOption {
	return func(p *Protocol) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithResendCooldown overrides the default cooldown between sends.
func WithResendCooldown(d time.Duration) ProtocolOption {
	return func(p *Protocol) {
		if d > 0 {
			p.resendCooldown = d
		}
	}
}

// WithProtocolTimeSource overrides the clock, for tests.
func WithProtocolTimeSource(now func() time.Time) ProtocolOption {
	return func(p *Protocol) { p.now = now }
}

// NewProtocol creates a Protocol over the given verifier.
func NewProtocol(verifier Verifier, opts ...ProtocolOption) *Protocol {
	p := &Protocol{
		verifier:        verifier,
		log:             logger.Discard(),
		now:             time.Now,
		maxAttempts:     3,
		resendCooldown:  60 * time.Second,
		minLimitBackoff: 12 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Verify submits a code. Once maxAttempts codes have failed, further calls
// are rejected with ErrTooManyAttempts without reaching the provider; a
// successful Resend issues a fresh code and resets the counter.
func (p *Protocol) Verify(ctx context.Context, code string) (*identity.User, *identity.Session, error) {
	p.mu.Lock()
	if p.failedVerifys >= p.maxAttempts {
		p.mu.Unlock()
		return nil, nil, ErrTooManyAttempts
	}
	p.mu.Unlock()

	user, sess, err := p.verifier.VerifyOTP(ctx, code)
	if sess == nil && err != nil {
		// Only a rejected code consumes an attempt. Transport and throttle
		// failures pass through without penalizing the user.
		if errors.Is(err, identity.ErrInvalidOrExpiredCode) {
			p.mu.Lock()
			p.failedVerifys++
			remaining := p.maxAttempts - p.failedVerifys
			p.mu.Unlock()

			p.log.Info("verification attempt failed",
				logger.Component("otp"),
				logger.Error(err),
				slog.Int("attempts_remaining", remaining),
			)
		}
		return nil, nil, err
	}

	p.mu.Lock()
	p.failedVerifys = 0
	p.mu.Unlock()

	p.clearPending(ctx)
	return user, sess, err
}

// Resend requests a fresh code. A successful send starts the standard
// cooldown and resets the failed-verify counter; a provider rate limit
// starts a cooldown from the provider's declared interval instead, falling
// back to a short fixed backoff when none is declared.
func (p *Protocol) Resend(ctx context.Context) (*identity.ChallengeSent, error) {
	p.mu.Lock()
	if remaining := p.cooldownUntil.Sub(p.now()); remaining > 0 {
		p.mu.Unlock()
		return nil, ErrCooldownActive
	}
	p.mu.Unlock()

	sent, err := p.verifier.ResendOTP(ctx)
	if err != nil {
		if errors.Is(err, identity.ErrRateLimited) {
			backoff := identity.RetryAfter(err)
			if backoff <= 0 {
				backoff = p.minLimitBackoff
			}
			p.startCooldown(backoff)
		}
		return nil, err
	}

	p.startCooldown(p.resendCooldown)

	p.mu.Lock()
	p.failedVerifys = 0
	p.mu.Unlock()

	p.log.Info("verification code resent", logger.Component("otp"))
	return sent, nil
}

// NoteSent records that a code was just sent outside the protocol, such as
// the initial send when the challenge is first raised. It arms the standard
// cooldown and resets the failed-verify counter so the new code starts with
// a full allowance.
func (p *Protocol) NoteSent() {
	p.mu.Lock()
	p.cooldownUntil = p.now().Add(p.resendCooldown)
	p.failedVerifys = 0
	p.mu.Unlock()
}

// RemainingCooldown reports how long until the next resend is permitted.
// Zero means a resend may be attempted now.
func (p *Protocol) RemainingCooldown() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	remaining := p.cooldownUntil.Sub(p.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AttemptsRemaining reports how many more codes may be submitted before the
// local cap rejects them.
func (p *Protocol) AttemptsRemaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	remaining := p.maxAttempts - p.failedVerifys
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (p *Protocol) startCooldown(d time.Duration) {
	p.mu.Lock()
	p.cooldownUntil = p.now().Add(d)
	p.mu.Unlock()
}

func (p *Protocol) clearPending(ctx context.Context) {
	if p.stash == nil {
		return
	}
	for _, key := range []string{flowstash.KeyPendingEmail, flowstash.KeyPendingIsSignUp} {
		if err := p.stash.Delete(ctx, key); err != nil && !errors.Is(err, flowstash.ErrNotFound) {
			p.log.Warn("failed to clear pending challenge data",
				logger.Component("otp"),
				logger.Error(err),
			)
		}
	}
}

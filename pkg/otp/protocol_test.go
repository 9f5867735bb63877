package otp_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alumnihub/authflow/pkg/flowstash"
	"github.com/alumnihub/authflow/pkg/identity"
	"github.com/alumnihub/authflow/pkg/otp"
)

type fakeVerifier struct {
	mu          sync.Mutex
	verifyErr   error
	verifyCalls int
	resendErr   error
	resendCalls int
}

func (f *fakeVerifier) VerifyOTP(ctx context.Context, code string) (*identity.User, *identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, nil, f.verifyErr
	}
	id := uuid.New()
	return &identity.User{ID: id}, &identity.Session{UserID: id, AccessToken: "at", RefreshToken: "rt"}, nil
}

func (f *fakeVerifier) ResendOTP(ctx context.Context) (*identity.ChallengeSent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resendCalls++
	if f.resendErr != nil {
		return nil, f.resendErr
	}
	return &identity.ChallengeSent{Email: "ada@inst.edu"}, nil
}

func (f *fakeVerifier) setVerifyErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyErr = err
}

func (f *fakeVerifier) calls() (verify, resend int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls, f.resendCalls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBadCode = identity.ErrInvalidOrExpiredCode

func TestProtocolAttemptCap(t *testing.T) {
	t.Parallel()

	t.Run("fourth code after three failures is rejected locally", func(t *testing.T) {
		t.Parallel()

		fv := &fakeVerifier{verifyErr: errBadCode}
		p := otp.NewProtocol(fv)

		for range 3 {
			_, _, err := p.Verify(context.Background(), "000000")
			require.ErrorIs(t, err, identity.ErrInvalidOrExpiredCode)
		}
		assert.Equal(t, 0, p.AttemptsRemaining())

		_, _, err := p.Verify(context.Background(), "123456")
		require.ErrorIs(t, err, otp.ErrTooManyAttempts)

		verify, _ := fv.calls()
		assert.Equal(t, 3, verify, "capped attempt never reaches the provider")
	})

	t.Run("success resets the counter", func(t *testing.T) {
		t.Parallel()

		fv := &fakeVerifier{verifyErr: errBadCode}
		p := otp.NewProtocol(fv)

		_, _, err := p.Verify(context.Background(), "000000")
		require.ErrorIs(t, err, identity.ErrInvalidOrExpiredCode)
		assert.Equal(t, 2, p.AttemptsRemaining())

		fv.setVerifyErr(nil)
		_, _, err = p.Verify(context.Background(), "123456")
		require.NoError(t, err)
		assert.Equal(t, 3, p.AttemptsRemaining())
	})

	t.Run("transport failures do not consume attempts", func(t *testing.T) {
		t.Parallel()

		fv := &fakeVerifier{verifyErr: identity.ErrProviderUnavailable}
		p := otp.NewProtocol(fv)

		_, _, err := p.Verify(context.Background(), "123456")
		require.ErrorIs(t, err, identity.ErrProviderUnavailable)
		assert.Equal(t, 3, p.AttemptsRemaining())
	})

	t.Run("resend unlocks a capped challenge", func(t *testing.T) {
		t.Parallel()

		fv := &fakeVerifier{verifyErr: errBadCode}
		p := otp.NewProtocol(fv)

		for range 3 {
			_, _, _ = p.Verify(context.Background(), "000000")
		}
		_, _, err := p.Verify(context.Background(), "123456")
		require.ErrorIs(t, err, otp.ErrTooManyAttempts)

		_, err = p.Resend(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, p.AttemptsRemaining())

		fv.setVerifyErr(nil)
		_, _, err = p.Verify(context.Background(), "123456")
		require.NoError(t, err)
	})
}

func TestProtocolResendCooldown(t *testing.T) {
	t.Parallel()

	t.Run("second resend within the cooldown is rejected locally", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		fv := &fakeVerifier{}
		p := otp.NewProtocol(fv, otp.WithProtocolTimeSource(clock.Now))

		_, err := p.Resend(context.Background())
		require.NoError(t, err)

		clock.Advance(30 * time.Second)
		_, err = p.Resend(context.Background())
		require.ErrorIs(t, err, otp.ErrCooldownActive)
		assert.Equal(t, 30*time.Second, p.RemainingCooldown())

		_, resend := fv.calls()
		assert.Equal(t, 1, resend, "rejected resend never reaches the provider")
	})

	t.Run("resend is permitted once the cooldown elapses", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		p := otp.NewProtocol(&fakeVerifier{}, otp.WithProtocolTimeSource(clock.Now))

		_, err := p.Resend(context.Background())
		require.NoError(t, err)

		clock.Advance(61 * time.Second)
		assert.Equal(t, time.Duration(0), p.RemainingCooldown())

		_, err = p.Resend(context.Background())
		require.NoError(t, err)
	})

	t.Run("initial send arms the cooldown before any resend", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		fv := &fakeVerifier{}
		p := otp.NewProtocol(fv, otp.WithProtocolTimeSource(clock.Now))

		// The first code goes out through the session controller, not the
		// protocol, so the send is reported after the fact.
		p.NoteSent()

		clock.Advance(30 * time.Second)
		_, err := p.Resend(context.Background())
		require.ErrorIs(t, err, otp.ErrCooldownActive)
		assert.Equal(t, 30*time.Second, p.RemainingCooldown())

		_, resend := fv.calls()
		assert.Equal(t, 0, resend, "rejected resend never reaches the provider")

		clock.Advance(31 * time.Second)
		_, err = p.Resend(context.Background())
		require.NoError(t, err)
	})

	t.Run("reported send resets the failed-verify counter", func(t *testing.T) {
		t.Parallel()

		fv := &fakeVerifier{verifyErr: errBadCode}
		p := otp.NewProtocol(fv)

		for range 3 {
			_, _, _ = p.Verify(context.Background(), "000000")
		}
		assert.Equal(t, 0, p.AttemptsRemaining())

		p.NoteSent()
		assert.Equal(t, 3, p.AttemptsRemaining())
	})

	t.Run("provider throttle starts a cooldown from its declared interval", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		throttle := identity.Classify(&identity.ProviderError{
			Message:    "For security purposes, you can only request this once every 60 seconds",
			Status:     429,
			RetryAfter: 42 * time.Second,
		})
		p := otp.NewProtocol(&fakeVerifier{resendErr: throttle},
			otp.WithProtocolTimeSource(clock.Now),
		)

		_, err := p.Resend(context.Background())
		require.ErrorIs(t, err, identity.ErrRateLimited)
		assert.Equal(t, 42*time.Second, p.RemainingCooldown())
	})

	t.Run("undeclared throttle interval falls back to a short backoff", func(t *testing.T) {
		t.Parallel()

		clock := newFakeClock()
		throttle := identity.Classify(&identity.ProviderError{Message: "over_email_send_rate_limit", Status: 429})
		p := otp.NewProtocol(&fakeVerifier{resendErr: throttle},
			otp.WithProtocolTimeSource(clock.Now),
		)

		_, err := p.Resend(context.Background())
		require.ErrorIs(t, err, identity.ErrRateLimited)
		assert.Equal(t, 12*time.Second, p.RemainingCooldown())
	})
}

func TestProtocolClearsPendingOnSuccess(t *testing.T) {
	t.Parallel()

	stash := flowstash.NewMemoryStash(time.Minute)
	ctx := context.Background()
	require.NoError(t, stash.Put(ctx, flowstash.KeyPendingEmail, "ada@inst.edu"))
	require.NoError(t, stash.Put(ctx, flowstash.KeyPendingIsSignUp, "true"))
	require.NoError(t, stash.Put(ctx, flowstash.KeyRedirectTarget, "/events/42"))

	p := otp.NewProtocol(&fakeVerifier{}, otp.WithStash(stash))

	_, _, err := p.Verify(ctx, "123456")
	require.NoError(t, err)

	_, err = stash.Get(ctx, flowstash.KeyPendingEmail)
	assert.ErrorIs(t, err, flowstash.ErrNotFound)
	_, err = stash.Get(ctx, flowstash.KeyPendingIsSignUp)
	assert.ErrorIs(t, err, flowstash.ErrNotFound)

	// The redirect target survives: it is consumed at navigation time, not
	// at verification time.
	target, err := stash.Get(ctx, flowstash.KeyRedirectTarget)
	require.NoError(t, err)
	assert.Equal(t, "/events/42", target)
}

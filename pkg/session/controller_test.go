package session_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alumnihub/authflow/pkg/identity"
	"github.com/alumnihub/authflow/pkg/session"
	"github.com/alumnihub/authflow/pkg/validator"
)

// fakeProvider scripts provider behavior per test through function fields.
// Unset fields fail loudly so a test cannot silently exercise the wrong path.
type fakeProvider struct {
	signUp           func(ctx context.Context, email, password string, metadata map[string]string) (*identity.ChallengeSent, error)
	signInPassword   func(ctx context.Context, email, password string) (*identity.Session, error)
	signInOTP        func(ctx context.Context, email string) (*identity.ChallengeSent, error)
	verifyOTP        func(ctx context.Context, email, code string) (*identity.User, *identity.Session, error)
	resetPassword    func(ctx context.Context, email string) error
	updatePassword   func(ctx context.Context, accessToken, newPassword string) error
	getSession       func(ctx context.Context, accessToken string) (*identity.Session, error)
	refreshSession   func(ctx context.Context, refreshToken string) (*identity.Session, error)
	signOut          func(ctx context.Context, accessToken string) error

	getSessionCalls atomic.Int64
	signInOTPCalls  atomic.Int64
}

func (f *fakeProvider) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*identity.ChallengeSent, error) {
	if f.signUp == nil {
		panic("unexpected SignUp call")
	}
	return f.signUp(ctx, email, password, metadata)
}

func (f *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	if f.signInPassword == nil {
		panic("unexpected SignInWithPassword call")
	}
	return f.signInPassword(ctx, email, password)
}

func (f *fakeProvider) SignInWithOTP(ctx context.Context, email string) (*identity.ChallengeSent, error) {
	f.signInOTPCalls.Add(1)
	if f.signInOTP == nil {
		panic("unexpected SignInWithOTP call")
	}
	return f.signInOTP(ctx, email)
}

func (f *fakeProvider) VerifyOTP(ctx context.Context, email, code string) (*identity.User, *identity.Session, error) {
	if f.verifyOTP == nil {
		panic("unexpected VerifyOTP call")
	}
	return f.verifyOTP(ctx, email, code)
}

func (f *fakeProvider) ResetPasswordForEmail(ctx context.Context, email string) error {
	if f.resetPassword == nil {
		panic("unexpected ResetPasswordForEmail call")
	}
	return f.resetPassword(ctx, email)
}

func (f *fakeProvider) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	if f.updatePassword == nil {
		panic("unexpected UpdatePassword call")
	}
	return f.updatePassword(ctx, accessToken, newPassword)
}

func (f *fakeProvider) GetSession(ctx context.Context, accessToken string) (*identity.Session, error) {
	f.getSessionCalls.Add(1)
	if f.getSession == nil {
		panic("unexpected GetSession call")
	}
	return f.getSession(ctx, accessToken)
}

func (f *fakeProvider) RefreshSession(ctx context.Context, refreshToken string) (*identity.Session, error) {
	if f.refreshSession == nil {
		panic("unexpected RefreshSession call")
	}
	return f.refreshSession(ctx, refreshToken)
}

func (f *fakeProvider) SignOut(ctx context.Context, accessToken string) error {
	if f.signOut == nil {
		panic("unexpected SignOut call")
	}
	return f.signOut(ctx, accessToken)
}

func testSession() *identity.Session {
	return &identity.Session{
		UserID:       uuid.New(),
		AccessToken:  "at-" + uuid.NewString(),
		RefreshToken: "rt-" + uuid.NewString(),
		ExpiresAt:    time.Now().Add(time.Hour),
	}
}

func TestControllerSignUpWithOTP(t *testing.T) {
	t.Parallel()

	t.Run("normalizes the email and starts a challenge", func(t *testing.T) {
		t.Parallel()

		var sentTo string
		fp := &fakeProvider{
			signUp: func(ctx context.Context, email, password string, metadata map[string]string) (*identity.ChallengeSent, error) {
				sentTo = email
				return &identity.ChallengeSent{Email: email}, nil
			},
		}
		ctrl := session.NewController(fp)

		sent, err := ctrl.SignUpWithOTP(context.Background(), "  Ada@Inst.EDU ", "hunter22", nil)
		require.NoError(t, err)
		assert.Equal(t, "ada@inst.edu", sentTo)
		assert.Equal(t, "ada@inst.edu", sent.Email)

		ch := ctrl.Challenge()
		assert.Equal(t, session.PhaseSent, ch.Phase)
		assert.Equal(t, "ada@inst.edu", ch.Email)
		assert.True(t, ch.IsSignUp)
	})

	t.Run("rejects malformed email before contacting the provider", func(t *testing.T) {
		t.Parallel()

		ctrl := session.NewController(&fakeProvider{})

		_, err := ctrl.SignUpWithOTP(context.Background(), "not-an-email", "pw", nil)
		require.ErrorIs(t, err, identity.ErrInvalidInput)
		assert.True(t, validator.Extract(err).Has("email"))
	})

	t.Run("rejects non-institutional domains", func(t *testing.T) {
		t.Parallel()

		ctrl := session.NewController(&fakeProvider{},
			session.WithAllowlist(validator.NewDomainAllowlist("inst.edu")),
		)

		_, err := ctrl.SignUpWithOTP(context.Background(), "ada@gmail.com", "pw", nil)
		require.ErrorIs(t, err, identity.ErrInvalidDomain)
	})

	t.Run("admits subdomains of allowed domains", func(t *testing.T) {
		t.Parallel()

		fp := &fakeProvider{
			signUp: func(ctx context.Context, email, password string, metadata map[string]string) (*identity.ChallengeSent, error) {
				return &identity.ChallengeSent{Email: email}, nil
			},
		}
		ctrl := session.NewController(fp,
			session.WithAllowlist(validator.NewDomainAllowlist("inst.edu")),
		)

		_, err := ctrl.SignUpWithOTP(context.Background(), "ada@alumni.inst.edu", "pw", nil)
		require.NoError(t, err)
	})

	t.Run("classifies provider errors", func(t *testing.T) {
		t.Parallel()

		fp := &fakeProvider{
			signUp: func(ctx context.Context, email, password string, metadata map[string]string) (*identity.ChallengeSent, error) {
				return nil, &identity.ProviderError{Message: "User already registered", Status: 422}
			},
		}
		ctrl := session.NewController(fp)

		_, err := ctrl.SignUpWithOTP(context.Background(), "ada@inst.edu", "pw", nil)
		require.ErrorIs(t, err, identity.ErrAlreadyRegistered)
		assert.Equal(t, session.PhaseNone, ctrl.Challenge().Phase)
	})
}

func TestControllerVerifyOTP(t *testing.T) {
	t.Parallel()

	t.Run("requires an active challenge", func(t *testing.T) {
		t.Parallel()

		ctrl := session.NewController(&fakeProvider{})

		_, _, err := ctrl.VerifyOTP(context.Background(), "123456")
		require.ErrorIs(t, err, session.ErrNoActiveChallenge)
	})

	t.Run("rejects malformed codes locally", func(t *testing.T) {
		t.Parallel()

		ctrl := newChallengedController(t, &fakeProvider{
			signInOTP: func(ctx context.Context, email string) (*identity.ChallengeSent, error) {
				return &identity.ChallengeSent{Email: email}, nil
			},
		})

		_, _, err := ctrl.VerifyOTP(context.Background(), "12ab56")
		require.ErrorIs(t, err, identity.ErrInvalidOrExpiredCode)
	})

	t.Run("publishes the session once visible", func(t *testing.T) {
		t.Parallel()

		sess := testSession()
		user := &identity.User{ID: sess.UserID, Email: "ada@inst.edu", EmailVerified: true}
		fp := &fakeProvider{
			signInOTP: func(ctx context.Context, email string) (*identity.ChallengeSent, error) {
				return &identity.ChallengeSent{Email: email}, nil
			},
			verifyOTP: func(ctx context.Context, email, code string) (*identity.User, *identity.Session, error) {
				return user, sess, nil
			},
			getSession: func(ctx context.Context, accessToken string) (*identity.Session, error) {
				return sess, nil
			},
		}
		ctrl := newChallengedController(t, fp)

		gotUser, gotSess, err := ctrl.VerifyOTP(context.Background(), "123456")
		require.NoError(t, err)
		assert.Equal(t, user.ID, gotUser.ID)
		assert.Equal(t, sess.AccessToken, gotSess.AccessToken)

		current, ok := ctrl.Session()
		require.True(t, ok)
		assert.Equal(t, sess.AccessToken, current.AccessToken)
		assert.Equal(t, session.PhaseVerified, ctrl.Challenge().Phase)
	})

	t.Run("retries until the session becomes visible", func(t *testing.T) {
		t.Parallel()

		sess := testSession()
		fp := &fakeProvider{
			signInOTP: func(ctx context.Context, email string) (*identity.ChallengeSent, error) {
				return &identity.ChallengeSent{Email: email}, nil
			},
			verifyOTP: func(ctx context.Context, email, code string) (*identity.User, *identity.Session, error) {
				return &identity.User{ID: sess.UserID}, sess, nil
			},
		}
		fp.getSession = func(ctx context.Context, accessToken string) (*identity.Session, error) {
			if fp.getSessionCalls.Load() < 3 {
				return nil, &identity.ProviderError{Message: "session_not_found", Status: 404}
			}
			return sess, nil
		}
		ctrl := newChallengedController(t, fp,
			session.WithVisibilityPolling(5, time.Millisecond),
		)

		_, _, err := ctrl.VerifyOTP(context.Background(), "123456")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, fp.getSessionCalls.Load(), int64(3))
	})

	t.Run("returns the session with ErrSessionNotVisible on exhaustion", func(t *testing.T) {
		t.Parallel()

		sess := testSession()
		fp := &fakeProvider{
			signInOTP: func(ctx context.Context, email string) (*identity.ChallengeSent, error) {
				return &identity.ChallengeSent{Email: email}, nil
			},
			verifyOTP: func(ctx context.Context, email, code string) (*identity.User, *identity.Session, error) {
				return &identity.User{ID: sess.UserID}, sess, nil
			},
			getSession: func(ctx context.Context, accessToken string) (*identity.Session, error) {
				return nil, &identity.ProviderError{Message: "session_not_found", Status: 404}
			},
		}
		ctrl := newChallengedController(t, fp,
			session.WithVisibilityPolling(3, time.Millisecond),
		)

		_, gotSess, err := ctrl.VerifyOTP(context.Background(), "123456")
		require.ErrorIs(t, err, session.ErrSessionNotVisible)
		require.NotNil(t, gotSess)
		assert.Equal(t, int64(3), fp.getSessionCalls.Load())

		// The session is still published despite the readback miss.
		current, ok := ctrl.Session()
		require.True(t, ok)
		assert.Equal(t, sess.AccessToken, current.AccessToken)
	})

	t.Run("wrong code keeps the challenge active", func(t *testing.T) {
		t.Parallel()

		fp := &fakeProvider{
			signInOTP: func(ctx context.Context, email string) (*identity.ChallengeSent, error) {
				return &identity.ChallengeSent{Email: email}, nil
			},
			verifyOTP: func(ctx context.Context, email, code string) (*identity.User, *identity.Session, error) {
				return nil, nil, &identity.ProviderError{Message: "Token has expired or is invalid", Status: 401}
			},
		}
		ctrl := newChallengedController(t, fp)

		_, _, err := ctrl.VerifyOTP(context.Background(), "000000")
		require.ErrorIs(t, err, identity.ErrInvalidOrExpiredCode)
		assert.Equal(t, session.PhaseSent, ctrl.Challenge().Phase)
	})
}

func TestControllerResendOTP(t *testing.T) {
	t.Parallel()

	t.Run("requires an active challenge", func(t *testing.T) {
		t.Parallel()

		ctrl := session.NewController(&fakeProvider{})

		_, err := ctrl.ResendOTP(context.Background())
		require.ErrorIs(t, err, session.ErrNoActiveChallenge)
	})

	t.Run("resends to the challenge email for a sign-up cycle too", func(t *testing.T) {
		t.Parallel()

		var resentTo string
		fp := &fakeProvider{
			signUp: func(ctx context.Context, email, password string, metadata map[string]string) (*identity.ChallengeSent, error) {
				return &identity.ChallengeSent{Email: email}, nil
			},
			signInOTP: func(ctx context.Context, email string) (*identity.ChallengeSent, error) {
				resentTo = email
				return &identity.ChallengeSent{Email: email}, nil
			},
		}
		ctrl := session.NewController(fp)

		_, err := ctrl.SignUpWithOTP(context.Background(), "ada@inst.edu", "pw", nil)
		require.NoError(t, err)

		_, err = ctrl.ResendOTP(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ada@inst.edu", resentTo)
		assert.True(t, ctrl.Challenge().IsSignUp, "resend keeps the cycle kind")
	})

	t.Run("surfaces provider throttling with its retry interval", func(t *testing.T) {
		t.Parallel()

		fp := &fakeProvider{
			signInOTP: func(ctx context.Context, email string) (*identity.ChallengeSent, error) {
				return nil, &identity.ProviderError{
					Message:    "For security purposes, you can only request this once every 60 seconds",
					Status:     429,
					RetryAfter: 42 * time.Second,
				}
			},
		}
		ctrl := newChallengedController(t, fp)

		_, err := ctrl.ResendOTP(context.Background())
		require.ErrorIs(t, err, identity.ErrRateLimited)
		assert.Equal(t, 42*time.Second, identity.RetryAfter(err))
	})
}

func TestControllerSignOut(t *testing.T) {
	t.Parallel()

	t.Run("revokes and clears the session", func(t *testing.T) {
		t.Parallel()

		sess := testSession()
		var revoked string
		fp := signedInProvider(sess)
		fp.signOut = func(ctx context.Context, accessToken string) error {
			revoked = accessToken
			return nil
		}
		ctrl := newSignedInController(t, fp)

		require.NoError(t, ctrl.SignOut(context.Background()))
		assert.Equal(t, sess.AccessToken, revoked)

		_, ok := ctrl.Session()
		assert.False(t, ok)
		assert.True(t, ctrl.Current().Known(), "signed out is a known state, not unknown")
	})

	t.Run("clears local state even when revocation fails", func(t *testing.T) {
		t.Parallel()

		fp := signedInProvider(testSession())
		fp.signOut = func(ctx context.Context, accessToken string) error {
			return &identity.ProviderError{Message: "upstream down", Status: 503}
		}
		ctrl := newSignedInController(t, fp)

		err := ctrl.SignOut(context.Background())
		require.ErrorIs(t, err, identity.ErrProviderUnavailable)

		_, ok := ctrl.Session()
		assert.False(t, ok)
	})

	t.Run("without a session is a no-op", func(t *testing.T) {
		t.Parallel()

		ctrl := session.NewController(&fakeProvider{})
		require.NoError(t, ctrl.SignOut(context.Background()))
	})
}

func TestControllerObservableSession(t *testing.T) {
	t.Parallel()

	fp := signedInProvider(testSession())
	ctrl := session.NewController(fp)

	updates, cancel := ctrl.Current().Subscribe()
	defer cancel()

	assert.False(t, ctrl.Current().Known(), "session state starts unknown")

	_, err := ctrl.SignInWithPassword(context.Background(), "ada@inst.edu", "pw")
	require.NoError(t, err)

	select {
	case u := <-updates:
		assert.True(t, u.Present)
	case <-time.After(time.Second):
		t.Fatal("no update after sign-in")
	}
}

func TestControllerUpdatePassword(t *testing.T) {
	t.Parallel()

	t.Run("requires a session", func(t *testing.T) {
		t.Parallel()

		ctrl := session.NewController(&fakeProvider{})
		err := ctrl.UpdatePassword(context.Background(), "new-pw")
		require.ErrorIs(t, err, session.ErrNotAuthenticated)
	})

	t.Run("uses the current access token", func(t *testing.T) {
		t.Parallel()

		sess := testSession()
		var usedToken string
		fp := signedInProvider(sess)
		fp.updatePassword = func(ctx context.Context, accessToken, newPassword string) error {
			usedToken = accessToken
			return nil
		}
		ctrl := newSignedInController(t, fp)

		require.NoError(t, ctrl.UpdatePassword(context.Background(), "new-pw"))
		assert.Equal(t, sess.AccessToken, usedToken)
	})
}

// newChallengedController returns a controller with an active sign-in
// challenge for ada@inst.edu.
func newChallengedController(t *testing.T, fp *fakeProvider, opts ...session.Option) *session.Controller {
	t.Helper()

	if fp.signInOTP == nil {
		fp.signInOTP = func(ctx context.Context, email string) (*identity.ChallengeSent, error) {
			return &identity.ChallengeSent{Email: email}, nil
		}
	}
	ctrl := session.NewController(fp, opts...)
	_, err := ctrl.SignInWithOTP(context.Background(), "ada@inst.edu")
	require.NoError(t, err)
	return ctrl
}

// signedInProvider scripts a provider whose password sign-in returns sess.
func signedInProvider(sess *identity.Session) *fakeProvider {
	return &fakeProvider{
		signInPassword: func(ctx context.Context, email, password string) (*identity.Session, error) {
			return sess, nil
		},
	}
}

func newSignedInController(t *testing.T, fp *fakeProvider) *session.Controller {
	t.Helper()

	ctrl := session.NewController(fp)
	_, err := ctrl.SignInWithPassword(context.Background(), "ada@inst.edu", "pw")
	require.NoError(t, err)
	return ctrl
}

package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/alumnihub/authflow/pkg/email"
	"github.com/alumnihub/authflow/pkg/logger"
	"github.com/alumnihub/authflow/pkg/token"
)

// refreshClaims is the payload carried inside a signed refresh token.
type refreshClaims struct {
	SessionID uuid.UUID `json:"sid"`
	UserID    uuid.UUID `json:"uid"`
}

// LocalConfig configures the in-process provider.
type LocalConfig struct {
	CodeTTL         time.Duration `env:"LOCAL_IDP_CODE_TTL" envDefault:"10m"`
	ResendInterval  time.Duration `env:"LOCAL_IDP_RESEND_INTERVAL" envDefault:"12s"`
	SessionTTL      time.Duration `env:"LOCAL_IDP_SESSION_TTL" envDefault:"1h"`
	VisibilityDelay time.Duration `env:"LOCAL_IDP_VISIBILITY_DELAY" envDefault:"0s"`
	SigningSecret   string        `env:"LOCAL_IDP_SIGNING_SECRET" envDefault:"dev-signing-secret"`
}

type localUser struct {
	id           uuid.UUID
	email        string
	passwordHash []byte
	verified     bool
	metadata     map[string]string
	createdAt    time.Time
}

type localChallenge struct {
	code      string
	signup    bool
	sentAt    time.Time
	expiresAt time.Time
}

type localSession struct {
	session   Session
	visibleAt time.Time
}

// LocalProvider is a complete in-process identity provider: bcrypt password
// hashes, JWT access tokens, emailed 6-digit codes, per-email resend
// throttling and single-use code semantics. VisibilityDelay reproduces the
// eventual-consistency window of hosted providers: a freshly issued session
// is invisible to GetSession until the window elapses, so the controller's
// visibility polling is exercisable in tests.
type LocalProvider struct {
	mu         sync.Mutex
	cfg        LocalConfig
	mailer     email.Sender
	log        *slog.Logger
	now        func() time.Time
	users      map[string]*localUser
	challenges map[string]*localChallenge
	sessions   map[string]*localSession // keyed by access token
	refresh    map[string]string        // refresh token -> access token
}

// LocalOption configures a LocalProvider.
type LocalOption func(*LocalProvider)

// WithLocalMailer sets the sender used to deliver one-time codes.
func WithLocalMailer(mailer email.Sender) LocalOption {
	return func(p *LocalProvider) { p.mailer = mailer }
}

// WithLocalLogger sets the provider logger.
func WithLocalLogger(log *slog.Logger) LocalOption {
	return func(p *LocalProvider) { p.log = log }
}

// WithLocalTimeSource overrides the clock, for tests.
func WithLocalTimeSource(now func() time.Time) LocalOption {
	return func(p *LocalProvider) { p.now = now }
}

// NewLocalProvider creates a LocalProvider with the given configuration.
func NewLocalProvider(cfg LocalConfig, opts ...LocalOption) *LocalProvider {
	p := &LocalProvider{
		cfg:        cfg,
		log:        logger.Discard(),
		now:        time.Now,
		users:      make(map[string]*localUser),
		challenges: make(map[string]*localChallenge),
		sessions:   make(map[string]*localSession),
		refresh:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *LocalProvider) SignUp(ctx context.Context, email, password string, metadata map[string]string) (*ChallengeSent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.users[email]; exists {
		return nil, &ProviderError{Status: 422, Message: "User already registered"}
	}

	user := &localUser{
		id:        uuid.New(),
		email:     email,
		metadata:  metadata,
		createdAt: p.now(),
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, &ProviderError{Status: 500, Message: "failed to hash password"}
		}
		user.passwordHash = hash
	}
	p.users[email] = user

	return p.issueChallenge(ctx, email, true)
}

func (p *LocalProvider) SignInWithOTP(ctx context.Context, email string) (*ChallengeSent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.users[email]; !exists {
		return nil, &ProviderError{Status: 404, Message: "User not found"}
	}
	return p.issueChallenge(ctx, email, false)
}

func (p *LocalProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	user, exists := p.users[email]
	if !exists || user.passwordHash == nil {
		return nil, &ProviderError{Status: 400, Message: "Invalid login credentials"}
	}
	if err := bcrypt.CompareHashAndPassword(user.passwordHash, []byte(password)); err != nil {
		return nil, &ProviderError{Status: 400, Message: "Invalid login credentials"}
	}
	if !user.verified {
		return nil, &ProviderError{Status: 400, Message: "Email not confirmed"}
	}

	session, err := p.mintSession(user)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (p *LocalProvider) VerifyOTP(ctx context.Context, email, code string) (*User, *Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	challenge, ok := p.challenges[email]
	if !ok || p.now().After(challenge.expiresAt) || challenge.code != code {
		return nil, nil, &ProviderError{Status: 400, Message: "Token has expired or is invalid"}
	}

	// Codes are single-use regardless of outcome from here on.
	delete(p.challenges, email)

	user := p.users[email]
	user.verified = true

	session, err := p.mintSession(user)
	if err != nil {
		return nil, nil, err
	}
	return p.publicUser(user), &session, nil
}

func (p *LocalProvider) GetSession(ctx context.Context, accessToken string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.sessions[accessToken]
	if !ok || p.now().Before(entry.visibleAt) {
		// Sessions inside the visibility window are indistinguishable from
		// missing ones, matching hosted provider read-replica behavior.
		return nil, &ProviderError{Status: 404, Message: "Session not found"}
	}

	session := entry.session
	return &session, nil
}

func (p *LocalProvider) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := token.Parse[refreshClaims](refreshToken, p.cfg.SigningSecret); err != nil {
		return nil, &ProviderError{Status: 400, Message: "Invalid refresh token"}
	}

	accessToken, ok := p.refresh[refreshToken]
	if !ok {
		return nil, &ProviderError{Status: 400, Message: "Invalid refresh token"}
	}

	entry := p.sessions[accessToken]
	user := p.userByID(entry.session.UserID)
	if user == nil {
		return nil, &ProviderError{Status: 404, Message: "User not found"}
	}

	delete(p.sessions, accessToken)
	delete(p.refresh, refreshToken)

	session, err := p.mintSession(user)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (p *LocalProvider) ResetPasswordForEmail(ctx context.Context, address string) error {
	p.mu.Lock()
	user, exists := p.users[address]
	p.mu.Unlock()

	// Do not leak account existence through the reset endpoint.
	if !exists || p.mailer == nil {
		return nil
	}

	msg := email.PasswordResetNotice(user.email, "/auth/reset-password")
	if err := p.mailer.Send(ctx, msg); err != nil {
		p.log.Warn("failed to send password reset notice", logger.Error(err), logger.Email(address))
	}
	return nil
}

func (p *LocalProvider) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.sessions[accessToken]
	if !ok {
		return &ProviderError{Status: 401, Message: "Session not found"}
	}

	user := p.userByID(entry.session.UserID)
	if user == nil {
		return &ProviderError{Status: 404, Message: "User not found"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return &ProviderError{Status: 500, Message: "failed to hash password"}
	}
	user.passwordHash = hash
	return nil
}

func (p *LocalProvider) SignOut(ctx context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.sessions[accessToken]; ok {
		delete(p.refresh, entry.session.RefreshToken)
		delete(p.sessions, accessToken)
	}
	return nil
}

// PendingCode returns the live one-time code for an email, for development
// tooling and tests. Production providers have no equivalent.
func (p *LocalProvider) PendingCode(address string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	challenge, ok := p.challenges[address]
	if !ok || p.now().After(challenge.expiresAt) {
		return "", false
	}
	return challenge.code, true
}

// issueChallenge enforces the resend interval, stores a fresh code and emails
// it. Callers must hold p.mu.
func (p *LocalProvider) issueChallenge(ctx context.Context, address string, signup bool) (*ChallengeSent, error) {
	now := p.now()

	if prev, ok := p.challenges[address]; ok {
		if remaining := p.cfg.ResendInterval - now.Sub(prev.sentAt); remaining > 0 {
			return nil, &ProviderError{
				Status:     429,
				Message:    fmt.Sprintf("For security purposes, you can only request this after %d seconds.", int(remaining.Seconds())+1),
				RetryAfter: remaining,
			}
		}
	}

	code, err := generateCode()
	if err != nil {
		return nil, &ProviderError{Status: 500, Message: "failed to generate code"}
	}

	p.challenges[address] = &localChallenge{
		code:      code,
		signup:    signup,
		sentAt:    now,
		expiresAt: now.Add(p.cfg.CodeTTL),
	}

	if p.mailer != nil {
		if err := p.mailer.Send(ctx, email.VerificationCode(address, code)); err != nil {
			p.log.Warn("failed to deliver verification code", logger.Error(err), logger.Email(address))
		}
	}

	return &ChallengeSent{Email: address, SentAt: now, RetryAfter: p.cfg.ResendInterval}, nil
}

// mintSession issues a JWT-backed session. Callers must hold p.mu.
func (p *LocalProvider) mintSession(user *localUser) (Session, error) {
	now := p.now()
	expiresAt := now.Add(p.cfg.SessionTTL)

	claims := jwt.RegisteredClaims{
		Subject:   user.id.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(p.cfg.SigningSecret))
	if err != nil {
		return Session{}, &ProviderError{Status: 500, Message: "failed to sign access token"}
	}

	refreshToken, err := token.Sign(refreshClaims{SessionID: uuid.New(), UserID: user.id}, p.cfg.SigningSecret)
	if err != nil {
		return Session{}, &ProviderError{Status: 500, Message: "failed to sign refresh token"}
	}

	session := Session{
		UserID:       user.id,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}
	p.sessions[accessToken] = &localSession{
		session:   session,
		visibleAt: now.Add(p.cfg.VisibilityDelay),
	}
	p.refresh[session.RefreshToken] = accessToken

	return session, nil
}

func (p *LocalProvider) userByID(id uuid.UUID) *localUser {
	for _, user := range p.users {
		if user.id == id {
			return user
		}
	}
	return nil
}

func (p *LocalProvider) publicUser(user *localUser) *User {
	return &User{
		ID:            user.id,
		Email:         user.email,
		EmailVerified: user.verified,
		Metadata:      user.metadata,
		CreatedAt:     user.createdAt,
	}
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

var _ Provider = (*LocalProvider)(nil)

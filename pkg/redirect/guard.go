// Package redirect decides where an authenticated user should land after the
// auth flow finishes, and guarantees that at most one navigation is ever
// performed per guard instance no matter how many concurrent evaluations race.
package redirect

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alumnihub/authflow/pkg/flowstash"
	"github.com/alumnihub/authflow/pkg/identity"
	"github.com/alumnihub/authflow/pkg/logger"
	"github.com/alumnihub/authflow/pkg/profile"
	"github.com/alumnihub/authflow/pkg/sanitizer"
)

// Route identifies the page the user is currently on.
type Route string

const (
	RouteLogin          Route = "/login"
	RouteSignUp         Route = "/signup"
	RouteVerify         Route = "/verify-otp"
	RouteProfile        Route = "/complete-profile"
	RouteForgotPassword Route = "/forgot-password"
)

// IsAuthRoute reports whether the route belongs to the auth flow. A signed-in
// user with a complete profile has no business staying on these pages.
func (r Route) IsAuthRoute() bool {
	switch r {
	case RouteLogin, RouteSignUp, RouteVerify, RouteProfile, RouteForgotPassword:
		return true
	}
	return false
}

// Decision is the guard's verdict for one evaluation.
type Decision string

const (
	// DecisionWait means the session or profile state is still unknown and
	// nothing may happen yet.
	DecisionWait Decision = "wait"
	// DecisionNone means the user is already where they belong.
	DecisionNone Decision = "none"
	// DecisionLogin sends an unauthenticated user to the login page.
	DecisionLogin Decision = "login"
	// DecisionProfileStep sends an authenticated user with an incomplete
	// profile to the profile step.
	DecisionProfileStep Decision = "profile-step"
	// DecisionNavigate sends a fully set up user to their destination.
	DecisionNavigate Decision = "navigate"
)

// Evaluation is a snapshot of the state the guard decides on. Known flags
// distinguish "not loaded yet" from "loaded and absent"; the guard never acts
// on unknown state.
type Evaluation struct {
	Session      identity.Session
	SessionKnown bool
	Profile      *profile.UserProfile
	ProfileKnown bool
	Route        Route
}

// Navigator performs the actual page transition. Navigate may fail; Force is
// the last-resort hard transition that cannot.
type Navigator interface {
	Navigate(ctx context.Context, path string) error
	Force(path string)
}

// Syncer pushes the session to the server before navigating, so the
// destination page sees the user as signed in on first render.
type Syncer interface {
	Push(ctx context.Context, sess identity.Session) error
}

// Guard owns the one-shot navigation latch. Construct one guard per flow
// instance; the latch is never cleared, not even when navigation fails.
type Guard struct {
	nav           Navigator
	syncer        Syncer
	stash         flowstash.Stash
	log           *slog.Logger
	defaultTarget string

	mu      sync.Mutex
	latched bool
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithSyncer attaches a server session sync performed before navigation.
func WithSyncer(s Syncer) GuardOption {
	return func(g *Guard) { g.syncer = s }
}

// WithTargetStash attaches the flow stash holding the remembered redirect
// target.
func WithTargetStash(s flowstash.Stash) GuardOption {
	return func(g *Guard) { g.stash = s }
}

// WithDefaultTarget overrides the landing path used when no target was
// remembered.
func WithDefaultTarget(path string) GuardOption {
	return func(g *Guard) {
		if path != "" {
			g.defaultTarget = path
		}
	}
}

// WithGuardLogger sets the guard logger.
func WithGuardLogger(log *slog.Logger) GuardOption {
	return func(g *Guard) { g.log = log }
}

// NewGuard creates a Guard that navigates through nav.
func NewGuard(nav Navigator, opts ...GuardOption) *Guard {
	g := &Guard{
		nav:           nav,
		log:           logger.Discard(),
		defaultTarget: "/",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Latched reports whether the one-shot navigation has been claimed.
func (g *Guard) Latched() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latched
}

// RememberTarget sanitizes a requested post-login destination and stores it
// for consumption at navigation time. Unsafe targets are discarded and the
// sanitized result (possibly empty) is returned.
func (g *Guard) RememberTarget(ctx context.Context, raw string) string {
	target := sanitizer.SanitizeRedirectPath(raw)
	if target == "" || g.stash == nil {
		return target
	}
	if err := g.stash.Put(ctx, flowstash.KeyRedirectTarget, target); err != nil {
		g.log.Warn("failed to remember redirect target",
			logger.Component("redirect"),
			logger.Error(err),
		)
	}
	return target
}

// Evaluate computes the verdict for a state snapshot without acting on it.
func (g *Guard) Evaluate(ev Evaluation) Decision {
	if !ev.SessionKnown {
		return DecisionWait
	}

	if ev.Session.IsZero() {
		if ev.Route.IsAuthRoute() {
			return DecisionNone
		}
		return DecisionLogin
	}

	if !ev.ProfileKnown {
		return DecisionWait
	}

	if ev.Profile == nil || !ev.Profile.IsProfileComplete {
		// The profile step is terminal for an incomplete profile: once
		// there, the user stays until they finish it.
		if ev.Route == RouteProfile {
			return DecisionNone
		}
		return DecisionProfileStep
	}

	if ev.Route.IsAuthRoute() {
		return DecisionNavigate
	}
	return DecisionNone
}

// Redirect evaluates the snapshot and performs the resulting navigation.
// Only the terminal DecisionNavigate claims the one-shot latch, and it is
// claimed before any awaited work starts, so a second evaluation arriving
// while sync or navigation is in flight cannot trigger a duplicate
// transition. Login and profile-step routing are not completion events:
// they navigate without touching the latch, and the terminal navigation
// stays available for when the user finishes the flow. Returns the decision
// that was acted on; callers that only want the verdict should use Evaluate.
func (g *Guard) Redirect(ctx context.Context, ev Evaluation) (Decision, error) {
	decision := g.Evaluate(ev)

	switch decision {
	case DecisionWait, DecisionNone:
		return decision, nil
	case DecisionNavigate:
		g.mu.Lock()
		if g.latched {
			g.mu.Unlock()
			return DecisionNone, nil
		}
		g.latched = true
		g.mu.Unlock()
	}

	path := g.destination(ctx, decision)

	if decision == DecisionNavigate && g.syncer != nil {
		if err := g.syncer.Push(ctx, ev.Session); err != nil {
			// The destination page can recover the session itself; a failed
			// sync must not strand the user on an auth page.
			g.log.Warn("session sync before navigation failed",
				logger.Component("redirect"),
				logger.Error(err),
			)
		}
	}

	if err := g.nav.Navigate(ctx, path); err != nil {
		g.log.Error("navigation failed, forcing transition",
			logger.Component("redirect"),
			logger.Error(err),
			slog.String("path", path),
		)
		g.nav.Force(path)
		return decision, err
	}

	g.log.Info("navigated",
		logger.Component("redirect"),
		slog.String("decision", string(decision)),
		slog.String("path", path),
	)
	return decision, nil
}

func (g *Guard) destination(ctx context.Context, decision Decision) string {
	switch decision {
	case DecisionLogin:
		return string(RouteLogin)
	case DecisionProfileStep:
		return string(RouteProfile)
	}
	return g.consumeTarget(ctx)
}

// consumeTarget pops the remembered target, falling back to the default
// landing path. The stored value is re-sanitized on the way out in case the
// stash was written by an older client.
func (g *Guard) consumeTarget(ctx context.Context) string {
	if g.stash == nil {
		return g.defaultTarget
	}

	raw, err := g.stash.Get(ctx, flowstash.KeyRedirectTarget)
	if err != nil {
		if !errors.Is(err, flowstash.ErrNotFound) {
			g.log.Warn("failed to read redirect target",
				logger.Component("redirect"),
				logger.Error(err),
			)
		}
		return g.defaultTarget
	}

	if err := g.stash.Delete(ctx, flowstash.KeyRedirectTarget); err != nil && !errors.Is(err, flowstash.ErrNotFound) {
		g.log.Warn("failed to clear redirect target",
			logger.Component("redirect"),
			logger.Error(err),
		)
	}

	if target := sanitizer.SanitizeRedirectPath(raw); target != "" {
		return target
	}
	return g.defaultTarget
}

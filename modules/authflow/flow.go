// Package authflow sequences the authentication UI steps. The flow is a
// state machine over the auth pages; every step change goes through Advance,
// so the UI can only move along edges that make sense for the current state.
package authflow

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/alumnihub/authflow/pkg/flowstash"
	"github.com/alumnihub/authflow/pkg/logger"
	"github.com/alumnihub/authflow/pkg/observable"
	"github.com/alumnihub/authflow/pkg/statemachine"
)

// Step identifies one page of the auth flow.
type Step = statemachine.StringState

const (
	StepLogin           Step = "login"
	StepSignUp          Step = "signup"
	StepOTPVerification Step = "otp-verification"
	StepProfile         Step = "profile"
	StepForgotPassword  Step = "forgot-password"
	StepLoginComplete   Step = "login-complete"
)

// Events that move the flow between steps.
const (
	EventGoToSignUp         = statemachine.StringEvent("go-to-signup")
	EventGoToLogin          = statemachine.StringEvent("go-to-login")
	EventGoToForgotPassword = statemachine.StringEvent("go-to-forgot-password")
	EventCodeSent           = statemachine.StringEvent("code-sent")
	EventCodeVerified       = statemachine.StringEvent("code-verified")
	EventProfileCompleted   = statemachine.StringEvent("profile-completed")
	EventResetRequested     = statemachine.StringEvent("reset-requested")
)

// ErrFlowClosed is returned by Advance after Close. A closed flow ignores
// late async results instead of mutating state for a page that is gone.
var ErrFlowClosed = errors.New("auth flow is closed")

// CodeSentPayload accompanies EventCodeSent.
type CodeSentPayload struct {
	Email    string
	IsSignUp bool
}

// VerifiedPayload accompanies EventCodeVerified and chooses between the
// profile step and completion.
type VerifiedPayload struct {
	ProfileComplete bool
}

// CodeSentListener is notified when a fresh challenge code goes out, so
// resend cooldowns can start from the initial send rather than the first
// resend. *otp.Protocol satisfies it.
type CodeSentListener interface {
	NoteSent()
}

// FlowState is a read-only snapshot of the flow.
type FlowState struct {
	Step         Step
	PendingEmail string
	IsSignUp     bool
	Closed       bool
}

// Flow drives the auth step sequence.
type Flow struct {
	machine  *statemachine.Machine
	stash    flowstash.Stash
	log      *slog.Logger
	steps    *observable.Value[Step]
	listener CodeSentListener

	initial Step

	mu           sync.Mutex
	closed       bool
	resuming     bool
	pendingEmail string
	isSignUp     bool
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithFlowStash attaches the flow stash so pending challenge data survives a
// page reload.
func WithFlowStash(s flowstash.Stash) FlowOption {
	return func(f *Flow) { f.stash = s }
}

// WithFlowLogger sets the flow logger.
func WithFlowLogger(log *slog.Logger) FlowOption {
	return func(f *Flow) { f.log = log }
}

// WithCodeSentListener registers a listener for code-sent transitions.
func WithCodeSentListener(l CodeSentListener) FlowOption {
	return func(f *Flow) { f.listener = l }
}

// WithInitialStep starts the flow on a step other than login, for deep links
// straight into sign-up or password recovery.
func WithInitialStep(step Step) FlowOption {
	return func(f *Flow) { f.initial = step }
}

// NewFlow creates a flow positioned at the login step unless WithInitialStep
// says otherwise.
func NewFlow(opts ...FlowOption) *Flow {
	f := &Flow{
		log:     logger.Discard(),
		steps:   observable.NewValue[Step](),
		initial: StepLogin,
	}
	for _, opt := range opts {
		opt(f)
	}

	profileNeeded := func(ctx context.Context, from statemachine.State, event statemachine.Event, data any) bool {
		p, ok := data.(VerifiedPayload)
		return ok && !p.ProfileComplete
	}
	profileDone := func(ctx context.Context, from statemachine.State, event statemachine.Event, data any) bool {
		p, ok := data.(VerifiedPayload)
		return ok && p.ProfileComplete
	}

	f.machine = statemachine.MustNew(f.initial,
		statemachine.WithTransition(StepLogin, StepSignUp, EventGoToSignUp),
		statemachine.WithTransition(StepSignUp, StepLogin, EventGoToLogin),
		statemachine.WithTransition(StepLogin, StepForgotPassword, EventGoToForgotPassword),
		statemachine.WithTransition(StepForgotPassword, StepLogin, EventGoToLogin),
		statemachine.WithTransition(StepForgotPassword, StepLogin, EventResetRequested),

		statemachine.WithTransition(StepLogin, StepOTPVerification, EventCodeSent,
			statemachine.WithAction(f.rememberChallenge),
		),
		statemachine.WithTransition(StepSignUp, StepOTPVerification, EventCodeSent,
			statemachine.WithAction(f.rememberChallenge),
		),
		statemachine.WithTransition(StepOTPVerification, StepLogin, EventGoToLogin,
			statemachine.WithAction(f.forgetChallenge),
		),

		statemachine.WithTransition(StepOTPVerification, StepProfile, EventCodeVerified,
			statemachine.WithGuard(profileNeeded),
		),
		statemachine.WithTransition(StepOTPVerification, StepLoginComplete, EventCodeVerified,
			statemachine.WithGuard(profileDone),
		),
		statemachine.WithTransition(StepProfile, StepLoginComplete, EventProfileCompleted),
	)

	f.steps.Set(f.initial)
	return f
}

// State returns a snapshot of the flow.
func (f *Flow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FlowState{
		Step:         f.machine.Current().(Step),
		PendingEmail: f.pendingEmail,
		IsSignUp:     f.isSignUp,
		Closed:       f.closed,
	}
}

// Steps exposes the observable current step for UI subscriptions.
func (f *Flow) Steps() *observable.Value[Step] {
	return f.steps
}

// Advance fires an event against the flow. Events that do not apply to the
// current step return a no-transition error and leave the flow unchanged;
// a closed flow rejects everything with ErrFlowClosed.
func (f *Flow) Advance(ctx context.Context, event statemachine.Event, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrFlowClosed
	}

	from := f.machine.Current()
	if err := f.machine.Fire(ctx, event, payload); err != nil {
		return err
	}

	current := f.machine.Current().(Step)
	f.steps.Set(current)
	f.log.Debug("flow advanced",
		logger.Component("authflow"),
		logger.FlowStep(current.Name()),
		slog.String("from", from.Name()),
		slog.String("event", event.Name()),
	)
	return nil
}

// CanAdvance reports whether the event applies to the current step.
func (f *Flow) CanAdvance(ctx context.Context, event statemachine.Event, payload any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	return f.machine.CanFire(ctx, event, payload)
}

// Close marks the flow dead. Late async completions that would call Advance
// become no-ops via ErrFlowClosed. Close is idempotent.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

// Resume restores a reloaded flow from the stash: when a pending challenge
// exists the flow re-enters the verification step instead of login.
func (f *Flow) Resume(ctx context.Context) error {
	if f.stash == nil {
		return nil
	}

	email, err := f.stash.Get(ctx, flowstash.KeyPendingEmail)
	if err != nil {
		if errors.Is(err, flowstash.ErrNotFound) {
			return nil
		}
		return err
	}

	isSignUp := false
	if raw, err := f.stash.Get(ctx, flowstash.KeyPendingIsSignUp); err == nil {
		isSignUp, _ = strconv.ParseBool(raw)
	}

	f.mu.Lock()
	f.resuming = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.resuming = false
		f.mu.Unlock()
	}()

	if isSignUp {
		if err := f.Advance(ctx, EventGoToSignUp, nil); err != nil {
			return err
		}
	}
	return f.Advance(ctx, EventCodeSent, CodeSentPayload{Email: email, IsSignUp: isSignUp})
}

func (f *Flow) rememberChallenge(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
	p, ok := data.(CodeSentPayload)
	if !ok || p.Email == "" {
		return errors.New("code-sent event requires the challenge email")
	}

	f.pendingEmail = p.Email
	f.isSignUp = p.IsSignUp

	if f.stash != nil {
		if err := f.stash.Put(ctx, flowstash.KeyPendingEmail, p.Email); err != nil {
			return err
		}
		if err := f.stash.Put(ctx, flowstash.KeyPendingIsSignUp, strconv.FormatBool(p.IsSignUp)); err != nil {
			return err
		}
	}

	// A resumed flow re-enters verification without a new code going out, so
	// the listener only fires for a genuine send.
	if f.listener != nil && !f.resuming {
		f.listener.NoteSent()
	}
	return nil
}

func (f *Flow) forgetChallenge(ctx context.Context, from, to statemachine.State, event statemachine.Event, data any) error {
	f.pendingEmail = ""
	f.isSignUp = false

	if f.stash != nil {
		for _, key := range []string{flowstash.KeyPendingEmail, flowstash.KeyPendingIsSignUp} {
			if err := f.stash.Delete(ctx, key); err != nil && !errors.Is(err, flowstash.ErrNotFound) {
				return err
			}
		}
	}
	return nil
}

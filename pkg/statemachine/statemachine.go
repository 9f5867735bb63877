package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// State is a named machine state.
type State interface {
	Name() string
}

// Event is a named trigger for a transition.
type Event interface {
	Name() string
}

// Guard decides at runtime whether a transition may proceed.
type Guard func(ctx context.Context, from State, event Event, data any) bool

// Action runs side effects during a transition. Returning an error aborts the
// transition before the state changes.
type Action func(ctx context.Context, from, to State, event Event, data any) error

// Transition is a state change triggered by an event.
type Transition struct {
	From    State
	To      State
	Event   Event
	Guards  []Guard
	Actions []Action
}

// StringState is a string-backed State for the common case.
type StringState string

func (s StringState) Name() string { return string(s) }

// StringEvent is a string-backed Event for the common case.
type StringEvent string

func (e StringEvent) Name() string { return string(e) }

// Machine is a concurrency-safe finite state machine. Transitions are indexed
// by [fromState][event] for constant-time lookup; multiple transitions per
// pair are allowed so guards can implement branching, first match wins.
type Machine struct {
	mu          sync.RWMutex
	initial     State
	current     State
	transitions map[string]map[string][]Transition
}

func newMachine(initial State) *Machine {
	return &Machine{
		initial:     initial,
		current:     initial,
		transitions: make(map[string]map[string][]Transition),
	}
}

// Current returns the machine's current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// AddTransition registers a transition.
func (m *Machine) AddTransition(from, to State, event Event, guards []Guard, actions []Action) error {
	if from == nil || to == nil || event == nil {
		return ErrInvalidTransition
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byEvent, ok := m.transitions[from.Name()]
	if !ok {
		byEvent = make(map[string][]Transition)
		m.transitions[from.Name()] = byEvent
	}
	byEvent[event.Name()] = append(byEvent[event.Name()], Transition{
		From:    from,
		To:      to,
		Event:   event,
		Guards:  guards,
		Actions: actions,
	})
	return nil
}

// Fire applies an event. The first registered transition whose guards all pass
// is taken; its actions run before the state changes and any action error
// aborts the transition.
func (m *Machine) Fire(ctx context.Context, event Event, data any) error {
	if event == nil {
		return ErrInvalidEvent
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	candidates, ok := m.transitions[m.current.Name()][event.Name()]
	if !ok || len(candidates) == 0 {
		return &NoTransitionError{State: m.current.Name(), Event: event.Name()}
	}

	transition := firstAllowed(ctx, m.current, event, data, candidates)
	if transition == nil {
		return &RejectedError{State: m.current.Name(), Event: event.Name()}
	}

	for _, action := range transition.Actions {
		if action == nil {
			continue
		}
		if err := action(ctx, m.current, transition.To, event, data); err != nil {
			return fmt.Errorf("transition action failed: %w", err)
		}
	}

	m.current = transition.To
	return nil
}

// CanFire reports whether the event would be accepted in the current state.
func (m *Machine) CanFire(ctx context.Context, event Event, data any) bool {
	if event == nil {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := m.transitions[m.current.Name()][event.Name()]
	return firstAllowed(ctx, m.current, event, data, candidates) != nil
}

// Reset returns the machine to its initial state.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
}

func firstAllowed(ctx context.Context, from State, event Event, data any, candidates []Transition) *Transition {
	for i := range candidates {
		allowed := true
		for _, guard := range candidates[i].Guards {
			if guard != nil && !guard(ctx, from, event, data) {
				allowed = false
				break
			}
		}
		if allowed {
			return &candidates[i]
		}
	}
	return nil
}

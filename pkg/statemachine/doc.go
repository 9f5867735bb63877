// Package statemachine implements a small finite-state-machine engine used to
// sequence the authentication flow steps.
//
// States and events are plain named values (StringState / StringEvent cover
// the common case). Transitions carry optional guards, evaluated before the
// transition is accepted, and actions, executed before the state changes; an
// action error aborts the transition and leaves the machine in its previous
// state. All operations are safe for concurrent use.
//
//	machine := statemachine.MustNew(login,
//	    statemachine.WithTransition(login, otpVerification, codeRequested),
//	)
//	err := machine.Fire(ctx, codeRequested, payload)
//
// Fire returns typed errors distinguishing "no such transition" from "guards
// rejected it"; use IsNoTransition and IsRejected to branch on them.
package statemachine

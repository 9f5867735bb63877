// Package observable provides a generic observed value holder with explicit
// subscribe/notify semantics.
//
// A Value starts in the "unknown" state, which is distinct from holding the
// zero value: consumers that must not act on partial information (such as the
// redirect guard) block until the value is known. Writers publish immutable
// snapshots; subscribers receive them over buffered channels and slow
// subscribers have updates dropped rather than blocking the writer.
package observable

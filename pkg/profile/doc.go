// Package profile owns the alumni user profile record keyed by identity id.
//
// The central contract is idempotent creation: CreateOrFetch converges on one
// logical profile per identity no matter how many times it is called: a
// duplicate submission, a retried request after a network blip, or two tabs
// racing each other all observe the same record and none of them observes an
// error. Conflicts are resolved inside the gateway and never surface to
// callers.
//
// Completeness (first name, last name, branch, graduation year all present)
// is the predicate the redirect guard uses to decide between the profile step
// and flow completion. A profile's completeness flag moves false to true at
// most once and never reverses here.
package profile

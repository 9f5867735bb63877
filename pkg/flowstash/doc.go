// Package flowstash provides the short-lived, flow-scoped key/value area the
// auth flow uses to stage state across steps and page loads: the email
// pending verification and the post-profile redirect target.
//
// Entries carry a TTL and the whole scope is cleared on successful completion
// or explicit abandonment. The in-memory store covers single-process use and
// tests; the Redis store covers deployments where the flow may resume on a
// different instance (duplicate tab, server-rendered round trip).
package flowstash

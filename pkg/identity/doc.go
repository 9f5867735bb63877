// Package identity defines the external identity provider contract consumed
// by the session controller, the error taxonomy authentication failures are
// classified into, and LocalProvider, a complete in-process implementation
// used by tests and development environments.
//
// Provider errors arrive as loosely structured {message, status} pairs;
// Classify maps them onto the package's sentinel errors so callers branch with
// errors.Is instead of string matching. Rate-limit classifications preserve
// the provider-declared retry interval, reachable via RetryAfter.
package identity

// Package sanitizer provides input normalization helpers for the auth flow:
// email normalization and masking, person-name normalization, and the
// same-origin redirect-path sanitizer that keeps post-auth navigation targets
// from escaping the application origin.
//
// All functions are pure; invalid input is returned in a safe neutral form
// rather than reported as an error, so callers can sanitize unconditionally
// before validation.
package sanitizer

package flowstash

import (
	"context"
	"errors"
)

// Well-known stash keys used by the auth flow.
const (
	KeyPendingEmail    = "pending_email"
	KeyRedirectTarget  = "pending_redirect"
	KeyPendingIsSignUp = "pending_is_signup"
)

var ErrNotFound = errors.New("flowstash: key not found")

// Stash is a flow-scoped key/value area. Implementations expire entries after
// the TTL configured at construction and must treat Get of a missing or
// expired key as ErrNotFound.
type Stash interface {
	Put(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	// Clear removes every entry in this flow's scope.
	Clear(ctx context.Context) error
}

package profile

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrProfileNotFound = errors.New("profile not found")

// ConflictError signals that a profile already exists for the identity. It
// carries the existing record so the gateway can resolve the conflict without
// an extra round trip; stores that cannot cheaply fetch the winner may leave
// Existing nil.
type ConflictError struct {
	Existing *UserProfile
}

func (e *ConflictError) Error() string {
	return "profile already exists for identity"
}

// Store is the persistence interface behind the gateway.
type Store interface {
	// Create inserts a profile. A duplicate AuthID returns *ConflictError.
	Create(ctx context.Context, p *UserProfile) (*UserProfile, error)
	FindByAuthID(ctx context.Context, authID uuid.UUID) (*UserProfile, error)
	Update(ctx context.Context, p *UserProfile) (*UserProfile, error)
}

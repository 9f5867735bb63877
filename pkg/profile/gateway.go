package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alumnihub/authflow/pkg/logger"
	"github.com/alumnihub/authflow/pkg/sanitizer"
)

// Gateway exposes profile operations to the auth flow.
type Gateway struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithGatewayLogger sets the gateway logger.
func WithGatewayLogger(log *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.log = log }
}

// WithGatewayTimeSource overrides the clock, for tests.
func WithGatewayTimeSource(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

// NewGateway creates a Gateway over the given store.
func NewGateway(store Store, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		store: store,
		log:   logger.Discard(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreateOrFetch returns the profile for authID, creating it when absent.
// Retried and concurrent calls for the same identity converge on the same
// record: a conflict from the store is resolved to the existing profile and
// is never surfaced to the caller.
func (g *Gateway) CreateOrFetch(ctx context.Context, authID uuid.UUID, fields Fields) (*UserProfile, error) {
	existing, err := g.store.FindByAuthID(ctx, authID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}

	candidate := g.newProfile(authID, fields)

	created, err := g.store.Create(ctx, candidate)
	if err == nil {
		return created, nil
	}

	var conflict *ConflictError
	if errors.As(err, &conflict) {
		// A concurrent create won the race. Its record is the truth.
		g.log.Debug("profile create lost race, using existing record",
			logger.Component("profile"),
			logger.UserID(authID.String()),
		)
		if conflict.Existing != nil {
			return conflict.Existing, nil
		}
		return g.store.FindByAuthID(ctx, authID)
	}

	return nil, fmt.Errorf("failed to create profile: %w", err)
}

// Complete applies the profile-step fields and marks the profile complete
// when the required fields are all present. The completeness flag only moves
// forward: completing an already-complete profile updates fields but never
// clears the flag.
func (g *Gateway) Complete(ctx context.Context, authID uuid.UUID, fields Fields) (*UserProfile, error) {
	current, err := g.store.FindByAuthID(ctx, authID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile for completion: %w", err)
	}

	updated := *current
	applyFields(&updated, fields)
	updated.UpdatedAt = g.now()

	if !updated.IsProfileComplete && g.IsComplete(&updated) {
		updated.IsProfileComplete = true
	}

	result, err := g.store.Update(ctx, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return result, nil
}

// MarkEmailVerified records provider-confirmed email verification.
func (g *Gateway) MarkEmailVerified(ctx context.Context, authID uuid.UUID) (*UserProfile, error) {
	current, err := g.store.FindByAuthID(ctx, authID)
	if err != nil {
		return nil, err
	}
	if current.IsEmailVerified {
		return current, nil
	}

	updated := *current
	updated.IsEmailVerified = true
	updated.UpdatedAt = g.now()
	return g.store.Update(ctx, &updated)
}

// FindByAuthID returns the profile for an identity, or ErrProfileNotFound.
func (g *Gateway) FindByAuthID(ctx context.Context, authID uuid.UUID) (*UserProfile, error) {
	return g.store.FindByAuthID(ctx, authID)
}

// IsComplete reports whether the required profile fields are all present.
func (g *Gateway) IsComplete(p *UserProfile) bool {
	if p == nil {
		return false
	}
	return p.FirstName != "" && p.LastName != "" && p.BranchCode != "" && p.GraduationYear > 0
}

func (g *Gateway) newProfile(authID uuid.UUID, fields Fields) *UserProfile {
	now := g.now()
	p := &UserProfile{
		ID:        uuid.New(),
		AuthID:    authID,
		Role:      RoleAlumni,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyFields(p, fields)
	if g.IsComplete(p) {
		p.IsProfileComplete = true
	}
	return p
}

func applyFields(p *UserProfile, fields Fields) {
	if fields.FirstName != "" {
		p.FirstName = sanitizer.NormalizeName(fields.FirstName)
	}
	if fields.LastName != "" {
		p.LastName = sanitizer.NormalizeName(fields.LastName)
	}
	if fields.BranchCode != "" {
		p.BranchCode = fields.BranchCode
	}
	if fields.AdmissionYear != 0 {
		p.AdmissionYear = fields.AdmissionYear
	}
	if fields.GraduationYear != 0 {
		p.GraduationYear = fields.GraduationYear
	}
	if fields.Role != "" {
		p.Role = fields.Role
	}
}

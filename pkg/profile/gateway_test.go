package profile_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alumnihub/authflow/pkg/profile"
)

func TestGatewayCreateOrFetch(t *testing.T) {
	t.Parallel()

	t.Run("creates a profile when none exists", func(t *testing.T) {
		t.Parallel()

		gw := profile.NewGateway(profile.NewMemoryStore())
		authID := uuid.New()

		p, err := gw.CreateOrFetch(context.Background(), authID, profile.Fields{
			FirstName: "ada",
			LastName:  "lovelace",
		})
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, authID, p.AuthID)
		assert.NotEqual(t, uuid.Nil, p.ID)
		assert.Equal(t, "Ada", p.FirstName)
		assert.Equal(t, "Lovelace", p.LastName)
		assert.Equal(t, profile.RoleAlumni, p.Role)
		assert.False(t, p.IsProfileComplete)
	})

	t.Run("repeat calls return the same record", func(t *testing.T) {
		t.Parallel()

		gw := profile.NewGateway(profile.NewMemoryStore())
		authID := uuid.New()

		first, err := gw.CreateOrFetch(context.Background(), authID, profile.Fields{FirstName: "Ada"})
		require.NoError(t, err)

		second, err := gw.CreateOrFetch(context.Background(), authID, profile.Fields{FirstName: "Grace"})
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "Ada", second.FirstName, "existing record wins over new fields")
	})

	t.Run("concurrent calls converge on one record", func(t *testing.T) {
		t.Parallel()

		gw := profile.NewGateway(profile.NewMemoryStore())
		authID := uuid.New()

		const callers = 8
		results := make([]*profile.UserProfile, callers)
		errs := make([]error, callers)

		var wg sync.WaitGroup
		for i := range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], errs[i] = gw.CreateOrFetch(context.Background(), authID, profile.Fields{})
			}()
		}
		wg.Wait()

		for i := range callers {
			require.NoError(t, errs[i])
			require.NotNil(t, results[i])
			assert.Equal(t, results[0].ID, results[i].ID)
		}
	})

	t.Run("resolves a store conflict without surfacing it", func(t *testing.T) {
		t.Parallel()

		winner := &profile.UserProfile{ID: uuid.New(), AuthID: uuid.New()}
		store := &conflictingStore{existing: winner}
		gw := profile.NewGateway(store)

		p, err := gw.CreateOrFetch(context.Background(), winner.AuthID, profile.Fields{})
		require.NoError(t, err)
		assert.Equal(t, winner.ID, p.ID)
	})

	t.Run("complete seed fields mark the profile complete at creation", func(t *testing.T) {
		t.Parallel()

		gw := profile.NewGateway(profile.NewMemoryStore())

		p, err := gw.CreateOrFetch(context.Background(), uuid.New(), profile.Fields{
			FirstName:      "Ada",
			LastName:       "Lovelace",
			BranchCode:     "CSE",
			GraduationYear: 2015,
		})
		require.NoError(t, err)
		assert.True(t, p.IsProfileComplete)
	})
}

func TestGatewayComplete(t *testing.T) {
	t.Parallel()

	t.Run("sets the completeness flag once required fields are present", func(t *testing.T) {
		t.Parallel()

		gw := profile.NewGateway(profile.NewMemoryStore())
		authID := uuid.New()

		_, err := gw.CreateOrFetch(context.Background(), authID, profile.Fields{})
		require.NoError(t, err)

		p, err := gw.Complete(context.Background(), authID, profile.Fields{
			FirstName:      "Ada",
			LastName:       "Lovelace",
			BranchCode:     "CSE",
			AdmissionYear:  2011,
			GraduationYear: 2015,
		})
		require.NoError(t, err)
		assert.True(t, p.IsProfileComplete)
		assert.Equal(t, 2011, p.AdmissionYear)
		assert.Equal(t, 2015, p.GraduationYear)
	})

	t.Run("leaves the flag unset while required fields are missing", func(t *testing.T) {
		t.Parallel()

		gw := profile.NewGateway(profile.NewMemoryStore())
		authID := uuid.New()

		_, err := gw.CreateOrFetch(context.Background(), authID, profile.Fields{})
		require.NoError(t, err)

		p, err := gw.Complete(context.Background(), authID, profile.Fields{FirstName: "Ada"})
		require.NoError(t, err)
		assert.False(t, p.IsProfileComplete)
	})

	t.Run("completeness flag never moves backward", func(t *testing.T) {
		t.Parallel()

		gw := profile.NewGateway(profile.NewMemoryStore())
		authID := uuid.New()

		_, err := gw.CreateOrFetch(context.Background(), authID, profile.Fields{
			FirstName:      "Ada",
			LastName:       "Lovelace",
			BranchCode:     "CSE",
			GraduationYear: 2015,
		})
		require.NoError(t, err)

		// A later edit with partial fields must not clear the flag.
		p, err := gw.Complete(context.Background(), authID, profile.Fields{FirstName: "Augusta"})
		require.NoError(t, err)
		assert.True(t, p.IsProfileComplete)
		assert.Equal(t, "Augusta", p.FirstName)
	})

	t.Run("unknown identity returns not found", func(t *testing.T) {
		t.Parallel()

		gw := profile.NewGateway(profile.NewMemoryStore())

		_, err := gw.Complete(context.Background(), uuid.New(), profile.Fields{})
		require.ErrorIs(t, err, profile.ErrProfileNotFound)
	})
}

func TestGatewayMarkEmailVerified(t *testing.T) {
	t.Parallel()

	gw := profile.NewGateway(profile.NewMemoryStore())
	authID := uuid.New()

	_, err := gw.CreateOrFetch(context.Background(), authID, profile.Fields{})
	require.NoError(t, err)

	p, err := gw.MarkEmailVerified(context.Background(), authID)
	require.NoError(t, err)
	assert.True(t, p.IsEmailVerified)

	// Idempotent on repeat.
	again, err := gw.MarkEmailVerified(context.Background(), authID)
	require.NoError(t, err)
	assert.True(t, again.IsEmailVerified)
	assert.Equal(t, p.ID, again.ID)
}

func TestGatewayTimeSource(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	gw := profile.NewGateway(profile.NewMemoryStore(),
		profile.WithGatewayTimeSource(func() time.Time { return fixed }),
	)

	p, err := gw.CreateOrFetch(context.Background(), uuid.New(), profile.Fields{})
	require.NoError(t, err)
	assert.Equal(t, fixed, p.CreatedAt)
	assert.Equal(t, fixed, p.UpdatedAt)
}

// conflictingStore reports not-found on lookup but a conflict on create,
// mimicking a racing writer between the two calls.
type conflictingStore struct {
	existing *profile.UserProfile
}

func (s *conflictingStore) Create(ctx context.Context, p *profile.UserProfile) (*profile.UserProfile, error) {
	return nil, &profile.ConflictError{Existing: s.existing}
}

func (s *conflictingStore) FindByAuthID(ctx context.Context, authID uuid.UUID) (*profile.UserProfile, error) {
	return nil, profile.ErrProfileNotFound
}

func (s *conflictingStore) Update(ctx context.Context, p *profile.UserProfile) (*profile.UserProfile, error) {
	return p, nil
}

package profile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alumnihub/authflow/pkg/pg"
)

// PostgresStore persists profiles in PostgreSQL. The unique constraint on
// auth_id is what makes concurrent creates safe: the loser of an insert race
// gets a ConflictError carrying the winner's record.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over an established pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const profileColumns = `id, auth_id, first_name, last_name, branch_code,
	admission_year, graduation_year, is_email_verified, is_profile_complete,
	role, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *UserProfile) (*UserProfile, error) {
	query := `INSERT INTO user_profiles
		(id, auth_id, first_name, last_name, branch_code, admission_year,
		 graduation_year, is_email_verified, is_profile_complete, role,
		 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + profileColumns

	row := s.pool.QueryRow(ctx, query,
		p.ID, p.AuthID, p.FirstName, p.LastName, p.BranchCode,
		p.AdmissionYear, p.GraduationYear, p.IsEmailVerified,
		p.IsProfileComplete, p.Role, p.CreatedAt, p.UpdatedAt,
	)

	created, err := scanProfile(row)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			existing, findErr := s.FindByAuthID(ctx, p.AuthID)
			if findErr != nil {
				return nil, &ConflictError{}
			}
			return nil, &ConflictError{Existing: existing}
		}
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) FindByAuthID(ctx context.Context, authID uuid.UUID) (*UserProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM user_profiles WHERE auth_id = $1`

	found, err := scanProfile(s.pool.QueryRow(ctx, query, authID))
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return found, nil
}

func (s *PostgresStore) Update(ctx context.Context, p *UserProfile) (*UserProfile, error) {
	query := `UPDATE user_profiles SET
		first_name = $2, last_name = $3, branch_code = $4, admission_year = $5,
		graduation_year = $6, is_email_verified = $7,
		is_profile_complete = (is_profile_complete OR $8), role = $9,
		updated_at = $10
		WHERE auth_id = $1
		RETURNING ` + profileColumns

	row := s.pool.QueryRow(ctx, query,
		p.AuthID, p.FirstName, p.LastName, p.BranchCode, p.AdmissionYear,
		p.GraduationYear, p.IsEmailVerified, p.IsProfileComplete, p.Role,
		p.UpdatedAt,
	)

	updated, err := scanProfile(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*UserProfile, error) {
	var p UserProfile
	err := row.Scan(
		&p.ID, &p.AuthID, &p.FirstName, &p.LastName, &p.BranchCode,
		&p.AdmissionYear, &p.GraduationYear, &p.IsEmailVerified,
		&p.IsProfileComplete, &p.Role, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

var _ Store = (*PostgresStore)(nil)

package profile

import (
	"time"

	"github.com/google/uuid"
)

// Role values assigned to profiles.
const (
	RoleAlumni  = "alumni"
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// UserProfile is the alumni-network profile record for one identity.
type UserProfile struct {
	ID                uuid.UUID
	AuthID            uuid.UUID
	FirstName         string
	LastName          string
	BranchCode        string
	AdmissionYear     int
	GraduationYear    int
	IsEmailVerified   bool
	IsProfileComplete bool
	Role              string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Fields carries the caller-editable profile attributes, used both as the
// seed at creation and as the patch when completing the profile step.
type Fields struct {
	FirstName      string
	LastName       string
	BranchCode     string
	AdmissionYear  int
	GraduationYear int
	Role           string
}

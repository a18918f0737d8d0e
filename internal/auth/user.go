// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// UserRecord is an account as stored in the user directory. The password
// hash is opaque to everything except the PasswordHasher; raw passwords are
// never retained beyond the call that produced or checked them.
type UserRecord struct {
	ID           ulid.ULID
	Username     string
	PasswordHash string
	Role         Role
	Active       bool

	// AssignedClinicianID is the clinician responsible for this user.
	// Only meaningful when Role is RolePatient; nil otherwise or when no
	// assignment has been made.
	AssignedClinicianID *ulid.ULID

	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Actor is the identity currently authenticated and making requests. It is
// owned exclusively by the Service for the lifetime of the session and
// cleared on logout or session invalidation.
type Actor struct {
	ID       ulid.ULID
	Username string
	Role     Role
	Active   bool
}

// Directory is the external user store. All operations perform I/O and may
// fail with transient infrastructure errors; callers bound them with a
// context deadline so a stalled store cannot block the core indefinitely.
type Directory interface {
	// FindByUsername retrieves a user by username (case-insensitive).
	// Returns ErrNotFound when no such user exists.
	FindByUsername(ctx context.Context, username string) (*UserRecord, error)

	// FindByID retrieves a user by ID. Returns ErrNotFound when absent.
	FindByID(ctx context.Context, id ulid.ULID) (*UserRecord, error)

	// UpdateLastLogin records a successful login timestamp.
	UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error

	// UpdatePasswordHash overwrites the stored password hash.
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error

	// FindAssignedClinician returns the clinician assigned to a patient.
	// Returns ErrNotFound when the patient has no assignment.
	FindAssignedClinician(ctx context.Context, patientID ulid.ULID) (ulid.ULID, error)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

// Package postgres implements the auth.Directory port over PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/caregate/caregate/internal/auth"
)

// db is the subset of pgxpool.Pool the repository needs. pgxmock satisfies
// it too, which keeps the unit tests off a live database.
type db interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DirectoryRepo implements auth.Directory using PostgreSQL.
type DirectoryRepo struct {
	pool db
}

// NewDirectoryRepo creates a DirectoryRepo.
func NewDirectoryRepo(pool db) *DirectoryRepo {
	return &DirectoryRepo{pool: pool}
}

const userColumns = `id, username, password_hash, role, active, assigned_clinician_id, last_login_at, created_at, updated_at`

// Create stores a new user. Returns auth.ErrUserExists when the username is
// already taken (case-insensitively).
func (r *DirectoryRepo) Create(ctx context.Context, user *auth.UserRecord) error {
	var assigned *string
	if user.AssignedClinicianID != nil {
		s := user.AssignedClinicianID.String()
		assigned = &s
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (
			id, username, password_hash, role, active,
			assigned_clinician_id, last_login_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		user.ID.String(),
		user.Username,
		user.PasswordHash,
		user.Role.String(),
		user.Active,
		assigned,
		user.LastLoginAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_EXISTS").
				With("username", user.Username).
				Wrap(auth.ErrUserExists)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", user.Username).
			Wrap(err)
	}
	return nil
}

// FindByUsername retrieves a user by username (case-insensitive).
func (r *DirectoryRepo) FindByUsername(ctx context.Context, username string) (*auth.UserRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE LOWER(username) = LOWER($1)
	`, username)

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("username", username).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_USERNAME_FAILED").
			With("operation", "get user by username").
			With("username", username).
			Wrap(err)
	}
	return user, nil
}

// FindByID retrieves a user by ID.
func (r *DirectoryRepo) FindByID(ctx context.Context, id ulid.ULID) (*auth.UserRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id.String())

	user, err := r.scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// UpdateLastLogin records a successful login timestamp.
func (r *DirectoryRepo) UpdateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET last_login_at = $2, updated_at = now() WHERE id = $1
	`, id.String(), at)
	if err != nil {
		return oops.Code("USER_UPDATE_LAST_LOGIN_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// UpdatePasswordHash overwrites the stored password hash.
func (r *DirectoryRepo) UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1
	`, id.String(), hash)
	if err != nil {
		return oops.Code("USER_UPDATE_PASSWORD_FAILED").
			With("id", id.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// FindAssignedClinician returns the clinician assigned to a patient, or
// auth.ErrNotFound when the patient does not exist or has no assignment.
func (r *DirectoryRepo) FindAssignedClinician(ctx context.Context, patientID ulid.ULID) (ulid.ULID, error) {
	var assigned *string
	err := r.pool.QueryRow(ctx, `
		SELECT assigned_clinician_id FROM users WHERE id = $1
	`, patientID.String()).Scan(&assigned)
	if errors.Is(err, pgx.ErrNoRows) {
		return ulid.ULID{}, oops.Code("USER_NOT_FOUND").
			With("patient_id", patientID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return ulid.ULID{}, oops.Code("ASSIGNMENT_LOOKUP_FAILED").
			With("patient_id", patientID.String()).
			Wrap(err)
	}
	if assigned == nil {
		return ulid.ULID{}, oops.Code("ASSIGNMENT_NOT_FOUND").
			With("patient_id", patientID.String()).
			Wrap(auth.ErrNotFound)
	}

	id, err := ulid.Parse(*assigned)
	if err != nil {
		return ulid.ULID{}, oops.Code("ASSIGNMENT_CORRUPT").
			With("patient_id", patientID.String()).
			With("assigned_clinician_id", *assigned).
			Wrap(err)
	}
	return id, nil
}

// AssignClinician links a patient to the clinician responsible for them.
// The assignee must exist and hold the clinician role.
func (r *DirectoryRepo) AssignClinician(ctx context.Context, patientID, clinicianID ulid.ULID) error {
	var role string
	err := r.pool.QueryRow(ctx, `
		SELECT role FROM users WHERE id = $1
	`, clinicianID.String()).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return oops.Code("USER_NOT_FOUND").
			With("clinician_id", clinicianID.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return oops.Code("ASSIGNMENT_FAILED").
			With("operation", "look up assignee role").
			Wrap(err)
	}
	if auth.Role(role) != auth.RoleClinician {
		return oops.Code("ASSIGNMENT_INVALID_ROLE").
			With("clinician_id", clinicianID.String()).
			With("role", role).
			Errorf("assignee must hold the clinician role")
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET assigned_clinician_id = $2, updated_at = now() WHERE id = $1
	`, patientID.String(), clinicianID.String())
	if err != nil {
		return oops.Code("ASSIGNMENT_FAILED").
			With("operation", "update assignment").
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("patient_id", patientID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

func (r *DirectoryRepo) scanUser(row pgx.Row) (*auth.UserRecord, error) {
	var (
		user        auth.UserRecord
		idStr       string
		roleStr     string
		assignedStr *string
	)

	if err := row.Scan(
		&idStr,
		&user.Username,
		&user.PasswordHash,
		&roleStr,
		&user.Active,
		&assignedStr,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck // callers wrap with operation context
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	user.ID = id

	role, err := auth.ParseRole(roleStr)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ROLE").With("id", idStr).Wrap(err)
	}
	user.Role = role

	if assignedStr != nil {
		assigned, err := ulid.Parse(*assignedStr)
		if err != nil {
			return nil, oops.Code("USER_CORRUPT_ASSIGNMENT").With("id", idStr).Wrap(err)
		}
		user.AssignedClinicianID = &assigned
	}

	return &user, nil
}

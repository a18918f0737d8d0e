// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrUserExists is returned when creating a user whose username is taken.
var ErrUserExists = errors.New("user already exists")

// Error codes used across the package. The generic user-facing messages for
// credential and infrastructure failures live in service.go; the specific
// cause is only ever recorded in the audit sink.
const (
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeAccountInactive    = "AUTH_ACCOUNT_INACTIVE"
	CodeUnavailable        = "AUTH_UNAVAILABLE"
	CodeUserNotFound       = "AUTH_USER_NOT_FOUND"
	CodePasswordRequired   = "AUTH_PASSWORD_REQUIRED"
	CodePasswordUnchanged  = "AUTH_PASSWORD_UNCHANGED"
	CodeWeakPassword       = "AUTH_WEAK_PASSWORD"
)

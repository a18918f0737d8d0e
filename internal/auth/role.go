// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

package auth

import (
	"strings"

	"github.com/samber/oops"
)

// Role classifies an account for authorization decisions. The authorization
// logic depends on there being exactly three roles; every switch over Role
// must handle all three and deny anything else.
type Role string

const (
	// RolePatient may only access their own data.
	RolePatient Role = "patient"
	// RoleClinician may additionally access data of patients assigned to them.
	RoleClinician Role = "clinician"
	// RoleAdmin may access any user's data.
	RoleAdmin Role = "admin"
)

// ParseRole converts a string into a Role, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RolePatient:
		return RolePatient, nil
	case RoleClinician:
		return RoleClinician, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", oops.Code("AUTH_INVALID_ROLE").
			With("role", s).
			Errorf("unknown role %q", s)
	}
}

// Valid reports whether r is one of the three defined roles.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleClinician, RoleAdmin:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

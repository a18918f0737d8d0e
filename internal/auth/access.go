// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/caregate/caregate/internal/audit"
)

// ClinicianAssignments resolves the clinician responsible for a patient.
// Satisfied by Directory.
type ClinicianAssignments interface {
	FindAssignedClinician(ctx context.Context, patientID ulid.ULID) (ulid.ULID, error)
}

// Evaluator decides whether one actor may access another actor's data.
// It is a total function over its inputs: it never panics and never returns
// an error. Any collaborator failure is recorded in the audit sink and
// swallowed into a deny (fail closed).
type Evaluator struct {
	assignments   ClinicianAssignments
	sink          audit.Sink
	lookupTimeout time.Duration
}

// NewEvaluator creates an Evaluator. A nil sink falls back to audit.NopSink;
// a non-positive lookupTimeout disables the deadline on assignment lookups.
func NewEvaluator(assignments ClinicianAssignments, sink audit.Sink, lookupTimeout time.Duration) (*Evaluator, error) {
	if assignments == nil {
		return nil, oops.Code("ACCESS_NIL_ASSIGNMENTS").Errorf("clinician assignments lookup is required")
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Evaluator{
		assignments:   assignments,
		sink:          sink,
		lookupTimeout: lookupTimeout,
	}, nil
}

// CanAccess reports whether the actor may access the target user's data.
// Precedence, first match wins:
//
//  1. admins access everything
//  2. every user accesses their own data
//  3. clinicians access patients assigned to them
//  4. everything else is denied
func (e *Evaluator) CanAccess(ctx context.Context, actorRole Role, actorID, targetID ulid.ULID) (allowed bool) {
	// Authorization must fail closed even on a programming error below.
	defer func() {
		if r := recover(); r != nil {
			e.sink.Critical("access evaluation panicked, denying", "auth.access", nil,
				map[string]any{"panic": r})
			allowed = false
		}
	}()

	switch actorRole {
	case RoleAdmin:
		return true
	case RoleClinician:
		if actorID.Compare(targetID) == 0 {
			return true
		}
		return e.isAssignedTo(ctx, actorID, targetID)
	case RolePatient:
		return actorID.Compare(targetID) == 0
	default:
		return false
	}
}

func (e *Evaluator) isAssignedTo(ctx context.Context, clinicianID, patientID ulid.ULID) bool {
	if e.lookupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.lookupTimeout)
		defer cancel()
	}

	assigned, err := e.assignments.FindAssignedClinician(ctx, patientID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			e.sink.Warning("clinician assignment lookup failed, denying", "auth.access", err,
				map[string]any{"clinician_id": clinicianID.String(), "patient_id": patientID.String()})
		}
		return false
	}
	return assigned.Compare(clinicianID) == 0
}

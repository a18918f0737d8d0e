// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

// Package auth implements the CareGate authentication and access-control
// core: password hashing and policy, the single-slot session store, the
// authentication service that owns the current actor, and the role- and
// relationship-based access evaluator.
//
// The package is an in-process trust boundary. It exposes no transport;
// callers are the presentation layer and the operations CLI. External
// collaborators (the user directory and the audit sink) are consumed
// through interfaces defined here and in package audit.
package auth

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

package auth

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultSessionTimeout is the sliding expiration window applied when the
// caller does not configure one.
const DefaultSessionTimeout = 30 * time.Minute

// Session is the time-bound proof of a successful authentication. The
// invariant ExpiresAt == LastActivityAt + timeout holds after Create and
// after every Renew.
type Session struct {
	ID             ulid.ULID
	UserID         ulid.ULID
	Username       string
	Role           Role
	LoginAt        time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time

	// Origin metadata, best effort. Empty when unknown.
	ClientAddr string
	Hostname   string
}

// IsValidAt reports whether the session would still be valid at t.
func (s Session) IsValidAt(t time.Time) bool {
	return t.Before(s.ExpiresAt)
}

// Origin describes where the authenticated client is running.
type Origin struct {
	ClientAddr string
	Hostname   string
}

// SessionStore holds at most one live session. Every read-modify-write
// sequence runs under the store's mutex so no caller observes a session
// between check and use in a half-updated or just-expired state. Sessions
// are stored by value and returned as copies; no caller ever holds a
// reference that could be mutated outside the store's discipline.
//
// The store models a single-actor client process, not a multi-tenant
// session table: Create unconditionally replaces whatever was there.
type SessionStore struct {
	mu      sync.Mutex
	session *Session
	clock   func() time.Time
}

// NewSessionStore creates an empty SessionStore using the wall clock.
func NewSessionStore() *SessionStore {
	return &SessionStore{clock: time.Now}
}

// NewSessionStoreWithClock creates a SessionStore with an injected clock.
// Intended for deterministic expiry in tests.
func NewSessionStoreWithClock(clock func() time.Time) *SessionStore {
	if clock == nil {
		clock = time.Now
	}
	return &SessionStore{clock: clock}
}

// Create replaces any existing session with a new one expiring at
// now + timeout, and returns a copy of it.
func (st *SessionStore) Create(userID ulid.ULID, username string, role Role, origin Origin, timeout time.Duration) Session {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.clock()
	sess := Session{
		ID:             ulid.Make(),
		UserID:         userID,
		Username:       username,
		Role:           role,
		LoginAt:        now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(timeout),
		ClientAddr:     origin.ClientAddr,
		Hostname:       origin.Hostname,
	}
	st.session = &sess
	return sess
}

// IsValid reports whether a live, unexpired session is present. It never
// mutates the slot.
func (st *SessionStore) IsValid() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session != nil && st.clock().Before(st.session.ExpiresAt)
}

// Current returns a copy of the live session. If the stored session has
// expired the slot is cleared as a side effect (lazy expiry) and ok is false.
func (st *SessionStore) Current() (Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session == nil {
		return Session{}, false
	}
	if !st.clock().Before(st.session.ExpiresAt) {
		st.session = nil
		return Session{}, false
	}
	return *st.session, true
}

// Renew advances last-activity to now and expiration to now + timeout iff
// the session is still valid (sliding-window renewal). Renewing an expired
// or absent session is a no-op.
func (st *SessionStore) Renew(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.clock()
	if st.session == nil || !now.Before(st.session.ExpiresAt) {
		return
	}
	st.session.LastActivityAt = now
	st.session.ExpiresAt = now.Add(timeout)
}

// Invalidate clears the slot unconditionally.
func (st *SessionStore) Invalidate() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.session = nil
}

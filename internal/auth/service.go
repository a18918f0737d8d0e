// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/caregate/caregate/internal/audit"
)

// Generic user-facing messages. The unknown-user and wrong-password paths
// share the same text so failure responses do not reveal whether a username
// exists; infrastructure failures never expose internal diagnostic text.
const (
	genericCredentialsMessage = "invalid username or password"
	genericUnavailableMessage = "authentication is temporarily unavailable, please try again"
)

// dummyPasswordHash is verified against when a username is unknown so the
// response time of that path matches the wrong-password path. It is not a
// credential and matches no password.
//
//nolint:gosec // G101: intentionally fake hash for timing consistency, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Audit source names emitted by the service.
const (
	auditSourceLogin    = "auth.login"
	auditSourceLogout   = "auth.logout"
	auditSourcePassword = "auth.password"
	auditSourceAccess   = "auth.access"
)

// MetricsRecorder receives authentication outcomes. Implementations must be
// safe for concurrent use.
type MetricsRecorder interface {
	RecordLogin(result string)
	RecordAccessDecision(allowed bool)
	RecordSessionRenewal()
}

// NopMetrics discards all recordings.
type NopMetrics struct{}

func (NopMetrics) RecordLogin(string)        {}
func (NopMetrics) RecordAccessDecision(bool) {}
func (NopMetrics) RecordSessionRenewal()     {}

// Config bounds the service's time-dependent behavior.
type Config struct {
	// SessionTimeout is the sliding expiration window.
	SessionTimeout time.Duration
	// DirectoryTimeout bounds every user-directory call so a stalled store
	// cannot block the core. Non-positive disables the deadline.
	DirectoryTimeout time.Duration
	// MinPasswordLength is the policy minimum for new passwords.
	MinPasswordLength int
}

func (c *Config) applyDefaults() {
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if c.MinPasswordLength <= 0 {
		c.MinPasswordLength = DefaultMinPasswordLength
	}
}

// Service orchestrates login, logout, and password changes, owns the current
// actor identity, and answers permission and data-access questions. It is
// safe for concurrent use: the actor reference is guarded by the service
// mutex, the session slot by the SessionStore's own mutex, and directory I/O
// is never performed while holding either lock.
//
// Lock ordering: Service.mu may be held while calling into the SessionStore;
// the store never calls back into the service.
type Service struct {
	directory Directory
	hasher    PasswordHasher
	sessions  *SessionStore
	evaluator *Evaluator
	sink      audit.Sink
	metrics   MetricsRecorder
	logger    *slog.Logger
	cfg       Config
	origin    Origin

	mu    sync.Mutex
	actor *Actor
}

// NewService creates a Service. The directory, hasher, session store, and
// evaluator are required; a nil sink falls back to audit.NopSink and a nil
// logger to slog.Default().
func NewService(
	directory Directory,
	hasher PasswordHasher,
	sessions *SessionStore,
	evaluator *Evaluator,
	sink audit.Sink,
	logger *slog.Logger,
	cfg Config,
) (*Service, error) {
	if directory == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("user directory is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("password hasher is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("session store is required")
	}
	if evaluator == nil {
		return nil, oops.Code("AUTH_NIL_DEPENDENCY").Errorf("access evaluator is required")
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	return &Service{
		directory: directory,
		hasher:    hasher,
		sessions:  sessions,
		evaluator: evaluator,
		sink:      sink,
		metrics:   NopMetrics{},
		logger:    logger,
		cfg:       cfg,
	}, nil
}

// SetMetrics installs a metrics recorder. Call before the service is shared
// across goroutines.
func (s *Service) SetMetrics(m MetricsRecorder) {
	if m != nil {
		s.metrics = m
	}
}

// SetOrigin records client origin metadata stamped onto new sessions.
func (s *Service) SetOrigin(origin Origin) {
	s.origin = origin
}

// Login verifies the credentials and, on success, creates the session and
// sets the current actor. Failures map to three cases: invalid credentials
// (unknown user or wrong password, indistinguishable to the caller),
// inactive account, and a generic unavailable error for infrastructure
// failures. The audit sink records which case actually occurred.
func (s *Service) Login(ctx context.Context, username, password string) (*UserRecord, error) {
	username = strings.TrimSpace(username)
	if username == "" || strings.TrimSpace(password) == "" {
		s.metrics.RecordLogin("invalid")
		return nil, oops.Code(CodeInvalidCredentials).Errorf("%s", genericCredentialsMessage)
	}

	user, lookupErr := s.findByUsername(ctx, username)
	if lookupErr != nil && !errors.Is(lookupErr, ErrNotFound) {
		s.sink.Error("user directory unreachable during login", auditSourceLogin, lookupErr,
			map[string]any{"username": username})
		s.metrics.RecordLogin("error")
		return nil, oops.Code(CodeUnavailable).Errorf("%s", genericUnavailableMessage)
	}

	// Verify against the real hash or the dummy one so the unknown-user and
	// wrong-password paths cost the same.
	targetHash := dummyPasswordHash
	if user != nil {
		targetHash = user.PasswordHash
	}
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		// A malformed stored hash counts as a mismatch, never a fault.
		valid = false
	}

	switch {
	case user == nil:
		s.sink.Warning("login rejected: unknown username", auditSourceLogin, nil,
			map[string]any{"username": username})
		s.metrics.RecordLogin("invalid")
		return nil, oops.Code(CodeInvalidCredentials).Errorf("%s", genericCredentialsMessage)
	case !user.Active:
		s.sink.Warning("login rejected: inactive account", auditSourceLogin, nil,
			map[string]any{"username": username, "user_id": user.ID.String()})
		s.metrics.RecordLogin("inactive")
		return nil, oops.Code(CodeAccountInactive).Errorf("account is inactive")
	case !valid:
		s.sink.Warning("login rejected: wrong password", auditSourceLogin, verifyErr,
			map[string]any{"username": username, "user_id": user.ID.String()})
		s.metrics.RecordLogin("invalid")
		return nil, oops.Code(CodeInvalidCredentials).Errorf("%s", genericCredentialsMessage)
	}

	// Rehash legacy hashes with the current algorithm. Best effort: login
	// succeeds regardless.
	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		if newHash, err := s.hasher.Hash(password); err == nil {
			if err := s.updatePasswordHash(ctx, user.ID, newHash); err == nil {
				user.PasswordHash = newHash
			}
		}
	}

	// Record the login timestamp. Best effort as well.
	now := time.Now()
	if err := s.updateLastLogin(ctx, user.ID, now); err != nil {
		s.sink.Warning("failed to record last login", auditSourceLogin, err,
			map[string]any{"user_id": user.ID.String()})
	} else {
		user.LastLoginAt = &now
	}

	// Session and actor are installed in one critical section so two
	// overlapping logins cannot pair one login's actor with the other's
	// session.
	s.mu.Lock()
	sess := s.sessions.Create(user.ID, user.Username, user.Role, s.origin, s.cfg.SessionTimeout)
	s.actor = &Actor{ID: user.ID, Username: user.Username, Role: user.Role, Active: user.Active}
	s.mu.Unlock()

	s.sink.Info("login succeeded", auditSourceLogin, nil, map[string]any{
		"username":   user.Username,
		"user_id":    user.ID.String(),
		"role":       user.Role.String(),
		"session_id": sess.ID.String(),
		"expires_at": sess.ExpiresAt,
	})
	s.metrics.RecordLogin("success")
	return user, nil
}

// Logout clears the current actor and invalidates the session, atomically
// with respect to concurrent permission checks.
func (s *Service) Logout() {
	s.mu.Lock()
	actor := s.actor
	s.actor = nil
	s.sessions.Invalidate()
	s.mu.Unlock()

	if actor != nil {
		s.sink.Info("logout", auditSourceLogout, nil, map[string]any{
			"username": actor.Username,
			"user_id":  actor.ID.String(),
		})
	}
}

// CurrentSession returns the live session. When the stored session has
// lazily expired the current actor is cleared as well, so actor and session
// state never diverge.
func (s *Service) CurrentSession() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions.Current()
	if !ok {
		s.actor = nil
		return Session{}, false
	}
	return sess, true
}

// CurrentUser returns the authenticated actor, if any.
func (s *Service) CurrentUser() (Actor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions.Current(); !ok {
		s.actor = nil
		return Actor{}, false
	}
	if s.actor == nil {
		return Actor{}, false
	}
	return *s.actor, true
}

// IsAuthenticated reports whether an actor is set and its session is valid.
func (s *Service) IsAuthenticated() bool {
	_, ok := s.CurrentUser()
	return ok
}

// HasPermission reports whether the current actor holds the required role;
// admins pass every check. Side effect: a permission check counts as
// activity and renews the sliding session expiration. Callers must not
// treat it as free inspection.
func (s *Service) HasPermission(required Role) bool {
	actor, ok := s.touch()
	if !ok {
		return false
	}
	return actor.Role == required || actor.Role == RoleAdmin
}

// CanAccessUserData reports whether the current actor may access the target
// user's data. Delegates to the Evaluator; never returns an error. Renews
// the session as a side effect, like HasPermission.
func (s *Service) CanAccessUserData(ctx context.Context, targetID ulid.ULID) bool {
	actor, ok := s.touch()
	if !ok {
		s.metrics.RecordAccessDecision(false)
		return false
	}

	allowed := s.evaluator.CanAccess(ctx, actor.Role, actor.ID, targetID)
	s.metrics.RecordAccessDecision(allowed)
	return allowed
}

// ChangePassword replaces a user's password after validating the old one
// and the policy for the new one. Every failure carries a specific,
// non-sensitive message.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, oldPassword, newPassword string) error {
	if strings.TrimSpace(oldPassword) == "" || strings.TrimSpace(newPassword) == "" {
		return oops.Code(CodePasswordRequired).Errorf("password cannot be blank")
	}
	if oldPassword == newPassword {
		return oops.Code(CodePasswordUnchanged).Errorf("new password must differ from the old password")
	}
	if err := ValidatePassword(newPassword, s.cfg.MinPasswordLength); err != nil {
		return err
	}

	user, err := s.findByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code(CodeUserNotFound).Errorf("user does not exist")
		}
		s.sink.Error("user directory unreachable during password change", auditSourcePassword, err,
			map[string]any{"user_id": userID.String()})
		return oops.Code(CodeUnavailable).Errorf("%s", genericUnavailableMessage)
	}

	valid, verifyErr := s.hasher.Verify(oldPassword, user.PasswordHash)
	if verifyErr != nil || !valid {
		s.sink.Warning("password change rejected: old password mismatch", auditSourcePassword, verifyErr,
			map[string]any{"user_id": userID.String()})
		return oops.Code(CodeInvalidCredentials).Errorf("current password is incorrect")
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.sink.Error("failed to hash new password", auditSourcePassword, err,
			map[string]any{"user_id": userID.String()})
		return oops.Code(CodeUnavailable).Errorf("%s", genericUnavailableMessage)
	}
	if err := s.updatePasswordHash(ctx, userID, newHash); err != nil {
		s.sink.Error("failed to persist new password hash", auditSourcePassword, err,
			map[string]any{"user_id": userID.String()})
		return oops.Code(CodeUnavailable).Errorf("%s", genericUnavailableMessage)
	}

	s.sink.Info("password changed", auditSourcePassword, nil,
		map[string]any{"user_id": userID.String()})
	return nil
}

// PublicMessage returns the text safe to show an end user for an error
// produced by this package. Infrastructure detail stays in the audit sink.
func PublicMessage(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return genericUnavailableMessage
	}
	switch oopsErr.Code() {
	case CodeUnavailable:
		return genericUnavailableMessage
	case CodeInvalidCredentials:
		return genericCredentialsMessage
	default:
		return err.Error()
	}
}

// touch returns the current actor iff a live session exists, renewing the
// session's sliding expiration. The service mutex is held across the
// validity check and renewal so a concurrent Logout cannot interleave
// between check and use.
func (s *Service) touch() (Actor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions.Current(); !ok {
		s.actor = nil
		return Actor{}, false
	}
	if s.actor == nil {
		return Actor{}, false
	}
	s.sessions.Renew(s.cfg.SessionTimeout)
	s.metrics.RecordSessionRenewal()
	return *s.actor, true
}

func (s *Service) directoryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.DirectoryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.DirectoryTimeout)
}

func (s *Service) findByUsername(ctx context.Context, username string) (*UserRecord, error) {
	dctx, cancel := s.directoryCtx(ctx)
	defer cancel()
	return s.directory.FindByUsername(dctx, username)
}

func (s *Service) findByID(ctx context.Context, id ulid.ULID) (*UserRecord, error) {
	dctx, cancel := s.directoryCtx(ctx)
	defer cancel()
	return s.directory.FindByID(dctx, id)
}

func (s *Service) updateLastLogin(ctx context.Context, id ulid.ULID, at time.Time) error {
	dctx, cancel := s.directoryCtx(ctx)
	defer cancel()
	return s.directory.UpdateLastLogin(dctx, id, at)
}

func (s *Service) updatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error {
	dctx, cancel := s.directoryCtx(ctx)
	defer cancel()
	return s.directory.UpdatePasswordHash(dctx, id, hash)
}

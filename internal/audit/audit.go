// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

// Package audit provides the fire-and-forget audit sink consumed by the
// authentication core. Sink implementations never return errors and never
// panic into the caller: a broken sink must not abort an authentication
// operation.
package audit

import (
	"context"
	"log/slog"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// LevelCritical is one step above slog's highest built-in level.
const LevelCritical = slog.LevelError + 4

// Sink records security-relevant events. The err and props arguments are
// optional and may be nil.
type Sink interface {
	Info(message, source string, err error, props map[string]any)
	Warning(message, source string, err error, props map[string]any)
	Error(message, source string, err error, props map[string]any)
	Critical(message, source string, err error, props map[string]any)
}

// NopSink discards everything. Useful in tests and as a default.
type NopSink struct{}

func (NopSink) Info(string, string, error, map[string]any)     {}
func (NopSink) Warning(string, string, error, map[string]any)  {}
func (NopSink) Error(string, string, error, map[string]any)    {}
func (NopSink) Critical(string, string, error, map[string]any) {}

// SlogSink writes audit records through a structured logger. When source
// patterns are configured, only events whose source matches at least one
// pattern are recorded; patterns use glob syntax with '.' as the separator,
// e.g. "auth.*".
type SlogSink struct {
	logger  *slog.Logger
	filters []glob.Glob
}

// NewSlogSink creates a SlogSink. With no patterns every source is recorded.
// Returns an error if a pattern fails to compile.
func NewSlogSink(logger *slog.Logger, sourcePatterns ...string) (*SlogSink, error) {
	if logger == nil {
		return nil, oops.Code("AUDIT_NIL_LOGGER").Errorf("logger is required")
	}

	filters := make([]glob.Glob, 0, len(sourcePatterns))
	for _, p := range sourcePatterns {
		g, err := glob.Compile(p, '.')
		if err != nil {
			return nil, oops.Code("AUDIT_INVALID_FILTER").
				With("pattern", p).
				Wrap(err)
		}
		filters = append(filters, g)
	}

	return &SlogSink{logger: logger, filters: filters}, nil
}

// Info records an informational event.
func (s *SlogSink) Info(message, source string, err error, props map[string]any) {
	s.write(slog.LevelInfo, message, source, err, props)
}

// Warning records a suspicious but non-fatal event.
func (s *SlogSink) Warning(message, source string, err error, props map[string]any) {
	s.write(slog.LevelWarn, message, source, err, props)
}

// Error records a failed operation.
func (s *SlogSink) Error(message, source string, err error, props map[string]any) {
	s.write(slog.LevelError, message, source, err, props)
}

// Critical records a failure requiring operator attention.
func (s *SlogSink) Critical(message, source string, err error, props map[string]any) {
	s.write(LevelCritical, message, source, err, props)
}

func (s *SlogSink) write(level slog.Level, message, source string, err error, props map[string]any) {
	// Fire and forget: a sink failure must never reach the caller.
	defer func() { _ = recover() }()

	if !s.matches(source) {
		return
	}

	attrs := make([]any, 0, 2+2*len(props)+4)
	attrs = append(attrs, "source", source)
	if err != nil {
		attrs = append(attrs, "error", err.Error())
		if oopsErr, ok := oops.AsOops(err); ok {
			if code := oopsErr.Code(); code != "" {
				attrs = append(attrs, "code", code)
			}
		}
	}
	for k, v := range props {
		attrs = append(attrs, k, v)
	}

	s.logger.Log(context.Background(), level, message, attrs...)
}

func (s *SlogSink) matches(source string) bool {
	if len(s.filters) == 0 {
		return true
	}
	for _, g := range s.filters {
		if g.Match(source) {
			return true
		}
	}
	return false
}

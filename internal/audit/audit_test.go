// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caregate/caregate/internal/audit"
)

// capture returns a sink writing JSON records into buf.
func capture(t *testing.T, patterns ...string) (*audit.SlogSink, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	sink, err := audit.NewSlogSink(logger, patterns...)
	require.NoError(t, err)
	return sink, buf
}

// records parses every JSON line written so far.
func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal(line, &rec))
		out = append(out, rec)
	}
	return out
}

func TestNewSlogSink(t *testing.T) {
	t.Run("requires a logger", func(t *testing.T) {
		_, err := audit.NewSlogSink(nil)
		require.Error(t, err)
	})

	t.Run("rejects an invalid pattern", func(t *testing.T) {
		logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
		_, err := audit.NewSlogSink(logger, "auth.[")
		require.Error(t, err)
	})
}

func TestSlogSink_Write(t *testing.T) {
	t.Run("records message, source, and props", func(t *testing.T) {
		sink, buf := capture(t)
		sink.Info("login succeeded", "auth.login", nil, map[string]any{"username": "alice"})

		recs := records(t, buf)
		require.Len(t, recs, 1)
		assert.Equal(t, "login succeeded", recs[0]["msg"])
		assert.Equal(t, "auth.login", recs[0]["source"])
		assert.Equal(t, "alice", recs[0]["username"])
		assert.Equal(t, "INFO", recs[0]["level"])
	})

	t.Run("records error text and oops code", func(t *testing.T) {
		sink, buf := capture(t)
		err := oops.Code("AUTH_UNAVAILABLE").Errorf("pool exhausted")
		sink.Error("directory unreachable", "auth.login", err, nil)

		recs := records(t, buf)
		require.Len(t, recs, 1)
		assert.Equal(t, "pool exhausted", recs[0]["error"])
		assert.Equal(t, "AUTH_UNAVAILABLE", recs[0]["code"])
		assert.Equal(t, "ERROR", recs[0]["level"])
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		sink, buf := capture(t)
		sink.Warning("lookup failed", "auth.access", errors.New("timeout"), nil)

		recs := records(t, buf)
		require.Len(t, recs, 1)
		assert.Equal(t, "timeout", recs[0]["error"])
		assert.NotContains(t, recs[0], "code")
	})

	t.Run("critical sits above error", func(t *testing.T) {
		sink, buf := capture(t)
		sink.Critical("evaluation panicked", "auth.access", nil, nil)

		recs := records(t, buf)
		require.Len(t, recs, 1)
		assert.Equal(t, "ERROR+4", recs[0]["level"])
	})
}

func TestSlogSink_Filters(t *testing.T) {
	t.Run("no patterns records everything", func(t *testing.T) {
		sink, buf := capture(t)
		sink.Info("a", "auth.login", nil, nil)
		sink.Info("b", "store.migrate", nil, nil)
		assert.Len(t, records(t, buf), 2)
	})

	t.Run("glob pattern limits sources", func(t *testing.T) {
		sink, buf := capture(t, "auth.*")
		sink.Info("a", "auth.login", nil, nil)
		sink.Info("b", "auth.access", nil, nil)
		sink.Info("c", "store.migrate", nil, nil)

		recs := records(t, buf)
		require.Len(t, recs, 2)
		assert.Equal(t, "auth.login", recs[0]["source"])
		assert.Equal(t, "auth.access", recs[1]["source"])
	})

	t.Run("multiple patterns union", func(t *testing.T) {
		sink, buf := capture(t, "auth.login", "store.*")
		sink.Info("a", "auth.login", nil, nil)
		sink.Info("b", "auth.access", nil, nil)
		sink.Info("c", "store.migrate", nil, nil)
		assert.Len(t, records(t, buf), 2)
	})

	t.Run("separator is respected", func(t *testing.T) {
		// "auth.*" must not cross a '.' boundary.
		sink, buf := capture(t, "auth.*")
		sink.Info("a", "auth.access.lookup", nil, nil)
		assert.Empty(t, records(t, buf))
	})
}

// panicHandler always panics from Handle.
type panicHandler struct{}

func (panicHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (panicHandler) Handle(context.Context, slog.Record) error { panic("broken handler") }
func (h panicHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h panicHandler) WithGroup(string) slog.Handler           { return h }

func TestSlogSink_NeverPanicsIntoCaller(t *testing.T) {
	sink, err := audit.NewSlogSink(slog.New(panicHandler{}))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		sink.Info("m", "auth.login", nil, nil)
		sink.Warning("m", "auth.login", nil, nil)
		sink.Error("m", "auth.login", nil, nil)
		sink.Critical("m", "auth.login", nil, nil)
	})
}

func TestNopSink(t *testing.T) {
	var sink audit.Sink = audit.NopSink{}
	assert.NotPanics(t, func() {
		sink.Info("m", "s", nil, nil)
		sink.Warning("m", "s", errors.New("e"), map[string]any{"k": "v"})
		sink.Error("m", "s", nil, nil)
		sink.Critical("m", "s", nil, nil)
	})
}

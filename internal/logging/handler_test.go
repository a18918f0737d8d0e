// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/caregate/caregate/internal/logging"
)

func parseRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	return rec
}

func TestSetup_ServiceIdentity(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.Setup("caregate", "1.2.3", "json", buf)

	logger.Info("starting up")

	rec := parseRecord(t, buf)
	assert.Equal(t, "starting up", rec["msg"])
	assert.Equal(t, "caregate", rec["service"])
	assert.Equal(t, "1.2.3", rec["version"])
}

func TestSetup_TextFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.Setup("caregate", "dev", "text", buf)

	logger.Info("hello")

	out := buf.String()
	assert.Contains(t, out, "msg=hello")
	assert.Contains(t, out, "service=caregate")
	assert.Contains(t, out, "version=dev")
}

func TestSetup_DefaultsToJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.Setup("caregate", "dev", "", buf)

	logger.Info("hello")
	parseRecord(t, buf)
}

func TestSetup_TraceContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.Setup("caregate", "dev", "json", buf)

	traceID := trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	spanID := trace.SpanID{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10, 0x11}
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	logger.InfoContext(ctx, "traced operation")

	rec := parseRecord(t, buf)
	assert.Equal(t, traceID.String(), rec["trace_id"])
	assert.Equal(t, spanID.String(), rec["span_id"])
}

func TestSetup_NoTraceContext(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.Setup("caregate", "dev", "json", buf)

	logger.Info("untraced")

	rec := parseRecord(t, buf)
	assert.NotContains(t, rec, "trace_id")
	assert.NotContains(t, rec, "span_id")
}

func TestSetup_WithAttrsKeepsIdentity(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.Setup("caregate", "dev", "json", buf)

	logger.With("component", "auth").Info("handled")

	rec := parseRecord(t, buf)
	assert.Equal(t, "caregate", rec["service"])
	assert.Equal(t, "auth", rec["component"])
}

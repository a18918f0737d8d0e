// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareGate Contributors

// Package observability provides HTTP endpoints for metrics and health
// checks, plus the Prometheus counters recorded by the authentication core.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the service is ready.
type ReadinessChecker func() bool

// Metrics contains the CareGate Prometheus metrics. It satisfies the auth
// package's MetricsRecorder interface.
type Metrics struct {
	LoginAttempts   *prometheus.CounterVec
	AccessDecisions *prometheus.CounterVec
	SessionRenewals prometheus.Counter
}

// NewMetrics creates and registers the CareGate metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregate_login_attempts_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		AccessDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caregate_access_decisions_total",
				Help: "Total number of data-access authorization decisions",
			},
			[]string{"decision"},
		),
		SessionRenewals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "caregate_sessions_renewed_total",
				Help: "Total number of sliding-window session renewals",
			},
		),
	}

	reg.MustRegister(m.LoginAttempts)
	reg.MustRegister(m.AccessDecisions)
	reg.MustRegister(m.SessionRenewals)

	return m
}

// RecordLogin counts a login attempt by result.
func (m *Metrics) RecordLogin(result string) {
	m.LoginAttempts.WithLabelValues(result).Inc()
}

// RecordAccessDecision counts an authorization decision.
func (m *Metrics) RecordAccessDecision(allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.AccessDecisions.WithLabelValues(decision).Inc()
}

// RecordSessionRenewal counts a session renewal.
func (m *Metrics) RecordSessionRenewal() {
	m.SessionRenewals.Inc()
}

// Server provides HTTP endpoints for observability (metrics and health
// probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates a new observability server.
// addr: listen address in "host:port" format (":9100" for all interfaces).
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// Private registry so tests and embedders don't pollute the global one.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics := NewMetrics(registry)

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  metrics,
		isReady:  readinessChecker,
	}
}

// Metrics returns the counters for recording application events.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving observability endpoints. It returns an error channel
// that receives any failure from the HTTP server after it starts; the
// channel is closed on graceful stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			// Restore running state so the server can be stopped again.
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on, or "" if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.isReady != nil && !s.isReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		//nolint:errcheck // health check write error is acceptable
		w.Write([]byte("not ready\n"))
		return
	}
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable
	w.Write([]byte("ok\n"))
}

// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"

	"github.com/momentics/wsproto/control"
	"github.com/momentics/wsproto/protocol"
	"go.opentelemetry.io/otel/trace"
)

// Option customizes server initialization.
type Option func(*Server)

// WithMiddleware attaches application middleware in FIFO order: the first
// middleware sees events first.
func WithMiddleware(mw ...Middleware) Option {
	return func(s *Server) {
		s.middleware = append(s.middleware, mw...)
	}
}

// WithRegistry sets the protocol registry used to match upgrade requests.
func WithRegistry(r *protocol.Registry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithMetrics records server activity in m. The default registry's engine
// reports frames to m as well.
func WithMetrics(m *control.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithProbes registers the server's debug probes in dp.
func WithProbes(dp *control.DebugProbes) Option {
	return func(s *Server) {
		s.probes = dp
	}
}

// WithTracer sets the tracer used for handshake spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) {
		s.tracer = t
	}
}

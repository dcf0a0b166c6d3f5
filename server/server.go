// File: server/server.go
// Package server provides a reactor-driven WebSocket server: a non-blocking
// listener, one epoll loop and per-connection protocol state.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/pool"
	"github.com/momentics/wsproto/protocol"
	"github.com/momentics/wsproto/reactor"
	"github.com/momentics/wsproto/transport"
	"go.opentelemetry.io/otel"
)

var (
	ErrAlreadyRunning = errors.New("server already running")
	ErrNotListening   = errors.New("server is not listening")
)

func errorf(format string, args ...any) error {
	return fmt.Errorf("server: %w: "+format, append([]any{api.ErrInvalidOption}, args...)...)
}

// New builds a Server delivering events to app.
func New(app Application, cfg *Config, opts ...Option) (*Server, error) {
	if app == nil {
		return nil, errorf("nil application")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:   cfg,
		conns: make(map[*Connection]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = slog.Default().With("component", "server")
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/momentics/wsproto/server")
	}
	if s.registry == nil {
		engineOpts := []protocol.EngineOption{
			protocol.WithMaxFrameSize(cfg.MaxFrameSize),
			protocol.WithMaxPayload(cfg.MaxFramePayload),
			protocol.WithLogger(s.log),
		}
		if s.metrics != nil {
			engineOpts = append(engineOpts, protocol.WithObserver(s.metrics))
		}
		s.registry = protocol.DefaultRegistry(engineOpts...)
	}
	s.app = chain(app, s.middleware...)
	s.pool = pool.NewBytePool(cfg.ReadChunkSize)
	if s.probes != nil {
		s.probes.RegisterProbe("connections_open", func() any { return s.open.Load() })
		s.probes.RegisterProbe("connections_accepted", func() any { return s.accepted.Load() })
		s.probes.RegisterProbe("protocols", func() any { return s.registry.Names() })
		s.probes.RegisterProbe("listen_addr", func() any { return s.Addr() })
	}
	return s, nil
}

// Listen binds the listening socket. Addr is valid afterwards.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	ln, err := transport.Listen(s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.addr.Store(ln.Addr())
	s.log.Info("listening", "addr", ln.Addr())
	return nil
}

// Addr returns the bound address, or the configured one before Listen. It is
// safe to call from any goroutine.
func (s *Server) Addr() string {
	if a, ok := s.addr.Load().(string); ok {
		return a
	}
	return s.cfg.ListenAddr
}

// Connections returns the number of open connections. It is safe to call
// from any goroutine.
func (s *Server) Connections() int {
	return int(s.open.Load())
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Serve runs the reactor loop until ctx is cancelled. On return every open
// connection has been sent a GoingAway close and the listener is closed.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		return ErrNotListening
	}
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	rc, err := reactor.New()
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	s.reactor = rc
	defer rc.Close()

	if err := rc.Register(s.listener.Fd(), func(int, reactor.EventMask) { s.accept() }); err != nil {
		return fmt.Errorf("server: register listener: %w", err)
	}

	for ctx.Err() == nil {
		if _, err := rc.Poll(s.cfg.PollInterval); err != nil {
			s.shutdown()
			return fmt.Errorf("server: %w", err)
		}
	}
	s.shutdown()
	return nil
}

// accept drains the listener backlog.
func (s *Server) accept() {
	for {
		sc, err := s.listener.Accept()
		if errors.Is(err, api.ErrWouldBlock) {
			return
		}
		if err != nil {
			s.log.Error("accept", "err", err)
			return
		}
		s.accepted.Add(1)
		c := s.newConnection(sc, sc.Fd())
		sc.OnClose(func() { s.detach(c) })
		s.conns[c] = struct{}{}
		if err := s.reactor.Register(sc.Fd(), func(_ int, ev reactor.EventMask) { s.readable(c, ev) }); err != nil {
			c.log.Error("register connection", "err", err)
			c.terminate()
			continue
		}
		c.log.Debug("accepted")
	}
}

// detach forgets c. It runs at most once per connection.
func (s *Server) detach(c *Connection) {
	if c.detached {
		return
	}
	c.detached = true
	if c.fd >= 0 && s.reactor != nil {
		if err := s.reactor.Unregister(c.fd); err != nil {
			c.log.Warn("unregister", "err", err)
		}
	}
	delete(s.conns, c)
	if c.opened {
		s.open.Add(-1)
		s.metrics.ConnectionClosed()
		c.log.Info("connection closed")
	}
}

// shutdown closes every connection and the listener.
func (s *Server) shutdown() {
	for c := range s.conns {
		if c.State() == protocol.StateOpen {
			if err := c.proto.Close(c.conn, protocol.CloseGoingAway, nil); err != nil {
				c.log.Debug("close on shutdown", "err", err)
			}
		}
		c.terminate()
	}
	if err := s.listener.Close(); err != nil {
		s.log.Warn("listener close", "err", err)
	}
	s.listener = nil
	s.log.Info("server stopped")
}

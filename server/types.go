// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/control"
	"github.com/momentics/wsproto/pool"
	"github.com/momentics/wsproto/protocol"
	"github.com/momentics/wsproto/reactor"
	"github.com/momentics/wsproto/transport"
	"go.opentelemetry.io/otel/trace"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr      string        // TCP bind address, e.g. ":8080"
	MaxFrameSize    int           // payload bound of outgoing fragments
	MaxFramePayload uint64        // payload bound of incoming frames, 0 = unlimited
	ReadChunkSize   int           // bytes read per readiness event
	WriteRetries    int           // tolerated consecutive no-progress writes
	MaxHeaderBytes  int           // handshake request head limit
	PollInterval    time.Duration // reactor wait between context checks
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      "0.0.0.0:8080",
		MaxFrameSize:    protocol.DefaultMaxFrameSize,
		MaxFramePayload: 16 << 20,
		ReadChunkSize:   pool.DefaultChunkSize,
		WriteRetries:    transport.DefaultWriteRetries,
		MaxHeaderBytes:  protocol.MaxHandshakeHeadersSize,
		PollInterval:    100 * time.Millisecond,
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.MaxFrameSize <= 0:
		return errorf("max frame size must be positive")
	case c.ReadChunkSize <= 0:
		return errorf("read chunk size must be positive")
	case c.WriteRetries < 0:
		return errorf("write retries must not be negative")
	case c.MaxHeaderBytes <= 0:
		return errorf("max header bytes must be positive")
	case c.PollInterval <= 0:
		return errorf("poll interval must be positive")
	}
	return nil
}

// Server accepts WebSocket connections on a non-blocking listener and drives
// them from a single reactor goroutine.
type Server struct {
	cfg        *Config
	app        Application
	middleware []Middleware
	registry   *protocol.Registry
	metrics    *control.Metrics
	probes     *control.DebugProbes
	tracer     trace.Tracer
	log        *slog.Logger
	pool       *pool.BytePool

	listener *transport.Listener
	addr     atomic.Value // string
	reactor  reactor.Reactor
	conns    map[*Connection]struct{}
	running  atomic.Bool
	open     atomic.Int64
	accepted atomic.Int64
}

var _ api.Transport = (*transport.SocketConn)(nil)

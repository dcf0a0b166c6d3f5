// File: client/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/pool"
	"github.com/momentics/wsproto/protocol"
	"github.com/momentics/wsproto/transport"
	"go.opentelemetry.io/otel/trace"
)

// Options holds all client-side configuration parameters.
type Options struct {
	Protocol        string        // registry name of the protocol to speak
	Timeout         time.Duration // dial, handshake and per-read timeout
	MaxFrameSize    int           // payload bound of outgoing fragments
	MaxFramePayload uint64        // payload bound of incoming frames, 0 = unlimited
	WriteRetries    int           // tolerated consecutive no-progress writes
	ReadChunkSize   int           // bytes read per Receive iteration
	Header          http.Header   // extra handshake request headers

	Registry *protocol.Registry
	Logger   *slog.Logger
	Tracer   trace.Tracer
}

// DefaultOptions returns the defaults used by Dial.
func DefaultOptions() Options {
	return Options{
		Protocol:      "RFC6455",
		Timeout:       5 * time.Second,
		MaxFrameSize:  protocol.DefaultMaxFrameSize,
		WriteRetries:  transport.DefaultWriteRetries,
		ReadChunkSize: pool.DefaultChunkSize,
		Header:        make(http.Header),
	}
}

// Option customizes Options.
type Option func(*Options)

// WithProtocol selects the protocol by registry name.
func WithProtocol(name string) Option {
	return func(o *Options) {
		o.Protocol = name
	}
}

// WithTimeout sets the dial, handshake and read timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithMaxFrameSize sets the outgoing fragment size.
func WithMaxFrameSize(n int) Option {
	return func(o *Options) {
		o.MaxFrameSize = n
	}
}

// WithMaxFramePayload limits the payload of incoming frames.
func WithMaxFramePayload(n uint64) Option {
	return func(o *Options) {
		o.MaxFramePayload = n
	}
}

// WithWriteRetries sets how many consecutive writes may make no progress.
func WithWriteRetries(n int) Option {
	return func(o *Options) {
		o.WriteRetries = n
	}
}

// WithReadChunkSize sets the read buffer size.
func WithReadChunkSize(n int) Option {
	return func(o *Options) {
		o.ReadChunkSize = n
	}
}

// WithHeader adds a header to the handshake request. Protocol headers set
// by the engine take precedence.
func WithHeader(name, value string) Option {
	return func(o *Options) {
		if o.Header == nil {
			o.Header = make(http.Header)
		}
		o.Header.Add(name, value)
	}
}

// WithRegistry sets the registry the protocol is looked up in.
func WithRegistry(r *protocol.Registry) Option {
	return func(o *Options) {
		o.Registry = r
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithTracer sets the tracer used for dial spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}

// Validate checks the options and fills in the registry when unset.
func (o *Options) Validate() error {
	switch {
	case o.Timeout <= 0:
		return invalid("timeout must be positive")
	case o.MaxFrameSize <= 0:
		return invalid("max frame size must be positive")
	case o.WriteRetries < 0:
		return invalid("write retries must not be negative")
	case o.ReadChunkSize <= 0:
		return invalid("read chunk size must be positive")
	}
	for name := range o.Header {
		if name == "" {
			return invalid("empty header name")
		}
	}
	if o.Registry == nil {
		log := o.Logger
		if log == nil {
			log = slog.Default().With("component", "client")
		}
		o.Registry = protocol.DefaultRegistry(
			protocol.WithMaxFrameSize(o.MaxFrameSize),
			protocol.WithMaxPayload(o.MaxFramePayload),
			protocol.WithLogger(log),
		)
	}
	if _, ok := o.Registry.ByName(o.Protocol); !ok {
		return invalid("unsupported protocol %q", o.Protocol)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("client: %w: "+format, append([]any{api.ErrInvalidOption}, args...)...)
}

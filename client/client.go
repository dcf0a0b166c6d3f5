// File: client/client.go
// Package client provides a synchronous WebSocket client: Dial performs the
// opening handshake, Receive reads until a message is available or the read
// times out.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/pool"
	"github.com/momentics/wsproto/protocol"
	"github.com/momentics/wsproto/transport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Conn is the client side of a WebSocket connection. Send and Receive may
// be called from different goroutines; concurrent Receive calls are
// serialized.
type Conn struct {
	opts   Options
	target Target
	tr     api.Transport
	conn   *protocol.Conn
	proto  protocol.Protocol
	resp   *http.Response
	pool   *pool.BytePool
	log    *slog.Logger

	rmu     sync.Mutex // serializes Receive
	mu      sync.Mutex // guards everything below and the protocol state
	pending []byte     // bytes read past the handshake response
	queue   *queue.Queue
	err     error // violation reported after the queued messages
	closed  bool
}

// Dial connects to uri and performs the opening handshake.
func Dial(ctx context.Context, uri string, opts ...Option) (*Conn, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	target, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	var d net.Dialer
	nc, err := d.DialContext(ctx, target.Network, target.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", api.ErrTransport, target.Address, err)
	}
	// Unblock handshake I/O once ctx is done.
	stop := context.AfterFunc(ctx, func() { _ = nc.SetDeadline(time.Now()) })
	defer stop()

	c, err := Handshake(ctx, transport.NewNetConn(nc, o.Timeout, o.Timeout), target, func(dst *Options) { *dst = o })
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	if !stop() {
		_ = nc.Close()
		return nil, fmt.Errorf("%w: %w", api.ErrTimeout, ctx.Err())
	}
	return c, nil
}

// Handshake performs the opening handshake over an established transport.
// On success the connection is Open.
func Handshake(ctx context.Context, tr api.Transport, target Target, opts ...Option) (*Conn, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	proto, _ := o.Registry.ByName(o.Protocol)
	c := newConn(tr, proto, target, o)

	tracer := o.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/momentics/wsproto/client")
	}
	_, span := tracer.Start(ctx, "websocket.dial",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("net.peer.addr", target.Address),
			attribute.String("http.target", target.Path),
			attribute.String("wsproto.protocol", proto.Name()),
		))
	defer span.End()

	if err := c.handshake(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handshake failed")
		c.log.Warn("handshake failed", "err", err)
		return nil, err
	}
	span.SetStatus(codes.Ok, "")
	c.log.Info("connection open", "protocol", proto.Name())
	return c, nil
}

func newConn(tr api.Transport, proto protocol.Protocol, target Target, o Options) *Conn {
	log := o.Logger
	if log == nil {
		log = slog.Default().With("component", "client")
	}
	return &Conn{
		opts:   o,
		target: target,
		tr:     tr,
		conn:   protocol.NewConn(protocol.RoleClient, tr, protocol.WithWriteRetries(o.WriteRetries)),
		proto:  proto,
		pool:   pool.NewBytePool(o.ReadChunkSize),
		log:    log.With("remote", target.String()),
		queue:  queue.New(),
	}
}

// transportReader adapts api.Transport to io.Reader for the response parser.
type transportReader struct{ tr api.Transport }

func (r transportReader) Read(p []byte) (int, error) { return r.tr.Read(p) }

func (c *Conn) handshake() error {
	req, err := c.proto.Request(c.conn, c.target.Host, c.target.Path, c.opts.Header)
	if err != nil {
		return err
	}
	if err := transport.WriteFull(c.tr, protocol.EncodeRequest(req), c.opts.WriteRetries); err != nil {
		return fmt.Errorf("%w: send request: %w", api.ErrHandshake, err)
	}

	br := bufio.NewReaderSize(transportReader{c.tr}, protocol.MaxHandshakeHeadersSize)
	resp, err := protocol.ReadResponse(br, req)
	if err != nil {
		return fmt.Errorf("%w: %w", api.ErrHandshake, err)
	}
	if err := c.proto.HandleResponse(c.conn, resp); err != nil {
		return err
	}
	if n := br.Buffered(); n > 0 {
		rest, _ := br.Peek(n)
		c.pending = append([]byte(nil), rest...)
	}
	c.resp = resp
	c.conn.SetState(protocol.StateOpen)
	return nil
}

// HandshakeResponse returns the server's 101 response.
func (c *Conn) HandshakeResponse() *http.Response { return c.resp }

// RemoteAddr returns the address of the server.
func (c *Conn) RemoteAddr() string { return c.tr.RemoteAddr() }

// State returns the protocol state.
func (c *Conn) State() protocol.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.State()
}

// Send writes payload as a Text message if it is valid UTF-8, Binary otherwise.
func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proto.Send(c.conn, payload)
}

// SendText writes a Text message.
func (c *Conn) SendText(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proto.SendOpcode(c.conn, protocol.OpText, []byte(s))
}

// SendBinary writes a Binary message.
func (c *Conn) SendBinary(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proto.SendOpcode(c.conn, protocol.OpBinary, b)
}

// Ping sends a Ping frame. Pongs are consumed by Receive.
func (c *Conn) Ping(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proto.Ping(c.conn, payload)
}

// ExpectingData reports whether a partially received message or frame is
// waiting for more bytes.
func (c *Conn) ExpectingData() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0 || c.proto.ExpectingData(c.conn)
}

// HasBufferedMessages reports whether Receive can return without reading.
func (c *Conn) HasBufferedMessages() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Length() > 0
}

// Receive returns the next message. It reads from the transport until a
// message is complete and returns api.ErrNoMessage when a read times out
// first. A Closing message is returned once when the peer closes or goes
// away; afterwards Receive returns api.ErrConnClosed. A protocol violation
// is returned after any messages that preceded it.
func (c *Conn) Receive() (protocol.Message, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	if m, err, ok := c.next(); ok {
		return m, err
	}
	c.feedPending()

	buf := c.pool.Get()
	defer c.pool.Put(buf)
	for {
		if m, err, ok := c.next(); ok {
			return m, err
		}
		n, rerr := c.tr.Read(*buf)
		if n > 0 {
			c.feed((*buf)[:n])
			continue
		}
		switch {
		case rerr == nil:
		case errors.Is(rerr, api.ErrTimeout), errors.Is(rerr, api.ErrWouldBlock):
			return protocol.Message{}, api.ErrNoMessage
		case errors.Is(rerr, io.EOF):
			c.mu.Lock()
			c.shutdown()
			c.mu.Unlock()
			return protocol.NewClosingMessage(protocol.CloseGoingAway, true, nil), nil
		default:
			c.mu.Lock()
			c.shutdown()
			c.mu.Unlock()
			return protocol.Message{}, fmt.Errorf("%w: %w", api.ErrTransport, rerr)
		}
	}
}

// next pops a queued message, the deferred violation or the closed error.
func (c *Conn) next() (protocol.Message, error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queue.Length() > 0 {
		return c.queue.Remove().(protocol.Message), nil, true
	}
	if c.err != nil {
		err := c.err
		c.err = nil
		return protocol.Message{}, err, true
	}
	if c.closed {
		return protocol.Message{}, api.ErrConnClosed, true
	}
	return protocol.Message{}, nil, false
}

func (c *Conn) feedPending() {
	c.mu.Lock()
	data := c.pending
	c.pending = nil
	c.mu.Unlock()
	if len(data) > 0 {
		c.feed(data)
	}
}

// feed runs the engine over data and queues the results.
func (c *Conn) feed(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs, err := c.proto.Receive(c.conn, data)
	closing := false
	for _, m := range msgs {
		c.queue.Add(m)
		closing = closing || m.IsClosing()
	}
	if err != nil {
		c.log.Warn("receive", "err", err)
		c.err = err
	}
	if closing || c.conn.State() == protocol.StateClosing {
		c.shutdown()
	}
}

// shutdown closes the transport. The caller holds c.mu.
func (c *Conn) shutdown() {
	if c.closed {
		return
	}
	c.closed = true
	c.conn.SetState(protocol.StateClosing)
	if err := c.tr.Close(); err != nil {
		c.log.Debug("transport close", "err", err)
	}
	c.log.Info("connection closed")
}

// Close sends a Normal close frame if the connection is still open and
// closes the transport. It is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	var err error
	if c.conn.State() == protocol.StateOpen {
		err = c.proto.Close(c.conn, protocol.CloseNormal, nil)
	}
	c.closed = true
	c.conn.SetState(protocol.StateClosing)
	if cerr := c.tr.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("%w: %w", api.ErrTransport, cerr)
	}
	c.log.Info("connection closed")
	return err
}

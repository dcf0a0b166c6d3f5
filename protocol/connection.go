// File: protocol/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection protocol state. The Engine is stateless and operates on a
// Conn supplied by the caller; a Conn must only be used by one goroutine at
// a time.

package protocol

import (
	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/transport"
)

// Conn owns the reassembly buffer, the message being accumulated and the
// lifecycle state of a single WebSocket connection.
type Conn struct {
	role      Role
	state     State
	transport api.Transport
	frames    *FrameBuffer
	current   *Message
	key       string
	retries   int
}

// ConnOption customizes a Conn.
type ConnOption func(*Conn)

// WithWriteRetries sets how many consecutive no-progress writes are tolerated.
func WithWriteRetries(n int) ConnOption {
	return func(c *Conn) {
		c.retries = n
	}
}

// WithState sets the initial state, e.g. StateOpen for connections whose
// handshake was completed elsewhere.
func WithState(s State) ConnOption {
	return func(c *Conn) {
		c.state = s
	}
}

// NewConn creates connection state in StateConnecting.
func NewConn(role Role, t api.Transport, opts ...ConnOption) *Conn {
	c := &Conn{
		role:      role,
		state:     StateConnecting,
		transport: t,
		frames:    NewFrameBuffer(),
		retries:   transport.DefaultWriteRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Role returns the local role.
func (c *Conn) Role() Role { return c.role }

// State returns the lifecycle state.
func (c *Conn) State() State { return c.state }

// SetState moves the connection to s. It reports false for transitions the
// state machine does not allow; Closing is terminal.
func (c *Conn) SetState(s State) bool {
	if c.state == s {
		return true
	}
	if !c.state.canMove(s) {
		return false
	}
	c.state = s
	if s == StateClosing {
		c.Reset()
	}
	return true
}

// Transport returns the underlying byte transport.
func (c *Conn) Transport() api.Transport { return c.transport }

// HandshakeKey returns the Sec-WebSocket-Key sent by a client connection.
func (c *Conn) HandshakeKey() string { return c.key }

// Reset discards partially received frames and the message in progress.
func (c *Conn) Reset() {
	c.frames.Reset()
	c.current = nil
}

func (c *Conn) message() *Message {
	if c.current == nil {
		c.current = &Message{Kind: KindData}
	}
	return c.current
}

func (c *Conn) write(b []byte) error {
	return transport.WriteFull(c.transport, b, c.retries)
}

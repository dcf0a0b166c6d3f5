// File: protocol/engine.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// RFC 6455 protocol engine: outgoing fragmentation and masking, incoming
// frame interpretation, control frames and the close handshake.

package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/momentics/wsproto/api"
)

// ErrNotOpen is returned when frames are sent or received outside StateOpen.
var ErrNotOpen = fmt.Errorf("%w: connection is not open", api.ErrConnClosed)

// Engine implements the RFC 6455 protocol. It holds configuration only, so
// one Engine serves any number of connections.
type Engine struct {
	// MaxFrameSize bounds the payload of every outgoing fragment.
	MaxFrameSize int
	// MaxPayload bounds the declared payload of incoming frames; zero disables it.
	MaxPayload uint64
	// Observer is notified of frames, messages and violations.
	Observer Observer
	// Logger receives Debug records for control frames; nil disables them.
	Logger *slog.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithMaxFrameSize sets the outgoing fragment size.
func WithMaxFrameSize(n int) EngineOption {
	return func(e *Engine) {
		e.MaxFrameSize = n
	}
}

// WithMaxPayload sets the incoming frame payload limit.
func WithMaxPayload(n uint64) EngineOption {
	return func(e *Engine) {
		e.MaxPayload = n
	}
}

// WithObserver attaches an Observer.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.Observer = o
	}
}

// WithLogger sets the Logger for control-frame records.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.Logger = l
	}
}

// NewEngine returns an Engine with DefaultMaxFrameSize and no payload limit.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{MaxFrameSize: DefaultMaxFrameSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name identifies the protocol in a Registry.
func (e *Engine) Name() string { return "RFC6455" }

func (e *Engine) debug(msg string, args ...any) {
	if e.Logger != nil {
		e.Logger.Debug(msg, args...)
	}
}

func (e *Engine) observer() Observer {
	if e.Observer == nil {
		return NopObserver{}
	}
	return e.Observer
}

// Send writes payload as a Text message when it is valid UTF-8 and as a
// Binary message otherwise.
func (e *Engine) Send(c *Conn, payload []byte) error {
	op := OpBinary
	if utf8.Valid(payload) {
		op = OpText
	}
	return e.SendOpcode(c, op, payload)
}

// SendOpcode writes payload as a message with the given data opcode, split
// into fragments of at most MaxFrameSize bytes.
func (e *Engine) SendOpcode(c *Conn, op Opcode, payload []byte) error {
	if op != OpText && op != OpBinary {
		return fmt.Errorf("%w: %s is not a data opcode", api.ErrInvalidOption, op)
	}
	if c.state != StateOpen {
		return ErrNotOpen
	}
	size := e.MaxFrameSize
	if size <= 0 {
		size = DefaultMaxFrameSize
	}
	for first := true; first || len(payload) > 0; first = false {
		chunk := payload
		if len(chunk) > size {
			chunk = chunk[:size]
		}
		payload = payload[len(chunk):]
		fop := op
		if !first {
			fop = OpContinuation
		}
		if err := e.writeFrame(c, fop, chunk, len(payload) == 0); err != nil {
			return err
		}
	}
	return nil
}

// Ping sends a Ping control frame.
func (e *Engine) Ping(c *Conn, payload []byte) error {
	if len(payload) > MaxControlPayloadLen {
		return fmt.Errorf("%w: ping payload of %d bytes", api.ErrInvalidOption, len(payload))
	}
	if c.state != StateOpen {
		return ErrNotOpen
	}
	return e.writeFrame(c, OpPing, payload, true)
}

// Close starts the close handshake: a Close frame carrying code and reason
// is written and the connection moves to StateClosing. Closing an already
// closing connection is a no-op.
func (e *Engine) Close(c *Conn, code CloseCode, reason []byte) error {
	if c.state == StateClosing {
		return nil
	}
	c.SetState(StateClosing)
	return e.writeFrame(c, OpClose, closePayload(code, reason), true)
}

// ExpectingData reports whether a message or frame is partially received.
func (e *Engine) ExpectingData(c *Conn) bool {
	return (c.current != nil && c.current.inProgress()) || c.frames.Pending()
}

// Receive feeds data into the connection and returns the messages completed
// by it, in order. A Close frame yields a closing message and ends the batch.
// On a protocol violation the connection is failed with a Close frame and
// the messages completed before the violation are returned with the error.
func (e *Engine) Receive(c *Conn, data []byte) ([]Message, error) {
	switch c.state {
	case StateClosing:
		return nil, nil
	case StateConnecting:
		return nil, ErrNotOpen
	}
	feedErr := c.frames.Feed(data, e.MaxPayload, func(f *Frame) error {
		return e.check(c, f)
	})

	var out []Message
	for {
		f, ok := c.frames.Next()
		if !ok {
			break
		}
		e.observer().FrameReceived(f.Opcode, len(f.Payload))

		switch f.Opcode {
		case OpContinuation, OpText, OpBinary:
			m := c.message()
			m.append(f)
			if m.complete {
				out = append(out, *m)
				c.current = nil
				e.observer().MessageReceived(KindData, len(m.Payload))
			}

		case OpClose:
			msg := parseClosing(f.Payload)
			out = append(out, msg)
			e.observer().MessageReceived(KindClosing, len(msg.Payload))
			c.SetState(StateClosing)
			err := e.writeFrame(c, OpClose, closePayload(CloseNormal, nil), true)
			e.debug("close echoed", "code", msg.Code, "role", c.role)
			if c.role == RoleServer {
				if cerr := c.transport.Close(); cerr != nil && err == nil {
					err = fmt.Errorf("%w: %w", api.ErrTransport, cerr)
				}
			}
			return out, err

		case OpPing:
			if err := e.writeFrame(c, OpPong, f.Payload, true); err != nil {
				return out, err
			}
			e.debug("ping answered", "len", len(f.Payload), "role", c.role)

		case OpPong:
			e.debug("pong received", "len", len(f.Payload), "role", c.role)
		}
	}
	if feedErr != nil {
		return out, e.fail(c, feedErr)
	}
	return out, nil
}

// check validates a frame header against the direction and framing rules
// before its payload is buffered.
func (e *Engine) check(c *Conn, f *Frame) error {
	switch {
	case !f.Opcode.IsValid():
		return api.NewProtocolError(uint16(CloseProtocolError), "reserved opcode 0x%X", uint8(f.Opcode))
	case f.RSV != 0:
		return api.NewProtocolError(uint16(CloseProtocolError), "reserved bits set without extension")
	case c.role == RoleServer && !f.Masked:
		return api.NewProtocolError(uint16(CloseProtocolError), "unmasked %s frame from client", f.Opcode)
	case f.Opcode.IsControl() && !f.Fin:
		return api.NewProtocolError(uint16(CloseProtocolError), "fragmented %s frame", f.Opcode)
	case f.Opcode.IsControl() && f.Length > MaxControlPayloadLen:
		return api.NewProtocolError(uint16(CloseProtocolError), "%s payload of %d bytes", f.Opcode, f.Length)
	}
	return nil
}

// fail closes the connection with the code carried by cause (ProtocolError
// by default) and returns cause.
func (e *Engine) fail(c *Conn, cause error) error {
	code := CloseProtocolError
	var pe *api.ProtocolError
	if errors.As(cause, &pe) {
		code = CloseCode(pe.Code)
	} else {
		cause = fmt.Errorf("%w: %w", api.ErrProtocol, cause)
	}
	e.observer().ProtocolViolation(code)
	if c.state == StateClosing {
		return cause
	}
	if err := e.Close(c, code, nil); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (e *Engine) writeFrame(c *Conn, op Opcode, payload []byte, fin bool) error {
	f, err := NewFrame(op, payload, fin, c.role)
	if err != nil {
		return err
	}
	if err := c.write(EncodeFrame(f)); err != nil {
		return err
	}
	e.observer().FrameSent(op, len(payload))
	return nil
}

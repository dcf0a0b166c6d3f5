// File: server/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection event dispatch: data, error and end of stream, depending on
// the connection state.

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/protocol"
	"github.com/momentics/wsproto/reactor"
	"github.com/momentics/wsproto/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	errHeaderTooLarge = fmt.Errorf("%w: request head too large", api.ErrHandshake)
	errNoProtocol     = fmt.Errorf("%w: no registered protocol accepts the request", api.ErrHandshake)
)

// readable reads one chunk from c and dispatches it.
func (s *Server) readable(c *Connection, ev reactor.EventMask) {
	buf := s.pool.Get()
	defer s.pool.Put(buf)

	n, err := c.tr.Read(*buf)
	switch {
	case err == nil:
		s.handleData(c, (*buf)[:n])
	case errors.Is(err, api.ErrWouldBlock):
		if ev.Has(reactor.EventError) {
			s.handleError(c, fmt.Errorf("%w: socket error", api.ErrTransport))
			s.handleEnd(c)
		}
	case errors.Is(err, io.EOF):
		s.handleEnd(c)
	default:
		s.handleError(c, err)
		s.handleEnd(c)
	}
}

// handleData routes bytes by connection state.
func (s *Server) handleData(c *Connection, data []byte) {
	switch c.State() {
	case protocol.StateConnecting:
		s.handshake(c, data)
	case protocol.StateOpen:
		s.receive(c, data)
	}
}

// handleError reports err to the application for open connections and
// aborts connections still in the handshake.
func (s *Server) handleError(c *Connection, err error) {
	switch c.State() {
	case protocol.StateOpen:
		c.log.Error("connection error", "err", err)
		s.app.OnError(c, err)
	case protocol.StateConnecting:
		c.log.Debug("error during handshake", "err", err)
		c.terminate()
	}
}

// handleEnd handles the peer going away. An open connection is reported to
// the application as an abnormal closure.
func (s *Server) handleEnd(c *Connection) {
	if c.State() == protocol.StateOpen {
		c.conn.SetState(protocol.StateClosing)
		s.app.OnClose(c, protocol.NewClosingMessage(protocol.CloseAbnormal, true, nil))
	}
	c.terminate()
}

// handshake accumulates the request head and upgrades the connection.
func (s *Server) handshake(c *Connection, data []byte) {
	if c.started.IsZero() {
		c.started = time.Now()
	}
	c.head = append(c.head, data...)
	end := protocol.HeaderEnd(c.head)
	if end < 0 {
		if len(c.head) > s.cfg.MaxHeaderBytes {
			s.reject(c, nil, errHeaderTooLarge)
		}
		return
	}
	if end > s.cfg.MaxHeaderBytes {
		s.reject(c, nil, errHeaderTooLarge)
		return
	}
	head, rest := c.head[:end], c.head[end:]
	c.head = nil

	_, span := s.tracer.Start(context.Background(), "websocket.handshake",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("net.peer.addr", c.RemoteAddr()),
			attribute.String("wsproto.conn_id", c.ID()),
		))
	defer span.End()

	req, err := protocol.ReadRequest(head)
	if err != nil {
		s.reject(c, span, err)
		return
	}
	span.SetAttributes(attribute.String("http.target", req.RequestURI))
	proto, ok := s.registry.Find(req)
	if !ok {
		s.reject(c, span, errNoProtocol)
		return
	}
	resp, err := proto.HandleRequest(req)
	if err != nil {
		s.reject(c, span, err)
		return
	}
	if err := transport.WriteFull(c.tr, protocol.EncodeResponse(resp), s.cfg.WriteRetries); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write response")
		s.metrics.Handshake("failed", 0)
		c.log.Warn("handshake response", "err", err)
		c.terminate()
		return
	}

	c.proto = proto
	c.req = req
	c.conn.SetState(protocol.StateOpen)
	c.opened = true
	s.open.Add(1)
	s.metrics.ConnectionOpened()
	s.metrics.Handshake("accepted", time.Since(c.started))
	span.SetAttributes(attribute.String("wsproto.protocol", proto.Name()))
	span.SetStatus(codes.Ok, "")
	c.log.Info("connection open", "path", req.URL.Path, "protocol", proto.Name())

	s.app.OnOpen(c, req)
	if len(rest) > 0 && c.State() == protocol.StateOpen {
		s.receive(c, rest)
	}
}

// reject answers 400 and drops the connection.
func (s *Server) reject(c *Connection, span trace.Span, err error) {
	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
	}
	s.metrics.Handshake("rejected", 0)
	c.log.Warn("handshake rejected", "err", err)
	if werr := transport.WriteFull(c.tr, protocol.EncodeResponse(protocol.BadRequest()), s.cfg.WriteRetries); werr != nil {
		c.log.Debug("write 400", "err", werr)
	}
	c.conn.SetState(protocol.StateClosing)
	c.terminate()
}

// receive runs the engine and delivers the resulting messages.
func (s *Server) receive(c *Connection, data []byte) {
	msgs, err := c.proto.Receive(c.conn, data)
	for _, m := range msgs {
		if m.IsClosing() {
			s.app.OnClose(c, m)
			c.terminate()
			return
		}
		s.app.OnMessage(c, m)
		if c.detached {
			return
		}
	}
	if err != nil {
		s.app.OnError(c, err)
		if c.State() == protocol.StateClosing {
			c.terminate()
		}
	}
}

// File: server/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/protocol"
)

// Connection is the server side of one WebSocket connection. Its methods
// must be called from Application callbacks.
type Connection struct {
	id    string
	fd    int
	srv   *Server
	tr    api.Transport
	conn  *protocol.Conn
	proto protocol.Protocol
	req   *http.Request
	log   *slog.Logger

	head     []byte
	started  time.Time
	opened   bool
	detached bool
}

func (s *Server) newConnection(tr api.Transport, fd int) *Connection {
	id := uuid.NewString()
	return &Connection{
		id:   id,
		fd:   fd,
		srv:  s,
		tr:   tr,
		conn: protocol.NewConn(protocol.RoleServer, tr, protocol.WithWriteRetries(s.cfg.WriteRetries)),
		log:  s.log.With("conn_id", id, "remote", tr.RemoteAddr()),
	}
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string { return c.id }

// RemoteAddr returns the peer address.
func (c *Connection) RemoteAddr() string { return c.tr.RemoteAddr() }

// State returns the protocol state.
func (c *Connection) State() protocol.State { return c.conn.State() }

// Request returns the upgrade request, nil before the handshake completed.
func (c *Connection) Request() *http.Request { return c.req }

// Protocol returns the negotiated protocol, nil before the handshake completed.
func (c *Connection) Protocol() protocol.Protocol { return c.proto }

// Logger returns the connection-scoped logger.
func (c *Connection) Logger() *slog.Logger { return c.log }

// Send writes payload as a Text message if it is valid UTF-8, Binary otherwise.
func (c *Connection) Send(payload []byte) error {
	if c.proto == nil {
		return protocol.ErrNotOpen
	}
	return c.proto.Send(c.conn, payload)
}

// SendText writes a Text message.
func (c *Connection) SendText(s string) error {
	return c.SendOpcode(protocol.OpText, []byte(s))
}

// SendBinary writes a Binary message.
func (c *Connection) SendBinary(b []byte) error {
	return c.SendOpcode(protocol.OpBinary, b)
}

// SendOpcode writes a message with an explicit data opcode.
func (c *Connection) SendOpcode(op protocol.Opcode, payload []byte) error {
	if c.proto == nil {
		return protocol.ErrNotOpen
	}
	return c.proto.SendOpcode(c.conn, op, payload)
}

// Ping sends a Ping frame.
func (c *Connection) Ping(payload []byte) error {
	if c.proto == nil {
		return protocol.ErrNotOpen
	}
	return c.proto.Ping(c.conn, payload)
}

// Close sends a Close frame and terminates the connection. OnClose is not
// called for connections closed this way.
func (c *Connection) Close(code protocol.CloseCode, reason string) error {
	var err error
	if c.proto != nil {
		err = c.proto.Close(c.conn, code, []byte(reason))
	} else {
		c.conn.SetState(protocol.StateClosing)
	}
	c.terminate()
	return err
}

// terminate closes the transport and forgets the connection.
func (c *Connection) terminate() {
	if err := c.tr.Close(); err != nil {
		c.log.Debug("transport close", "err", err)
	}
	c.srv.detach(c)
}

// File: server/application.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Application callbacks and middleware.

package server

import (
	"log/slog"
	"net/http"

	"github.com/momentics/wsproto/protocol"
)

// Application receives connection events. All methods are called from the
// reactor goroutine, one at a time, so per-connection state needs no locking.
type Application interface {
	// OnOpen is called once the handshake succeeded.
	OnOpen(c *Connection, req *http.Request)
	// OnMessage is called for every complete data message.
	OnMessage(c *Connection, msg protocol.Message)
	// OnClose is called when the peer closed the connection or went away.
	OnClose(c *Connection, msg protocol.Message)
	// OnError is called for protocol violations and transport failures on
	// open connections.
	OnError(c *Connection, err error)
}

// ApplicationFuncs adapts plain functions to Application. Nil fields are
// ignored.
type ApplicationFuncs struct {
	Open    func(c *Connection, req *http.Request)
	Message func(c *Connection, msg protocol.Message)
	Close   func(c *Connection, msg protocol.Message)
	Error   func(c *Connection, err error)
}

func (a ApplicationFuncs) OnOpen(c *Connection, req *http.Request) {
	if a.Open != nil {
		a.Open(c, req)
	}
}

func (a ApplicationFuncs) OnMessage(c *Connection, msg protocol.Message) {
	if a.Message != nil {
		a.Message(c, msg)
	}
}

func (a ApplicationFuncs) OnClose(c *Connection, msg protocol.Message) {
	if a.Close != nil {
		a.Close(c, msg)
	}
}

func (a ApplicationFuncs) OnError(c *Connection, err error) {
	if a.Error != nil {
		a.Error(c, err)
	}
}

// Middleware decorates an Application.
type Middleware func(next Application) Application

// chain wraps app so that mw[0] is the outermost layer.
func chain(app Application, mw ...Middleware) Application {
	for i := len(mw) - 1; i >= 0; i-- {
		app = mw[i](app)
	}
	return app
}

// Logging returns middleware that logs every application event at debug
// level before passing it on.
func Logging(l *slog.Logger) Middleware {
	return func(next Application) Application {
		return &loggingApp{next: next, log: l}
	}
}

type loggingApp struct {
	next Application
	log  *slog.Logger
}

func (a *loggingApp) OnOpen(c *Connection, req *http.Request) {
	a.log.Debug("open", "conn_id", c.ID(), "path", req.URL.Path)
	a.next.OnOpen(c, req)
}

func (a *loggingApp) OnMessage(c *Connection, msg protocol.Message) {
	a.log.Debug("message", "conn_id", c.ID(), "opcode", msg.Opcode, "bytes", len(msg.Payload))
	a.next.OnMessage(c, msg)
}

func (a *loggingApp) OnClose(c *Connection, msg protocol.Message) {
	a.log.Debug("close", "conn_id", c.ID(), "code", uint16(msg.Code), "has_code", msg.HasCode)
	a.next.OnClose(c, msg)
}

func (a *loggingApp) OnError(c *Connection, err error) {
	a.log.Debug("error", "conn_id", c.ID(), "err", err)
	a.next.OnError(c, err)
}

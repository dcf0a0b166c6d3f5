//go:build !linux
// +build !linux

// File: transport/socket_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package transport

import (
	"time"

	"github.com/momentics/wsproto/api"
)

// Listener is unavailable on this platform.
type Listener struct{}

// Listen returns api.ErrNotSupported.
func Listen(addr string) (*Listener, error) { return nil, api.ErrNotSupported }

func (l *Listener) Fd() int                      { return -1 }
func (l *Listener) Addr() string                 { return "" }
func (l *Listener) Accept() (*SocketConn, error) { return nil, api.ErrNotSupported }
func (l *Listener) Close() error                 { return nil }

// SocketConn is unavailable on this platform.
type SocketConn struct{}

func (c *SocketConn) Fd() int                                  { return -1 }
func (c *SocketConn) OnClose(fn func())                        {}
func (c *SocketConn) Closed() bool                             { return true }
func (c *SocketConn) Read(p []byte) (int, error)               { return 0, api.ErrNotSupported }
func (c *SocketConn) Write(p []byte) api.WriteResult           { return api.Failed(api.ErrNotSupported) }
func (c *SocketConn) WaitWritable(timeout time.Duration) error { return api.ErrNotSupported }
func (c *SocketConn) RemoteAddr() string                       { return "" }
func (c *SocketConn) Close() error                             { return nil }

//go:build linux
// +build linux

// File: transport/socket_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking TCP sockets driven by the epoll reactor.

package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/momentics/wsproto/api"
	"golang.org/x/sys/unix"
)

// Listener is a non-blocking listening TCP socket.
type Listener struct {
	fd   int
	addr string
}

// Listen binds a non-blocking TCP socket to addr ("host:port").
func Listen(addr string) (*Listener, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	family, sa := sockaddr(tcpAddr)
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket create: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s: %w", addr, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("getsockname: %w", err)
	}
	return &Listener{fd: fd, addr: sockaddrString(bound)}, nil
}

func sockaddr(a *net.TCPAddr) (int, unix.Sockaddr) {
	if ip4 := a.IP.To4(); ip4 != nil || a.IP == nil {
		sa := &unix.SockaddrInet4{Port: a.Port}
		copy(sa.Addr[:], ip4)
		return unix.AF_INET, sa
	}
	sa := &unix.SockaddrInet6{Port: a.Port}
	copy(sa.Addr[:], a.IP.To16())
	return unix.AF_INET6, sa
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	}
	return ""
}

// Fd returns the listening descriptor.
func (l *Listener) Fd() int { return l.fd }

// Addr returns the bound address, with the actual port when ":0" was used.
func (l *Listener) Addr() string { return l.addr }

// Accept returns the next pending connection or api.ErrWouldBlock.
func (l *Listener) Accept() (*SocketConn, error) {
	for {
		nfd, sa, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == nil:
			_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			return &SocketConn{fd: nfd, remote: sockaddrString(sa)}, nil
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
			continue
		case errors.Is(err, unix.EAGAIN):
			return nil, api.ErrWouldBlock
		}
		return nil, fmt.Errorf("accept: %w", err)
	}
}

// Close closes the listening socket.
func (l *Listener) Close() error {
	return unix.Close(l.fd)
}

// SocketConn is an accepted non-blocking TCP connection implementing
// api.Transport. Read reports api.ErrWouldBlock when no bytes are ready.
type SocketConn struct {
	fd      int
	remote  string
	closed  bool
	onClose func()
}

// Fd returns the connection descriptor.
func (c *SocketConn) Fd() int { return c.fd }

// OnClose registers fn to run once, right before the descriptor is closed.
func (c *SocketConn) OnClose(fn func()) { c.onClose = fn }

// Closed reports whether Close has been called.
func (c *SocketConn) Closed() bool { return c.closed }

// Read implements api.Transport.
func (c *SocketConn) Read(p []byte) (int, error) {
	if c.closed {
		return 0, api.ErrConnClosed
	}
	for {
		n, err := unix.Read(c.fd, p)
		switch {
		case err == nil && n == 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return 0, api.ErrWouldBlock
		}
		return 0, fmt.Errorf("%w: read: %w", api.ErrTransport, err)
	}
}

// Write implements api.Transport.
func (c *SocketConn) Write(p []byte) api.WriteResult {
	if c.closed {
		return api.Failed(api.ErrConnClosed)
	}
	n, err := unix.Write(c.fd, p)
	switch {
	case err == nil:
		return api.Written(n)
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
		return api.WouldBlock()
	}
	return api.Failed(fmt.Errorf("write: %w", err))
}

// WaitWritable implements api.WriteWaiter.
func (c *SocketConn) WaitWritable(timeout time.Duration) error {
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLOUT}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	switch {
	case errors.Is(err, unix.EINTR):
		return nil
	case err != nil:
		return fmt.Errorf("poll: %w", err)
	case n == 0:
		return api.ErrTimeout
	}
	return nil
}

// RemoteAddr implements api.Transport.
func (c *SocketConn) RemoteAddr() string { return c.remote }

// Close implements api.Transport. It is idempotent.
func (c *SocketConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.onClose != nil {
		c.onClose()
	}
	return unix.Close(c.fd)
}

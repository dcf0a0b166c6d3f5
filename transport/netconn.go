// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/momentics/wsproto/api"
)

// NetConn adapts a net.Conn to api.Transport. A positive read timeout arms a
// deadline before every Read; expiry is reported as api.ErrTimeout.
type NetConn struct {
	conn         net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewNetConn wraps conn.
func NewNetConn(conn net.Conn, readTimeout, writeTimeout time.Duration) *NetConn {
	return &NetConn{
		conn:         conn,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

// SetReadTimeout changes the per-read timeout.
func (n *NetConn) SetReadTimeout(d time.Duration) {
	n.readTimeout = d
}

// Read implements api.Transport. A deadline that cannot be armed is left to
// the Read itself to report, so a peer that already hung up yields io.EOF.
func (n *NetConn) Read(p []byte) (int, error) {
	if n.readTimeout > 0 {
		_ = n.conn.SetReadDeadline(time.Now().Add(n.readTimeout))
	}
	c, err := n.conn.Read(p)
	if err == nil || errors.Is(err, io.EOF) {
		return c, err
	}
	if isTimeout(err) {
		if c > 0 {
			return c, nil
		}
		return 0, api.ErrTimeout
	}
	return c, fmt.Errorf("%w: %w", api.ErrTransport, err)
}

// Write implements api.Transport.
func (n *NetConn) Write(p []byte) api.WriteResult {
	if n.writeTimeout > 0 {
		if err := n.conn.SetWriteDeadline(time.Now().Add(n.writeTimeout)); err != nil {
			return api.Failed(err)
		}
	}
	c, err := n.conn.Write(p)
	switch {
	case err == nil:
		return api.Written(c)
	case isTimeout(err):
		return api.Written(c)
	}
	return api.Failed(err)
}

// RemoteAddr implements api.Transport.
func (n *NetConn) RemoteAddr() string {
	if a := n.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}

// Close implements api.Transport.
func (n *NetConn) Close() error {
	return n.conn.Close()
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

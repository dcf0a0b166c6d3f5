// File: client/uri.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package client

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/momentics/wsproto/api"
)

// ErrTLSUnsupported is returned for wss:// URIs.
var ErrTLSUnsupported = fmt.Errorf("%w: wss (TLS) endpoints", api.ErrNotSupported)

const unixPrefix = "unix://"

// Target is a parsed client URI.
type Target struct {
	Network string // "tcp" or "unix"
	Address string // dial address
	Host    string // Host header value
	Path    string // request target
}

// ParseURI parses ws://host[:port]/path, host[:port]/path and
// unix:///path/to.sock. The port defaults to 80.
func ParseURI(uri string) (Target, error) {
	if strings.HasPrefix(uri, unixPrefix) {
		path := strings.TrimPrefix(uri, unixPrefix)
		if path == "" {
			return Target{}, invalid("empty unix socket path")
		}
		return Target{Network: "unix", Address: path, Host: "localhost", Path: "/"}, nil
	}
	if !strings.Contains(uri, "://") {
		uri = "ws://" + uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return Target{}, invalid("malformed uri: %v", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws":
	case "wss":
		return Target{}, ErrTLSUnsupported
	default:
		return Target{}, invalid("invalid uri scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return Target{}, invalid("missing host in %q", uri)
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}
	return Target{
		Network: "tcp",
		Address: net.JoinHostPort(u.Hostname(), port),
		Host:    u.Host,
		Path:    path,
	}, nil
}

func (t Target) String() string {
	if t.Network == "unix" {
		return unixPrefix + t.Address
	}
	return "ws://" + t.Address + t.Path
}

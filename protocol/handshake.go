// File: protocol/handshake.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Opening handshake: client upgrade request, Sec-WebSocket-Accept signing,
// server-side request validation and response serialization.

package protocol

import (
	"bufio"
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/momentics/wsproto/api"
)

const (
	MaxHandshakeHeadersSize = 8192

	HeaderConnection        = "Connection"
	HeaderUpgrade           = "Upgrade"
	HeaderSecWebSocketKey   = "Sec-WebSocket-Key"
	HeaderSecWebSocketVer   = "Sec-WebSocket-Version"
	HeaderSecWebSocketAcc   = "Sec-WebSocket-Accept"
	HeaderSecWebSocketProto = "Sec-WebSocket-Protocol"
)

var (
	ErrBadMethod             = fmt.Errorf("%w: method must be GET", api.ErrHandshake)
	ErrBadHTTPVersion        = fmt.Errorf("%w: HTTP/1.1 or later required", api.ErrHandshake)
	ErrBadPath               = fmt.Errorf("%w: request path is not US-ASCII", api.ErrHandshake)
	ErrInvalidUpgradeHeaders = fmt.Errorf("%w: Connection header does not request an upgrade", api.ErrHandshake)
	ErrHeadersTooLarge       = fmt.Errorf("%w: request headers too large", api.ErrHandshake)
	ErrMissingWebSocketKey   = fmt.Errorf("%w: missing or malformed Sec-WebSocket-Key", api.ErrHandshake)
	ErrBadWebSocketVersion   = fmt.Errorf("%w: unsupported Sec-WebSocket-Version; only 13 is supported", api.ErrHandshake)
	ErrBadStatus             = fmt.Errorf("%w: unexpected response status", api.ErrHandshake)
	ErrBadAccept             = fmt.Errorf("%w: Sec-WebSocket-Accept does not match the key", api.ErrHandshake)
)

// SignKey computes the Sec-WebSocket-Accept value for a client key.
func SignKey(key string) string {
	sum := sha1.Sum([]byte(key + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// NewKey returns a fresh base64-encoded 16-byte nonce. The nonce is the
// binary form of a random (version 4) UUID.
func NewKey() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("handshake nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(id[:]), nil
}

// Request builds the client upgrade request for path on host. Caller headers
// are merged first; the protocol headers always win. The generated key is
// remembered on c for HandleResponse.
func (e *Engine) Request(c *Conn, host, path string, hdr http.Header) (*http.Request, error) {
	if path == "" {
		path = "/"
	}
	u, err := url.ParseRequestURI(path)
	if err != nil {
		return nil, fmt.Errorf("%w: request path %q: %w", api.ErrHandshake, path, err)
	}
	key, err := NewKey()
	if err != nil {
		return nil, err
	}
	req := &http.Request{
		Method:     http.MethodGet,
		URL:        u,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header, len(hdr)+4),
		Host:       host,
	}
	for name, values := range hdr {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Header.Del("Host")
	req.Header.Set(HeaderUpgrade, "websocket")
	req.Header.Set(HeaderConnection, "Upgrade")
	req.Header.Set(HeaderSecWebSocketKey, key)
	req.Header.Set(HeaderSecWebSocketVer, Version)
	c.key = key
	return req, nil
}

// HandleResponse verifies the server's answer to the request built by Request.
func (e *Engine) HandleResponse(c *Conn, resp *http.Response) error {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return fmt.Errorf("%w: %d %s", ErrBadStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if c.key == "" || resp.Header.Get(HeaderSecWebSocketAcc) != SignKey(c.key) {
		return ErrBadAccept
	}
	return nil
}

// CanHandleRequest reports whether req asks for this protocol version.
func (e *Engine) CanHandleRequest(req *http.Request) bool {
	return req.Header.Get(HeaderSecWebSocketVer) == Version
}

// HandleRequest validates req and returns the 101 response. On error the
// caller answers with BadRequest and drops the connection.
func (e *Engine) HandleRequest(req *http.Request) (*http.Response, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	resp := newResponse(http.StatusSwitchingProtocols)
	resp.Header.Set(HeaderUpgrade, "websocket")
	resp.Header.Set(HeaderConnection, "Upgrade")
	resp.Header.Set(HeaderSecWebSocketAcc, SignKey(req.Header.Get(HeaderSecWebSocketKey)))
	return resp, nil
}

// BadRequest returns the 400 response sent for rejected handshakes.
func BadRequest() *http.Response {
	resp := newResponse(http.StatusBadRequest)
	resp.Header.Set(HeaderConnection, "close")
	resp.Header.Set("Content-Length", "0")
	return resp
}

func newResponse(code int) *http.Response {
	return &http.Response{
		Status:     fmt.Sprintf("%d %s", code, http.StatusText(code)),
		StatusCode: code,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     make(http.Header),
	}
}

// HeaderEnd returns the length of the HTTP head in buf including the blank
// line, or -1 when the head is not complete yet.
func HeaderEnd(buf []byte) int {
	i := bytes.Index(buf, []byte("\r\n\r\n"))
	if i < 0 {
		return -1
	}
	return i + 4
}

// ReadRequest parses a complete HTTP request head.
func ReadRequest(head []byte) (*http.Request, error) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(head)))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed upgrade request: %w", api.ErrProtocol, err)
	}
	return req, nil
}

// ReadResponse parses the handshake response from br. Bytes following the
// head stay buffered in br.
func ReadResponse(br *bufio.Reader, req *http.Request) (*http.Response, error) {
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed handshake response: %w", api.ErrProtocol, err)
	}
	return resp, nil
}

// EncodeRequest serializes an upgrade request head.
func EncodeRequest(req *http.Request) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "GET %s HTTP/1.1\r\nHost: %s\r\n", req.URL.RequestURI(), req.Host)
	_ = req.Header.Write(&buf)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// EncodeResponse serializes a handshake response head.
func EncodeResponse(resp *http.Response) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 %03d %s\r\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	_ = resp.Header.Write(&buf)
	buf.WriteString("\r\n")
	return buf.Bytes()
}

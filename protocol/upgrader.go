// File: protocol/upgrader.go
// Package protocol implements HTTP→WebSocket handshake logic with strict validation.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ValidateRequest checks the upgrade request a server receives: method,
// HTTP version, request target, header size, Connection header, key and
// version.

package protocol

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// ValidateRequest checks a client upgrade request.
func ValidateRequest(req *http.Request) error {
	if req.Method != http.MethodGet {
		return ErrBadMethod
	}
	if !req.ProtoAtLeast(1, 1) {
		return ErrBadHTTPVersion
	}
	target := req.RequestURI
	if target == "" && req.URL != nil {
		target = req.URL.RequestURI()
	}
	for i := 0; i < len(target); i++ {
		if target[i] >= 0x80 {
			return ErrBadPath
		}
	}
	if headerSize(req.Header) > MaxHandshakeHeadersSize {
		return ErrHeadersTooLarge
	}
	if !headerContains(req.Header, HeaderConnection, "upgrade") {
		return ErrInvalidUpgradeHeaders
	}
	raw, err := base64.StdEncoding.DecodeString(req.Header.Get(HeaderSecWebSocketKey))
	if err != nil || len(raw) != 16 {
		return ErrMissingWebSocketKey
	}
	if req.Header.Get(HeaderSecWebSocketVer) != Version {
		return ErrBadWebSocketVersion
	}
	return nil
}

// headerSize sums the lengths of all header names and values.
func headerSize(h http.Header) int {
	total := 0
	for k, vs := range h {
		total += len(k)
		for _, v := range vs {
			total += len(v)
		}
	}
	return total
}

// headerContains reports whether any value of header name contains sub,
// case-insensitively. sub must be lower case.
func headerContains(h http.Header, name, sub string) bool {
	for _, v := range h.Values(name) {
		if strings.Contains(strings.ToLower(v), sub) {
			return true
		}
	}
	return false
}

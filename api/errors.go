// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and error handling utilities for wsproto.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	// ErrUnderflow reports that more bytes are needed to complete a frame header.
	// It never escapes the protocol engine.
	ErrUnderflow = errors.New("wsproto: need more data")

	ErrProtocol      = errors.New("wsproto: protocol violation")
	ErrHandshake     = errors.New("wsproto: handshake failed")
	ErrTransport     = errors.New("wsproto: transport failure")
	ErrTimeout       = errors.New("wsproto: read timeout")
	ErrWouldBlock    = errors.New("wsproto: operation would block")
	ErrNoMessage     = errors.New("wsproto: no message yet")
	ErrConnClosed    = errors.New("wsproto: connection closed")
	ErrNotSupported  = errors.New("wsproto: operation not supported")
	ErrInvalidOption = errors.New("wsproto: invalid option")
)

// ProtocolError is a protocol violation together with the close code that was
// (or should be) sent to the peer.
type ProtocolError struct {
	Code   uint16
	Reason string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wsproto: protocol violation (%d): %s", e.Code, e.Reason)
}

// Unwrap lets errors.Is(err, ErrProtocol) match.
func (e *ProtocolError) Unwrap() error { return ErrProtocol }

// NewProtocolError builds a ProtocolError.
func NewProtocolError(code uint16, format string, args ...any) *ProtocolError {
	return &ProtocolError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// IsTimeout reports whether err is a read timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

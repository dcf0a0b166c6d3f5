// File: api/transport.go
// Author: momentics <momentics@gmail.com>
//
// Byte transport abstraction consumed by the protocol engine, the
// reactor-driven server and the synchronous client.

package api

import "time"

// Transport is a full-duplex byte stream.
//
// Read returns ErrTimeout when no bytes arrived within the transport's read
// timeout, and io.EOF on end of stream. Write never blocks indefinitely: a
// transport that cannot accept bytes right now reports WriteWouldBlock.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) WriteResult
	RemoteAddr() string
	Close() error
}

// WriteWaiter is implemented by transports that can wait for writability,
// typically non-blocking sockets.
type WriteWaiter interface {
	WaitWritable(timeout time.Duration) error
}

// WriteStatus classifies the outcome of a single Write call.
type WriteStatus uint8

const (
	// WriteOK means N bytes (possibly fewer than requested) were accepted.
	WriteOK WriteStatus = iota
	// WriteWouldBlock means nothing was accepted but the transport is healthy.
	WriteWouldBlock
	// WriteFailed means the transport is broken; Err holds the cause.
	WriteFailed
)

// String returns the status name.
func (s WriteStatus) String() string {
	switch s {
	case WriteOK:
		return "ok"
	case WriteWouldBlock:
		return "would-block"
	case WriteFailed:
		return "failed"
	}
	return "unknown"
}

// WriteResult is the structured result of Transport.Write.
type WriteResult struct {
	N      int
	Status WriteStatus
	Err    error
}

// Written is a helper for the common success case.
func Written(n int) WriteResult {
	if n == 0 {
		return WriteResult{Status: WriteWouldBlock}
	}
	return WriteResult{N: n, Status: WriteOK}
}

// WouldBlock returns a WriteResult with no progress.
func WouldBlock() WriteResult {
	return WriteResult{Status: WriteWouldBlock}
}

// Failed returns a WriteResult for a broken transport.
func Failed(err error) WriteResult {
	return WriteResult{Status: WriteFailed, Err: err}
}

// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral event reactor interface.

package reactor

import (
	"errors"
	"time"
)

// ErrUnsupported is returned by New on platforms without a reactor backend.
var ErrUnsupported = errors.New("reactor: this platform is not supported")

// EventMask describes the readiness reported for a descriptor.
type EventMask uint8

const (
	EventRead EventMask = 1 << iota
	EventError
	EventHangup
)

// Has reports whether all bits of ev are set in m.
func (m EventMask) Has(ev EventMask) bool { return m&ev == ev }

// Callback handles readiness of fd. Callbacks run on the goroutine calling
// Poll, one at a time.
type Callback func(fd int, ev EventMask)

// Reactor multiplexes readiness notifications for file descriptors.
// It is driven by a single goroutine calling Poll in a loop.
type Reactor interface {
	// Register watches fd for readability and hang-ups.
	Register(fd int, cb Callback) error

	// Unregister stops watching fd. Unknown descriptors are ignored.
	Unregister(fd int) error

	// Poll waits up to timeout for events and dispatches their callbacks.
	// A negative timeout blocks until an event arrives. It returns the
	// number of dispatched events.
	Poll(timeout time.Duration) (int, error)

	// Close releases the reactor.
	Close() error
}

//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux reactor factory.

package reactor

// New constructs the platform-specific Reactor for Linux.
func New() (Reactor, error) {
	return newEpollReactor()
}

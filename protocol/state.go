// Package protocol
// Author: momentics <momentics@gmail.com>

package protocol

// State is the lifecycle state of a connection.
type State uint8

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// canMove reports whether the transition s -> next is allowed.
// Closing is terminal.
func (s State) canMove(next State) bool {
	switch s {
	case StateConnecting:
		return next == StateOpen || next == StateClosing
	case StateOpen:
		return next == StateClosing
	}
	return false
}

// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Observer receives engine events, e.g. for metrics collection.

package protocol

// Observer is notified by the Engine about wire-level activity. Methods are
// called synchronously from Send/Receive and must not block.
type Observer interface {
	FrameReceived(op Opcode, payloadLen int)
	FrameSent(op Opcode, payloadLen int)
	MessageReceived(kind MessageKind, payloadLen int)
	ProtocolViolation(code CloseCode)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) FrameReceived(Opcode, int)        {}
func (NopObserver) FrameSent(Opcode, int)            {}
func (NopObserver) MessageReceived(MessageKind, int) {}
func (NopObserver) ProtocolViolation(CloseCode)      {}

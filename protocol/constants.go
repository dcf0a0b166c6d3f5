// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket wire protocol constants

package protocol

import "fmt"

// Opcode is the 4-bit frame operation code.
type Opcode uint8

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

const (
	// Frame limit settings
	MaxControlPayloadLen = 125
	MaxFrameHeaderLen    = 14 // for extended payloads with masking

	// DefaultMaxFrameSize bounds the payload of each outgoing fragment.
	DefaultMaxFrameSize = 1 << 15

	// Bit masks
	FinBit  = 0x80
	MaskBit = 0x80
	rsvBits = 0x70

	len16 = 126
	len64 = 127

	// WebSocketGUID is appended to Sec-WebSocket-Key before hashing.
	WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

	// Version is the only protocol version spoken.
	Version = "13"
)

// IsControl reports whether op is Close, Ping or Pong.
func (op Opcode) IsControl() bool { return op&0x8 != 0 }

// IsData reports whether op is Continuation, Text or Binary.
func (op Opcode) IsData() bool { return op <= OpBinary }

// IsValid reports whether op is one of the six defined opcodes.
func (op Opcode) IsValid() bool {
	switch op {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
		return true
	}
	return false
}

func (op Opcode) String() string {
	switch op {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	}
	return fmt.Sprintf("reserved(0x%X)", uint8(op))
}

// CloseCode is a close status code carried in a Close frame.
type CloseCode uint16

const (
	CloseNormal             CloseCode = 1000
	CloseGoingAway          CloseCode = 1001
	CloseProtocolError      CloseCode = 1002
	CloseUnsupportedData    CloseCode = 1003
	CloseNoStatus           CloseCode = 1005
	CloseAbnormal           CloseCode = 1006
	CloseInvalidPayload     CloseCode = 1007
	ClosePolicyViolation    CloseCode = 1008
	CloseMessageTooBig      CloseCode = 1009
	CloseMandatoryExtension CloseCode = 1010
	CloseInternalError      CloseCode = 1011
	CloseTLSHandshake       CloseCode = 1015
)

var closeCodeNames = map[CloseCode]string{
	CloseNormal:             "normal",
	CloseGoingAway:          "going away",
	CloseProtocolError:      "protocol error",
	CloseUnsupportedData:    "unsupported data",
	CloseNoStatus:           "no status",
	CloseAbnormal:           "abnormal",
	CloseInvalidPayload:     "invalid payload",
	ClosePolicyViolation:    "policy violation",
	CloseMessageTooBig:      "message too big",
	CloseMandatoryExtension: "mandatory extension",
	CloseInternalError:      "internal error",
	CloseTLSHandshake:       "tls handshake",
}

func (c CloseCode) String() string {
	if name, ok := closeCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("close code %d", uint16(c))
}

// Role is the local side of a connection. It decides the masking direction.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

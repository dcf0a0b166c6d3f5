// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Application messages assembled from data frames, and the closing variant.

package protocol

import (
	"encoding/binary"
	"fmt"
)

// MessageKind distinguishes data messages from the closing message.
type MessageKind uint8

const (
	KindData MessageKind = iota
	KindClosing
)

func (k MessageKind) String() string {
	if k == KindClosing {
		return "closing"
	}
	return "data"
}

// Message is a complete application message or a closing notification.
//
// For data messages Opcode is the opcode of the first fragment (Text or
// Binary). For closing messages Payload holds the reason and Code the status
// code when HasCode is set.
type Message struct {
	Kind    MessageKind
	Opcode  Opcode
	Payload []byte
	Code    CloseCode
	HasCode bool

	started  bool
	complete bool
}

// NewMessage returns a complete data message.
func NewMessage(op Opcode, payload []byte) Message {
	return Message{Kind: KindData, Opcode: op, Payload: payload, started: true, complete: true}
}

// NewClosingMessage returns a closing message.
func NewClosingMessage(code CloseCode, hasCode bool, reason []byte) Message {
	return Message{
		Kind:     KindClosing,
		Opcode:   OpClose,
		Payload:  reason,
		Code:     code,
		HasCode:  hasCode,
		started:  true,
		complete: true,
	}
}

// parseClosing interprets a Close frame payload.
func parseClosing(payload []byte) Message {
	if len(payload) < 2 {
		return NewClosingMessage(0, false, nil)
	}
	code := CloseCode(binary.BigEndian.Uint16(payload))
	var reason []byte
	if len(payload) > 2 {
		reason = append([]byte(nil), payload[2:]...)
	}
	return NewClosingMessage(code, true, reason)
}

// closePayload builds a Close frame payload. Codes that must not appear on
// the wire produce an empty payload.
func closePayload(code CloseCode, reason []byte) []byte {
	switch code {
	case 0, CloseNoStatus, CloseAbnormal, CloseTLSHandshake:
		return nil
	}
	if len(reason) > MaxControlPayloadLen-2 {
		reason = reason[:MaxControlPayloadLen-2]
	}
	p := binary.BigEndian.AppendUint16(make([]byte, 0, 2+len(reason)), uint16(code))
	return append(p, reason...)
}

// Complete reports whether the final fragment has been received.
func (m *Message) Complete() bool { return m.complete }

// IsClosing reports whether m is the closing variant.
func (m *Message) IsClosing() bool { return m.Kind == KindClosing }

// Text returns the payload as a string.
func (m *Message) Text() string { return string(m.Payload) }

func (m *Message) append(f *Frame) {
	if !m.started {
		m.Opcode = f.Opcode
		m.started = true
	}
	m.Payload = append(m.Payload, f.Payload...)
	if f.Fin {
		m.complete = true
	}
}

func (m *Message) inProgress() bool {
	return m.started && !m.complete
}

func (m Message) String() string {
	if m.Kind == KindClosing {
		if m.HasCode {
			return fmt.Sprintf("[ClosingMessage %d] %s", uint16(m.Code), m.Payload)
		}
		return fmt.Sprintf("[ClosingMessage] %s", m.Payload)
	}
	return fmt.Sprintf("[Message] %s", m.Payload)
}

// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket frame representation, masking and serialization.
//
// A Frame is always kept unmasked in memory: masking is applied while
// encoding and undone chunk by chunk as payload bytes arrive.

package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Frame is a single RFC 6455 frame.
type Frame struct {
	Fin     bool
	RSV     uint8 // RSV1..RSV3 as the low three bits
	Opcode  Opcode
	Masked  bool
	Key     [4]byte
	Length  uint64 // declared payload length
	Payload []byte // unmasked bytes received so far
}

// NewFrame builds a complete frame for the given role. Client frames are
// masked with a fresh random key; server frames never are.
func NewFrame(op Opcode, payload []byte, fin bool, role Role) (*Frame, error) {
	f := &Frame{
		Fin:     fin,
		Opcode:  op,
		Length:  uint64(len(payload)),
		Payload: payload,
	}
	if role == RoleClient {
		f.Masked = true
		if _, err := rand.Read(f.Key[:]); err != nil {
			return nil, fmt.Errorf("mask key: %w", err)
		}
	}
	return f, nil
}

// Complete reports whether the whole declared payload has arrived.
func (f *Frame) Complete() bool {
	return uint64(len(f.Payload)) == f.Length
}

// remaining is the number of payload bytes still expected.
func (f *Frame) remaining() uint64 {
	return f.Length - uint64(len(f.Payload))
}

// fill appends as many payload bytes as the frame still needs, unmasking
// them in place, and returns the surplus.
func (f *Frame) fill(data []byte) []byte {
	need := f.remaining()
	take := uint64(len(data))
	if take > need {
		take = need
	}
	start := len(f.Payload)
	f.Payload = append(f.Payload, data[:take]...)
	if f.Masked {
		MaskOffset(f.Key, f.Payload[start:], start)
	}
	return data[take:]
}

// headerLen returns the encoded header size for the frame.
func (f *Frame) headerLen() int {
	n := 2
	switch l := len(f.Payload); {
	case l > 0xFFFF:
		n += 8
	case l > 125:
		n += 2
	}
	if f.Masked {
		n += 4
	}
	return n
}

// Mask XORs b in place with key. Applying it twice restores b.
func Mask(key [4]byte, b []byte) {
	MaskOffset(key, b, 0)
}

// MaskOffset is Mask for a slice that starts pos bytes into the payload.
func MaskOffset(key [4]byte, b []byte, pos int) {
	for i := range b {
		b[i] ^= key[(pos+i)&3]
	}
}

// EncodeFrame serializes f into a newly allocated buffer.
func EncodeFrame(f *Frame) []byte {
	return AppendFrame(make([]byte, 0, f.headerLen()+len(f.Payload)), f)
}

// AppendFrame appends the wire form of f to dst. The frame's own payload is
// left untouched; the masked copy lives in dst only.
func AppendFrame(dst []byte, f *Frame) []byte {
	b0 := byte(f.Opcode) & 0x0F
	b0 |= (f.RSV & 0x07) << 4
	if f.Fin {
		b0 |= FinBit
	}
	var b1 byte
	if f.Masked {
		b1 = MaskBit
	}

	l := len(f.Payload)
	switch {
	case l <= 125:
		dst = append(dst, b0, b1|byte(l))
	case l <= 0xFFFF:
		dst = append(dst, b0, b1|len16)
		dst = binary.BigEndian.AppendUint16(dst, uint16(l))
	default:
		dst = append(dst, b0, b1|len64)
		dst = binary.BigEndian.AppendUint64(dst, uint64(l))
	}

	if !f.Masked {
		return append(dst, f.Payload...)
	}
	dst = append(dst, f.Key[:]...)
	start := len(dst)
	dst = append(dst, f.Payload...)
	Mask(f.Key, dst[start:])
	return dst
}

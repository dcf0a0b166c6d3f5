// File: protocol/frame_codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Incremental frame extraction and the per-connection reassembly buffer.

package protocol

import (
	"encoding/binary"
	"errors"

	"github.com/eapache/queue"
	"github.com/momentics/wsproto/api"
)

// DecodeHeader parses a frame header from the start of b. It returns the
// frame with an empty payload and the header size, or api.ErrUnderflow when b
// is too short to hold the whole header. maxPayload of zero disables the
// payload length limit.
func DecodeHeader(b []byte, maxPayload uint64) (*Frame, int, error) {
	if len(b) < 2 {
		return nil, 0, api.ErrUnderflow
	}
	f := &Frame{
		Fin:    b[0]&FinBit != 0,
		RSV:    (b[0] & rsvBits) >> 4,
		Opcode: Opcode(b[0] & 0x0F),
		Masked: b[1]&MaskBit != 0,
		Length: uint64(b[1] & 0x7F),
	}
	n := 2
	switch f.Length {
	case len16:
		if len(b) < n+2 {
			return nil, 0, api.ErrUnderflow
		}
		f.Length = uint64(binary.BigEndian.Uint16(b[n:]))
		n += 2
	case len64:
		if len(b) < n+8 {
			return nil, 0, api.ErrUnderflow
		}
		f.Length = binary.BigEndian.Uint64(b[n:])
		n += 8
		if f.Length>>63 != 0 {
			return nil, 0, api.NewProtocolError(uint16(CloseProtocolError), "payload length has the most significant bit set")
		}
	}
	if f.Masked {
		if len(b) < n+4 {
			return nil, 0, api.ErrUnderflow
		}
		copy(f.Key[:], b[n:n+4])
		n += 4
	}
	if maxPayload > 0 && f.Length > maxPayload {
		return nil, 0, api.NewProtocolError(uint16(CloseMessageTooBig), "frame payload %d exceeds limit %d", f.Length, maxPayload)
	}
	f.Payload = make([]byte, 0, initialCap(f.Length, len(b)-n))
	return f, n, nil
}

func initialCap(declared uint64, available int) int {
	if available < 0 {
		available = 0
	}
	if declared < uint64(available) {
		return int(declared)
	}
	return available
}

// HeaderCheck inspects a decoded header before any of its payload is
// buffered. A non-nil error stops decoding at that frame.
type HeaderCheck func(*Frame) error

// ExtractFrames completes tail (if it is still incomplete) with the leading
// bytes of data and then decodes as many frames from the rest as it holds.
// Only the last returned frame may be incomplete. Bytes that do not yet form
// a whole header are returned as rest; they must be prefixed to the next chunk.
func ExtractFrames(data []byte, tail *Frame, maxPayload uint64) (frames []*Frame, rest []byte, err error) {
	return extractFrames(data, tail, maxPayload, nil)
}

func extractFrames(data []byte, tail *Frame, maxPayload uint64, check HeaderCheck) (frames []*Frame, rest []byte, err error) {
	if tail != nil && !tail.Complete() {
		data = tail.fill(data)
		if !tail.Complete() {
			return nil, nil, nil
		}
	}
	for len(data) > 0 {
		f, n, err := DecodeHeader(data, maxPayload)
		if errors.Is(err, api.ErrUnderflow) {
			return frames, data, nil
		}
		if err == nil && check != nil {
			err = check(f)
		}
		if err != nil {
			return frames, nil, err
		}
		data = f.fill(data[n:])
		frames = append(frames, f)
	}
	return frames, nil, nil
}

// FrameBuffer holds the frames of one connection that have been decoded but
// not yet consumed. At most the last frame is incomplete.
type FrameBuffer struct {
	frames  *queue.Queue
	partial []byte
}

// NewFrameBuffer returns an empty buffer.
func NewFrameBuffer() *FrameBuffer {
	return &FrameBuffer{frames: queue.New()}
}

// Feed decodes data into the buffer. Underflow is not an error. On a
// decoding or check error the frames decoded before the offending header
// stay queued. check may be nil.
func (b *FrameBuffer) Feed(data []byte, maxPayload uint64, check HeaderCheck) error {
	if len(b.partial) > 0 {
		data = append(b.partial, data...)
		b.partial = nil
	}
	frames, rest, err := extractFrames(data, b.tail(), maxPayload, check)
	for _, f := range frames {
		b.frames.Add(f)
	}
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		b.partial = append([]byte(nil), rest...)
	}
	return nil
}

// Next dequeues the oldest frame if it is complete.
func (b *FrameBuffer) Next() (*Frame, bool) {
	if b.frames.Length() == 0 {
		return nil, false
	}
	f := b.frames.Peek().(*Frame)
	if !f.Complete() {
		return nil, false
	}
	b.frames.Remove()
	return f, true
}

// Pending reports whether an unfinished frame or partial header is buffered.
func (b *FrameBuffer) Pending() bool {
	if len(b.partial) > 0 {
		return true
	}
	t := b.tail()
	return t != nil && !t.Complete()
}

// Len returns the number of buffered frames, complete or not.
func (b *FrameBuffer) Len() int {
	return b.frames.Length()
}

// Reset drops every buffered frame and partial header.
func (b *FrameBuffer) Reset() {
	b.frames = queue.New()
	b.partial = nil
}

func (b *FrameBuffer) tail() *Frame {
	if b.frames.Length() == 0 {
		return nil
	}
	return b.frames.Get(-1).(*Frame)
}

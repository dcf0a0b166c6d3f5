package protocol_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/protocol"
)

func mustFrame(t *testing.T, op protocol.Opcode, payload []byte, fin bool, role protocol.Role) *protocol.Frame {
	t.Helper()
	f, err := protocol.NewFrame(op, payload, fin, role)
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	return f
}

func TestLengthEncodingBoundaries(t *testing.T) {
	cases := []struct {
		size      int
		indicator byte
		header    int
	}{
		{0, 0, 2},
		{125, 125, 2},
		{126, 126, 4},
		{65535, 126, 4},
		{65536, 127, 10},
	}
	for _, tc := range cases {
		f := mustFrame(t, protocol.OpBinary, make([]byte, tc.size), true, protocol.RoleServer)
		wire := protocol.EncodeFrame(f)
		if got := wire[1] & 0x7F; got != tc.indicator {
			t.Errorf("size %d: length indicator = %d, want %d", tc.size, got, tc.indicator)
		}
		if got := len(wire) - tc.size; got != tc.header {
			t.Errorf("size %d: header length = %d, want %d", tc.size, got, tc.header)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ops := []protocol.Opcode{
		protocol.OpContinuation, protocol.OpText, protocol.OpBinary,
		protocol.OpClose, protocol.OpPing, protocol.OpPong,
	}
	payloads := [][]byte{
		nil,
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, 126),
		bytes.Repeat([]byte("x"), 70000),
	}
	for _, role := range []protocol.Role{protocol.RoleClient, protocol.RoleServer} {
		for _, op := range ops {
			for _, p := range payloads {
				for _, fin := range []bool{true, false} {
					f := mustFrame(t, op, p, fin, role)
					frames, rest, err := protocol.ExtractFrames(protocol.EncodeFrame(f), nil, 0)
					if err != nil || len(rest) != 0 || len(frames) != 1 {
						t.Fatalf("%s/%s len=%d: frames=%d rest=%d err=%v", role, op, len(p), len(frames), len(rest), err)
					}
					got := frames[0]
					if got.Opcode != op || got.Fin != fin || got.Masked != (role == protocol.RoleClient) {
						t.Errorf("%s/%s: header mismatch: %+v", role, op, got)
					}
					if !got.Complete() || !bytes.Equal(got.Payload, p) {
						t.Errorf("%s/%s len=%d: payload mismatch", role, op, len(p))
					}
				}
			}
		}
	}
}

func TestEncodeDoesNotMaskCallerPayload(t *testing.T) {
	payload := []byte("keep me")
	f := mustFrame(t, protocol.OpText, payload, true, protocol.RoleClient)
	wire := protocol.EncodeFrame(f)
	if !bytes.Equal(payload, []byte("keep me")) {
		t.Fatal("EncodeFrame modified the payload")
	}
	if bytes.Contains(wire, payload) && f.Key != [4]byte{} {
		t.Error("masked frame carries the clear payload")
	}
}

func TestMaskInvolution(t *testing.T) {
	key := [4]byte{0x37, 0xfa, 0x21, 0x3d}
	orig := []byte("Hello, masked world!")
	b := append([]byte(nil), orig...)
	protocol.Mask(key, b)
	if bytes.Equal(b, orig) {
		t.Fatal("mask did not change the payload")
	}
	protocol.Mask(key, b)
	if !bytes.Equal(b, orig) {
		t.Fatalf("mask(mask(x)) = %q, want %q", b, orig)
	}
}

func TestMaskOffsetMatchesWholeMask(t *testing.T) {
	key := [4]byte{0x37, 0xfa, 0x21, 0x3d}
	whole := []byte("split across uneven chunks")
	pieces := append([]byte(nil), whole...)
	protocol.Mask(key, whole)
	for _, cut := range [][2]int{{0, 3}, {3, 10}, {10, len(pieces)}} {
		protocol.MaskOffset(key, pieces[cut[0]:cut[1]], cut[0])
	}
	if !bytes.Equal(whole, pieces) {
		t.Fatalf("piecewise mask = %q, want %q", pieces, whole)
	}
}

func TestFrameBufferUnmasksPartialPayload(t *testing.T) {
	wire := protocol.EncodeFrame(mustFrame(t, protocol.OpBinary, []byte("abcdefg"), true, protocol.RoleClient))
	buf := protocol.NewFrameBuffer()
	for _, chunk := range [][]byte{wire[:9], wire[9:]} {
		if err := buf.Feed(chunk, 0, nil); err != nil {
			t.Fatal(err)
		}
	}
	f, ok := buf.Next()
	if !ok || string(f.Payload) != "abcdefg" {
		t.Fatalf("got %v %q", ok, f.Payload)
	}
}

func TestFrameBufferStopsAtRejectedHeader(t *testing.T) {
	var wire []byte
	wire = protocol.AppendFrame(wire, mustFrame(t, protocol.OpText, []byte("ok"), true, protocol.RoleServer))
	wire = protocol.AppendFrame(wire, mustFrame(t, protocol.OpPing, nil, true, protocol.RoleServer))
	errReject := errors.New("rejected")
	buf := protocol.NewFrameBuffer()
	err := buf.Feed(wire, 0, func(f *protocol.Frame) error {
		if f.Opcode == protocol.OpPing {
			return errReject
		}
		return nil
	})
	if !errors.Is(err, errReject) {
		t.Fatalf("err = %v", err)
	}
	if f, ok := buf.Next(); !ok || string(f.Payload) != "ok" {
		t.Fatalf("frame before the rejected header was lost")
	}
	if buf.Len() != 0 {
		t.Fatalf("len = %d, rejected frame must not be queued", buf.Len())
	}
}

// RFC 6455 section 5.7 examples.
func TestDecodeRFCExamples(t *testing.T) {
	cases := []struct {
		name   string
		wire   []byte
		op     protocol.Opcode
		masked bool
	}{
		{"unmasked text", []byte{0x81, 0x05, 0x48, 0x65, 0x6c, 0x6c, 0x6f}, protocol.OpText, false},
		{"masked text", []byte{0x81, 0x85, 0x37, 0xfa, 0x21, 0x3d, 0x7f, 0x9f, 0x4d, 0x51, 0x58}, protocol.OpText, true},
		{"unmasked ping", []byte{0x89, 0x05, 0x48, 0x65, 0x6c, 0x6c, 0x6f}, protocol.OpPing, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frames, _, err := protocol.ExtractFrames(tc.wire, nil, 0)
			if err != nil || len(frames) != 1 {
				t.Fatalf("frames=%d err=%v", len(frames), err)
			}
			f := frames[0]
			if f.Opcode != tc.op || f.Masked != tc.masked || string(f.Payload) != "Hello" {
				t.Errorf("got %+v payload %q", f, f.Payload)
			}
		})
	}
}

func TestFrameBufferByteAtATime(t *testing.T) {
	var wire []byte
	wire = protocol.AppendFrame(wire, mustFrame(t, protocol.OpText, []byte("Hel"), false, protocol.RoleClient))
	wire = protocol.AppendFrame(wire, mustFrame(t, protocol.OpContinuation, bytes.Repeat([]byte("l"), 300), false, protocol.RoleClient))
	wire = protocol.AppendFrame(wire, mustFrame(t, protocol.OpContinuation, []byte("o"), true, protocol.RoleClient))

	buf := protocol.NewFrameBuffer()
	var got []*protocol.Frame
	for i := range wire {
		if err := buf.Feed(wire[i:i+1], 0, nil); err != nil {
			t.Fatalf("Feed at %d: %v", i, err)
		}
		for {
			f, ok := buf.Next()
			if !ok {
				break
			}
			got = append(got, f)
		}
		if i == 0 && !buf.Pending() {
			t.Fatal("a lone header byte must be pending")
		}
	}
	if len(got) != 3 {
		t.Fatalf("got %d frames, want 3", len(got))
	}
	if buf.Pending() || buf.Len() != 0 {
		t.Error("buffer should be drained")
	}
	if len(got[1].Payload) != 300 || !got[2].Fin {
		t.Errorf("unexpected frames: %+v", got)
	}
}

func TestFrameBufferKeepsIncompleteTail(t *testing.T) {
	wire := protocol.EncodeFrame(mustFrame(t, protocol.OpBinary, []byte("abcdef"), true, protocol.RoleServer))
	buf := protocol.NewFrameBuffer()
	if err := buf.Feed(wire[:4], 0, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := buf.Next(); ok {
		t.Fatal("incomplete frame was dequeued")
	}
	if !buf.Pending() || buf.Len() != 1 {
		t.Fatalf("pending=%v len=%d", buf.Pending(), buf.Len())
	}
	if err := buf.Feed(wire[4:], 0, nil); err != nil {
		t.Fatal(err)
	}
	f, ok := buf.Next()
	if !ok || string(f.Payload) != "abcdef" {
		t.Fatalf("got %v %+v", ok, f)
	}
}

func TestDecodeHeaderUnderflow(t *testing.T) {
	for _, b := range [][]byte{{}, {0x81}, {0x82, 126, 0x01}, {0x82, 127, 0, 0, 0}, {0x81, 0x85, 1, 2}} {
		if _, _, err := protocol.DecodeHeader(b, 0); !errors.Is(err, api.ErrUnderflow) {
			t.Errorf("DecodeHeader(% x) err = %v, want underflow", b, err)
		}
	}
}

func TestDecodeHeaderRejectsOversizedLength(t *testing.T) {
	b := []byte{0x82, 127, 0x80, 0, 0, 0, 0, 0, 0, 1}
	_, _, err := protocol.DecodeHeader(b, 0)
	if !errors.Is(err, api.ErrProtocol) {
		t.Fatalf("err = %v, want protocol error", err)
	}

	b = []byte{0x82, 126, 0x01, 0x00}
	_, _, err = protocol.DecodeHeader(b, 100)
	var pe *api.ProtocolError
	if !errors.As(err, &pe) || pe.Code != uint16(protocol.CloseMessageTooBig) {
		t.Fatalf("err = %v, want message too big", err)
	}
}

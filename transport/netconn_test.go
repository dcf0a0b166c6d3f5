package transport_test

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/transport"
)

func TestNetConnReadTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	nc := transport.NewNetConn(a, 20*time.Millisecond, 0)
	buf := make([]byte, 16)
	if _, err := nc.Read(buf); !errors.Is(err, api.ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}

	go b.Write([]byte("late"))
	nc.SetReadTimeout(time.Second)
	n, err := nc.Read(buf)
	if err != nil || string(buf[:n]) != "late" {
		t.Fatalf("read %q, %v", buf[:n], err)
	}
}

func TestNetConnEOF(t *testing.T) {
	a, b := net.Pipe()
	nc := transport.NewNetConn(a, time.Second, 0)
	b.Close()
	if _, err := nc.Read(make([]byte, 4)); !errors.Is(err, io.EOF) {
		t.Fatalf("err = %v, want EOF", err)
	}
	nc.Close()
}

func TestNetConnEOFWithoutTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	nc := transport.NewNetConn(a, 0, 0)
	b.Close()
	if _, err := nc.Read(make([]byte, 4)); !errors.Is(err, io.EOF) || errors.Is(err, api.ErrTransport) {
		t.Fatalf("err = %v, want plain EOF", err)
	}
}

func TestNetConnWrite(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	nc := transport.NewNetConn(a, time.Second, time.Second)
	done := make(chan []byte)
	go func() {
		got := make([]byte, 5)
		io.ReadFull(b, got)
		done <- got
	}()
	if r := nc.Write([]byte("hello")); r.Status != api.WriteOK || r.N != 5 {
		t.Fatalf("write = %+v", r)
	}
	if got := <-done; string(got) != "hello" {
		t.Fatalf("peer got %q", got)
	}
	if nc.RemoteAddr() == "" {
		t.Error("empty remote address")
	}
}

func TestNetConnWriteFailure(t *testing.T) {
	a, b := net.Pipe()
	b.Close()
	a.Close()
	nc := transport.NewNetConn(a, 0, 0)
	if r := nc.Write([]byte("x")); r.Status != api.WriteFailed || r.Err == nil {
		t.Fatalf("write = %+v", r)
	}
}

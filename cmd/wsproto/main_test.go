package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/control"
	"github.com/momentics/wsproto/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

func TestParseHeader(t *testing.T) {
	name, value, err := parseHeader("Authorization:  Bearer t ")
	if err != nil || name != "Authorization" || value != "Bearer t" {
		t.Fatalf("got %q %q %v", name, value, err)
	}
	for _, bad := range []string{"novalue", ": x"} {
		if _, _, err := parseHeader(bad); !errors.Is(err, api.ErrInvalidOption) {
			t.Errorf("%q: err = %v", bad, err)
		}
	}
}

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := control.NewMetrics(control.WithRegistry(reg))
	m.ConnectionOpened()
	probes := control.NewDebugProbes()
	probes.RegisterProbe("connections_open", func() any { return 1 })
	srv := httptest.NewServer(newRouter(reg, probes))
	defer srv.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return resp.StatusCode, buf.String()
	}

	if code, body := get("/healthz"); code != http.StatusOK || body != "ok\n" {
		t.Errorf("healthz = %d %q", code, body)
	}
	if code, body := get("/metrics"); code != http.StatusOK || !strings.Contains(body, "wsproto_connections_active 1") {
		t.Errorf("metrics = %d %q", code, body)
	}
	code, body := get("/debug/state")
	var state map[string]any
	if code != http.StatusOK || json.Unmarshal([]byte(body), &state) != nil || state["connections_open"] != float64(1) {
		t.Errorf("debug state = %d %q", code, body)
	}
	if code, _ := get("/nope"); code != http.StatusNotFound {
		t.Errorf("unknown path = %d", code)
	}
}

type scriptedConn struct {
	mu   sync.Mutex
	sent []string
	in   chan protocol.Message
}

func (c *scriptedConn) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, string(p))
	return nil
}

func (c *scriptedConn) Receive() (protocol.Message, error) {
	select {
	case m := <-c.in:
		return m, nil
	case <-time.After(10 * time.Millisecond):
		return protocol.Message{}, api.ErrNoMessage
	}
}

func TestSession(t *testing.T) {
	c := &scriptedConn{in: make(chan protocol.Message, 2)}
	c.in <- protocol.NewMessage(protocol.OpText, []byte("hi there"))
	c.in <- protocol.NewClosingMessage(protocol.CloseGoingAway, true, []byte("bye"))

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// stdin stays open so the session ends on the server's close.
	pr, pw := io.Pipe()
	defer pw.Close()
	if err := session(ctx, c, pr, &out, false); err != nil {
		t.Fatal(err)
	}
	want := "< hi there\nclosed by server: 1001 bye\n"
	if out.String() != want {
		t.Fatalf("output = %q, want %q", out.String(), want)
	}
}

func TestSessionSendsLines(t *testing.T) {
	c := &scriptedConn{in: make(chan protocol.Message)}
	var out bytes.Buffer
	if err := session(context.Background(), c, strings.NewReader("one\ntwo\n"), &out, false); err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if strings.Join(c.sent, ",") != "one,two" {
		t.Fatalf("sent = %v", c.sent)
	}
}

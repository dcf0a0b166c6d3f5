package client_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/client"
	"github.com/momentics/wsproto/protocol"
)

// gorillaServer reports control frames it reads on control as "ping <data>"
// or "pong <data>".
func gorillaServer(t *testing.T, control chan<- string) *httptest.Server {
	t.Helper()
	up := gorilla.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ws.SetPongHandler(func(data string) error {
			control <- "pong " + data
			return nil
		})
		ws.SetPingHandler(func(data string) error {
			control <- "ping " + data
			return ws.WriteControl(gorilla.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
		for {
			typ, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "ping me" {
				_ = ws.WriteControl(gorilla.PingMessage, []byte("hb"), time.Now().Add(time.Second))
			}
			if err := ws.WriteMessage(typ, data); err != nil {
				return
			}
		}
	})
	mux.HandleFunc("/bye", func(w http.ResponseWriter, r *http.Request) {
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		_ = ws.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "bye"))
		_, _, _ = ws.ReadMessage()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// receive polls until a message arrives or the deadline passes.
func receive(t *testing.T, c *client.Conn) protocol.Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		m, err := c.Receive()
		if errors.Is(err, api.ErrNoMessage) {
			continue
		}
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		return m
	}
	t.Fatal("no message before deadline")
	return protocol.Message{}
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws://" + strings.TrimPrefix(srv.URL, "http://") + path
}

func TestDialGorillaEcho(t *testing.T) {
	control := make(chan string, 2)
	srv := gorillaServer(t, control)

	c, err := client.Dial(context.Background(), wsURL(srv, "/echo"), client.WithTimeout(200*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.SendText("hello"); err != nil {
		t.Fatal(err)
	}
	if m := receive(t, c); m.Opcode != protocol.OpText || m.Text() != "hello" {
		t.Fatalf("echo = %v", m)
	}

	big := bytes.Repeat([]byte{0xFF, 0x00, 0x7F}, 40_000)
	if err := c.Send(big); err != nil {
		t.Fatal(err)
	}
	if m := receive(t, c); m.Opcode != protocol.OpBinary || !bytes.Equal(m.Payload, big) {
		t.Fatalf("binary echo: opcode %s len %d", m.Opcode, len(m.Payload))
	}

	if err := c.SendText("ping me"); err != nil {
		t.Fatal(err)
	}
	if m := receive(t, c); m.Text() != "ping me" {
		t.Fatalf("echo = %v", m)
	}
	if err := c.Ping([]byte("mine")); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"pong hb", "ping mine"} {
		select {
		case got := <-control:
			if got != want {
				t.Fatalf("server read %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("server never read %q", want)
		}
	}
	if err := c.SendText("after ping"); err != nil {
		t.Fatal(err)
	}
	if m := receive(t, c); m.Text() != "after ping" {
		t.Fatalf("echo = %v", m)
	}
}

func TestDialServerInitiatedClose(t *testing.T) {
	srv := gorillaServer(t, nil)
	c, err := client.Dial(context.Background(), wsURL(srv, "/bye"))
	if err != nil {
		t.Fatal(err)
	}
	m := receive(t, c)
	if !m.IsClosing() || m.Code != protocol.CloseNormal || m.Text() != "bye" {
		t.Fatalf("closing = %v", m)
	}
	if _, err := c.Receive(); !errors.Is(err, api.ErrConnClosed) {
		t.Fatalf("err = %v", err)
	}
}

func TestDialErrors(t *testing.T) {
	srv := gorillaServer(t, nil)

	if _, err := client.Dial(context.Background(), wsURL(srv, "/missing")); !errors.Is(err, protocol.ErrBadStatus) {
		t.Errorf("404: err = %v", err)
	}
	if _, err := client.Dial(context.Background(), "wss://"+strings.TrimPrefix(srv.URL, "http://")); !errors.Is(err, client.ErrTLSUnsupported) {
		t.Errorf("wss: err = %v", err)
	}
	if _, err := client.Dial(context.Background(), wsURL(srv, "/echo"), client.WithTimeout(-1)); !errors.Is(err, api.ErrInvalidOption) {
		t.Errorf("options: err = %v", err)
	}
	if _, err := client.Dial(context.Background(), "ws://127.0.0.1:1/"); !errors.Is(err, api.ErrTransport) {
		t.Errorf("refused: err = %v", err)
	}
}

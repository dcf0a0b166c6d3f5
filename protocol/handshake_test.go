package protocol_test

import (
	"bufio"
	"bytes"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/momentics/wsproto/api"
	"github.com/momentics/wsproto/fake"
	"github.com/momentics/wsproto/protocol"
)

func TestSignKeyRFCVector(t *testing.T) {
	if got, want := protocol.SignKey("dGhlIHNhbXBsZSBub25jZQ=="), "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="; got != want {
		t.Fatalf("SignKey = %q, want %q", got, want)
	}
}

func TestNewKeyIsSixteenBytes(t *testing.T) {
	a, err := protocol.NewKey()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := protocol.NewKey()
	if a == b {
		t.Fatal("keys must be random")
	}
	req := validRequest(t)
	req.Header.Set("Sec-WebSocket-Key", a)
	if err := protocol.ValidateRequest(req); err != nil {
		t.Fatalf("generated key rejected: %v", err)
	}
}

func validRequest(t *testing.T) *http.Request {
	t.Helper()
	raw := "GET /chat?room=1 HTTP/1.1\r\n" +
		"Host: server.example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: keep-alive, Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"
	req, err := protocol.ReadRequest([]byte(raw))
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	return req
}

func TestHandleRequestAccepts(t *testing.T) {
	e := protocol.NewEngine()
	req := validRequest(t)
	if !e.CanHandleRequest(req) {
		t.Fatal("version 13 request not handled")
	}
	resp, err := e.HandleRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Sec-WebSocket-Accept"); got != "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=" {
		t.Fatalf("accept = %q", got)
	}
	wire := string(protocol.EncodeResponse(resp))
	if !strings.HasPrefix(wire, "HTTP/1.1 101 Switching Protocols\r\n") || !strings.HasSuffix(wire, "\r\n\r\n") {
		t.Fatalf("response head = %q", wire)
	}
}

func TestValidateRequestFailures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(r *http.Request)
		want   error
	}{
		{"method", func(r *http.Request) { r.Method = http.MethodPost }, protocol.ErrBadMethod},
		{"version", func(r *http.Request) { r.ProtoMajor, r.ProtoMinor = 1, 0 }, protocol.ErrBadHTTPVersion},
		{"path", func(r *http.Request) { r.RequestURI = "/caf\xc3\xa9" }, protocol.ErrBadPath},
		{"connection", func(r *http.Request) { r.Header.Set("Connection", "keep-alive") }, protocol.ErrInvalidUpgradeHeaders},
		{"connection missing", func(r *http.Request) { r.Header.Del("Connection") }, protocol.ErrInvalidUpgradeHeaders},
		{"headers too large", func(r *http.Request) { r.Header.Set("X-Filler", strings.Repeat("a", protocol.MaxHandshakeHeadersSize)) }, protocol.ErrHeadersTooLarge},
		{"missing key", func(r *http.Request) { r.Header.Del("Sec-WebSocket-Key") }, protocol.ErrMissingWebSocketKey},
		{"short key", func(r *http.Request) { r.Header.Set("Sec-WebSocket-Key", "c2hvcnQ=") }, protocol.ErrMissingWebSocketKey},
		{"ws version", func(r *http.Request) { r.Header.Set("Sec-WebSocket-Version", "8") }, protocol.ErrBadWebSocketVersion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest(t)
			tc.mutate(req)
			err := protocol.ValidateRequest(req)
			if !errors.Is(err, tc.want) || !errors.Is(err, api.ErrHandshake) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestConnectionHeaderIsCaseInsensitive(t *testing.T) {
	req := validRequest(t)
	req.Header.Set("Connection", "UPGRADE")
	if err := protocol.ValidateRequest(req); err != nil {
		t.Fatal(err)
	}
}

func TestReadRequestMalformed(t *testing.T) {
	_, err := protocol.ReadRequest([]byte("NOT AN HTTP REQUEST\r\n\r\n"))
	if !errors.Is(err, api.ErrProtocol) {
		t.Fatalf("err = %v", err)
	}
}

func TestClientHandshakeRoundTrip(t *testing.T) {
	e := protocol.NewEngine()
	c := protocol.NewConn(protocol.RoleClient, fake.NewTransport())
	hdr := http.Header{}
	hdr.Set("Origin", "http://example.com")
	hdr.Set("Sec-WebSocket-Version", "99")
	req, err := e.Request(c, "example.com:8080", "/ws?x=1", hdr)
	if err != nil {
		t.Fatal(err)
	}
	if req.Header.Get("Origin") != "http://example.com" || req.Header.Get("Sec-WebSocket-Version") != "13" {
		t.Fatalf("headers = %v", req.Header)
	}
	if c.HandshakeKey() == "" || req.Header.Get("Sec-WebSocket-Key") != c.HandshakeKey() {
		t.Fatal("key not remembered")
	}

	// The server side parses exactly what the client serializes.
	wire := protocol.EncodeRequest(req)
	parsed, err := protocol.ReadRequest(wire)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.RequestURI != "/ws?x=1" || parsed.Host != "example.com:8080" {
		t.Fatalf("parsed %q on %q", parsed.RequestURI, parsed.Host)
	}
	resp, err := e.HandleRequest(parsed)
	if err != nil {
		t.Fatal(err)
	}

	br := bufio.NewReader(bytes.NewReader(append(protocol.EncodeResponse(resp), 0x81, 0x00)))
	got, err := protocol.ReadResponse(br, req)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.HandleResponse(c, got); err != nil {
		t.Fatalf("HandleResponse: %v", err)
	}
	if br.Buffered() != 2 {
		t.Fatalf("bytes after the head: %d buffered, want 2", br.Buffered())
	}
}

func TestHandleResponseRejects(t *testing.T) {
	e := protocol.NewEngine()
	c := protocol.NewConn(protocol.RoleClient, fake.NewTransport())
	if _, err := e.Request(c, "h", "/", nil); err != nil {
		t.Fatal(err)
	}

	resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}
	if err := e.HandleResponse(c, resp); !errors.Is(err, protocol.ErrBadStatus) {
		t.Fatalf("status 200: %v", err)
	}
	resp = &http.Response{StatusCode: http.StatusSwitchingProtocols, Header: http.Header{}}
	resp.Header.Set("Sec-WebSocket-Accept", protocol.SignKey("something else"))
	if err := e.HandleResponse(c, resp); !errors.Is(err, protocol.ErrBadAccept) {
		t.Fatalf("bad accept: %v", err)
	}
}

func TestHeaderEnd(t *testing.T) {
	if protocol.HeaderEnd([]byte("GET / HTTP/1.1\r\nHost: x\r\n")) != -1 {
		t.Fatal("incomplete head detected as complete")
	}
	head := "GET / HTTP/1.1\r\nHost: x\r\n\r\n"
	if got := protocol.HeaderEnd([]byte(head + "extra")); got != len(head) {
		t.Fatalf("HeaderEnd = %d, want %d", got, len(head))
	}
}

func TestBadRequestResponse(t *testing.T) {
	wire := string(protocol.EncodeResponse(protocol.BadRequest()))
	if !strings.HasPrefix(wire, "HTTP/1.1 400 Bad Request\r\n") {
		t.Fatalf("wire = %q", wire)
	}
}

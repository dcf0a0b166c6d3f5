package protocol_test

import (
	"net/http"
	"testing"

	"github.com/momentics/wsproto/protocol"
)

type legacyProtocol struct {
	*protocol.Engine
}

func (legacyProtocol) Name() string { return "hybi-08" }

func (legacyProtocol) CanHandleRequest(req *http.Request) bool {
	return req.Header.Get("Sec-WebSocket-Version") == "8"
}

func TestRegistryFind(t *testing.T) {
	reg := protocol.NewRegistry(protocol.NewEngine(), legacyProtocol{protocol.NewEngine()})

	req := &http.Request{Header: http.Header{}}
	req.Header.Set("Sec-WebSocket-Version", "13")
	p, ok := reg.Find(req)
	if !ok || p.Name() != "RFC6455" {
		t.Fatalf("Find(13) = %v, %v", p, ok)
	}

	req.Header.Set("Sec-WebSocket-Version", "8")
	if p, ok = reg.Find(req); !ok || p.Name() != "hybi-08" {
		t.Fatalf("Find(8) = %v, %v", p, ok)
	}

	req.Header.Set("Sec-WebSocket-Version", "7")
	if _, ok = reg.Find(req); ok {
		t.Fatal("Find(7) should fail")
	}
}

func TestRegistryByNameAndReplace(t *testing.T) {
	reg := protocol.DefaultRegistry()
	if _, ok := reg.ByName("RFC6455"); !ok {
		t.Fatal("default engine missing")
	}
	if _, ok := reg.ByName("nope"); ok {
		t.Fatal("unknown name found")
	}

	custom := protocol.NewEngine(protocol.WithMaxFrameSize(16))
	reg.Add(custom)
	p, _ := reg.ByName("RFC6455")
	if p != protocol.Protocol(custom) {
		t.Fatal("Add did not replace the engine")
	}
	if names := reg.Names(); len(names) != 1 {
		t.Fatalf("names = %v", names)
	}
}

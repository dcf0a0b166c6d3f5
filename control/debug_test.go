package control_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/momentics/wsproto/control"
)

func TestDebugProbesServeJSON(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("connections", func() any { return 3 })
	dp.RegisterProbe("addr", func() any { return "127.0.0.1:1" })

	if names := dp.Names(); len(names) != 2 || names[0] != "addr" {
		t.Fatalf("names = %v", names)
	}

	rec := httptest.NewRecorder()
	dp.ServeHTTP(rec, httptest.NewRequest("GET", "/debug/state", nil))
	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["connections"] != float64(3) || got["addr"] != "127.0.0.1:1" {
		t.Fatalf("state = %v", got)
	}
}

// File: protocol/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Registry of protocol implementations, built once and handed to clients and
// servers.

package protocol

import (
	"net/http"
	"sync"
)

// Protocol is a WebSocket protocol version. *Engine implements it.
type Protocol interface {
	Name() string

	// Server side.
	CanHandleRequest(req *http.Request) bool
	HandleRequest(req *http.Request) (*http.Response, error)

	// Client side.
	Request(c *Conn, host, path string, hdr http.Header) (*http.Request, error)
	HandleResponse(c *Conn, resp *http.Response) error

	// Both sides, once open.
	Send(c *Conn, payload []byte) error
	SendOpcode(c *Conn, op Opcode, payload []byte) error
	Ping(c *Conn, payload []byte) error
	Receive(c *Conn, data []byte) ([]Message, error)
	ExpectingData(c *Conn) bool
	Close(c *Conn, code CloseCode, reason []byte) error
}

var _ Protocol = (*Engine)(nil)

// Registry maps protocol names to implementations, keeping registration order
// for request matching.
type Registry struct {
	mu     sync.RWMutex
	order  []string
	byName map[string]Protocol
}

// NewRegistry returns a registry holding protos.
func NewRegistry(protos ...Protocol) *Registry {
	r := &Registry{byName: make(map[string]Protocol)}
	for _, p := range protos {
		r.Add(p)
	}
	return r
}

// DefaultRegistry returns a new registry holding a default RFC 6455 Engine.
func DefaultRegistry(opts ...EngineOption) *Registry {
	return NewRegistry(NewEngine(opts...))
}

// Add registers p, replacing any protocol with the same name.
func (r *Registry) Add(p Protocol) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[p.Name()]; !ok {
		r.order = append(r.order, p.Name())
	}
	r.byName[p.Name()] = p
}

// ByName looks a protocol up by name.
func (r *Registry) ByName(name string) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Find returns the first registered protocol able to handle req.
func (r *Registry) Find(req *http.Request) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if p := r.byName[name]; p.CanHandleRequest(req) {
			return p, true
		}
	}
	return nil, false
}

// Names lists registered protocol names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

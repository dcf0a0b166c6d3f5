// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the byte transport.

package fake

import (
	"sync"

	"github.com/momentics/wsproto/api"
)

// Transport is an in-memory api.Transport. Reads are served from queued
// chunks; once they run out Read returns the configured read error
// (api.ErrTimeout by default). Writes are recorded and can be scripted.
type Transport struct {
	mu         sync.Mutex
	recv       [][]byte
	readErr    error
	sent       [][]byte
	script     []api.WriteResult
	writeLimit int
	closed     bool
	closeCalls int
	closeError error
	remote     string
}

// NewTransport creates a new fake transport with default settings.
func NewTransport() *Transport {
	return &Transport{
		readErr: api.ErrTimeout,
		remote:  "fake:0",
	}
}

// Read implements api.Transport.
func (t *Transport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, api.ErrConnClosed
	}
	if len(t.recv) == 0 {
		return 0, t.readErr
	}
	n := copy(p, t.recv[0])
	if n < len(t.recv[0]) {
		t.recv[0] = t.recv[0][n:]
	} else {
		t.recv = t.recv[1:]
	}
	return n, nil
}

// Write implements api.Transport. Scripted results are consumed first; a
// scripted WriteOK accepts at most N bytes.
func (t *Transport) Write(p []byte) api.WriteResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return api.Failed(api.ErrConnClosed)
	}
	n := len(p)
	if t.writeLimit > 0 && n > t.writeLimit {
		n = t.writeLimit
	}
	if len(t.script) > 0 {
		r := t.script[0]
		t.script = t.script[1:]
		if r.Status != api.WriteOK {
			return r
		}
		if r.N < n {
			n = r.N
		}
	}
	if n > 0 {
		t.sent = append(t.sent, append([]byte(nil), p[:n]...))
	}
	return api.Written(n)
}

// RemoteAddr implements api.Transport.
func (t *Transport) RemoteAddr() string { return t.remote }

// Close implements api.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeCalls++
	if t.closeError != nil {
		return t.closeError
	}
	t.closed = true
	return nil
}

// AddRecvData queues data to be returned by Read.
func (t *Transport) AddRecvData(data ...[]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range data {
		t.recv = append(t.recv, append([]byte(nil), d...))
	}
}

// SetReadError sets the error returned once queued data is exhausted.
func (t *Transport) SetReadError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readErr = err
}

// ScriptWrites queues results for the next Write calls.
func (t *Transport) ScriptWrites(results ...api.WriteResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = append(t.script, results...)
}

// SetWriteLimit caps the bytes accepted by each Write call.
func (t *Transport) SetWriteLimit(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeLimit = n
}

// SetCloseError configures the transport to return an error on Close.
func (t *Transport) SetCloseError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeError = err
}

// SetRemoteAddr sets the value returned by RemoteAddr.
func (t *Transport) SetRemoteAddr(addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remote = addr
}

// GetSentData returns every accepted write, in order.
func (t *Transport) GetSentData() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	sent := make([][]byte, len(t.sent))
	copy(sent, t.sent)
	return sent
}

// Written returns all accepted bytes concatenated.
func (t *Transport) Written() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []byte
	for _, b := range t.sent {
		out = append(out, b...)
	}
	return out
}

// ClearSentData clears the recorded writes.
func (t *Transport) ClearSentData() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}

// Closed reports whether Close succeeded.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// CloseCalls returns how many times Close was called.
func (t *Transport) CloseCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeCalls
}

var _ api.Transport = (*Transport)(nil)

// File: transport/write.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded-retry full write over an api.Transport.

package transport

import (
	"fmt"
	"time"

	"github.com/momentics/wsproto/api"
)

// DefaultWriteRetries is the number of consecutive no-progress writes
// tolerated before a write is declared failed.
const DefaultWriteRetries = 3

// writableWait bounds each wait on a transport implementing api.WriteWaiter.
const writableWait = time.Second

// WriteFull writes all of p. A write that makes no progress is retried up to
// retries times; any progress resets the counter. A failed write is fatal.
func WriteFull(t api.Transport, p []byte, retries int) error {
	misses := 0
	for len(p) > 0 {
		r := t.Write(p)
		switch r.Status {
		case api.WriteFailed:
			return fmt.Errorf("%w: %w", api.ErrTransport, r.Err)
		case api.WriteOK:
			if r.N > 0 {
				p = p[r.N:]
				misses = 0
				continue
			}
		}
		misses++
		if misses > retries {
			return fmt.Errorf("%w: no progress after %d write attempts", api.ErrTransport, misses)
		}
		if w, ok := t.(api.WriteWaiter); ok {
			if err := w.WaitWritable(writableWait); err != nil && !api.IsTimeout(err) {
				return fmt.Errorf("%w: %w", api.ErrTransport, err)
			}
		}
	}
	return nil
}

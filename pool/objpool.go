// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import "sync"

// SyncPool is a typed sync.Pool. When reset is set, every value passes
// through it on the way out of Get.
type SyncPool[T any] struct {
	pool  sync.Pool
	reset func(T) T
}

// NewSyncPool creates a SyncPool that allocates with creator.
func NewSyncPool[T any](creator func() T, reset func(T) T) *SyncPool[T] {
	sp := &SyncPool[T]{reset: reset}
	sp.pool.New = func() any { return creator() }
	return sp
}

func (sp *SyncPool[T]) Get() T {
	v := sp.pool.Get().(T)
	if sp.reset != nil {
		v = sp.reset(v)
	}
	return v
}

func (sp *SyncPool[T]) Put(v T) {
	sp.pool.Put(v)
}

// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

// DefaultChunkSize is the read chunk used by the server and the client.
const DefaultChunkSize = 4096

// BytePool hands out fixed-size read chunks.
type BytePool struct {
	pool *SyncPool[*[]byte]
	size int
}

// NewBytePool creates a pool of size-byte chunks. A non-positive size selects
// DefaultChunkSize.
func NewBytePool(size int) *BytePool {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &BytePool{
		pool: NewSyncPool(
			func() *[]byte {
				b := make([]byte, size)
				return &b
			},
			func(b *[]byte) *[]byte {
				*b = (*b)[:size]
				return b
			},
		),
		size: size,
	}
}

// Size returns the chunk size.
func (b *BytePool) Size() int { return b.size }

// Get returns a chunk of Size bytes.
func (b *BytePool) Get() *[]byte {
	return b.pool.Get()
}

// Put returns a chunk to the pool. Foreign slices that are too small are
// dropped.
func (b *BytePool) Put(buf *[]byte) {
	if buf == nil || cap(*buf) < b.size {
		return
	}
	b.pool.Put(buf)
}

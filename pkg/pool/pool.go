// Package pool provides object pooling for nebula-bulk.
//
// The reader and the downloader each need one large byte buffer per export
// (the chunk window and the network copy buffer). Taking those buffers from
// a size-bucketed pool keeps concurrent exports from allocating a fresh
// multi-megabyte slice every time.
//
// Example usage:
//
//	buf := pool.GlobalBufferPool.Get(1 << 20)
//	defer pool.GlobalBufferPool.Put(buf)
package pool

import (
	"sync"
)

// Pool represents a generic object pool with type safety.
// It wraps sync.Pool with an optional reset function. The pool is safe for
// concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
}

// New creates a new typed pool with custom allocation and reset functions.
// The reset function is called before an object goes back into the pool.
func New[T any](new func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		return new()
	}
	return p
}

// Get retrieves an object from the pool, allocating one when the pool is empty.
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns an object to the pool for reuse.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	p.pool.Put(obj)
}

// BufferPool manages byte buffer pooling with size-based buckets.
// It maintains multiple pools for different buffer sizes, automatically
// selecting the appropriate pool based on requested size.
type BufferPool struct {
	pools []*Pool[[]byte]
	sizes []int
}

// NewBufferPool creates a new buffer pool with power-of-two buckets from
// 512 bytes to 16MB. Larger buffers are allocated directly.
func NewBufferPool() *BufferPool {
	sizes := []int{
		512,      // 512B
		1024,     // 1KB
		4096,     // 4KB
		16384,    // 16KB
		65536,    // 64KB
		262144,   // 256KB
		1048576,  // 1MB
		4194304,  // 4MB
		16777216, // 16MB
	}

	pools := make([]*Pool[[]byte], len(sizes))
	for i, size := range sizes {
		size := size // capture loop variable
		pools[i] = New(
			func() []byte {
				return make([]byte, size)
			},
			nil,
		)
	}

	return &BufferPool{
		pools: pools,
		sizes: sizes,
	}
}

// Get returns a buffer of at least the requested size from the pool.
// The returned buffer's length is the requested size; its capacity is the
// bucket size.
func (p *BufferPool) Get(size int) []byte {
	for i, s := range p.sizes {
		if s >= size {
			buf := p.pools[i].Get()
			return buf[:size]
		}
	}

	// Fallback to allocation for very large buffers
	return make([]byte, size)
}

// Put returns a buffer to the pool for reuse. Buffers whose capacity does
// not match a bucket are left to the garbage collector.
func (p *BufferPool) Put(buf []byte) {
	size := cap(buf)

	for i, s := range p.sizes {
		if s == size {
			p.pools[i].Put(buf[:size])
			return
		}
	}
}

// BucketSize returns the capacity of the buffer Get(size) hands out.
func (p *BufferPool) BucketSize(size int) int {
	for _, s := range p.sizes {
		if s >= size {
			return s
		}
	}
	return size
}

// GlobalBufferPool provides size-based byte buffer pooling for I/O operations.
var GlobalBufferPool = NewBufferPool()

// Package bufpool pools the byte slices used to stream files: hashing
// local sources, copying into the fs engine root and saving imported
// downloads.
//
// Two size classes are kept. Requests above the large class are allocated
// directly and never pooled.
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
package bufpool

import (
	"io"
	"sync"
)

// Default size classes.
const (
	// DefaultSmallSize suits small assets such as icons and scripts (32KB)
	DefaultSmallSize = 32 << 10

	// DefaultLargeSize suits media files (1MB)
	DefaultLargeSize = 1 << 20

	// CopySize is the buffer length used by Copy.
	CopySize = 64 << 10
)

// Pool hands out byte slices by size class.
type Pool struct {
	small     sync.Pool
	large     sync.Pool
	smallSize int
	largeSize int
}

// NewPool creates a pool. Non-positive sizes take the defaults.
func NewPool(smallSize, largeSize int) *Pool {
	if smallSize <= 0 {
		smallSize = DefaultSmallSize
	}
	if largeSize <= 0 {
		largeSize = DefaultLargeSize
	}
	p := &Pool{smallSize: smallSize, largeSize: largeSize}
	p.small.New = func() any {
		buf := make([]byte, p.smallSize)
		return &buf
	}
	p.large.New = func() any {
		buf := make([]byte, p.largeSize)
		return &buf
	}
	return p
}

// Get returns a slice of length size. Its capacity may be larger.
// Release it with Put.
func (p *Pool) Get(size int) []byte {
	var bufPtr *[]byte
	switch {
	case size <= p.smallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= p.largeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// Put returns buf to its class. Slices of any other capacity are dropped.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	switch cap(buf) {
	case p.smallSize:
		p.small.Put(&full)
	case p.largeSize:
		p.large.Put(&full)
	}
}

// Copy is io.CopyBuffer with a pooled buffer.
func (p *Pool) Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := p.Get(CopySize)
	defer p.Put(buf)
	return io.CopyBuffer(dst, src, buf)
}

var globalPool = NewPool(0, 0)

// Get returns a slice from the shared pool.
func Get(size int) []byte { return globalPool.Get(size) }

// Put releases a slice obtained from Get.
func Put(buf []byte) { globalPool.Put(buf) }

// Copy streams src to dst through the shared pool.
func Copy(dst io.Writer, src io.Reader) (int64, error) { return globalPool.Copy(dst, src) }

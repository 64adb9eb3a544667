// Package bufpool pools byte slices used for streaming copies.
//
// Chunk ingest and assembly move upload payloads from request bodies into
// scratch files and onward into assembled artifacts. Every copy wants a
// buffer in the kilobyte-to-megabyte range, and allocating a fresh one per
// request shows up as GC churn once uploads run concurrently. The pool keeps
// three size classes backed by sync.Pool:
//
//   - small (4KB) for headers and metadata payloads
//   - medium (64KB) for probe samples and moderate copies
//   - large (1MB) for chunk and assembly streaming
//
// Requests above the large class fall back to a plain allocation so the pool
// never retains oversized buffers.
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
package bufpool

import (
	"sync"
)

// Default size classes. NewPool accepts overrides for each class.
const (
	// DefaultSmallSize covers headers and small metadata payloads.
	DefaultSmallSize = 4 << 10

	// DefaultMediumSize covers probe samples and moderate copies.
	DefaultMediumSize = 64 << 10

	// DefaultLargeSize covers chunk streaming and assembly.
	DefaultLargeSize = 1 << 20
)

// Pool hands out byte slices grouped into size classes. Get picks the
// smallest class that fits and Put routes a slice back by capacity, so a
// slice taken from one Pool must not be released into another.
type Pool struct {
	small      sync.Pool
	medium     sync.Pool
	large      sync.Pool
	smallSize  int
	mediumSize int
	largeSize  int
}

// Config overrides the size classes of a Pool. Zero values keep the
// defaults.
type Config struct {
	SmallSize  int
	MediumSize int
	LargeSize  int
}

// DefaultConfig returns the default size classes.
func DefaultConfig() Config {
	return Config{
		SmallSize:  DefaultSmallSize,
		MediumSize: DefaultMediumSize,
		LargeSize:  DefaultLargeSize,
	}
}

// NewPool creates a buffer pool with the given size classes. A nil config
// uses the defaults.
func NewPool(cfg *Config) *Pool {
	if cfg == nil {
		defaultCfg := DefaultConfig()
		cfg = &defaultCfg
	}
	if cfg.SmallSize <= 0 {
		cfg.SmallSize = DefaultSmallSize
	}
	if cfg.MediumSize <= 0 {
		cfg.MediumSize = DefaultMediumSize
	}
	if cfg.LargeSize <= 0 {
		cfg.LargeSize = DefaultLargeSize
	}

	p := &Pool{
		smallSize:  cfg.SmallSize,
		mediumSize: cfg.MediumSize,
		largeSize:  cfg.LargeSize,
	}

	p.small = sync.Pool{
		New: func() any {
			buf := make([]byte, p.smallSize)
			return &buf
		},
	}
	p.medium = sync.Pool{
		New: func() any {
			buf := make([]byte, p.mediumSize)
			return &buf
		},
	}
	p.large = sync.Pool{
		New: func() any {
			buf := make([]byte, p.largeSize)
			return &buf
		},
	}

	return p
}

// Get returns a slice with the requested length, backed by a pooled buffer
// when the size fits a class. Sizes above the large class are allocated
// directly and never pooled. Callers release the slice with Put and must not
// use it afterwards.
func (p *Pool) Get(size int) []byte {
	var bufPtr *[]byte

	switch {
	case size <= p.smallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= p.mediumSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= p.largeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}

	buf := *bufPtr
	return buf[:size]
}

// Put releases a slice obtained from Get. Slices whose capacity matches no
// size class, including oversized direct allocations, are left to the
// garbage collector.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}

	switch cap(buf) {
	case p.smallSize:
		fullBuf := buf[:cap(buf)]
		p.small.Put(&fullBuf)
	case p.mediumSize:
		fullBuf := buf[:cap(buf)]
		p.medium.Put(&fullBuf)
	case p.largeSize:
		fullBuf := buf[:cap(buf)]
		p.large.Put(&fullBuf)
	}
}

// globalPool serves the package-level Get and Put.
var globalPool = NewPool(nil)

// Get returns a slice with the requested length from the shared pool.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put releases a slice obtained from Get back to the shared pool.
func Put(buf []byte) {
	globalPool.Put(buf)
}

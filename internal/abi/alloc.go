package abi

import (
	"errors"
	"fmt"
	"sync"

	"capnproto.org/go/capnp/v3/exp/bufferpool"
)

// DefaultMaxTotalAllocations bounds the bytes a guest allocator hands out
// to the host at any one time.
const DefaultMaxTotalAllocations = 100 * 1024 * 1024 // 100 MB

var (
	// ErrSizeMismatch is raised when memory is freed or viewed with a size
	// different from the one it was allocated with.
	ErrSizeMismatch = errors.New("abi: size does not match allocation")

	// ErrUnknownAddress is raised for an address the allocator never handed
	// out or already took back.
	ErrUnknownAddress = errors.New("abi: address not allocated")
)

// Allocator hands out guest memory to the host and takes it back. Every live
// segment is kept referenced so the garbage collector cannot reclaim memory
// the host is still writing into.
type Allocator struct {
	mu    sync.Mutex
	segs  map[uint32][]byte
	total int
	limit int
	next  uint32
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithMaxTotalAllocations sets the allocation limit. Non-positive values are
// ignored.
func WithMaxTotalAllocations(limit int) Option {
	return func(a *Allocator) {
		if limit > 0 {
			a.limit = limit
		}
	}
}

// NewAllocator returns an empty allocator.
func NewAllocator(opts ...Option) *Allocator {
	a := &Allocator{
		segs:  make(map[uint32][]byte),
		limit: DefaultMaxTotalAllocations,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Alloc reserves size bytes and returns their address. Alloc(0) returns
// Align without reserving anything. Exceeding the limit panics.
func (a *Allocator) Alloc(size uint32) uint32 {
	if size == 0 {
		return Align
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.total+int(size) > a.limit {
		panic(fmt.Sprintf("abi: memory allocation limit exceeded (requested: %d bytes, current: %d bytes, limit: %d bytes)",
			size, a.total, a.limit))
	}

	buf := bufferpool.Default.Get(int(size))
	addr := a.place(buf)
	a.segs[addr] = buf
	a.total += int(size)
	return addr
}

// Bytes returns the live segment at addr. size must be the size it was
// allocated with; zero yields nil.
func (a *Allocator) Bytes(addr, size uint32) []byte {
	if size == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lookup(addr, size)
}

// Free returns the segment at addr to the pool. Free with size 0 is a no-op
// and never inspects addr.
func (a *Allocator) Free(addr, size uint32) {
	if size == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	buf := a.lookup(addr, size)
	delete(a.segs, addr)
	a.total -= len(buf)
	bufferpool.Default.Put(buf)
}

// Find returns the live segment containing addr and the address it starts
// at.
func (a *Allocator) Find(addr uint32) (base uint32, seg []byte, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if buf, hit := a.segs[addr]; hit {
		return addr, buf, true
	}
	for b, buf := range a.segs {
		if addr > b && addr-b < uint32(len(buf)) {
			return b, buf, true
		}
	}
	return 0, nil, false
}

// Stats returns the number of live segments and their total size.
func (a *Allocator) Stats() (count, total int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.segs), a.total
}

func (a *Allocator) lookup(addr, size uint32) []byte {
	buf, ok := a.segs[addr]
	if !ok {
		panic(fmt.Errorf("%w: 0x%x", ErrUnknownAddress, addr))
	}
	if len(buf) != int(size) {
		panic(fmt.Errorf("%w: 0x%x allocated %d bytes, got %d", ErrSizeMismatch, addr, len(buf), size))
	}
	return buf
}

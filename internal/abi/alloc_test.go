package abi

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func panicErr(t *testing.T, f func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		e, ok := r.(error)
		require.True(t, ok, "panic value is not an error: %v", r)
		err = e
	}()
	f()
	return nil
}

func TestAllocator_AllocFree(t *testing.T) {
	a := NewAllocator()

	addr := a.Alloc(1024)
	require.NotZero(t, addr)
	assert.Zero(t, addr%Align, "address must be aligned")

	count, total := a.Stats()
	assert.Equal(t, 1, count)
	assert.Equal(t, 1024, total)

	buf := a.Bytes(addr, 1024)
	require.Len(t, buf, 1024)
	copy(buf, "hello world")
	assert.Equal(t, []byte("hello world"), a.Bytes(addr, 1024)[:11])

	a.Free(addr, 1024)

	count, total = a.Stats()
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, total)
}

func TestAllocator_ZeroSize(t *testing.T) {
	a := NewAllocator()

	addr := a.Alloc(0)
	assert.Equal(t, uint32(Align), addr, "zero-sized allocations return a bogus aligned address")
	assert.Nil(t, a.Bytes(addr, 0))

	assert.NotPanics(t, func() {
		a.Free(addr, 0)
		a.Free(0xdeadbeef, 0)
	})

	count, _ := a.Stats()
	assert.Zero(t, count)
}

func TestAllocator_DistinctAddresses(t *testing.T) {
	a := NewAllocator()
	seen := map[uint32]bool{}
	for i := 1; i <= 50; i++ {
		addr := a.Alloc(uint32(i))
		assert.False(t, seen[addr], "address reused while live")
		seen[addr] = true
	}
}

func TestAllocator_SizeMismatchPanics(t *testing.T) {
	a := NewAllocator()
	addr := a.Alloc(16)

	err := panicErr(t, func() { a.Free(addr, 8) })
	assert.True(t, errors.Is(err, ErrSizeMismatch))

	err = panicErr(t, func() { a.Bytes(addr, 32) })
	assert.True(t, errors.Is(err, ErrSizeMismatch))

	a.Free(addr, 16)
}

func TestAllocator_UnknownAddressPanics(t *testing.T) {
	a := NewAllocator()
	addr := a.Alloc(4)
	a.Free(addr, 4)

	err := panicErr(t, func() { a.Free(addr, 4) })
	assert.True(t, errors.Is(err, ErrUnknownAddress))
}

func TestAllocator_Limit(t *testing.T) {
	a := NewAllocator(WithMaxTotalAllocations(1024))

	addr := a.Alloc(512)
	require.NotZero(t, addr)

	assert.Panics(t, func() { a.Alloc(1024) }, "expected panic when exceeding allocation limit")

	a.Free(addr, 512)
	assert.NotPanics(t, func() { a.Alloc(1024) })
}

func TestAllocator_InvalidLimitIgnored(t *testing.T) {
	a := NewAllocator(WithMaxTotalAllocations(0), WithMaxTotalAllocations(-100))
	assert.Equal(t, DefaultMaxTotalAllocations, a.limit)
}

func TestAllocator_Concurrency(t *testing.T) {
	a := NewAllocator()

	var wg sync.WaitGroup
	iterations := 100

	wg.Add(iterations)
	for i := 0; i < iterations; i++ {
		go func() {
			defer wg.Done()
			addr := a.Alloc(20)
			copy(a.Bytes(addr, 20), "concurrent test data")
			a.Free(addr, 20)
		}()
	}
	wg.Wait()

	count, _ := a.Stats()
	assert.Equal(t, 0, count, "expected 0 allocations after concurrent operations")
}

func TestAllocator_Find(t *testing.T) {
	a := NewAllocator()
	first := a.Alloc(16)
	second := a.Alloc(4)

	base, seg, ok := a.Find(first + 10)
	require.True(t, ok)
	assert.Equal(t, first, base)
	assert.Len(t, seg, 16)

	base, _, ok = a.Find(second)
	require.True(t, ok)
	assert.Equal(t, second, base)

	_, _, ok = a.Find(second + 4)
	assert.False(t, ok, "one past the end is outside the segment")
}

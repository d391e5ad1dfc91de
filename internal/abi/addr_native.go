//go:build !wasip1

package abi

// nativeBase is where synthetic addresses start, leaving the low range free
// so that Align is never a live address.
const nativeBase = 1 << 16

// place assigns buf a synthetic address. Outside wasm there is no shared
// linear memory; addresses only need to be unique and aligned.
func (a *Allocator) place(buf []byte) uint32 {
	if a.next == 0 {
		a.next = nativeBase
	}
	addr := a.next
	a.next += (uint32(len(buf)) + Align - 1) &^ (Align - 1)
	return addr
}

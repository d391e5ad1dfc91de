//go:build wasip1

package abi

import "unsafe"

// place returns the linear memory address of buf.
func (a *Allocator) place(buf []byte) uint32 {
	//nolint:gosec // G103: linear memory addresses are 32 bits wide
	return uint32(uintptr(unsafe.Pointer(unsafe.SliceData(buf))))
}

// Addr returns the linear memory address of b, or 0 for an empty slice.
func Addr(b []byte) uint32 {
	if len(b) == 0 {
		return 0
	}
	//nolint:gosec // G103: linear memory addresses are 32 bits wide
	return uint32(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
}

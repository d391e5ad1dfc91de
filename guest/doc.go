// Package guest is the guest side of the module boundary: it invokes host
// services without blocking, receives their replies through the callback
// trampoline, answers the host's identity handshake and exports the
// allocator the host writes replies into.
//
// Built for wasip1 the package binds to the host's imports and provides the
// exports itself. Built natively it runs against any Boundary, which is how
// guest logic is exercised outside a sandbox.
package guest

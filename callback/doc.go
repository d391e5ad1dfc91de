// Package callback implements the trampoline used to invoke a closure once
// from the other side of the host/guest boundary.
//
// A closure is parked in a Table and named by a Registration: a Kind, which
// plays the role of the function pointer (which trampoline shape to run), and
// an opaque Data handle. Only the Registration crosses the boundary. When the
// other side answers, the shim that receives the answer calls Table.Call with
// the payload and the closure runs exactly once.
//
// Two shapes exist:
//
//   - KindBorrowed: the closure borrows the payload. The slice is only valid
//     for the duration of the call; nothing changes owner.
//   - KindOwned: the closure receives a *Buffer and becomes responsible for
//     releasing it. Release hands the memory back to the allocator that
//     produced it, with the exact size it was allocated with.
package callback

// Package rt is the cooperative task executor that runs inside the guest.
//
// The sandbox has no threads and no scheduler, so nothing resumes a guest
// task unless the guest is executing. A Runtime therefore drains its run
// queue completely every time it is entered: Spawn, or a wake delivered by a
// cross-boundary callback, runs every ready task until the queue is empty
// before returning control to the exported function that triggered it.
//
// A Runtime is single-threaded and not safe for concurrent use.
package rt

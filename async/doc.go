// Package async provides the one-shot result cell shared by both sides of the
// host/guest boundary, together with the Waker capability used to resume
// whoever is waiting on it.
//
// A Cell receives exactly one value and hands it out exactly once. The guest
// executor polls cells from its tasks; the host awaits them from goroutines
// via Cell.Await.
package async

//go:build !wasip1

package guest

// std has no boundary until one is installed with SetBoundary.
var std = NewEnv(nil)

// SetBoundary replaces the default environment with a fresh one calling
// into b, and returns it.
func SetBoundary(b Boundary) *Env {
	std = NewEnv(b)
	return std
}

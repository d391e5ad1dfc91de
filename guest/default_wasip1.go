//go:build wasip1

package guest

var std = NewEnv(imports{})

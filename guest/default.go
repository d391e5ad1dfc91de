package guest

import (
	"github.com/wasm-everything/we/callback"
	"github.com/wasm-everything/we/codec"
	"github.com/wasm-everything/we/rt"
)

// Default returns the environment of the running instance.
func Default() *Env {
	return std
}

// SetCodec changes the default environment's codec.
func SetCodec(c codec.Codec) {
	std.SetCodec(c)
}

// SetName publishes the instance name.
func SetName(name string) {
	std.SetName(name)
}

// Spawn runs f on the default executor.
func Spawn(f rt.Future) *rt.Task {
	return std.Spawn(f)
}

// Callback delivers data to the host trampoline r.
func Callback(data []byte, r callback.Registration) {
	std.Callback(data, r)
}

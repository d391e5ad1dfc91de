// Package abi holds the names and memory conventions shared by both sides of
// the module boundary.
package abi

// ImportModule is the default module name under which the host provides its
// functions to guests.
const ImportModule = "__wasm_everything_runtime__"

// Host functions imported by guests.
const (
	ImportInvoke     = "invoke"
	ImportInvokeSync = "invoke_sync"
	ImportLogProxy   = "log_proxy"
	ImportCallback   = "callback"
)

// Functions and globals exported by guests.
const (
	ExportMalloc         = "_wasm_malloc"
	ExportFree           = "_wasm_free"
	ExportSetInstanceID  = "set_instance_id"
	ExportGetInstanceID  = "get_instance_id"
	ExportName           = "NAME"
	ExportInvokeCallback = "call_invoke_callback_fn"
)

// Align is the alignment of every guest allocation. A zero-sized allocation
// returns Align itself: a non-null, aligned address that is never read.
const Align = 8

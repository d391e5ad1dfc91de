//go:build wasip1

package guest

import (
	"runtime"

	"github.com/wasm-everything/we/callback"
	"github.com/wasm-everything/we/internal/abi"
)

//go:wasmimport __wasm_everything_runtime__ invoke
//nolint:revive // snake_case matches the import names
func host_invoke(namePtr, nameLen, methodPtr, methodLen, argsPtr, argsLen, kind, data uint32)

//go:wasmimport __wasm_everything_runtime__ invoke_sync
//nolint:revive // snake_case matches the import names
func host_invoke_sync(namePtr, nameLen, methodPtr, methodLen, argsPtr, argsLen, outPtr, outLen uint32)

//go:wasmimport __wasm_everything_runtime__ log_proxy
//nolint:revive // snake_case matches the import names
func host_log_proxy(recordPtr, recordLen uint32)

//go:wasmimport __wasm_everything_runtime__ callback
//nolint:revive // snake_case matches the import names
func host_callback(ptr, n, kind, data uint32)

// imports binds Boundary to the host functions.
type imports struct{}

func (imports) Invoke(name, method string, args []byte, r callback.Registration) {
	n, m := []byte(name), []byte(method)
	host_invoke(
		abi.Addr(n), uint32(len(n)),
		abi.Addr(m), uint32(len(m)),
		abi.Addr(args), uint32(len(args)),
		uint32(r.Kind), r.Data,
	)
	runtime.KeepAlive(n)
	runtime.KeepAlive(m)
	runtime.KeepAlive(args)
}

func (imports) InvokeSync(name, method string, args []byte) (addr, n uint32) {
	nb, mb := []byte(name), []byte(method)
	addr, n = std.withOutCells(func(outPtr, outLen uint32) {
		host_invoke_sync(
			abi.Addr(nb), uint32(len(nb)),
			abi.Addr(mb), uint32(len(mb)),
			abi.Addr(args), uint32(len(args)),
			outPtr, outLen,
		)
	})
	runtime.KeepAlive(nb)
	runtime.KeepAlive(mb)
	runtime.KeepAlive(args)
	return addr, n
}

func (imports) LogProxy(record []byte) {
	host_log_proxy(abi.Addr(record), uint32(len(record)))
	runtime.KeepAlive(record)
}

func (imports) Callback(data []byte, r callback.Registration) {
	host_callback(abi.Addr(data), uint32(len(data)), uint32(r.Kind), r.Data)
	runtime.KeepAlive(data)
}

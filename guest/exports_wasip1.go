//go:build wasip1

package guest

//go:wasmexport _wasm_malloc
func wasmMalloc(size uint32) uint32 {
	return std.Malloc(size)
}

//go:wasmexport _wasm_free
func wasmFree(addr, size uint32) {
	std.Free(addr, size)
}

//go:wasmexport set_instance_id
func setInstanceID(id int64) int32 {
	if std.SetInstanceID(uint64(id)) {
		return 1
	}
	return 0
}

//go:wasmexport get_instance_id
func getInstanceID() int64 {
	id, _ := std.InstanceID()
	return int64(id)
}

//go:wasmexport NAME
func nameAddr() uint32 {
	return std.NameAddr()
}

//go:wasmexport call_invoke_callback_fn
func callInvokeCallbackFn(addr, n, kind, data uint32) {
	std.Deliver(addr, n, kind, data)
}

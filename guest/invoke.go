package guest

import (
	"github.com/wasm-everything/we/async"
	"github.com/wasm-everything/we/callback"
	"github.com/wasm-everything/we/wire"
)

// Invoke calls name/method on the host through the default environment.
func Invoke[A, R any](name, method string, args A) *async.Cell[wire.Result[R]] {
	return InvokeIn[A, R](Default(), name, method, args)
}

// InvokeIn calls name/method through e and returns a cell resolved when the
// host replies. It never blocks. Failures to encode args or to decode the
// reply resolve the cell with an encoding error instead of a value.
func InvokeIn[A, R any](e *Env, name, method string, args A) *async.Cell[wire.Result[R]] {
	cell := async.NewCell[wire.Result[R]]()
	c := e.Codec()

	data, err := c.Marshal(args)
	if err != nil {
		cell.Set(wire.Fail[R](wire.ToErrorDetail(&wire.EncodingError{Op: "encode", Err: err})))
		return cell
	}

	r := e.table.Owned(func(buf *callback.Buffer) {
		defer buf.Release()
		cell.Set(decodeResult[R](e, buf.Bytes()))
	})
	e.bound().Invoke(name, method, data, r)
	return cell
}

// InvokeSync calls name/method on the host through the default environment
// and waits for the reply inside the host call.
func InvokeSync[A, R any](name, method string, args A) wire.Result[R] {
	return InvokeSyncIn[A, R](Default(), name, method, args)
}

// InvokeSyncIn is the blocking form of InvokeIn. The host writes the reply
// into guest memory before returning; the guest frees it after decoding.
func InvokeSyncIn[A, R any](e *Env, name, method string, args A) wire.Result[R] {
	data, err := e.Codec().Marshal(args)
	if err != nil {
		return wire.Fail[R](wire.ToErrorDetail(&wire.EncodingError{Op: "encode", Err: err}))
	}

	addr, n := e.bound().InvokeSync(name, method, data)
	defer e.memory.Free(addr, n)

	return decodeResult[R](e, e.memory.Bytes(addr, n))
}

func decodeResult[R any](e *Env, data []byte) wire.Result[R] {
	var res wire.Result[R]
	if err := e.Codec().Unmarshal(data, &res); err != nil {
		return wire.Fail[R](wire.ToErrorDetail(&wire.EncodingError{Op: "decode", Err: err}))
	}
	return res
}

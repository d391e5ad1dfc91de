package host

import (
	"context"

	"github.com/wasm-everything/we/codec"
	"github.com/wasm-everything/we/wire"
)

// Replier answers one invoke. Reply takes an encoded wire.Result (or
// wire.Failure) and may be called from any goroutine, exactly once; a second
// call panics with ErrReplied.
type Replier interface {
	Reply(data []byte)
}

// Dispatcher serves the invoke calls of guests. It must eventually reply
// through r; it may do so before returning.
type Dispatcher interface {
	Dispatch(ctx context.Context, from *Instance, call wire.Call, r Replier)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, from *Instance, call wire.Call, r Replier)

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, from *Instance, call wire.Call, r Replier) {
	f(ctx, from, call, r)
}

// NotFound returns a dispatcher that answers every call with a not-found
// failure, encoded with the codec of the calling instance.
func NotFound() Dispatcher {
	return DispatcherFunc(func(_ context.Context, from *Instance, call wire.Call, r Replier) {
		r.Reply(encodeFailure(from.Codec(), &wire.NotFoundError{Name: call.Name, Method: call.Method}))
	})
}

// encodeFailure encodes err as a failure envelope. Encoding an ErrorDetail
// cannot fail with the built-in codecs; should a custom one fail, the
// encoding error itself is reported as plain JSON.
func encodeFailure(c codec.Codec, err error) []byte {
	data, mErr := c.Marshal(wire.Failure(wire.ToErrorDetail(err)))
	if mErr != nil {
		data, _ = codec.JSON.Marshal(wire.Failure(wire.ToErrorDetail(&wire.EncodingError{Op: "encode", Err: mErr})))
	}
	return data
}

type callKey struct{}

type callInfo struct {
	call wire.Call
	from *Instance
}

// withCall records the call being served in ctx.
func withCall(ctx context.Context, from *Instance, call wire.Call) context.Context {
	return context.WithValue(ctx, callKey{}, callInfo{call: call, from: from})
}

// CallFrom returns the call being served and the instance that made it.
func CallFrom(ctx context.Context) (wire.Call, *Instance, bool) {
	info, ok := ctx.Value(callKey{}).(callInfo)
	return info.call, info.from, ok
}

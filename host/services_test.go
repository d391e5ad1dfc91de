package host

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wasm-everything/we/async"
	"github.com/wasm-everything/we/codec"
	"github.com/wasm-everything/we/wire"
)

func decodeReply[R any](t *testing.T, c codec.Codec, data []byte) wire.Result[R] {
	t.Helper()
	var res wire.Result[R]
	require.NoError(t, c.Unmarshal(data, &res))
	return res
}

func TestNewServices_Validation(t *testing.T) {
	h := NewHandler(addOne)

	_, err := NewServices(WithHandler("math", "add_one", h), WithHandler("math", "add_one", h))
	assert.ErrorContains(t, err, `duplicate handler: "math/add_one"`)

	_, err = NewServices(WithHandler("", "add_one", h))
	assert.Error(t, err)

	_, err = NewServices(WithHandler("math", "", h))
	assert.Error(t, err)

	svc, err := NewServices(
		WithHandler("math", "add_one", h),
		WithHandler("host", "echo", h),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"host/echo", "math/add_one"}, svc.Names())
	assert.True(t, svc.Has("math", "add_one"))
	assert.False(t, svc.Has("math", "add_two"))
}

func TestServices_Serve(t *testing.T) {
	h := newTestHost(t)
	inst := newInstance(h, 1, "svc")

	svc, err := NewServices(
		WithHandler("math", "add_one", NewHandler(addOne)),
		WithHandler("math", "fail", NewHandler(func(context.Context, addArg) (addReply, error) {
			return addReply{}, &wire.ErrorDetail{Message: "no", Type: wire.TypeValidation, Code: "neg"}
		})),
		WithHandler("math", "boom", NewHandler(func(context.Context, addArg) (addReply, error) {
			panic("boom")
		})),
		WithMiddleware(PanicRecoveryMiddleware()),
	)
	require.NoError(t, err)
	ctx := context.Background()
	c := inst.Codec()

	args, err := c.Marshal(addArg{Foo: 9})
	require.NoError(t, err)

	res := decodeReply[addReply](t, c, svc.Serve(ctx, inst, wire.Call{Name: "math", Method: "add_one", Args: args}))
	assert.Nil(t, res.Error)
	assert.Equal(t, 10, res.Value.Bar)

	res = decodeReply[addReply](t, c, svc.Serve(ctx, inst, wire.Call{Name: "math", Method: "fail", Args: args}))
	require.NotNil(t, res.Error)
	assert.Equal(t, wire.TypeValidation, res.Error.Type)
	assert.Equal(t, "neg", res.Error.Code)

	res = decodeReply[addReply](t, c, svc.Serve(ctx, inst, wire.Call{Name: "math", Method: "boom", Args: args}))
	require.NotNil(t, res.Error)
	assert.Equal(t, wire.TypePanic, res.Error.Type)
	assert.Equal(t, "panic: boom", res.Error.Message)

	res = decodeReply[addReply](t, c, svc.Serve(ctx, inst, wire.Call{Name: "math", Method: "add_one", Args: []byte("{")}))
	require.NotNil(t, res.Error)
	assert.Equal(t, wire.TypeEncoding, res.Error.Type)
	assert.Equal(t, "decode", res.Error.Code)

	res = decodeReply[addReply](t, c, svc.Serve(ctx, inst, wire.Call{Name: "math", Method: "sub"}))
	require.NotNil(t, res.Error)
	assert.Equal(t, wire.TypeNotFound, res.Error.Type)
}

func TestServices_MiddlewareOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next ByteHandler) ByteHandler {
			return func(ctx context.Context, c codec.Codec, args []byte) ([]byte, error) {
				order = append(order, name+">")
				defer func() { order = append(order, "<"+name) }()
				return next(ctx, c, args)
			}
		}
	}

	svc, err := NewServices(
		WithHandler("a", "b", func(context.Context, codec.Codec, []byte) ([]byte, error) {
			order = append(order, "handler")
			return []byte("ok"), nil
		}),
		WithMiddleware(mark("first"), mark("second")),
	)
	require.NoError(t, err)

	h := newTestHost(t)
	assert.Equal(t, []byte("ok"), svc.Serve(context.Background(), newInstance(h, 1, "m"), wire.Call{Name: "a", Method: "b"}))
	assert.Equal(t, []string{"first>", "second>", "handler", "<second", "<first"}, order)
}

func TestServices_HandlerSeesCall(t *testing.T) {
	h := newTestHost(t)
	inst := newInstance(h, 7, "m")

	var (
		seen wire.Call
		from *Instance
	)
	svc, err := NewServices(WithHandler("who", "am_i", func(ctx context.Context, _ codec.Codec, _ []byte) ([]byte, error) {
		var ok bool
		seen, from, ok = CallFrom(ctx)
		if !ok {
			return nil, errors.New("no call in context")
		}
		return nil, nil
	}))
	require.NoError(t, err)

	svc.Serve(context.Background(), inst, wire.Call{Name: "who", Method: "am_i", Args: []byte("x")})
	assert.Equal(t, "who", seen.Name)
	assert.Equal(t, "am_i", seen.Method)
	assert.Same(t, inst, from)

	_, _, ok := CallFrom(context.Background())
	assert.False(t, ok)
}

func TestServices_Dispatch(t *testing.T) {
	h := newTestHost(t)
	inst := newInstance(h, 1, "m")
	ctx, cancel := context.WithCancel(context.Background())

	svc, err := NewServices(WithHandler("ctx", "err", func(ctx context.Context, _ codec.Codec, _ []byte) ([]byte, error) {
		return nil, ctx.Err()
	}))
	require.NoError(t, err)

	// Asynchronous calls outlive the import call that started them.
	cancel()
	r := &cellReplier{cell: async.NewCell[[]byte]()}
	svc.Dispatch(ctx, inst, wire.Call{Name: "ctx", Method: "err"}, r)

	reply, err := r.cell.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte(nil), reply)

	inline, err := NewServices(WithInline(true))
	require.NoError(t, err)
	r = &cellReplier{cell: async.NewCell[[]byte]()}
	inline.Dispatch(context.Background(), inst, wire.Call{Name: "x", Method: "y"}, r)
	assert.True(t, r.cell.Ready())
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	h := newTestHost(t)
	inst := newInstance(h, 4, "m")

	svc, err := NewServices(
		WithHandler("math", "add_one", NewHandler(addOne)),
		WithMiddleware(LoggingMiddleware(zap.New(core))),
	)
	require.NoError(t, err)

	args, err := inst.Codec().Marshal(addArg{Foo: 1})
	require.NoError(t, err)
	svc.Serve(context.Background(), inst, wire.Call{Name: "math", Method: "add_one", Args: args})

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "invoking host service", logs.All()[0].Message)
	assert.Equal(t, "host service completed", logs.All()[1].Message)
	assert.Equal(t, uint64(4), logs.All()[0].ContextMap()["instance"])
	assert.Equal(t, "add_one", logs.All()[0].ContextMap()["method"])
}

func TestNotFound(t *testing.T) {
	h := newTestHost(t, WithCodec("gob"))
	inst := newInstance(h, 1, "m")

	r := &cellReplier{cell: async.NewCell[[]byte]()}
	NotFound().Dispatch(context.Background(), inst, wire.Call{Name: "a", Method: "b"}, r)

	reply, ok := r.cell.Poll(async.NoopWaker)
	require.True(t, ok)
	res := decodeReply[addReply](t, codec.Gob, reply)
	require.NotNil(t, res.Error)
	assert.Equal(t, wire.TypeNotFound, res.Error.Type)
	assert.Equal(t, "a/b", res.Error.Code)
}

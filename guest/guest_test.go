package guest

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasm-everything/we/callback"
	"github.com/wasm-everything/we/codec"
	"github.com/wasm-everything/we/rt"
	"github.com/wasm-everything/we/wire"
)

type invocation struct {
	name, method string
	args         []byte
	reg          callback.Registration
}

type delivery struct {
	data []byte
	reg  callback.Registration
}

// fakeHost records what the guest sends across the boundary. Sync invokes
// are answered by syncReply, written into guest memory the way a host would.
type fakeHost struct {
	env       *Env
	invokes   []invocation
	logs      [][]byte
	callbacks []delivery
	syncReply func(invocation) []byte
}

func (h *fakeHost) Invoke(name, method string, args []byte, r callback.Registration) {
	h.invokes = append(h.invokes, invocation{name: name, method: method, args: args, reg: r})
}

func (h *fakeHost) InvokeSync(name, method string, args []byte) (uint32, uint32) {
	out := h.syncReply(invocation{name: name, method: method, args: args})
	addr := h.env.Malloc(uint32(len(out)))
	copy(h.env.Memory().Bytes(addr, uint32(len(out))), out)
	return addr, uint32(len(out))
}

func (h *fakeHost) LogProxy(record []byte) {
	h.logs = append(h.logs, append([]byte(nil), record...))
}

func (h *fakeHost) Callback(data []byte, r callback.Registration) {
	h.callbacks = append(h.callbacks, delivery{data: append([]byte(nil), data...), reg: r})
}

// reply writes payload into guest memory and runs the trampoline, as the
// host does after the guest call that issued the invoke returns.
func (h *fakeHost) reply(inv invocation, payload []byte) {
	addr := h.env.Malloc(uint32(len(payload)))
	copy(h.env.Memory().Bytes(addr, uint32(len(payload))), payload)
	h.env.Deliver(addr, uint32(len(payload)), uint32(inv.reg.Kind), inv.reg.Data)
}

func newFakeEnv(t *testing.T) (*Env, *fakeHost) {
	t.Helper()
	h := &fakeHost{}
	h.env = NewEnv(h)
	return h.env, h
}

type addArg struct {
	Foo int `json:"foo"`
}

type addReply struct {
	Bar int `json:"bar"`
}

func encode(t *testing.T, c codec.Codec, v any) []byte {
	t.Helper()
	data, err := c.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestInvoke_ResolvesOnReply(t *testing.T) {
	env, host := newFakeEnv(t)

	var got addReply
	task := env.Spawn(rt.Await[wire.Result[addReply]](
		InvokeIn[addArg, addReply](env, "hello", "add_one", addArg{Foo: 1}),
		func(r wire.Result[addReply]) {
			v, err := r.Unwrap()
			require.NoError(t, err)
			got = v
		},
	))

	require.Len(t, host.invokes, 1)
	inv := host.invokes[0]
	assert.Equal(t, "hello", inv.name)
	assert.Equal(t, "add_one", inv.method)
	assert.JSONEq(t, `{"foo":1}`, string(inv.args))
	assert.Equal(t, callback.KindOwned, inv.reg.Kind)
	assert.False(t, task.Done())
	assert.Zero(t, env.Runtime().Len(), "the guest yields with an empty run queue")
	assert.Equal(t, 1, task.Polls())

	host.reply(inv, encode(t, codec.JSON, wire.Ok(addReply{Bar: 2})))

	assert.True(t, task.Done())
	assert.Equal(t, 2, task.Polls())
	assert.Equal(t, addReply{Bar: 2}, got)
	assert.Equal(t, 0, env.Table().Len())

	count, _ := env.Memory().Stats()
	assert.Zero(t, count, "reply memory must be released after decoding")
}

func TestInvoke_Gob(t *testing.T) {
	env, host := newFakeEnv(t)
	env.SetCodec(codec.Gob)

	cell := InvokeIn[addArg, addReply](env, "hello", "add_one", addArg{Foo: 41})

	require.Len(t, host.invokes, 1)
	var arg addArg
	require.NoError(t, codec.Gob.Unmarshal(host.invokes[0].args, &arg))
	assert.Equal(t, 41, arg.Foo)

	host.reply(host.invokes[0], encode(t, codec.Gob, wire.Ok(addReply{Bar: 42})))

	require.True(t, cell.Ready())
	res, ok := cell.Poll(nil)
	require.True(t, ok)
	assert.Equal(t, 42, res.Value.Bar)
}

func TestInvoke_EncodeFailureResolvesImmediately(t *testing.T) {
	env, host := newFakeEnv(t)

	cell := InvokeIn[chan int, int](env, "x", "y", make(chan int))

	assert.Empty(t, host.invokes, "nothing crosses the boundary")
	require.True(t, cell.Ready())
	res, _ := cell.Poll(nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, wire.TypeEncoding, res.Error.Type)
	assert.Equal(t, "encode", res.Error.Code)
}

func TestInvoke_DecodeFailureIsInBand(t *testing.T) {
	env, host := newFakeEnv(t)

	cell := InvokeIn[addArg, addReply](env, "hello", "add_one", addArg{})
	host.reply(host.invokes[0], []byte("not json"))

	res, ok := cell.Poll(nil)
	require.True(t, ok)
	require.NotNil(t, res.Error)
	assert.Equal(t, wire.TypeEncoding, res.Error.Type)
	assert.Equal(t, "decode", res.Error.Code)
}

func TestInvoke_FailureEnvelope(t *testing.T) {
	env, host := newFakeEnv(t)

	cell := InvokeIn[addArg, addReply](env, "nobody", "add_one", addArg{})
	detail := &wire.ErrorDetail{Message: "no handler", Type: wire.TypeNotFound}
	host.reply(host.invokes[0], encode(t, codec.JSON, wire.Failure(detail)))

	res, _ := cell.Poll(nil)
	assert.Equal(t, detail, res.Error)
}

func TestInvoke_ReplyDeliveredTwicePanics(t *testing.T) {
	env, host := newFakeEnv(t)

	InvokeIn[addArg, addReply](env, "hello", "add_one", addArg{})
	payload := encode(t, codec.JSON, wire.Ok(addReply{}))
	host.reply(host.invokes[0], payload)

	assert.PanicsWithValue(t, callback.ErrNotRegistered, func() {
		host.reply(host.invokes[0], payload)
	})
}

func TestInvokeSync(t *testing.T) {
	env, host := newFakeEnv(t)
	host.syncReply = func(inv invocation) []byte {
		var a addArg
		require.NoError(t, codec.JSON.Unmarshal(inv.args, &a))
		return encode(t, codec.JSON, wire.Ok(addReply{Bar: a.Foo + 1}))
	}

	res := InvokeSyncIn[addArg, addReply](env, "hello", "add_one", addArg{Foo: 9})

	require.Nil(t, res.Error)
	assert.Equal(t, 10, res.Value.Bar)
	count, _ := env.Memory().Stats()
	assert.Zero(t, count)
}

func TestWithOutCells(t *testing.T) {
	env, _ := newFakeEnv(t)

	addr, n := env.withOutCells(func(outPtr, outLen uint32) {
		// A reentrant allocation while the cells are live must not disturb
		// them.
		scratch := env.Malloc(64)
		defer env.Free(scratch, 64)

		binary.LittleEndian.PutUint32(env.Memory().Bytes(outPtr, 4), 0x1234)
		binary.LittleEndian.PutUint32(env.Memory().Bytes(outLen, 4), 17)
	})

	assert.Equal(t, uint32(0x1234), addr)
	assert.Equal(t, uint32(17), n)

	count, _ := env.Memory().Stats()
	assert.Zero(t, count, "out cells are freed")
}

func TestDeliver_Borrowed(t *testing.T) {
	env, _ := newFakeEnv(t)

	var seen string
	r := env.Table().Borrowed(func(b []byte) { seen = string(b) })

	addr := env.Malloc(5)
	copy(env.Memory().Bytes(addr, 5), "hello")
	env.Deliver(addr, 5, uint32(r.Kind), r.Data)

	assert.Equal(t, "hello", seen)
	count, _ := env.Memory().Stats()
	assert.Equal(t, 1, count, "borrowed deliveries leave the memory with the caller")
	env.Free(addr, 5)
}

func TestDeliver_ZeroLengthOwned(t *testing.T) {
	env, _ := newFakeEnv(t)

	var got *callback.Buffer
	r := env.Table().Owned(func(b *callback.Buffer) { got = b })

	// Address 0 is never dereferenced for an empty payload.
	env.Deliver(0, 0, uint32(r.Kind), r.Data)

	require.NotNil(t, got)
	assert.Zero(t, got.Len())
	got.Release()
}

func TestIdentity(t *testing.T) {
	env, _ := newFakeEnv(t)

	_, ok := env.InstanceID()
	assert.False(t, ok)

	assert.True(t, env.SetInstanceID(7))
	assert.False(t, env.SetInstanceID(8), "only the first id sticks")

	id, ok := env.InstanceID()
	assert.True(t, ok)
	assert.Equal(t, uint64(7), id)
}

func TestSetName(t *testing.T) {
	env, _ := newFakeEnv(t)
	assert.Zero(t, env.NameAddr())

	env.SetName("hello")
	env.SetName("hello-world")

	cell := env.NameAddr()
	require.NotZero(t, cell)
	strAddr := binary.LittleEndian.Uint32(env.Memory().Bytes(cell, 4))
	str := env.Memory().Bytes(strAddr, uint32(len("hello-world")+1))
	assert.Equal(t, "hello-world\x00", string(str))
	assert.Equal(t, "hello-world", env.Name())

	count, _ := env.Memory().Stats()
	assert.Equal(t, 2, count, "renaming frees the previous string")
}

func TestCallback(t *testing.T) {
	env, host := newFakeEnv(t)
	r := callback.Registration{Kind: callback.KindOwned, Data: 3}

	env.Callback([]byte("hello world"), r)

	require.Len(t, host.callbacks, 1)
	assert.Equal(t, "hello world", string(host.callbacks[0].data))
	assert.Equal(t, r, host.callbacks[0].reg)
}

func TestEnv_NoBoundaryPanics(t *testing.T) {
	env := NewEnv(nil)
	assert.Panics(t, func() { env.LogProxy(nil) })
}

func TestSetBoundary(t *testing.T) {
	prev := std
	t.Cleanup(func() { std = prev })

	host := &fakeHost{}
	env := SetBoundary(host)
	host.env = env
	assert.Same(t, env, Default())

	SetName("default")
	assert.Equal(t, "default", Default().Name())

	Callback([]byte("x"), callback.Registration{Kind: callback.KindBorrowed, Data: 1})
	assert.Len(t, host.callbacks, 1)

	task := Spawn(rt.Ready())
	assert.True(t, task.Done())

	SetCodec(codec.Gob)
	assert.Equal(t, "gob", Default().Codec().Name())
}

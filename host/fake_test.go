package host

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasm-everything/we/callback"
	"github.com/wasm-everything/we/guest"
	"github.com/wasm-everything/we/internal/abi"
)

type exportFunc func(ctx context.Context, params []uint64) []uint64

// fakeModule is a guest running natively: its exports call straight into a
// guest.Env and its memory is the env's allocator.
type fakeModule struct {
	name    string
	env     *guest.Env
	host    *Host
	exports map[string]exportFunc
	globals map[string]uint64
	closed  atomic.Bool
}

func newFakeModule(h *Host, name string) *fakeModule {
	m := &fakeModule{
		name:    name,
		host:    h,
		exports: map[string]exportFunc{},
		globals: map[string]uint64{},
	}
	m.env = guest.NewEnv(fakeBoundary{m: m})
	m.env.SetCodec(h.codec)

	m.exports[abi.ExportMalloc] = func(_ context.Context, p []uint64) []uint64 {
		return []uint64{uint64(m.env.Malloc(uint32(p[0])))}
	}
	m.exports[abi.ExportFree] = func(_ context.Context, p []uint64) []uint64 {
		m.env.Free(uint32(p[0]), uint32(p[1]))
		return nil
	}
	m.exports[abi.ExportSetInstanceID] = func(_ context.Context, p []uint64) []uint64 {
		if m.env.SetInstanceID(p[0]) {
			return []uint64{1}
		}
		return []uint64{0}
	}
	m.exports[abi.ExportGetInstanceID] = func(context.Context, []uint64) []uint64 {
		id, _ := m.env.InstanceID()
		return []uint64{id}
	}
	m.exports[abi.ExportName] = func(context.Context, []uint64) []uint64 {
		return []uint64{uint64(m.env.NameAddr())}
	}
	m.exports[abi.ExportInvokeCallback] = func(_ context.Context, p []uint64) []uint64 {
		m.env.Deliver(uint32(p[0]), uint32(p[1]), uint32(p[2]), uint32(p[3]))
		return nil
	}
	return m
}

func (m *fakeModule) Name() string { return m.name }

func (m *fakeModule) Memory() Memory { return fakeMemory{a: m.env.Memory()} }

func (m *fakeModule) ExportedFunction(name string) Function {
	f, ok := m.exports[name]
	if !ok {
		return nil
	}
	return fakeFunction(f)
}

func (m *fakeModule) ExportedGlobal(name string) Global {
	v, ok := m.globals[name]
	if !ok {
		return nil
	}
	return fakeGlobal(v)
}

func (m *fakeModule) Close(context.Context) error {
	m.closed.Store(true)
	return nil
}

// fakeFunction turns panics into errors, as the engine turns them into
// traps of the current call.
type fakeFunction exportFunc

func (f fakeFunction) Call(ctx context.Context, params ...uint64) (res []uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("wasm trap: %v", r)
		}
	}()
	return f(ctx, params), nil
}

type fakeGlobal uint64

func (g fakeGlobal) Get() uint64 { return uint64(g) }

// fakeMemory addresses the live segments of a guest allocator.
type fakeMemory struct {
	a *abi.Allocator
}

func (m fakeMemory) Size() uint32 { return math.MaxUint32 }

func (m fakeMemory) Read(off, n uint32) ([]byte, bool) {
	if n == 0 {
		return []byte{}, true
	}
	base, seg, ok := m.a.Find(off)
	if !ok {
		return nil, false
	}
	start := off - base
	if uint64(start)+uint64(n) > uint64(len(seg)) {
		return nil, false
	}
	return seg[start : start+n], true
}

func (m fakeMemory) Write(off uint32, v []byte) bool {
	dst, ok := m.Read(off, uint32(len(v)))
	if !ok {
		return false
	}
	copy(dst, v)
	return true
}

func (m fakeMemory) ReadUint32Le(off uint32) (uint32, bool) {
	b, ok := m.Read(off, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (m fakeMemory) WriteUint32Le(off, v uint32) bool {
	return m.Write(off, binary.LittleEndian.AppendUint32(nil, v))
}

// fakeBoundary copies guest arguments into guest memory and calls the host
// import handlers the way the engine would.
type fakeBoundary struct {
	m *fakeModule
}

func (b fakeBoundary) put(data []byte) span {
	n := uint32(len(data))
	addr := b.m.env.Malloc(n)
	copy(b.m.env.Memory().Bytes(addr, n), data)
	return span{ptr: addr, len: n}
}

func (b fakeBoundary) release(s span) {
	b.m.env.Free(s.ptr, s.len)
}

func (b fakeBoundary) Invoke(name, method string, args []byte, r callback.Registration) {
	n, m, a := b.put([]byte(name)), b.put([]byte(method)), b.put(args)
	defer func() {
		b.release(n)
		b.release(m)
		b.release(a)
	}()
	b.m.host.invoke(context.Background(), b.m, n, m, a, uint32(r.Kind), r.Data)
}

func (b fakeBoundary) InvokeSync(name, method string, args []byte) (uint32, uint32) {
	n, m, a := b.put([]byte(name)), b.put([]byte(method)), b.put(args)
	out, outLen := b.m.env.Malloc(4), b.m.env.Malloc(4)
	defer func() {
		b.release(n)
		b.release(m)
		b.release(a)
		b.m.env.Free(out, 4)
		b.m.env.Free(outLen, 4)
	}()

	b.m.host.invokeSync(context.Background(), b.m, n, m, a, out, outLen)

	mem := b.m.env.Memory()
	return binary.LittleEndian.Uint32(mem.Bytes(out, 4)), binary.LittleEndian.Uint32(mem.Bytes(outLen, 4))
}

func (b fakeBoundary) LogProxy(record []byte) {
	s := b.put(record)
	defer b.release(s)
	b.m.host.logProxy(context.Background(), b.m, s)
}

func (b fakeBoundary) Callback(data []byte, r callback.Registration) {
	s := b.put(data)
	defer b.release(s)
	b.m.host.callback(context.Background(), b.m, s, uint32(r.Kind), r.Data)
}

// newTestHost builds a host without an engine and with its forwarder
// running.
func newTestHost(t *testing.T, opts ...Option) *Host {
	t.Helper()
	h, err := newHost(opts...)
	require.NoError(t, err)
	h.start()
	t.Cleanup(func() {
		require.NoError(t, h.Close(context.Background()))
	})
	return h
}

package guest

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/wasm-everything/we/callback"
	"github.com/wasm-everything/we/codec"
	"github.com/wasm-everything/we/internal/abi"
	"github.com/wasm-everything/we/rt"
)

// Boundary is the set of host functions a guest calls.
type Boundary interface {
	// Invoke asks the host to run name/method with args and to answer by
	// delivering the encoded result to r.
	Invoke(name, method string, args []byte, r callback.Registration)
	// InvokeSync runs name/method and returns the address and length of the
	// encoded result, written by the host into memory obtained from the
	// guest allocator.
	InvokeSync(name, method string, args []byte) (addr, n uint32)
	// LogProxy hands an encoded wire.LogRecord to the host.
	LogProxy(record []byte)
	// Callback delivers data to a host trampoline.
	Callback(data []byte, r callback.Registration)
}

// Env is the state of one guest instance: its executor, trampoline table,
// allocator, codec and identity.
type Env struct {
	boundary Boundary
	runtime  *rt.Runtime
	table    *callback.Table
	memory   *abi.Allocator

	mu    sync.Mutex
	codec codec.Codec

	id    atomic.Uint64
	idSet atomic.Bool

	nameMu   sync.Mutex
	name     string
	nameCell uint32
	nameStr  uint32
	nameLen  uint32
}

// NewEnv returns an Env calling into b.
func NewEnv(b Boundary, opts ...abi.Option) *Env {
	return &Env{
		boundary: b,
		runtime:  rt.New(),
		table:    callback.NewTable(),
		memory:   abi.NewAllocator(opts...),
		codec:    codec.Default,
	}
}

// Codec returns the codec used for invoke arguments, results and log records.
func (e *Env) Codec() codec.Codec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.codec
}

// SetCodec changes the codec. The host must be configured with the same one.
func (e *Env) SetCodec(c codec.Codec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codec = c
}

// Runtime returns the instance's executor.
func (e *Env) Runtime() *rt.Runtime { return e.runtime }

// Table returns the instance's trampoline table.
func (e *Env) Table() *callback.Table { return e.table }

// Memory returns the allocator behind _wasm_malloc and _wasm_free.
func (e *Env) Memory() *abi.Allocator { return e.memory }

// Spawn runs f on the instance's executor.
func (e *Env) Spawn(f rt.Future) *rt.Task {
	return e.runtime.Spawn(f)
}

// Malloc serves the host's allocation requests.
func (e *Env) Malloc(size uint32) uint32 {
	return e.memory.Alloc(size)
}

// Free serves the host's release requests.
func (e *Env) Free(addr, size uint32) {
	e.memory.Free(addr, size)
}

// LogProxy forwards an encoded log record to the host.
func (e *Env) LogProxy(record []byte) {
	e.bound().LogProxy(record)
}

// Callback delivers data to the host trampoline r. The host owns r; it is
// typically passed into an export by the host and handed back here once.
func (e *Env) Callback(data []byte, r callback.Registration) {
	e.bound().Callback(data, r)
}

// Deliver runs the trampoline identified by kind and data on the length n
// bytes at addr, which the host obtained from Malloc. An owned trampoline
// takes the segment and frees it on release; a borrowed one only sees it
// for the duration of the call.
func (e *Env) Deliver(addr, n, kind, data uint32) {
	r := callback.Registration{Kind: callback.Kind(kind), Data: data}

	if r.Kind == callback.KindBorrowed {
		e.table.Call(r, e.memory.Bytes(addr, n), nil)
		return
	}

	e.table.Call(r, nil, func() *callback.Buffer {
		if n == 0 {
			return callback.NewBuffer(nil, nil)
		}
		return callback.NewBuffer(e.memory.Bytes(addr, n), func() {
			e.memory.Free(addr, n)
		})
	})
}

// withOutCells runs call with the addresses of two 4-byte cells for the host
// to fill in and returns what it wrote. The cells live in the allocator, so
// their addresses stay valid while the host calls back into the guest.
func (e *Env) withOutCells(call func(outPtr, outLen uint32)) (addr, n uint32) {
	outPtr, outLen := e.memory.Alloc(4), e.memory.Alloc(4)
	defer func() {
		e.memory.Free(outPtr, 4)
		e.memory.Free(outLen, 4)
	}()

	call(outPtr, outLen)
	return binary.LittleEndian.Uint32(e.memory.Bytes(outPtr, 4)),
		binary.LittleEndian.Uint32(e.memory.Bytes(outLen, 4))
}

func (e *Env) bound() Boundary {
	if e.boundary == nil {
		panic("guest: environment has no boundary")
	}
	return e.boundary
}

package host

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/wasm-everything/we/async"
	"github.com/wasm-everything/we/callback"
	"github.com/wasm-everything/we/codec"
	"github.com/wasm-everything/we/internal/abi"
)

// Instance is the host side of one loaded guest.
type Instance struct {
	host   *Host
	id     uint64
	module string
	codec  codec.Codec
	log    *zap.Logger

	mu  sync.Mutex
	mod Module

	// token serializes every call into the guest.
	token *semaphore.Weighted

	pendingMu sync.Mutex
	pending   []delivery

	// callbacks holds host trampolines the guest answers through the
	// callback import.
	callbacks *callback.Table

	nameOnce sync.Once
	name     string
	named    bool

	ready atomic.Bool
}

// delivery is a reply waiting to be written into the guest.
type delivery struct {
	data []byte
	reg  callback.Registration
}

func newInstance(h *Host, id uint64, module string) *Instance {
	return &Instance{
		host:      h,
		id:        id,
		module:    module,
		codec:     h.codec,
		log:       h.log.With(zap.Uint64("instance", id)),
		token:     semaphore.NewWeighted(1),
		callbacks: callback.NewTable(),
	}
}

// ID returns the host-assigned id. Ids start at 1 and are never reused.
func (i *Instance) ID() uint64 {
	return i.id
}

// Codec returns the codec shared with the guest.
func (i *Instance) Codec() codec.Codec {
	return i.codec
}

// Module returns the engine module, or nil before instantiation finished.
func (i *Instance) Module() Module {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.mod
}

// Ready reports whether the instance passed the load handshake.
func (i *Instance) Ready() bool {
	return i.ready.Load()
}

// bind attaches the engine module. Only the first module sticks; imports
// called while the module is still instantiating bind it early.
func (i *Instance) bind(mod Module) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.mod == nil {
		i.mod = mod
	}
}

// Call runs an export while holding the instance token, then delivers every
// reply queued during the call.
func (i *Instance) Call(ctx context.Context, export string, params ...uint64) ([]uint64, error) {
	if err := i.token.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer i.token.Release(1)

	res, err := i.call(ctx, export, params...)
	i.flushLocked(ctx)
	return res, err
}

// call runs an export. The caller holds the token.
func (i *Instance) call(ctx context.Context, export string, params ...uint64) ([]uint64, error) {
	mod := i.Module()
	if mod == nil {
		return nil, &MissingExportError{Name: export}
	}
	f := mod.ExportedFunction(export)
	if f == nil {
		return nil, &MissingExportError{Name: export}
	}
	return f.Call(ctx, params...)
}

// CallAsync calls export with a fresh owned trampoline as its (kind, data)
// arguments. The returned cell resolves with the bytes the guest passes to
// the callback import; the receiver must release the buffer.
func (i *Instance) CallAsync(ctx context.Context, export string) (*async.Cell[*callback.Buffer], error) {
	cell := async.NewCell[*callback.Buffer]()
	r := i.callbacks.Owned(func(buf *callback.Buffer) {
		cell.Set(buf)
	})

	if _, err := i.Call(ctx, export, uint64(r.Kind), uint64(r.Data)); err != nil {
		i.callbacks.Cancel(r)
		return nil, err
	}
	return cell, nil
}

// CallWithCallback calls export with a borrowed trampoline running fn. The
// bytes passed to fn are only valid for the duration of fn.
func (i *Instance) CallWithCallback(ctx context.Context, export string, fn func([]byte)) error {
	r := i.callbacks.Borrowed(fn)
	if _, err := i.Call(ctx, export, uint64(r.Kind), uint64(r.Data)); err != nil {
		i.callbacks.Cancel(r)
		return err
	}
	return nil
}

// enqueue queues a reply. Replies sent while the guest call that produced
// them is still running are delivered when it returns; later ones start a
// background delivery. inline is read after the reply is queued so that a
// call returning concurrently either sees the reply or leaves it to the
// background delivery.
func (i *Instance) enqueue(d delivery, inline *atomic.Bool) {
	i.pendingMu.Lock()
	i.pending = append(i.pending, d)
	i.pendingMu.Unlock()

	if inline == nil || !inline.Load() {
		i.host.background(i.flush)
	}
}

func (i *Instance) pop() (delivery, bool) {
	i.pendingMu.Lock()
	defer i.pendingMu.Unlock()

	if len(i.pending) == 0 {
		return delivery{}, false
	}
	d := i.pending[0]
	i.pending[0] = delivery{}
	i.pending = i.pending[1:]
	return d, true
}

// Pending returns the number of undelivered replies.
func (i *Instance) Pending() int {
	i.pendingMu.Lock()
	defer i.pendingMu.Unlock()
	return len(i.pending)
}

// flush acquires the token and delivers pending replies.
func (i *Instance) flush(ctx context.Context) {
	if err := i.token.Acquire(ctx, 1); err != nil {
		return
	}
	defer i.token.Release(1)
	i.flushLocked(ctx)
}

// flushLocked delivers replies until none are left, including replies
// queued by the deliveries themselves. The caller holds the token.
func (i *Instance) flushLocked(ctx context.Context) {
	for {
		d, ok := i.pop()
		if !ok {
			return
		}
		if err := i.deliver(ctx, d); err != nil {
			i.log.Error("failed to deliver reply",
				zap.Stringer("kind", d.reg.Kind),
				zap.Uint32("data", d.reg.Data),
				zap.Error(err))
		}
	}
}

// deliver writes d into guest memory and runs the guest trampoline. An
// owned trampoline keeps the memory; after a borrowed one the host frees it.
func (i *Instance) deliver(ctx context.Context, d delivery) error {
	addr, err := i.WriteResult(ctx, d.data)
	if err != nil {
		return err
	}
	n := uint32(len(d.data)) //nolint:gosec // G115: bounded by guest memory

	if _, err := i.call(ctx, abi.ExportInvokeCallback,
		uint64(addr), uint64(n), uint64(d.reg.Kind), uint64(d.reg.Data)); err != nil {
		return err
	}
	if d.reg.Kind == callback.KindBorrowed {
		return i.Free(ctx, addr, n)
	}
	return nil
}

package host

import (
	"context"
	"sync/atomic"

	"capnproto.org/go/capnp/v3/exp/bufferpool"
	"go.uber.org/zap"

	"github.com/wasm-everything/we/async"
	"github.com/wasm-everything/we/callback"
	"github.com/wasm-everything/we/wire"
)

// unknownName stands in for guests that publish no name.
const unknownName = "???"

// span is a (pointer, length) pair in guest memory.
type span struct {
	ptr, len uint32
}

// replier queues its reply on the instance. While inline is set the guest
// call that issued the invoke is still running, and the reply is delivered
// when that call returns.
type replier struct {
	inst   *Instance
	reg    callback.Registration
	inline atomic.Bool
	done   atomic.Bool
}

func newReplier(inst *Instance, reg callback.Registration) *replier {
	r := &replier{inst: inst, reg: reg}
	r.inline.Store(true)
	return r
}

func (r *replier) Reply(data []byte) {
	if !r.done.CompareAndSwap(false, true) {
		panic(ErrReplied)
	}
	r.inst.enqueue(delivery{data: data, reg: r.reg}, &r.inline)
}

// detach marks the end of the guest call that issued the invoke.
func (r *replier) detach() {
	r.inline.Store(false)
}

// cellReplier resolves a cell, for callers that wait for the reply.
type cellReplier struct {
	cell *async.Cell[[]byte]
	done atomic.Bool
}

func (r *cellReplier) Reply(data []byte) {
	if !r.done.CompareAndSwap(false, true) {
		panic(ErrReplied)
	}
	r.cell.Set(data)
}

// readCall reads the call described by the invoke arguments. The service
// name comes from the guest runtime and is trusted; method and arguments
// are checked.
func (h *Host) readCall(inst *Instance, name, method, args span) (wire.Call, error) {
	var call wire.Call
	var err error

	if call.Name, err = inst.ReadStringUnchecked(name.ptr, name.len); err != nil {
		return call, err
	}
	if call.Method, err = inst.ReadString(method.ptr, method.len); err != nil {
		return call, err
	}
	if args.len > h.cfg.MaxRequestSize {
		return call, &RequestTooLargeError{Size: args.len, Limit: h.cfg.MaxRequestSize}
	}
	call.Args, err = inst.ReadBytes(args.ptr, args.len)
	return call, err
}

// invoke serves the invoke import: the reply is delivered later to the
// guest trampoline (kind, data).
func (h *Host) invoke(ctx context.Context, caller Module, name, method, args span, kind, data uint32) {
	inst := h.instanceFor(caller)
	r := newReplier(inst, callback.Registration{Kind: callback.Kind(kind), Data: data})
	defer r.detach()

	call, err := h.readCall(inst, name, method, args)
	if err != nil {
		inst.log.Warn("rejected invoke", zap.Error(err))
		r.Reply(encodeFailure(inst.codec, err))
		return
	}

	h.cfg.Dispatcher.Dispatch(withCall(ctx, inst, call), inst, call, r)
}

// invokeSync serves the invoke_sync import. It waits for the reply, writes
// it into guest memory and stores its address and length at out.
func (h *Host) invokeSync(ctx context.Context, caller Module, name, method, args span, outPtr, outLen uint32) {
	inst := h.instanceFor(caller)

	var reply []byte
	call, err := h.readCall(inst, name, method, args)
	if err != nil {
		inst.log.Warn("rejected invoke_sync", zap.Error(err))
		reply = encodeFailure(inst.codec, err)
	} else {
		r := &cellReplier{cell: async.NewCell[[]byte]()}
		h.cfg.Dispatcher.Dispatch(withCall(ctx, inst, call), inst, call, r)
		if reply, err = r.cell.Await(ctx); err != nil {
			reply = encodeFailure(inst.codec, err)
		}
	}

	addr, err := inst.WriteResult(ctx, reply)
	if err != nil {
		panic(err)
	}
	if err := inst.WriteUint32(outPtr, addr); err != nil {
		panic(err)
	}
	if err := inst.WriteUint32(outLen, uint32(len(reply))); err != nil { //nolint:gosec // G115: bounded by guest memory
		panic(err)
	}
}

// logProxy serves the log_proxy import. The record is copied and handed to
// the forwarder; decoding happens there.
func (h *Host) logProxy(_ context.Context, caller Module, rec span) {
	inst := h.instanceFor(caller)

	data, err := inst.ReadBytes(rec.ptr, rec.len)
	if err != nil {
		inst.log.Warn("unreadable log record", zap.Error(err))
		return
	}

	name := unknownName
	if inst.Ready() {
		if n, ok := inst.Name(); ok {
			name = n
		}
	}
	h.forwarder.push(logEntry{name: name, id: inst.id, data: data})
}

// callback serves the callback import: the guest hands bytes to a host
// trampoline.
func (h *Host) callback(_ context.Context, caller Module, payload span, kind, data uint32) {
	inst := h.instanceFor(caller)
	r := callback.Registration{Kind: callback.Kind(kind), Data: data}

	if r.Kind == callback.KindBorrowed {
		view, err := inst.View(payload.ptr, payload.len)
		if err != nil {
			panic(err)
		}
		inst.callbacks.Call(r, view, nil)
		return
	}

	inst.callbacks.Call(r, nil, func() *callback.Buffer {
		if payload.len == 0 {
			return callback.NewBuffer(nil, nil)
		}
		view, err := inst.View(payload.ptr, payload.len)
		if err != nil {
			panic(err)
		}
		buf := bufferpool.Default.Get(len(view))
		copy(buf, view)
		return callback.NewBuffer(buf, func() {
			bufferpool.Default.Put(buf)
		})
	})
}

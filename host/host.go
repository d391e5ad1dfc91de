package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/thejerf/suture/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wasm-everything/we/codec"
	"github.com/wasm-everything/we/internal/abi"
)

// Host loads guest modules and serves their imports.
type Host struct {
	cfg   Config
	codec codec.Codec
	log   *zap.Logger

	runtime  wazero.Runtime
	registry *Registry

	// modules maps engine module names to instances, including instances
	// still instantiating and not yet in the registry.
	modules sync.Map

	nextID atomic.Uint64

	forwarder  *forwarder
	supervisor *suture.Supervisor

	ctx    context.Context
	cancel context.CancelFunc
	done   <-chan error
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New creates a Host with its own wazero runtime, provides the host module
// to guests and starts the log forwarder.
func New(ctx context.Context, opts ...Option) (*Host, error) {
	h, err := newHost(opts...)
	if err != nil {
		return nil, err
	}

	rt := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, rt)
	h.runtime = rt

	if err := h.registerImports(ctx); err != nil {
		h.cancel()
		return nil, multierr.Append(
			fmt.Errorf("failed to register host functions: %w", err),
			rt.Close(ctx))
	}

	h.start()
	return h, nil
}

// newHost builds a Host without an engine. Modules are added with Attach.
func newHost(opts ...Option) (*Host, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}

	h := &Host{
		cfg:      cfg,
		codec:    c,
		log:      cfg.Logger,
		registry: NewRegistry(),
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.forwarder = newForwarder(c, cfg.Logger)
	return h, nil
}

// start runs the supervision tree in the background.
func (h *Host) start() {
	h.supervisor = suture.New("we-host", suture.Spec{
		EventHook: eventHook(h.log),
	})
	h.supervisor.Add(h.forwarder)
	h.done = h.supervisor.ServeBackground(h.ctx)
}

// Config returns the host's configuration.
func (h *Host) Config() Config {
	return h.cfg
}

// Registry returns the registry of loaded instances.
func (h *Host) Registry() *Registry {
	return h.registry
}

// Load instantiates wasm, runs the handshake and registers the instance.
func (h *Host) Load(ctx context.Context, wasm []byte) (*Instance, error) {
	if h.runtime == nil {
		return nil, errors.New("host: no engine")
	}

	id := h.nextID.Add(1)
	inst := newInstance(h, id, fmt.Sprintf("instance-%d", id))
	h.modules.Store(inst.module, inst)

	cfg := wazero.NewModuleConfig().
		WithName(inst.module).
		WithStartFunctions("_initialize")

	mod, err := h.runtime.InstantiateWithConfig(ctx, wasm, cfg)
	if err != nil {
		h.modules.Delete(inst.module)
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}
	inst.bind(wrapModule(mod))

	if err := h.handshake(ctx, inst); err != nil {
		h.modules.Delete(inst.module)
		return nil, multierr.Append(err, mod.Close(ctx))
	}
	return inst, nil
}

// Attach adopts a module instantiated elsewhere, under the host's imports,
// and runs the handshake.
func (h *Host) Attach(ctx context.Context, mod Module) (*Instance, error) {
	id := h.nextID.Add(1)
	inst := newInstance(h, id, mod.Name())
	inst.bind(mod)

	if _, loaded := h.modules.LoadOrStore(inst.module, inst); loaded {
		return nil, fmt.Errorf("host: module %q already attached", inst.module)
	}

	if err := h.handshake(ctx, inst); err != nil {
		h.modules.Delete(inst.module)
		return nil, err
	}
	return inst, nil
}

// handshake assigns the instance id, optionally reads it back, resolves the
// name and registers the instance.
func (h *Host) handshake(ctx context.Context, inst *Instance) error {
	if err := inst.token.Acquire(ctx, 1); err != nil {
		return err
	}
	defer inst.token.Release(1)

	res, err := inst.call(ctx, abi.ExportSetInstanceID, uint64(inst.id))
	if err != nil {
		return &HandshakeError{ID: inst.id, Reason: "set_instance_id", Err: err}
	}
	if len(res) == 0 || uint32(res[0]) != 1 {
		return &HandshakeError{ID: inst.id, Reason: "instance id rejected"}
	}

	if h.cfg.VerifyHandshake {
		res, err := inst.call(ctx, abi.ExportGetInstanceID)
		if err != nil {
			return &HandshakeError{ID: inst.id, Reason: "get_instance_id", Err: err}
		}
		if len(res) == 0 || res[0] != inst.id {
			return &HandshakeError{ID: inst.id, Reason: "instance id mismatch"}
		}
	}

	name, named := inst.Name()
	if err := h.registry.Insert(inst); err != nil {
		return err
	}
	inst.ready.Store(true)

	h.log.Info("instance loaded",
		zap.Uint64("instance", inst.id),
		zap.String("name", name),
		zap.Bool("named", named))

	// Replies to invokes made while the module initialized.
	inst.flushLocked(ctx)
	return nil
}

// Unload removes an instance and closes its module.
func (h *Host) Unload(ctx context.Context, id uint64) error {
	inst, ok := h.registry.Get(id)
	if !ok {
		return fmt.Errorf("host: no instance %d", id)
	}

	h.registry.Remove(id)
	h.modules.Delete(inst.module)
	inst.ready.Store(false)

	if err := inst.token.Acquire(ctx, 1); err != nil {
		return err
	}
	defer inst.token.Release(1)

	if mod := inst.Module(); mod != nil {
		return mod.Close(ctx)
	}
	return nil
}

// instanceFor finds the instance behind a calling module.
func (h *Host) instanceFor(caller Module) *Instance {
	v, ok := h.modules.Load(caller.Name())
	if !ok {
		panic(fmt.Errorf("%w: %q", ErrUnknownInstance, caller.Name()))
	}
	inst := v.(*Instance)
	inst.bind(caller)
	return inst
}

// background runs fn on its own goroutine, bound to the host's lifetime.
func (h *Host) background(fn func(context.Context)) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn(h.ctx)
	}()
}

// Close stops the forwarder, waits for background deliveries and closes
// the engine. Later calls return the result of the first.
func (h *Host) Close(ctx context.Context) error {
	h.closeOnce.Do(func() {
		h.closeErr = h.close(ctx)
	})
	return h.closeErr
}

func (h *Host) close(ctx context.Context) error {
	h.cancel()

	var err error
	if h.done != nil {
		if serr := <-h.done; serr != nil && !errors.Is(serr, context.Canceled) {
			err = multierr.Append(err, serr)
		}
	}
	h.wg.Wait()

	if h.runtime != nil {
		err = multierr.Append(err, h.runtime.Close(ctx))
	}
	return err
}

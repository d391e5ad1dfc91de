package rt

// Runtime is a single-threaded run queue of tasks.
type Runtime struct {
	queue    []*Task
	spinning bool
}

// New returns an empty runtime.
func New() *Runtime {
	return &Runtime{}
}

// Spawn wraps f in a task and wakes it once. If the runtime is not already
// draining, Spawn drains it before returning.
func (r *Runtime) Spawn(f Future) *Task {
	t := &Task{rt: r, future: f}
	t.waker = newTaskWaker(t)
	t.wake()
	return t
}

// Len returns the number of queued tasks.
func (r *Runtime) Len() int {
	return len(r.queue)
}

// Spinning reports whether the runtime is inside its drain loop.
func (r *Runtime) Spinning() bool {
	return r.spinning
}

func (r *Runtime) push(t *Task) {
	r.queue = append(r.queue, t)
	if !r.spinning {
		r.drain()
	}
}

// drain runs tasks until the queue is empty, including tasks queued by the
// tasks it runs.
func (r *Runtime) drain() {
	r.spinning = true
	defer func() { r.spinning = false }()

	for len(r.queue) > 0 {
		t := r.queue[0]
		r.queue[0] = nil
		r.queue = r.queue[1:]
		t.run()
	}
	r.queue = r.queue[:0]
}

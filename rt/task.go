package rt

import "github.com/wasm-everything/we/async"

// Task owns a spawned future. It is queued at most once at a time and drops
// its future the moment the future completes.
type Task struct {
	rt     *Runtime
	future Future
	waker  *taskWaker
	queued bool
	polls  int
	refs   int
}

// Done reports whether the task's future has completed.
func (t *Task) Done() bool {
	return t.future == nil
}

// Polls returns how many times the future was polled.
func (t *Task) Polls() int {
	return t.polls
}

// Refs returns the number of live waker shares pointing at the task.
func (t *Task) Refs() int {
	return t.refs
}

func (t *Task) wake() {
	if t.queued {
		return
	}
	t.queued = true
	t.rt.push(t)
}

func (t *Task) run() {
	if t.future == nil {
		return
	}
	t.queued = false
	t.polls++

	if t.future.Poll(t.waker) {
		t.future = nil
		t.waker.Drop()
	}
}

// taskWaker is one share of a task handle. Every Clone accounts one more
// share on the task and every Drop or Wake releases one.
type taskWaker struct {
	task *Task
}

func newTaskWaker(t *Task) *taskWaker {
	t.refs++
	return &taskWaker{task: t}
}

func (w *taskWaker) Wake() {
	w.task.wake()
	w.Drop()
}

func (w *taskWaker) WakeByRef() {
	w.task.wake()
}

func (w *taskWaker) Clone() async.Waker {
	return newTaskWaker(w.task)
}

func (w *taskWaker) Drop() {
	w.task.refs--
}

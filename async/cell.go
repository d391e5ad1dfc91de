package async

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrAlreadyTaken is the panic value raised when a cell is polled after
	// its value was handed out.
	ErrAlreadyTaken = errors.New("async: cell polled after its value was taken")

	// ErrAlreadySet is the panic value raised when a value is stored twice.
	ErrAlreadySet = errors.New("async: cell value set twice")
)

type state uint8

const (
	stateEmpty state = iota
	statePresent
	stateTaken
)

// Cell is a shared one-shot result cell. Any number of holders may keep a
// pointer to it; exactly one of them stores the value and exactly one poll
// receives it.
//
// A cell that nobody polls simply keeps its value until it is garbage
// collected. There is no other form of cancellation.
type Cell[T any] struct {
	mu    sync.Mutex
	waker Waker
	value T
	state state
}

// NewCell returns an empty cell.
func NewCell[T any]() *Cell[T] {
	return &Cell[T]{}
}

// Resolved returns a cell that already holds v.
func Resolved[T any](v T) *Cell[T] {
	return &Cell[T]{value: v, state: statePresent}
}

// Poll returns the stored value and true the first time a value is present.
// When no value is present it keeps a clone of w, dropping any previously
// registered waker, and returns false. A nil w behaves as NoopWaker. Polling
// again after the value was returned panics with ErrAlreadyTaken.
func (c *Cell[T]) Poll(w Waker) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case statePresent:
		v := c.value
		var zero T
		c.value = zero
		c.state = stateTaken
		return v, true
	case stateTaken:
		panic(ErrAlreadyTaken)
	}

	if c.waker != nil {
		c.waker.Drop()
	}
	if w == nil {
		w = NoopWaker
	}
	c.waker = w.Clone()

	var zero T
	return zero, false
}

// Set stores v and then wakes the registered waker, if any. The waker runs
// after the lock is released so that it observes the value. Calling Set a
// second time panics with ErrAlreadySet.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	if c.state != stateEmpty {
		c.mu.Unlock()
		panic(ErrAlreadySet)
	}
	c.value = v
	c.state = statePresent
	w := c.waker
	c.waker = nil
	c.mu.Unlock()

	if w != nil {
		w.Wake()
	}
}

// Ready reports whether a value is stored and not yet taken.
func (c *Cell[T]) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == statePresent
}

// Await blocks the calling goroutine until the value arrives or ctx is done.
// Returning early on ctx abandons interest in the value; a later Set is still
// legal and the value is discarded with the cell.
func (c *Cell[T]) Await(ctx context.Context) (T, error) {
	w := newChanWaker()
	for {
		if v, ok := c.Poll(w); ok {
			return v, nil
		}

		select {
		case <-w.ch:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

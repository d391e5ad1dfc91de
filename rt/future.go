package rt

import "github.com/wasm-everything/we/async"

// Future is a unit of work driven to completion by repeated polling. Poll
// reports true once the work is done; until then it must arrange for w to be
// woken when progress is possible.
type Future interface {
	Poll(w async.Waker) bool
}

// FutureFunc adapts a function to the Future interface.
type FutureFunc func(w async.Waker) bool

// Poll calls f(w).
func (f FutureFunc) Poll(w async.Waker) bool { return f(w) }

// Pollable yields a value of type T once ready. *async.Cell satisfies it.
type Pollable[T any] interface {
	Poll(w async.Waker) (T, bool)
}

// Ready returns a future that completes on its first poll.
func Ready() Future {
	return FutureFunc(func(async.Waker) bool { return true })
}

// Await completes once p yields, after passing the value to then.
func Await[T any](p Pollable[T], then func(T)) Future {
	return FutureFunc(func(w async.Waker) bool {
		v, ok := p.Poll(w)
		if !ok {
			return false
		}
		then(v)
		return true
	})
}

// Then waits for p and continues with the future returned by next.
func Then[T any](p Pollable[T], next func(T) Future) Future {
	var cont Future
	return FutureFunc(func(w async.Waker) bool {
		if cont == nil {
			v, ok := p.Poll(w)
			if !ok {
				return false
			}
			cont = next(v)
		}
		return cont.Poll(w)
	})
}

// Sequence runs fs one after another.
func Sequence(fs ...Future) Future {
	i := 0
	return FutureFunc(func(w async.Waker) bool {
		for i < len(fs) {
			if !fs[i].Poll(w) {
				return false
			}
			i++
		}
		return true
	})
}

package async

// Waker resumes the consumer of a pending value.
//
// Clone shares the waker and Drop releases one share. Wake consumes the
// receiver's share; WakeByRef leaves it intact. Both must be safe to call from
// within the very poll they wake.
type Waker interface {
	Wake()
	WakeByRef()
	Clone() Waker
	Drop()
}

// WakerFunc adapts a plain function to the Waker interface. Clone and Drop
// are no-ops.
type WakerFunc func()

func (f WakerFunc) Wake()        { f() }
func (f WakerFunc) WakeByRef()   { f() }
func (f WakerFunc) Clone() Waker { return f }
func (f WakerFunc) Drop()        {}

// NoopWaker never resumes anything. Useful for polling a cell once.
var NoopWaker Waker = WakerFunc(func() {})

// chanWaker signals a buffered channel. Extra wakes are coalesced.
type chanWaker struct {
	ch chan struct{}
}

func newChanWaker() *chanWaker {
	return &chanWaker{ch: make(chan struct{}, 1)}
}

func (w *chanWaker) Wake() { w.WakeByRef() }

func (w *chanWaker) WakeByRef() {
	select {
	case w.ch <- struct{}{}:
	default:
	}
}

func (w *chanWaker) Clone() Waker { return w }
func (w *chanWaker) Drop()        {}

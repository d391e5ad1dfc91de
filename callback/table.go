package callback

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotRegistered is the panic value raised when a registration is
	// invoked twice or was never issued by the table.
	ErrNotRegistered = errors.New("callback: registration not found or already invoked")

	// ErrKindMismatch is the panic value raised when the Kind carried across
	// the boundary does not match the shape the closure was registered with.
	ErrKindMismatch = errors.New("callback: registration kind mismatch")
)

// Kind selects the trampoline shape.
type Kind uint32

const (
	// KindBorrowed closures borrow the payload for the duration of the call.
	KindBorrowed Kind = 1
	// KindOwned closures take ownership of a *Buffer.
	KindOwned Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindBorrowed:
		return "borrowed"
	case KindOwned:
		return "owned"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Registration is the function-pointer/opaque-pointer pair handed across the
// boundary. The zero value is never issued.
type Registration struct {
	Kind Kind
	Data uint32
}

// IsZero reports whether r is the zero registration.
func (r Registration) IsZero() bool {
	return r.Kind == 0 && r.Data == 0
}

type slot struct {
	borrowed func([]byte)
	owned    func(*Buffer)
	kind     Kind
}

// Table parks closures until their single invocation. It is safe for
// concurrent use.
type Table struct {
	mu    sync.Mutex
	slots map[uint32]slot
	next  uint32
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{slots: make(map[uint32]slot)}
}

// Borrowed registers f as a same-address-space closure.
func (t *Table) Borrowed(f func([]byte)) Registration {
	return t.register(slot{kind: KindBorrowed, borrowed: f})
}

// Owned registers f as a cross-address-space closure.
func (t *Table) Owned(f func(*Buffer)) Registration {
	return t.register(slot{kind: KindOwned, owned: f})
}

func (t *Table) register(s slot) Registration {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Handles start at 1 and skip live entries on wrap-around.
	for {
		t.next++
		if t.next == 0 {
			continue
		}
		if _, live := t.slots[t.next]; !live {
			break
		}
	}
	t.slots[t.next] = s
	return Registration{Kind: s.kind, Data: t.next}
}

// Call runs the closure named by r exactly once and forgets it.
//
// A borrowed closure receives view. An owned closure receives the buffer
// returned by adopt; adopt is not called for borrowed closures, so the shim
// only transfers ownership when the closure expects it. Invoking r twice,
// invoking an unknown r or a Kind that does not match the registration panics.
func (t *Table) Call(r Registration, view []byte, adopt func() *Buffer) {
	s := t.take(r)

	switch s.kind {
	case KindBorrowed:
		s.borrowed(view)
	case KindOwned:
		buf := emptyBuffer()
		if adopt != nil {
			buf = adopt()
		}
		s.owned(buf)
	}
}

// Cancel forgets r without running it. It reports whether r was live.
func (t *Table) Cancel(r Registration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.slots[r.Data]; !ok {
		return false
	}
	delete(t.slots, r.Data)
	return true
}

// Len returns the number of registrations awaiting their invocation.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

func (t *Table) take(r Registration) slot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[r.Data]
	if !ok {
		panic(ErrNotRegistered)
	}
	if s.kind != r.Kind {
		panic(ErrKindMismatch)
	}
	delete(t.slots, r.Data)
	return s
}

package callback

import "errors"

// ErrReleased is the panic value raised when a buffer is released twice.
var ErrReleased = errors.New("callback: buffer released twice")

// Buffer is a byte buffer whose memory belongs to the allocator that
// produced it. Whoever holds the Buffer must call Release exactly once.
type Buffer struct {
	data     []byte
	release  func()
	released bool
}

// NewBuffer wraps data. release returns the memory to its producer and must
// free exactly len(data) bytes, the size the producer allocated. A nil
// release is allowed for memory owned by the garbage collector.
func NewBuffer(data []byte, release func()) *Buffer {
	return &Buffer{data: data, release: release}
}

func emptyBuffer() *Buffer {
	return &Buffer{}
}

// Bytes returns the buffer contents. The slice must not be used after
// Release.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the payload length.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Release hands the memory back to its producer. Releasing twice panics
// with ErrReleased.
func (b *Buffer) Release() {
	if b.released {
		panic(ErrReleased)
	}
	b.released = true

	if b.release != nil {
		b.release()
	}
	b.data = nil
}

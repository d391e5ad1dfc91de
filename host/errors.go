package host

import (
	"errors"
	"fmt"

	"github.com/wasm-everything/we/wire"
)

var (
	// ErrInvalidUTF8 is returned when a checked string read finds bytes
	// that are not valid UTF-8.
	ErrInvalidUTF8 = errors.New("host: string is not valid UTF-8")

	// ErrReplied is the panic value raised when a Replier is used twice.
	ErrReplied = errors.New("host: reply already sent")

	// ErrNoMemory is returned for a module without an exported memory.
	ErrNoMemory = errors.New("host: module exports no memory")

	// ErrUnknownInstance is raised when an import is called by a module the
	// host never loaded.
	ErrUnknownInstance = errors.New("host: call from unknown instance")
)

// MemoryError reports an access outside a guest's linear memory.
type MemoryError struct {
	Op     string
	Offset uint32
	Length uint32
	Size   uint32
}

func (e *MemoryError) Error() string {
	return fmt.Sprintf("host: %s of %d bytes at 0x%x out of bounds (memory size %d)", e.Op, e.Length, e.Offset, e.Size)
}

// ToErrorDetail implements wire.DetailedError.
func (e *MemoryError) ToErrorDetail() *wire.ErrorDetail {
	return &wire.ErrorDetail{Message: e.Error(), Type: wire.TypeValidation, Code: "memory"}
}

// MissingExportError reports a guest export the host needs but cannot find.
type MissingExportError struct {
	Name string
}

func (e *MissingExportError) Error() string {
	return fmt.Sprintf("host: guest does not export %q", e.Name)
}

// HandshakeError reports a guest that failed the load handshake.
type HandshakeError struct {
	Err    error
	Reason string
	ID     uint64
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("host: handshake with instance %d failed: %s: %v", e.ID, e.Reason, e.Err)
	}
	return fmt.Sprintf("host: handshake with instance %d failed: %s", e.ID, e.Reason)
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// RequestTooLargeError reports invoke arguments above the configured limit.
type RequestTooLargeError struct {
	Size  uint32
	Limit uint32
}

func (e *RequestTooLargeError) Error() string {
	return fmt.Sprintf("request size %d exceeds maximum %d bytes", e.Size, e.Limit)
}

// ToErrorDetail implements wire.DetailedError.
func (e *RequestTooLargeError) ToErrorDetail() *wire.ErrorDetail {
	return &wire.ErrorDetail{Message: e.Error(), Type: wire.TypeValidation, Code: "size"}
}

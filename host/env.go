package host

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wasm-everything/we/internal/abi"
)

func (i *Instance) memory() (Memory, error) {
	mod := i.Module()
	if mod == nil {
		return nil, ErrNoMemory
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, ErrNoMemory
	}
	return mem, nil
}

// View returns the n bytes at off without copying. The view aliases guest
// memory and is only valid until the guest runs again. A zero-length view is
// nil and off is never checked: empty payloads may carry any pointer.
func (i *Instance) View(off, n uint32) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	mem, err := i.memory()
	if err != nil {
		return nil, err
	}
	data, ok := mem.Read(off, n)
	if !ok {
		return nil, &MemoryError{Op: "read", Offset: off, Length: n, Size: mem.Size()}
	}
	return data, nil
}

// ReadBytes copies the n bytes at off.
func (i *Instance) ReadBytes(off, n uint32) ([]byte, error) {
	view, err := i.View(off, n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(view), nil
}

// ReadString reads n bytes at off as a string and rejects invalid UTF-8.
func (i *Instance) ReadString(off, n uint32) (string, error) {
	view, err := i.View(off, n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(view) {
		return "", fmt.Errorf("%w: %d bytes at 0x%x", ErrInvalidUTF8, n, off)
	}
	return string(view), nil
}

// ReadStringUnchecked reads n bytes at off as a string without validating
// the encoding. It is for strings the guest runtime produced itself.
func (i *Instance) ReadStringUnchecked(off, n uint32) (string, error) {
	view, err := i.View(off, n)
	if err != nil {
		return "", err
	}
	return string(view), nil
}

// Allocate reserves size bytes in the guest through its allocator export.
func (i *Instance) Allocate(ctx context.Context, size uint32) (uint32, error) {
	res, err := i.call(ctx, abi.ExportMalloc, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %d bytes in guest: %w", size, err)
	}
	if len(res) == 0 {
		return 0, fmt.Errorf("%s returned no results", abi.ExportMalloc)
	}
	return uint32(res[0]), nil //nolint:gosec // G115: wasm32 addresses are 32 bits
}

// Free returns memory to the guest allocator. A zero size is never passed
// to the guest.
func (i *Instance) Free(ctx context.Context, addr, size uint32) error {
	if size == 0 {
		return nil
	}
	if _, err := i.call(ctx, abi.ExportFree, uint64(addr), uint64(size)); err != nil {
		return fmt.Errorf("failed to free %d bytes at 0x%x in guest: %w", size, addr, err)
	}
	return nil
}

// WriteResult allocates guest memory for data, copies it in and returns the
// address. Ownership of the memory passes to the guest.
func (i *Instance) WriteResult(ctx context.Context, data []byte) (uint32, error) {
	mem, err := i.memory()
	if err != nil {
		return 0, err
	}

	n := uint32(len(data)) //nolint:gosec // G115: bounded by guest memory size
	addr, err := i.Allocate(ctx, n)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return addr, nil
	}
	if !mem.Write(addr, data) {
		return 0, &MemoryError{Op: "write", Offset: addr, Length: n, Size: mem.Size()}
	}
	return addr, nil
}

// WriteUint32 stores v little-endian at addr.
func (i *Instance) WriteUint32(addr, v uint32) error {
	mem, err := i.memory()
	if err != nil {
		return err
	}
	if !mem.WriteUint32Le(addr, v) {
		return &MemoryError{Op: "write", Offset: addr, Length: 4, Size: mem.Size()}
	}
	return nil
}

// Name returns the name the guest publishes through its NAME export. It is
// resolved on first use; both the name and a failure to find one are
// remembered.
func (i *Instance) Name() (string, bool) {
	i.nameOnce.Do(func() {
		name, err := i.resolveName(context.Background())
		if err != nil {
			i.log.Debug("guest name unavailable", zap.Error(err))
			return
		}
		i.name, i.named = name, true
	})
	return i.name, i.named
}

// resolveName follows NAME to a pointer cell and from there to a
// NUL-terminated UTF-8 string.
func (i *Instance) resolveName(ctx context.Context) (string, error) {
	mod := i.Module()
	if mod == nil {
		return "", ErrNoMemory
	}
	mem, err := i.memory()
	if err != nil {
		return "", err
	}

	var cell uint32
	switch {
	case mod.ExportedGlobal(abi.ExportName) != nil:
		cell = uint32(mod.ExportedGlobal(abi.ExportName).Get()) //nolint:gosec // G115: wasm32 address
	case mod.ExportedFunction(abi.ExportName) != nil:
		res, err := mod.ExportedFunction(abi.ExportName).Call(ctx)
		if err != nil {
			return "", err
		}
		if len(res) == 0 || res[0] == 0 {
			return "", fmt.Errorf("%s is not set", abi.ExportName)
		}
		cell = uint32(res[0]) //nolint:gosec // G115: wasm32 address
	default:
		return "", &MissingExportError{Name: abi.ExportName}
	}

	ptr, ok := mem.ReadUint32Le(cell)
	if !ok {
		return "", &MemoryError{Op: "read", Offset: cell, Length: 4, Size: mem.Size()}
	}
	return readCString(mem, ptr)
}

// readCString reads bytes from ptr up to the first NUL, never past the end
// of memory.
func readCString(mem Memory, ptr uint32) (string, error) {
	size := mem.Size()
	var buf []byte
	for off := ptr; off < size; off++ {
		b, ok := mem.Read(off, 1)
		if !ok {
			return "", &MemoryError{Op: "read", Offset: off, Length: 1, Size: size}
		}
		if b[0] == 0 {
			if !utf8.Valid(buf) {
				return "", ErrInvalidUTF8
			}
			return string(buf), nil
		}
		buf = append(buf, b[0])
	}
	return "", &MemoryError{Op: "read", Offset: ptr, Length: size - ptr, Size: size}
}

package host

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// Module is the engine's view of one instantiated guest.
type Module interface {
	Name() string
	Memory() Memory
	ExportedFunction(name string) Function
	ExportedGlobal(name string) Global
	Close(ctx context.Context) error
}

// Memory is a guest's linear memory. Offsets are guest addresses.
type Memory interface {
	Size() uint32
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
	ReadUint32Le(offset uint32) (uint32, bool)
	WriteUint32Le(offset, v uint32) bool
}

// Function is an exported guest function.
type Function interface {
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// Global is an exported guest global.
type Global interface {
	Get() uint64
}

// wazeroModule adapts api.Module. Missing exports come back as untyped nil
// so callers can compare against nil.
type wazeroModule struct {
	mod api.Module
}

func wrapModule(mod api.Module) Module {
	return wazeroModule{mod: mod}
}

func (m wazeroModule) Name() string {
	return m.mod.Name()
}

func (m wazeroModule) Memory() Memory {
	mem := m.mod.Memory()
	if mem == nil {
		return nil
	}
	return mem
}

func (m wazeroModule) ExportedFunction(name string) Function {
	f := m.mod.ExportedFunction(name)
	if f == nil {
		return nil
	}
	return f
}

func (m wazeroModule) ExportedGlobal(name string) Global {
	g := m.mod.ExportedGlobal(name)
	if g == nil {
		return nil
	}
	return g
}

func (m wazeroModule) Close(ctx context.Context) error {
	return m.mod.Close(ctx)
}

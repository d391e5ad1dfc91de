package guest

import "encoding/binary"

// SetInstanceID records the id the host assigned. Only the first call takes
// effect; it reports whether this call was it.
func (e *Env) SetInstanceID(id uint64) bool {
	if !e.idSet.CompareAndSwap(false, true) {
		return false
	}
	e.id.Store(id)
	return true
}

// InstanceID returns the host-assigned id, if the handshake happened.
func (e *Env) InstanceID() (uint64, bool) {
	if !e.idSet.Load() {
		return 0, false
	}
	return e.id.Load(), true
}

// SetName publishes the module name. The host reads it through the NAME
// export: the address of a little-endian u32 holding the address of the
// NUL-terminated name.
func (e *Env) SetName(name string) {
	e.nameMu.Lock()
	defer e.nameMu.Unlock()

	if e.nameCell == 0 {
		e.nameCell = e.memory.Alloc(4)
	}
	if e.nameStr != 0 {
		e.memory.Free(e.nameStr, e.nameLen)
	}

	e.nameLen = uint32(len(name)) + 1
	e.nameStr = e.memory.Alloc(e.nameLen)
	str := e.memory.Bytes(e.nameStr, e.nameLen)
	copy(str, name)
	str[len(name)] = 0

	binary.LittleEndian.PutUint32(e.memory.Bytes(e.nameCell, 4), e.nameStr)
	e.name = name
}

// Name returns the published name.
func (e *Env) Name() string {
	e.nameMu.Lock()
	defer e.nameMu.Unlock()
	return e.name
}

// NameAddr returns the address behind the NAME export, or 0 when no name was
// published.
func (e *Env) NameAddr() uint32 {
	e.nameMu.Lock()
	defer e.nameMu.Unlock()
	return e.nameCell
}

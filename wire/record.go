package wire

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// LogRecord is one log event shipped from a guest to its host.
type LogRecord struct {
	Level      Level   `json:"level"`
	Target     string  `json:"target"`
	Message    string  `json:"message"`
	ModulePath *string `json:"module_path,omitempty"`
	File       *string `json:"file,omitempty"`
	Line       *uint32 `json:"line,omitempty"`
}

// Some returns a pointer to v, for filling optional fields.
func Some[T any](v T) *T {
	return &v
}

// Location renders "module_path:line", with ??? and ?? standing in for
// missing parts.
func (r LogRecord) Location() string {
	module := "???"
	if r.ModulePath != nil {
		module = *r.ModulePath
	}
	line := "??"
	if r.Line != nil {
		line = fmt.Sprint(*r.Line)
	}
	return module + ":" + line
}

const (
	hasModulePath uint8 = 1 << iota
	hasFile
	hasLine
)

// gobRecord is the gob form of LogRecord. gob drops zero values, so a
// pointer to "" or 0 would otherwise decode as absent.
type gobRecord struct {
	Level      uint8
	Target     string
	Message    string
	ModulePath string
	File       string
	Line       uint32
	Present    uint8
}

// GobEncode implements gob.GobEncoder.
func (r LogRecord) GobEncode() ([]byte, error) {
	g := gobRecord{
		Level:   uint8(r.Level),
		Target:  r.Target,
		Message: r.Message,
	}
	if r.ModulePath != nil {
		g.ModulePath = *r.ModulePath
		g.Present |= hasModulePath
	}
	if r.File != nil {
		g.File = *r.File
		g.Present |= hasFile
	}
	if r.Line != nil {
		g.Line = *r.Line
		g.Present |= hasLine
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (r *LogRecord) GobDecode(data []byte) error {
	var g gobRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return err
	}

	*r = LogRecord{
		Level:   Level(g.Level),
		Target:  g.Target,
		Message: g.Message,
	}
	if g.Present&hasModulePath != 0 {
		r.ModulePath = Some(g.ModulePath)
	}
	if g.Present&hasFile != 0 {
		r.File = Some(g.File)
	}
	if g.Present&hasLine != 0 {
		r.Line = Some(g.Line)
	}
	return nil
}

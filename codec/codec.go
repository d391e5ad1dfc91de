// Package codec defines how values are serialized for the trip across the
// module boundary. Both sides of a boundary must be configured with the same
// codec; the wire bytes carry no tag identifying the format.
package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"sort"
)

// Codec encodes and decodes values crossing the boundary.
type Codec interface {
	// Name is the identifier used in configuration.
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON is the default codec.
var JSON Codec = jsonCodec{}

// Gob encodes values with encoding/gob. Every message is a self-contained
// gob stream, so no type state is shared between messages.
var Gob Codec = gobCodec{}

// Default is the codec used when none is configured.
var Default = JSON

var byName = map[string]Codec{
	JSON.Name(): JSON,
	Gob.Name():  Gob,
}

// ByName looks up a codec by its configuration name.
func ByName(name string) (Codec, error) {
	c, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("codec: unknown codec %q (known: %v)", name, Names())
	}
	return c, nil
}

// Names lists the registered codec names in sorted order.
func Names() []string {
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

type gobCodec struct{}

func (gobCodec) Name() string { return "gob" }

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

package wire

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
)

// schemaTypes lists the boundary types published as JSON schemas, for guest
// authors working outside Go with the json codec.
var schemaTypes = map[string]any{
	"log_record":   &LogRecord{},
	"error_detail": &ErrorDetail{},
	"result":       &Result[json.RawMessage]{},
	"call":         &Call{},
}

// SchemaNames lists the names accepted by Schema, sorted.
func SchemaNames() []string {
	names := make([]string, 0, len(schemaTypes))
	for n := range schemaTypes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Schema returns the indented JSON schema of the named boundary type.
func Schema(name string) ([]byte, error) {
	v, ok := schemaTypes[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}

	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	s := reflector.Reflect(v)

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}

// Package schema wraps JSON Schema compilation and validation behind a
// small capability type so callers never depend on the validation
// library directly.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled, reusable validator for one JSON Schema document.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

var compileCache sync.Map

// Compile compiles a raw JSON Schema document. Compiled schemas are
// cached by their source text, so repeated registration of the same
// schema is cheap.
func Compile(name string, raw json.RawMessage) (*Schema, error) {
	if len(raw) == 0 {
		return nil, errors.New("schema is empty")
	}

	key := string(raw)
	if cached, ok := compileCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return &Schema{name: name, compiled: compiled}, nil
		}
	}

	compiled, err := jsonschema.CompileString(name+".schema.json", key)
	if err != nil {
		return nil, fmt.Errorf("compile schema %q: %w", name, err)
	}
	compileCache.Store(key, compiled)
	return &Schema{name: name, compiled: compiled}, nil
}

// Validate checks an already-decoded value against the schema.
func (s *Schema) Validate(value any) error {
	if err := s.compiled.Validate(value); err != nil {
		return fmt.Errorf("%s invalid: %w", s.name, err)
	}
	return nil
}

// ValidateJSON decodes raw JSON and validates it against the schema.
func (s *Schema) ValidateJSON(raw json.RawMessage) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode %s payload: %w", s.name, err)
	}
	return s.Validate(decoded)
}

// Diagnostics flattens a validation error into human-readable lines
// suitable for error detail payloads. Non-schema errors produce a
// single line.
func Diagnostics(err error) []string {
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		flat := ve.BasicOutput()
		lines := make([]string, 0, len(flat.Errors))
		for _, unit := range flat.Errors {
			if unit.Error == "" {
				continue
			}
			loc := unit.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			lines = append(lines, loc+": "+unit.Error)
		}
		if len(lines) > 0 {
			return lines
		}
	}
	return []string{err.Error()}
}

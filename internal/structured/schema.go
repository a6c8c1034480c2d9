package structured

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	ClassificationSchema = "classification"
	SummarySchema        = "summary"
	OutputSchema         = "output"
)

type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// LoadSchema compiles one of the embedded schemas by name.
func LoadSchema(name string) (*Schema, error) {
	data, err := schemaFS.ReadFile("schemas/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("unknown schema %q: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	resource := name + ".json"
	if err := compiler.AddResource(resource, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile(resource)
	if err != nil {
		return nil, err
	}
	return &Schema{name: name, compiled: compiled}, nil
}

// MustLoadSchema is LoadSchema for the embedded schemas, which are known to compile.
func MustLoadSchema(name string) *Schema {
	s, err := LoadSchema(name)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string {
	return s.name
}

// Validate returns the violations of data, or nil when it conforms.
func (s *Schema) Validate(data map[string]any) []string {
	if err := s.compiled.Validate(data); err != nil {
		return []string{err.Error()}
	}
	return nil
}

// ValidateValue marshals v and validates its JSON form.
func (s *Schema) ValidateValue(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	return s.compiled.Validate(decoded)
}

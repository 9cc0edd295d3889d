package suites

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"bathygrade/internal/grading"
)

const schemaURL = "https://bathygrade.dev/schemas/suite-v1.json"

// JSONSchemaExtend restricts the enumerated check fields.
func (CheckSpec) JSONSchemaExtend(s *jsonschema.Schema) {
	enum := func(prop string, values []string) {
		p, ok := s.Properties.Get(prop)
		if !ok {
			return
		}
		for _, v := range values {
			if v != "" {
				p.Enum = append(p.Enum, v)
			}
		}
	}
	enum("type", grading.KnownTypes())
	enum("preset", presets)
	enum("scope", scopes)
}

// GenerateJSONSchema produces the JSON Schema (Draft 2020-12) for suite
// manifests.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&Suite{})
	s.ID = schemaURL
	s.Title = "bathygrade suite"
	s.Description = "Schema for bathygrade suite manifests (suite.yaml)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal suite schema: %w", err)
	}
	return data, nil
}

var (
	compileOnce sync.Once
	compiled    *sjsonschema.Schema
	compileErr  error
)

func compiledSchema() (*sjsonschema.Schema, error) {
	compileOnce.Do(func() {
		raw, err := GenerateJSONSchema()
		if err != nil {
			compileErr = err
			return
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			compileErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := sjsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

// Problem is one schema violation.
type Problem struct {
	Path    string
	Message string
}

func (p Problem) String() string {
	if p.Path == "" {
		return p.Message
	}
	return p.Path + ": " + p.Message
}

// ValidateSchema checks s against the generated schema.
func ValidateSchema(s Suite) []Problem {
	sch, err := compiledSchema()
	if err != nil {
		return []Problem{{Message: err.Error()}}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return []Problem{{Message: fmt.Sprintf("marshal for schema validation: %v", err)}}
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []Problem{{Message: fmt.Sprintf("unmarshal document: %v", err)}}
	}
	err = sch.Validate(doc)
	if err == nil {
		return nil
	}
	ve, ok := err.(*sjsonschema.ValidationError)
	if !ok {
		return []Problem{{Message: err.Error()}}
	}
	var out []Problem
	for _, cause := range flatten(ve) {
		out = append(out, Problem{
			Path:    strings.Join(cause.InstanceLocation, "/"),
			Message: fmt.Sprintf("%v", cause.ErrorKind),
		})
	}
	return out
}

func flatten(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flatten(cause)...)
	}
	return flat
}

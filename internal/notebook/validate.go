package notebook

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	version "github.com/hashicorp/go-version"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tidwall/gjson"
)

//go:embed schema/nbformat.v4.json
var nbformatSchema []byte

const schemaURL = "nbformat.v4.json"

// MinFormat is the oldest nbformat version the grader reads.
const MinFormat = ">= 4.0"

var (
	compileOnce sync.Once
	compiled    *sjsonschema.Schema
	compileErr  error
)

func schema() (*sjsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(nbformatSchema))
		if err != nil {
			compileErr = fmt.Errorf("load nbformat schema: %w", err)
			return
		}
		c := sjsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add nbformat schema: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
	})
	return compiled, compileErr
}

// Problem is a single schema violation.
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

// ValidateBytes checks raw notebook JSON against the nbformat v4 schema.
func ValidateBytes(raw []byte) ([]Problem, error) {
	sch, err := schema()
	if err != nil {
		return nil, err
	}
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return []Problem{{Message: "invalid JSON: " + err.Error()}}, nil
	}
	err = sch.Validate(doc)
	if err == nil {
		return nil, nil
	}
	var ve *sjsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Problem{{Message: err.Error()}}, nil
	}
	var out []Problem
	for _, cause := range flatten(ve) {
		out = append(out, Problem{
			Path:    strings.Join(cause.InstanceLocation, "/"),
			Message: fmt.Sprintf("%v", cause.ErrorKind),
		})
	}
	return out, nil
}

func (nb *Notebook) Validate() ([]Problem, error) {
	b, err := json.Marshal(nb)
	if err != nil {
		return nil, err
	}
	return ValidateBytes(b)
}

func flatten(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var out []*sjsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, flatten(c)...)
	}
	return out
}

// RequireVersion reports an error unless the notebook's nbformat version
// satisfies constraint (for example ">= 4.0").
func (nb *Notebook) RequireVersion(constraint string) error {
	c, err := version.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("bad version constraint %q: %w", constraint, err)
	}
	v, err := version.NewVersion(fmt.Sprintf("%d.%d", nb.NBFormat, nb.NBFormatMinor))
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("nbformat %s does not satisfy %s", v, constraint)
	}
	return nil
}

// RawCell is a cell read straight from notebook JSON without decoding the
// whole document.
type RawCell struct {
	Number   int
	CellType string
	Source   string
}

// ScanCells lists the cells of raw notebook JSON. Source arrays are joined.
func ScanCells(raw []byte) ([]RawCell, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("notebook is not valid JSON")
	}
	cells := gjson.GetBytes(raw, "cells")
	if !cells.IsArray() {
		return nil, errors.New("notebook has no cells array")
	}
	var out []RawCell
	n := 0
	cells.ForEach(func(_, cell gjson.Result) bool {
		n++
		src := cell.Get("source")
		var text string
		if src.IsArray() {
			var b strings.Builder
			for _, part := range src.Array() {
				b.WriteString(part.String())
			}
			text = b.String()
		} else {
			text = src.String()
		}
		out = append(out, RawCell{Number: n, CellType: cell.Get("cell_type").String(), Source: text})
		return true
	})
	return out, nil
}

package suites

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bathygrade/internal/grading"
	"bathygrade/internal/sandbox"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// BuiltinName selects the embedded suite.
const BuiltinName = "builtin"

// Builtin returns the embedded bathymetry suite.
func Builtin() (Suite, error) {
	b, err := builtinFS.ReadFile("builtin/bathymetry.yaml")
	if err != nil {
		return Suite{}, err
	}
	s, err := Parse(b, "builtin/bathymetry.yaml")
	if err != nil {
		return Suite{}, err
	}
	s.Path = BuiltinName
	return s, nil
}

// Resolve loads ref: the embedded suite for "" or "builtin", a file path
// otherwise.
func Resolve(ref string) (Suite, error) {
	if ref == "" || ref == BuiltinName {
		return Builtin()
	}
	return Load(ref)
}

func Load(path string) (Suite, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Suite{}, err
	}
	s, err := Parse(b, path)
	if err != nil {
		return Suite{}, err
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	s.Path = path
	return s, nil
}

// Parse decodes a suite strictly, rejecting unknown fields, then checks it
// against the generated JSON Schema and the structural rules in Validate.
func Parse(b []byte, name string) (Suite, error) {
	var s Suite
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return s, fmt.Errorf("parse %s: empty document", name)
		}
		return s, fmt.Errorf("parse %s: %w", name, err)
	}
	if problems := ValidateSchema(s); len(problems) > 0 {
		msgs := make([]string, len(problems))
		for i, p := range problems {
			msgs[i] = p.String()
		}
		return s, fmt.Errorf("validate %s: %s", name, strings.Join(msgs, "; "))
	}
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("validate %s: %w", name, err)
	}
	applyDefaults(&s)
	return s, nil
}

func applyDefaults(s *Suite) {
	s.Layout = s.Layout.WithDefaults()
	if s.Execution.TimeoutSeconds <= 0 {
		s.Execution.TimeoutSeconds = int(sandbox.DefaultTimeout / time.Second)
	}
	if s.Execution.Kernel == "" {
		s.Execution.Kernel = sandbox.DefaultKernelName
	}
	if s.Sandbox.Network == "" {
		s.Sandbox.Network = "none"
	}
	if s.Sandbox.CPU <= 0 {
		s.Sandbox.CPU = 1.0
	}
	if s.Sandbox.MemoryMB <= 0 {
		s.Sandbox.MemoryMB = 2048
	}
	if s.Sandbox.PidsLimit <= 0 {
		s.Sandbox.PidsLimit = 256
	}
	if len(s.Sandbox.Tmpfs) == 0 {
		s.Sandbox.Tmpfs = []TmpfsSpec{{Mount: "/tmp", Options: "rw,nosuid,size=256m"}}
	}
	if s.Sandbox.ReadOnlyRoot == nil {
		v := true
		s.Sandbox.ReadOnlyRoot = &v
	}
	for i := range s.Checks {
		if s.Checks[i].Required == nil {
			v := true
			s.Checks[i].Required = &v
		}
	}
}

func (s Suite) Timeout() time.Duration {
	return time.Duration(s.Execution.TimeoutSeconds) * time.Second
}

// Container converts the sandbox section for the container kernels.
func (s Suite) Container(image string) sandbox.ContainerSpec {
	spec := sandbox.ContainerSpec{
		Image:     image,
		Network:   s.Sandbox.Network,
		CPU:       s.Sandbox.CPU,
		MemoryMB:  s.Sandbox.MemoryMB,
		PidsLimit: s.Sandbox.PidsLimit,
	}
	if spec.Image == "" {
		spec.Image = s.Sandbox.Image
	}
	if s.Sandbox.ReadOnlyRoot != nil {
		spec.ReadOnlyRoot = *s.Sandbox.ReadOnlyRoot
	}
	for _, t := range s.Sandbox.Tmpfs {
		spec.Tmpfs = append(spec.Tmpfs, sandbox.TmpfsMount{Mount: t.Mount, Options: t.Options})
	}
	return spec
}

// GradingChecks converts the manifest checks for the grader.
func (s Suite) GradingChecks() []grading.CheckSpec {
	out := make([]grading.CheckSpec, 0, len(s.Checks))
	for _, c := range s.Checks {
		gc := grading.CheckSpec{
			ID:             c.ID,
			Type:           c.Type,
			Description:    c.Description,
			Required:       c.Required == nil || *c.Required,
			Points:         c.Points,
			OnFailMessage:  c.OnFailMessage,
			OnPassMessage:  c.OnPassMessage,
			SkipIfMissing:  c.SkipIfMissing,
			Path:           c.Path,
			Files:          c.Files,
			Coords:         c.Coords,
			Vars:           c.Vars,
			MinAxis:        c.MinAxis,
			Expr:           c.Expr,
			Locations:      c.Locations,
			Preset:         c.Preset,
			Pattern:        c.Pattern,
			Patterns:       c.Patterns,
			Forbid:         c.Forbid,
			MinWidth:       c.MinWidth,
			MinHeight:      c.MinHeight,
			MinPixels:      c.MinPixels,
			MinBytes:       c.MinBytes,
			MaxBytes:       c.MaxBytes,
			MaxMean:        c.MaxMean,
			Scope:          c.Scope,
			Contains:       c.Contains,
			AnyOf:          c.AnyOf,
			Markers:        c.Markers,
			Placeholders:   c.Placeholders,
			CellType:       c.CellType,
			Function:       c.Function,
			DatasetVar:     c.DatasetVar,
			RequireDoc:     c.RequireDoc,
			Modules:        c.Modules,
			TimeoutSeconds: c.TimeoutSeconds,
		}
		if c.Range != nil {
			gc.Range = &grading.Range{Above: c.Range.Above, Below: c.Range.Below}
		}
		out = append(out, gc)
	}
	return out
}

// CheckIDs lists the check ids in manifest order.
func (s Suite) CheckIDs() []string {
	ids := make([]string, len(s.Checks))
	for i, c := range s.Checks {
		ids[i] = c.ID
	}
	return ids
}

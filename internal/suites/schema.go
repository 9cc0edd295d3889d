package suites

import (
	"fmt"
	"regexp"
	"slices"

	"bathygrade/internal/grading"
	"bathygrade/internal/locate"
	"bathygrade/internal/probe"
)

const (
	SuiteKind              = "suite"
	SupportedSchemaVersion = 1
)

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,63}$`)

type Suite struct {
	Kind          string        `yaml:"kind" json:"kind"`
	SchemaVersion int           `yaml:"schema_version" json:"schema_version"`
	SuiteID       string        `yaml:"suite_id" json:"suite_id"`
	Name          string        `yaml:"name" json:"name"`
	Version       string        `yaml:"version" json:"version"`
	DescriptionMD string        `yaml:"description_md,omitempty" json:"description_md,omitempty"`
	Layout        locate.Layout `yaml:"layout,omitempty" json:"layout,omitempty"`
	Execution     ExecutionSpec `yaml:"execution,omitempty" json:"execution,omitempty"`
	Sandbox       SandboxSpec   `yaml:"sandbox,omitempty" json:"sandbox,omitempty"`
	Checks        []CheckSpec   `yaml:"checks" json:"checks"`

	Path string `yaml:"-" json:"-"`
}

type ExecutionSpec struct {
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Kernel         string `yaml:"kernel,omitempty" json:"kernel,omitempty"`
}

// SandboxSpec configures the container kernels.
type SandboxSpec struct {
	Image        string      `yaml:"image,omitempty" json:"image,omitempty"`
	Network      string      `yaml:"network,omitempty" json:"network,omitempty"`
	ReadOnlyRoot *bool       `yaml:"read_only_root,omitempty" json:"read_only_root,omitempty"`
	CPU          float64     `yaml:"cpu,omitempty" json:"cpu,omitempty"`
	MemoryMB     int         `yaml:"memory_mb,omitempty" json:"memory_mb,omitempty"`
	PidsLimit    int         `yaml:"pids_limit,omitempty" json:"pids_limit,omitempty"`
	Tmpfs        []TmpfsSpec `yaml:"tmpfs,omitempty" json:"tmpfs,omitempty"`
}

type TmpfsSpec struct {
	Mount   string `yaml:"mount" json:"mount"`
	Options string `yaml:"options,omitempty" json:"options,omitempty"`
}

type CheckSpec struct {
	ID            string `yaml:"id" json:"id"`
	Type          string `yaml:"type" json:"type"`
	Description   string `yaml:"description,omitempty" json:"description,omitempty"`
	Required      *bool  `yaml:"required,omitempty" json:"required,omitempty"`
	Points        int    `yaml:"points,omitempty" json:"points,omitempty"`
	OnFailMessage string `yaml:"on_fail_message,omitempty" json:"on_fail_message,omitempty"`
	OnPassMessage string `yaml:"on_pass_message,omitempty" json:"on_pass_message,omitempty"`
	SkipIfMissing bool   `yaml:"skip_if_missing,omitempty" json:"skip_if_missing,omitempty"`

	Path  string   `yaml:"path,omitempty" json:"path,omitempty"`
	Files []string `yaml:"files,omitempty" json:"files,omitempty"`

	Coords  []string `yaml:"coords,omitempty" json:"coords,omitempty"`
	Vars    []string `yaml:"vars,omitempty" json:"vars,omitempty"`
	MinAxis int      `yaml:"min_axis,omitempty" json:"min_axis,omitempty"`
	Expr    string   `yaml:"expr,omitempty" json:"expr,omitempty"`

	Locations []probe.Location `yaml:"locations,omitempty" json:"locations,omitempty"`
	Preset    string           `yaml:"preset,omitempty" json:"preset,omitempty"`
	Range     *RangeSpec       `yaml:"range,omitempty" json:"range,omitempty"`

	Pattern   string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Patterns  []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	Forbid    []string `yaml:"forbid,omitempty" json:"forbid,omitempty"`
	MinWidth  int      `yaml:"min_width,omitempty" json:"min_width,omitempty"`
	MinHeight int      `yaml:"min_height,omitempty" json:"min_height,omitempty"`
	MinPixels int      `yaml:"min_pixels,omitempty" json:"min_pixels,omitempty"`
	MinBytes  int64    `yaml:"min_bytes,omitempty" json:"min_bytes,omitempty"`
	MaxBytes  int64    `yaml:"max_bytes,omitempty" json:"max_bytes,omitempty"`
	MaxMean   float64  `yaml:"max_mean,omitempty" json:"max_mean,omitempty"`

	Scope        string   `yaml:"scope,omitempty" json:"scope,omitempty"`
	Contains     []string `yaml:"contains,omitempty" json:"contains,omitempty"`
	AnyOf        []string `yaml:"any_of,omitempty" json:"any_of,omitempty"`
	Markers      []string `yaml:"markers,omitempty" json:"markers,omitempty"`
	Placeholders []string `yaml:"placeholders,omitempty" json:"placeholders,omitempty"`
	CellType     string   `yaml:"cell_type,omitempty" json:"cell_type,omitempty"`

	Function   string `yaml:"function,omitempty" json:"function,omitempty"`
	DatasetVar string `yaml:"dataset_var,omitempty" json:"dataset_var,omitempty"`
	RequireDoc bool   `yaml:"require_doc,omitempty" json:"require_doc,omitempty"`

	Modules        []string `yaml:"modules,omitempty" json:"modules,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

// RangeSpec is an open interval.
type RangeSpec struct {
	Above float64 `yaml:"above" json:"above"`
	Below float64 `yaml:"below" json:"below"`
}

var (
	presets = []string{"", "reference", "edges"}
	scopes  = []string{"", "raw", "code", "markdown", "all"}
)

func (s Suite) Validate() error {
	if s.Kind != SuiteKind {
		return fmt.Errorf("kind must be %q", SuiteKind)
	}
	if s.SchemaVersion == 0 {
		return fmt.Errorf("schema_version is required")
	}
	if s.SchemaVersion > SupportedSchemaVersion {
		return fmt.Errorf("unsupported suite schema_version %d (max supported %d)", s.SchemaVersion, SupportedSchemaVersion)
	}
	if !idPattern.MatchString(s.SuiteID) {
		return fmt.Errorf("invalid suite_id %q", s.SuiteID)
	}
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Version == "" {
		return fmt.Errorf("version is required")
	}
	if s.Execution.TimeoutSeconds < 0 {
		return fmt.Errorf("execution.timeout_seconds must be >= 0")
	}
	known := grading.KnownTypes()
	seen := map[string]struct{}{}
	requiredCount := 0
	for _, c := range s.Checks {
		if c.ID == "" {
			return fmt.Errorf("checks[].id is required")
		}
		if !idPattern.MatchString(c.ID) {
			return fmt.Errorf("invalid check id %q", c.ID)
		}
		if _, ok := seen[c.ID]; ok {
			return fmt.Errorf("duplicate checks id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
		if !slices.Contains(known, c.Type) {
			return fmt.Errorf("check %q has unknown type %q", c.ID, c.Type)
		}
		if c.Required == nil || *c.Required {
			requiredCount++
		}
		if err := c.validateParams(); err != nil {
			return fmt.Errorf("check %q: %w", c.ID, err)
		}
	}
	if requiredCount == 0 {
		return fmt.Errorf("suite must have at least one required check")
	}
	return nil
}

func (c CheckSpec) validateParams() error {
	if !slices.Contains(presets, c.Preset) {
		return fmt.Errorf("invalid preset %q", c.Preset)
	}
	if !slices.Contains(scopes, c.Scope) {
		return fmt.Errorf("invalid scope %q", c.Scope)
	}
	if c.Range != nil && c.Range.Above >= c.Range.Below {
		return fmt.Errorf("range.above must be less than range.below")
	}
	if c.MinBytes > 0 && c.MaxBytes > 0 && c.MinBytes >= c.MaxBytes {
		return fmt.Errorf("min_bytes must be less than max_bytes")
	}
	if c.MaxMean < 0 || c.MaxMean > 1 {
		return fmt.Errorf("max_mean must be within [0,1]")
	}
	for _, l := range c.Locations {
		if l.Tolerance < 0 {
			return fmt.Errorf("location %q has negative tolerance", l.Description)
		}
	}
	switch c.Type {
	case "dataset_expr":
		if c.Expr == "" {
			return fmt.Errorf("expr is required")
		}
	case "figure_image", "figure_sizes", "notebook_regex":
		if c.Pattern == "" {
			return fmt.Errorf("pattern is required")
		}
	case "figures_present":
		if c.Pattern == "" && len(c.Patterns) == 0 {
			return fmt.Errorf("patterns is required")
		}
	case "notebook_contains":
		if len(c.Contains) == 0 && len(c.AnyOf) == 0 {
			return fmt.Errorf("contains or any_of is required")
		}
	case "python_imports":
		if len(c.Modules) == 0 {
			return fmt.Errorf("modules is required")
		}
	case "dir_exists", "file_exists":
		if c.Path == "" && len(c.Files) == 0 {
			return fmt.Errorf("path is required")
		}
	}
	if c.Type == "notebook_regex" {
		if _, err := regexp.Compile(c.Pattern); err != nil {
			return fmt.Errorf("bad pattern: %w", err)
		}
	}
	return nil
}

package suites

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bathygrade/internal/devtools"
	"bathygrade/internal/grading"
	"bathygrade/internal/sandbox"
)

const minimalSuite = `kind: suite
schema_version: 1
suite_id: tiny
name: Tiny
version: 0.0.1
checks:
  - id: nb-exists
    type: file_exists
    path: notebook
`

func TestBuiltinSuiteLoads(t *testing.T) {
	s, err := Builtin()
	require.NoError(t, err)
	assert.Equal(t, "bathymetry-ex2", s.SuiteID)
	assert.Equal(t, BuiltinName, s.Path)
	assert.Equal(t, 300*time.Second, s.Timeout())
	assert.Equal(t, "src/assignment.ipynb", s.Layout.Notebook)

	ids := s.CheckIDs()
	assert.Contains(t, ids, "dataset-exists")
	assert.Contains(t, ids, "function-probe")
	for _, c := range s.GradingChecks() {
		switch c.ID {
		case "edge-lookup", "function-documented", "python-imports":
			assert.False(t, c.Required, c.ID)
		default:
			assert.True(t, c.Required, c.ID)
		}
	}
}

func TestBuiltinSuiteCoversEveryCheckType(t *testing.T) {
	s, err := Builtin()
	require.NoError(t, err)
	used := map[string]bool{}
	for _, c := range s.Checks {
		used[c.Type] = true
	}
	for _, typ := range grading.KnownTypes() {
		assert.True(t, used[typ], "builtin suite does not use %s", typ)
	}
}

func TestParseAppliesDefaults(t *testing.T) {
	s, err := Parse([]byte(minimalSuite), "tiny.yaml")
	require.NoError(t, err)
	require.Len(t, s.Checks, 1)
	require.NotNil(t, s.Checks[0].Required)
	assert.True(t, *s.Checks[0].Required)
	assert.Equal(t, "python3", s.Execution.Kernel)
	assert.Equal(t, 300, s.Execution.TimeoutSeconds)

	c := s.Container("jupyter/scipy-notebook")
	assert.Equal(t, "none", c.Network)
	assert.True(t, c.ReadOnlyRoot)
	assert.Equal(t, "jupyter/scipy-notebook", c.Image)
	assert.NotEmpty(t, c.Tmpfs)
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte(minimalSuite+"    colour: blue\n"), "tiny.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestParseRejectsUnknownCheckType(t *testing.T) {
	doc := strings.Replace(minimalSuite, "type: file_exists", "type: file_exist", 1)
	_, err := Parse([]byte(doc), "tiny.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checks/0/type")
}

func TestValidateRules(t *testing.T) {
	optional := false
	base := func() Suite {
		return Suite{Kind: SuiteKind, SchemaVersion: 1, SuiteID: "tiny", Name: "x", Version: "1",
			Checks: []CheckSpec{{ID: "c-one", Type: "file_exists", Path: "notebook"}}}
	}
	tests := []struct {
		name   string
		mutate func(*Suite)
		want   string
	}{
		{"schema version", func(s *Suite) { s.SchemaVersion = SupportedSchemaVersion + 1 }, "unsupported suite schema_version"},
		{"bad id", func(s *Suite) { s.SuiteID = "X" }, "invalid suite_id"},
		{"duplicate", func(s *Suite) { s.Checks = append(s.Checks, s.Checks[0]) }, "duplicate checks id"},
		{"no required", func(s *Suite) { s.Checks[0].Required = &optional }, "at least one required check"},
		{"expr", func(s *Suite) { s.Checks[0].Type = "dataset_expr" }, "expr is required"},
		{"range", func(s *Suite) { s.Checks[0].Range = &RangeSpec{Above: 0, Below: -5000} }, "range.above"},
		{"regex", func(s *Suite) { s.Checks[0].Type = "notebook_regex"; s.Checks[0].Pattern = "(" }, "bad pattern"},
		{"mean", func(s *Suite) { s.Checks[0].MaxMean = 2 }, "max_mean"},
	}
	require.NoError(t, base().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(&s)
			err := s.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGenerateJSONSchema(t *testing.T) {
	raw, err := GenerateJSONSchema()
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, schemaURL, doc["$id"])
	assert.Contains(t, string(raw), `"function_probe"`)
	assert.Contains(t, string(raw), `"suite_id"`)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalSuite), 0o644))
	s, err := Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path)

	_, err = Resolve(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuiltinSuiteGradesDemoProject(t *testing.T) {
	s, err := Builtin()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, devtools.Scaffold(dir, devtools.Resolve("pass")))

	g := grading.NewGrader(grading.Options{
		Runner: sandbox.NewManager("mock", sandbox.WithKernel(devtools.NewMockKernel())),
	})
	res, err := g.Grade(context.Background(), grading.Request{
		SuiteID:      s.SuiteID,
		SuiteVersion: s.Version,
		RunID:        "r",
		WorkDir:      dir,
		Layout:       s.Layout,
		Checks:       s.GradingChecks(),
		Execution:    grading.ExecOptions{Timeout: 10 * time.Second},
	})
	require.NoError(t, err)
	for _, c := range res.Checks {
		assert.Equal(t, grading.StatusPass, c.Status, "%s: %s", c.ID, c.Message)
	}
	assert.True(t, res.Passed)
	assert.Equal(t, 20, res.Score.Earned)
}

func TestBuiltinSuiteFailsBlankSecondFigure(t *testing.T) {
	s, err := Builtin()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, devtools.Scaffold(dir, devtools.Resolve("blank_figure")))

	res, err := grading.NewGrader(grading.Options{}).Grade(context.Background(), grading.Request{
		SuiteID: s.SuiteID,
		RunID:   "r",
		WorkDir: dir,
		Layout:  s.Layout,
		Checks:  s.GradingChecks(),
		Only:    []string{"figures-contain-data", "figure1-contour", "figure2-map", "figure3-enhanced-map"},
	})
	require.NoError(t, err)
	want := map[string]grading.Status{
		"figures-contain-data": grading.StatusFail,
		"figure1-contour":      grading.StatusPass,
		"figure2-map":          grading.StatusFail,
		"figure3-enhanced-map": grading.StatusPass,
	}
	for _, c := range res.Checks {
		assert.Equal(t, want[c.ID], c.Status, "%s: %s", c.ID, c.Message)
		if c.Status == grading.StatusFail {
			assert.Contains(t, c.Message, "ex2fig2-anna-Messfern.png", c.ID)
			assert.Contains(t, c.Message, "looks blank", c.ID)
		}
	}
	assert.False(t, res.Passed)
}

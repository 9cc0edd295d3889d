package devtools

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bathygrade/internal/dataset"
	"bathygrade/internal/notebook"
	"bathygrade/internal/probe"
	"bathygrade/internal/sandbox"
)

func scaffold(t *testing.T, name string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, Scaffold(dir, Resolve(name)))
	return dir
}

func execute(t *testing.T, dir string, timeout time.Duration) (sandbox.ExecResult, error) {
	t.Helper()
	nb, err := notebook.Load(filepath.Join(dir, "src", "assignment.ipynb"))
	require.NoError(t, err)
	m := sandbox.NewManager("mock", sandbox.WithKernel(NewMockKernel()))
	return m.Execute(context.Background(), sandbox.ExecSpec{
		Notebook:   nb,
		DataDir:    filepath.Join(dir, "data"),
		ModulesDir: filepath.Join(dir, "modules"),
		Probe:      probe.Script("", "", probe.Locations()),
		Timeout:    timeout,
	})
}

func TestDemoGridReproducesReferenceDepths(t *testing.T) {
	g := DemoGrid()
	for _, loc := range probe.Locations() {
		depth, _, _, err := g.Nearest(loc.Lat, loc.Lon)
		require.NoError(t, err)
		assert.True(t, loc.Within(depth), "%s: got %.1f", loc.Description, depth)
	}
	for _, loc := range probe.EdgeLocations() {
		depth, _, _, err := g.Nearest(loc.Lat, loc.Lon)
		require.NoError(t, err)
		assert.True(t, depth < 0 && depth > -5000, "%s: got %.1f", loc.Description, depth)
	}
	s := g.Stats()
	assert.LessOrEqual(t, s.Max, 0.0)
	assert.GreaterOrEqual(t, s.Min, -8000.0)
}

func TestScaffoldWritesReadableDataset(t *testing.T) {
	dir := scaffold(t, "pass")
	g, err := dataset.Open(filepath.Join(dir, "data", "bathymetry_subset.nc"))
	require.NoError(t, err)
	defer g.Close()
	assert.Greater(t, len(g.Lat), 10)
	assert.Greater(t, len(g.Lon), 10)
	assert.FileExists(t, filepath.Join(dir, "figures", "ex2fig3-anna-Messfern.png"))
}

func TestMockKernelAnswersProbeFromDataset(t *testing.T) {
	res, err := execute(t, scaffold(t, "pass"), 10*time.Second)
	require.NoError(t, err)
	r := probe.Parse(res.ProbeOutput)
	assert.True(t, r.Passed(5), "probe output: %s", res.ProbeOutput)
	assert.Contains(t, res.Notebook.CellText(1), "dataset loaded")
}

func TestMockKernelNotImplemented(t *testing.T) {
	res, err := execute(t, scaffold(t, "not_implemented"), 10*time.Second)
	require.NoError(t, err)
	r := probe.Parse(res.ProbeOutput)
	assert.False(t, r.Passed(5))
	assert.Equal(t, 5, r.Count("ERROR"))
}

func TestMockKernelRuntimeError(t *testing.T) {
	_, err := execute(t, scaffold(t, "runtime_error"), 10*time.Second)
	var ee *sandbox.ExecError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.Equal(t, 5, ee.CellIndex)
	assert.Equal(t, "ValueError", ee.EName)
	assert.Equal(t, "contour levels must be increasing", ee.EValue)
}

func TestMockKernelTimeout(t *testing.T) {
	_, err := execute(t, scaffold(t, "timeout"), 200*time.Millisecond)
	var ee *sandbox.ExecError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.True(t, ee.Timeout)
}

func TestMockKernelMissingModules(t *testing.T) {
	k := &MockKernel{MissingModules: []string{"cartopy"}}
	out, err := k.Python(context.Background(), "", "import cartopy.crs as ccrs")
	require.Error(t, err)
	assert.Contains(t, string(out), "No module named 'cartopy'")
	_, err = k.Python(context.Background(), "", "import numpy")
	require.NoError(t, err)
}

func TestResolveUnknownFallsBackToPass(t *testing.T) {
	assert.Equal(t, "pass", Resolve("nope").Name)
	for _, name := range ScenarioNames() {
		assert.Equal(t, name, Resolve(name).Name)
	}
}

package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"bathygrade/internal/notebook"
)

const testNotebook = `{
 "cells": [
  {"cell_type": "code", "execution_count": null, "metadata": {}, "outputs": [], "source": "import numpy as np"},
  {"cell_type": "code", "execution_count": null, "metadata": {}, "outputs": [], "source": "raise ValueError(\"bad depth\")"}
 ],
 "metadata": {},
 "nbformat": 4,
 "nbformat_minor": 4
}`

const fakeHeader = `#!/bin/sh
if [ "$1" = "nbconvert" ] && [ "$2" = "--version" ]; then echo 7.16.4; exit 0; fi
out=""; prev=""; in=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then out="$a"; fi
  prev="$a"; in="$a"
done
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jupyter")
	require.NoError(t, os.WriteFile(path, []byte(fakeHeader+body), 0o755))
	return path
}

func loadTestNotebook(t *testing.T) *notebook.Notebook {
	t.Helper()
	nb, err := notebook.Parse([]byte(testNotebook))
	require.NoError(t, err)
	return nb
}

func projectDirs(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	data := filepath.Join(root, "data")
	modules := filepath.Join(root, "modules")
	require.NoError(t, os.MkdirAll(data, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(modules, "__pycache__"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(data, "bathymetry_subset.nc"), []byte("nc"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modules, "__init__.py"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modules, "bathymetry.py"), []byte("x = 1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(modules, "__pycache__", "b.pyc"), []byte("x"), 0o644))
	return data, modules
}

func TestExecuteStagesAndReadsProbeOutput(t *testing.T) {
	executed := filepath.Join(t.TempDir(), "executed.ipynb")
	require.NoError(t, os.WriteFile(executed, []byte(`{
 "cells": [
  {"cell_type": "code", "execution_count": 1, "metadata": {}, "outputs": [], "source": "x = 1"},
  {"cell_type": "code", "execution_count": 2, "metadata": {}, "outputs": [
    {"output_type": "stream", "name": "stdout", "text": ["Function test results:\n", "PASS: Center of domain\n"]}
  ], "source": "probe"}
 ],
 "metadata": {}, "nbformat": 4, "nbformat_minor": 4}`), 0o644))
	script := writeScript(t, `
[ -f data/bathymetry_subset.nc ] || { echo "data not staged" >&2; exit 3; }
[ -f modules/bathymetry.py ] || { echo "modules not staged" >&2; exit 3; }
[ -d figures ] || { echo "figures missing" >&2; exit 3; }
[ -d modules/__pycache__ ] && { echo "pycache copied" >&2; exit 3; }
grep -q PROBE_MARKER "$in" || { echo "probe not appended" >&2; exit 3; }
cp "`+executed+`" "$out"
`)
	data, modules := projectDirs(t)
	nb, err := notebook.Parse([]byte(`{"cells": [{"cell_type": "code", "execution_count": null, "metadata": {}, "outputs": [], "source": "x = 1"}], "metadata": {}, "nbformat": 4, "nbformat_minor": 4}`))
	require.NoError(t, err)

	m := NewManager("local", WithKernel(&LocalKernel{Jupyter: script}))
	info, err := m.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "local", info.Name)
	assert.Contains(t, info.Version, "7.16.4")

	res, err := m.Execute(context.Background(), ExecSpec{
		Notebook:   nb,
		DataDir:    data,
		ModulesDir: modules,
		Probe:      "# PROBE_MARKER\nprint('x')\n",
		Timeout:    10 * time.Second,
	})
	require.NoError(t, err, "log: %s", res.Log)
	assert.Equal(t, 1, res.ProbeCell)
	assert.Contains(t, res.ProbeOutput, "PASS: Center of domain")
	require.NotNil(t, res.Notebook)
	_, statErr := os.Stat(res.ScratchDir)
	assert.True(t, os.IsNotExist(statErr), "scratch dir should be removed")
	assert.Len(t, nb.Cells, 1, "caller notebook must not be mutated")
}

func TestExecuteReportsFailingCell(t *testing.T) {
	script := writeScript(t, `
cat >&2 <<'EOF'
[NbConvertApp] Converting notebook assignment.ipynb to notebook
Traceback (most recent call last):
nbclient.exceptions.CellExecutionError: An error occurred while executing the following cell:
------------------
raise ValueError("bad depth")
------------------

---------------------------------------------------------------------------
ValueError                                Traceback (most recent call last)
Cell In[2], line 1
----> 1 raise ValueError("bad depth")

ValueError: bad depth
EOF
exit 1
`)
	m := NewManager("local", WithKernel(&LocalKernel{Jupyter: script}))
	_, err := m.Execute(context.Background(), ExecSpec{Notebook: loadTestNotebook(t), Timeout: 10 * time.Second})
	var ee *ExecError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.False(t, ee.Timeout)
	assert.Equal(t, 1, ee.CellIndex)
	assert.Equal(t, "ValueError", ee.EName)
	assert.Equal(t, "bad depth", ee.EValue)
	assert.Equal(t, "cell 2 raised ValueError: bad depth", ee.Error())
}

func TestExecuteTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)
	script := writeScript(t, "exec sleep 30\n")
	m := NewManager("local", WithKernel(&LocalKernel{Jupyter: script}))
	start := time.Now()
	_, err := m.Execute(context.Background(), ExecSpec{Notebook: loadTestNotebook(t), Timeout: 300 * time.Millisecond})
	var ee *ExecError
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.True(t, ee.Timeout)
	assert.Contains(t, ee.Error(), "timed out after 300ms")
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestMockModeWithoutKernelIsUnavailable(t *testing.T) {
	m := NewManager("mock")
	_, err := m.Detect(context.Background())
	require.ErrorIs(t, err, ErrEngineUnavailable)
	_, err = m.Execute(context.Background(), ExecSpec{Notebook: loadTestNotebook(t)})
	require.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestUnknownModeFails(t *testing.T) {
	_, err := NewManager("vm").Detect(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEngineUnavailable))
}

func TestStageKeepsCallerScratchDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "scratch")
	data, modules := projectDirs(t)
	got, cleanup, err := Stage(ExecSpec{ScratchDir: dir, DataDir: data, ModulesDir: modules})
	require.NoError(t, err)
	cleanup()
	assert.Equal(t, dir, got)
	assert.FileExists(t, filepath.Join(dir, "data", "bathymetry_subset.nc"))
	assert.FileExists(t, filepath.Join(dir, "modules", "__init__.py"))
	assert.DirExists(t, filepath.Join(dir, "figures"))
	assert.NoDirExists(t, filepath.Join(dir, "modules", "__pycache__"))
}

func TestBuildRunArgs(t *testing.T) {
	docker := buildRunArgs("docker", "bg-1", "run-1", "/tmp/s", ContainerSpec{Image: "jupyter/scipy"})
	joined := strings.Join(docker, " ")
	assert.Contains(t, joined, "--network none")
	assert.Contains(t, joined, "--cap-drop ALL")
	assert.Contains(t, joined, "--mount type=bind,src=/tmp/s,dst=/work,rw")
	assert.Contains(t, joined, "--label bathygrade.run=run-1")
	assert.Equal(t, "jupyter/scipy", docker[len(docker)-1])

	podman := buildRunArgs("podman", "bg-1", "run-1", "/tmp/s", ContainerSpec{Image: "img", UseSELinuxZ: true, Network: "inherit", ReadOnlyRoot: true})
	joined = strings.Join(podman, " ")
	assert.Contains(t, joined, "--cap-drop all")
	assert.NotContains(t, joined, "--network")
	assert.Contains(t, joined, "-v /tmp/s:/work:rw:Z")
	assert.Contains(t, joined, "--read-only")
}

func TestNbconvertArgs(t *testing.T) {
	args := nbconvertArgs("a.ipynb", "a.executed.ipynb", ExecSpec{Timeout: 90 * time.Second})
	assert.Equal(t, []string{
		"nbconvert", "--to", "notebook", "--execute",
		"--ExecutePreprocessor.timeout=90",
		"--ExecutePreprocessor.kernel_name=python3",
		"--output", "a.executed.ipynb",
		"a.ipynb",
	}, args)
}

func TestParseFailureWithoutMarker(t *testing.T) {
	ee := parseFailure("Cell execution timed out\n", nil, time.Minute, errors.New("exit status 1"))
	assert.True(t, ee.Timeout)
	assert.Equal(t, -1, ee.CellIndex)

	ee = parseFailure("kernel died\n", nil, time.Minute, errors.New("exit status 1"))
	assert.False(t, ee.Timeout)
	assert.Equal(t, "notebook execution failed: exit status 1", ee.Error())
}

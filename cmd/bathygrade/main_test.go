package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bathygrade/internal/grading"
	"bathygrade/internal/probe"
)

// resetFlags restores every flag to its default so commands can run more
// than once in one process.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitHarness
}

func TestDemoThenCheckJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")
	out, err := run(t, "demo", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote pass project")

	out, err = run(t, "check", "-C", dir, "--sandbox", "mock", "--format", "json")
	require.NoError(t, err)
	var res grading.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Passed)
	assert.Equal(t, "bathymetry-ex2", res.SuiteID)
}

func TestCheckExitCodes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")
	_, err := run(t, "demo", dir, "--scenario", "missing_figure")
	require.NoError(t, err)

	out, err := run(t, "check", "-C", dir, "--sandbox", "mock", "--only", "figures-created")
	assert.Equal(t, exitFailed, exitCode(err))
	assert.Contains(t, out, "FAIL  figures-created")
	assert.Contains(t, out, "hint figures-created:")

	_, err = run(t, "check", "-C", dir, "--sandbox", "mock", "--only", "no-such-check")
	assert.Equal(t, exitHarness, exitCode(err))

	_, err = run(t, "check", "-C", dir, "--sandbox", "vm")
	assert.Equal(t, exitHarness, exitCode(err))
}

func TestHistoryAfterCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")
	db := filepath.Join(t.TempDir(), "runs.db")
	_, err := run(t, "demo", dir)
	require.NoError(t, err)
	_, err = run(t, "check", "-C", dir, "--sandbox", "mock", "--history", db, "--only", "dataset-exists")
	require.NoError(t, err)

	out, err := run(t, "history", "--history", db)
	require.NoError(t, err)
	assert.Contains(t, out, "bathymetry-ex2")
	assert.Contains(t, out, "1 runs, 1 passed")
}

func TestDepthCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "project")
	_, err := run(t, "demo", dir)
	require.NoError(t, err)
	loc := probe.Locations()[0]
	out, err := run(t, "depth", "-C", dir,
		"--lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64),
		"--lon", strconv.FormatFloat(loc.Lon, 'f', -1, 64),
		"--json")
	require.NoError(t, err)
	var ans struct {
		Dataset string  `json:"dataset"`
		Depth   float64 `json:"depth"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &ans))
	assert.True(t, loc.Within(ans.Depth), "%s: got %v", loc.Description, ans.Depth)
	assert.Equal(t, "bathymetry_subset.nc", filepath.Base(ans.Dataset))
}

func TestSchemaAndVersion(t *testing.T) {
	out, err := run(t, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"suite_id"`)

	out, err = run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "bathygrade ")
}

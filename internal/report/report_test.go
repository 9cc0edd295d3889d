package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bathygrade/internal/grading"
)

func sampleResult() grading.Result {
	return grading.Result{
		Kind:          grading.ResultKind,
		SchemaVersion: grading.SchemaVersion,
		SuiteID:       "bathymetry-ex2",
		SuiteVersion:  "1.0.0",
		Run:           grading.RunInfo{RunID: "run-1", WorkDir: "/work"},
		Passed:        false,
		Counts:        grading.Counts{Pass: 1, Fail: 1, Skip: 1, RequiredFailed: 1},
		Score:         grading.Score{Earned: 5, Possible: 15},
		Fingerprint:   "00000000deadbeef",
		Checks: []grading.CheckResult{
			{ID: "dataset-exists", Required: true, Status: grading.StatusPass, Summary: "file present"},
			{ID: "function-probe", Required: true, Status: grading.StatusFail, Kind: grading.KindAssertionMismatch,
				Summary: "probe mismatch", Message: "Shallowest area: got 12 | want -20",
				Artifacts: []grading.ArtifactRef{{Kind: "probe_output", Ref: "function-probe.probe"}}},
			{ID: "python-imports", Status: grading.StatusSkip, Kind: grading.KindEnvironmentUnavailable, Message: "no python interpreter"},
		},
		Artifacts: []grading.Artifact{{Ref: "function-probe.probe", Kind: "probe_output", Title: "probe output", TextPreview: "FAIL Shallowest area\n"}},
	}
}

func TestTextOneLinePerCheck(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, sampleResult(), Options{}))
	out := buf.String()

	assert.Contains(t, out, "bathymetry-ex2 1.0.0")
	assert.Contains(t, out, "✓ PASS  dataset-exists")
	assert.Contains(t, out, "✗ FAIL  function-probe  Shallowest area: got 12 | want -20")
	assert.Contains(t, out, "- SKIP  python-imports  no python interpreter (optional)")
	assert.Contains(t, out, "FAILED 1 passed, 1 failed, 1 skipped  score 5/15  (1 required failed)")
	assert.NotContains(t, out, "fingerprint")
	assert.NotContains(t, out, "\x1b[")
}

func TestTextVerboseShowsArtifacts(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, sampleResult(), Options{Verbose: true}))
	out := buf.String()
	assert.Contains(t, out, "probe mismatch: Shallowest area")
	assert.Contains(t, out, "      | FAIL Shallowest area")
	assert.Contains(t, out, "fingerprint 00000000deadbeef")
}

func TestJSONRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, sampleResult()))
	var got grading.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleResult(), got)
}

func TestMarkdownSource(t *testing.T) {
	md := MarkdownSource(sampleResult(), false)
	assert.True(t, strings.HasPrefix(md, "# Grade report: bathymetry-ex2 1.0.0\n"))
	assert.Contains(t, md, "**FAILED**: 1 passed, 1 failed, 1 skipped. Score 5/15.")
	assert.Contains(t, md, "| FAIL | `function-probe` | Shallowest area: got 12 \\| want -20 |")
	assert.Contains(t, md, "| SKIP | `python-imports` (optional) |")
	assert.NotContains(t, md, "## Artifacts")

	verbose := MarkdownSource(sampleResult(), true)
	assert.Contains(t, verbose, "### probe output")
}

func TestWriteRejectsUnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, "yaml", sampleResult(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "text, json, markdown")

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatMarkdown, sampleResult(), Options{}))
	assert.Contains(t, buf.String(), "| Status | Check | Diagnosis |")
}

package app

import (
	"bathygrade/internal/grading"
	"bathygrade/internal/probe"
	"bathygrade/internal/sandbox"
	"bathygrade/internal/state"
)

// CheckOutcome is a graded run plus what the app learned around it.
type CheckOutcome struct {
	Result grading.Result
	// Inputs digests the artifacts that were graded.
	Inputs string
	// Hints suggest a next step for failed checks.
	Hints []Hint
	// Warnings are reported on the console, never in the result.
	Warnings []string
}

// ExitCode maps the outcome to the process exit status.
func (o CheckOutcome) ExitCode() int {
	if o.Result.Passed {
		return 0
	}
	return 1
}

type Hint struct {
	CheckID string
	Text    string
}

type ExecReport struct {
	Notebook string
	Result   sandbox.ExecResult
	// Probe is set when the notebook ran with the probe cell.
	Probe *probe.Report
}

type DepthAnswer struct {
	Dataset string
	Lat     float64
	Lon     float64
	GridLat float64
	GridLon float64
	Depth   float64
}

type HistoryView struct {
	Path    string
	Summary state.Summary
	Runs    []state.RunSummary
}

package sandbox

import (
	"time"

	"bathygrade/internal/notebook"
)

type EngineInfo struct {
	Name    string
	Version string
}

// ExecSpec describes one notebook execution.
type ExecSpec struct {
	RunID    string
	Notebook *notebook.Notebook
	// NotebookName is the file name used inside the scratch directory.
	NotebookName string

	// Project-relative directories materialized into the scratch directory.
	DataDir    string
	ModulesDir string
	// ScratchDir is created under the system temp dir when empty.
	ScratchDir  string
	KeepScratch bool

	Timeout    time.Duration
	KernelName string

	// Probe, when set, is appended as a final code cell before execution.
	Probe string

	Container ContainerSpec
}

// ContainerSpec carries the resource limits used by the docker and podman
// kernels.
type ContainerSpec struct {
	Image        string
	Network      string
	ReadOnlyRoot bool
	CPU          float64
	MemoryMB     int
	PidsLimit    int
	UseSELinuxZ  bool
	Tmpfs        []TmpfsMount
}

type TmpfsMount struct {
	Mount   string
	Options string
}

// ExecResult is the outcome of a successful execution.
type ExecResult struct {
	Engine     string
	Notebook   *notebook.Notebook
	ScratchDir string
	Duration   time.Duration
	// ProbeCell is the index of the appended probe cell, -1 without a probe.
	ProbeCell   int
	ProbeOutput string
	Log         string
}

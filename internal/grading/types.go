package grading

import (
	"time"

	"bathygrade/internal/locate"
	"bathygrade/internal/probe"
	"bathygrade/internal/sandbox"
)

const (
	ResultKind    = "grade_report"
	SchemaVersion = 1
)

type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Kind classifies why a check did not pass.
type Kind string

const (
	KindNone                   Kind = ""
	KindMissingArtifact        Kind = "missing_artifact"
	KindMalformedData          Kind = "malformed_data"
	KindExecutionFailure       Kind = "execution_failure"
	KindAssertionMismatch      Kind = "assertion_mismatch"
	KindEnvironmentUnavailable Kind = "environment_unavailable"
)

type Request struct {
	AppVersion   string
	SuiteID      string
	SuiteVersion string

	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	WorkDir string
	Layout  locate.Layout
	Checks  []CheckSpec
	// Only restricts the run to these check IDs when non-empty.
	Only []string

	Execution ExecOptions
}

type ExecOptions struct {
	Timeout     time.Duration
	KernelName  string
	KeepScratch bool
	// Container carries the image and limits for the docker and podman
	// kernels.
	Container sandbox.ContainerSpec
}

type CheckSpec struct {
	ID            string
	Type          string
	Description   string
	Required      bool
	Points        int
	OnFailMessage string
	OnPassMessage string
	// SkipIfMissing turns a missing input artifact into a skip.
	SkipIfMissing bool

	// Path is a layout key (notebook, dataset, modules, figures) or a
	// project-relative path.
	Path  string
	Files []string

	Coords  []string
	Vars    []string
	MinAxis int
	Expr    string

	Locations []probe.Location
	Preset    string
	Range     *Range

	Pattern   string
	Patterns  []string
	Forbid    []string
	MinWidth  int
	MinHeight int
	MinPixels int
	MinBytes  int64
	MaxBytes  int64
	MaxMean   float64

	Scope        string
	Contains     []string
	AnyOf        []string
	Markers      []string
	Placeholders []string
	CellType     string

	Function   string
	DatasetVar string
	RequireDoc bool

	Modules        []string
	TimeoutSeconds int
}

// Range bounds a value exclusively on both sides.
type Range struct {
	Above float64
	Below float64
}

func (r Range) Contains(v float64) bool { return v > r.Above && v < r.Below }

type Result struct {
	Kind          string `json:"kind"`
	SchemaVersion int    `json:"schema_version"`

	AppVersion   string `json:"app_version,omitempty"`
	SuiteID      string `json:"suite_id"`
	SuiteVersion string `json:"suite_version"`

	Run         RunInfo       `json:"run"`
	Passed      bool          `json:"passed"`
	Counts      Counts        `json:"counts"`
	Score       Score         `json:"score"`
	Fingerprint string        `json:"fingerprint"`
	Checks      []CheckResult `json:"checks"`
	Artifacts   []Artifact    `json:"artifacts,omitempty"`
	Engine      EngineDebug   `json:"engine,omitempty"`
}

type RunInfo struct {
	RunID            string `json:"run_id"`
	WorkDir          string `json:"work_dir"`
	StartedAtUnixMS  int64  `json:"started_at_unix_ms"`
	FinishedAtUnixMS int64  `json:"finished_at_unix_ms"`
	DurationMS       int64  `json:"duration_ms"`
}

type Counts struct {
	Pass           int `json:"pass"`
	Fail           int `json:"fail"`
	Skip           int `json:"skip"`
	RequiredFailed int `json:"required_failed"`
}

type Score struct {
	Earned   int `json:"earned"`
	Possible int `json:"possible"`
}

type CheckResult struct {
	ID            string        `json:"id"`
	Type          string        `json:"type"`
	Description   string        `json:"description,omitempty"`
	Required      bool          `json:"required"`
	Status        Status        `json:"status"`
	Kind          Kind          `json:"kind,omitempty"`
	PointsAwarded int           `json:"points_awarded,omitempty"`
	Summary       string        `json:"summary,omitempty"`
	Message       string        `json:"message,omitempty"`
	DurationMS    int64         `json:"duration_ms"`
	Artifacts     []ArtifactRef `json:"artifacts,omitempty"`
}

func (c CheckResult) Passed() bool { return c.Status == StatusPass }

type ArtifactRef struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
}

type Artifact struct {
	Ref         string `json:"ref"`
	Kind        string `json:"kind"`
	Title       string `json:"title,omitempty"`
	TextPreview string `json:"text_preview,omitempty"`
}

type EngineDebug struct {
	Engine  string `json:"engine,omitempty"`
	Version string `json:"version,omitempty"`
}

type evaluation struct {
	Status   Status
	Kind     Kind
	Summary  string
	Message  string
	Artifact *Artifact
}

func pass(summary, message string) evaluation {
	return evaluation{Status: StatusPass, Summary: summary, Message: message}
}

func fail(kind Kind, summary, message string) evaluation {
	return evaluation{Status: StatusFail, Kind: kind, Summary: summary, Message: message}
}

func skip(kind Kind, summary, message string) evaluation {
	return evaluation{Status: StatusSkip, Kind: kind, Summary: summary, Message: message}
}

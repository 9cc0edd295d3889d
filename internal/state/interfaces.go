package state

import (
	"context"
	"time"
)

type Store interface {
	EnsureSchema(ctx context.Context) error
	StartRun(ctx context.Context, run Run) error
	RecordCheck(ctx context.Context, runID string, check CheckRecord) error
	FinishRun(ctx context.Context, runID string, out Outcome) error
	LastRuns(ctx context.Context, limit int) ([]RunSummary, error)
	RunChecks(ctx context.Context, runID string) ([]CheckRecord, error)
	LastFingerprint(ctx context.Context, suiteID, workDir string) (Fingerprint, bool, error)
	GetSummary(ctx context.Context) (Summary, error)
	Close() error
}

type Run struct {
	RunID        string
	SuiteID      string
	SuiteVersion string
	WorkDir      string
	Engine       string
	// Inputs digests the graded artifacts and the selected checks.
	Inputs  string
	StartTS time.Time
}

type CheckRecord struct {
	CheckID    string
	Status     string
	Kind       string
	Required   bool
	Message    string
	DurationMS int64
}

type Outcome struct {
	Passed      bool
	Pass        int
	Fail        int
	Skip        int
	Earned      int
	Possible    int
	Fingerprint string
	Engine      string
	FinishTS    time.Time
}

type RunSummary struct {
	RunID        string
	SuiteID      string
	SuiteVersion string
	WorkDir      string
	Engine       string
	StartTS      time.Time
	FinishTS     time.Time
	Finished     bool
	Outcome      Outcome
}

// Fingerprint pairs a result fingerprint with the inputs it was computed
// from.
type Fingerprint struct {
	RunID  string
	Result string
	Inputs string
}

type Summary struct {
	Runs           int
	Passed         int
	ChecksRecorded int
	Fingerprints   int
}

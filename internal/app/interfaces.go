package app

import (
	"context"

	"bathygrade/internal/sandbox"
	"bathygrade/internal/state"
)

type Runner interface {
	sandbox.Runner
	CleanupOrphans(ctx context.Context) error
}

// Store is the part of the run history the app writes and reads.
type Store interface {
	StartRun(ctx context.Context, run state.Run) error
	RecordCheck(ctx context.Context, runID string, check state.CheckRecord) error
	FinishRun(ctx context.Context, runID string, out state.Outcome) error
	LastRuns(ctx context.Context, limit int) ([]state.RunSummary, error)
	RunChecks(ctx context.Context, runID string) ([]state.CheckRecord, error)
	LastFingerprint(ctx context.Context, suiteID, workDir string) (state.Fingerprint, bool, error)
	GetSummary(ctx context.Context) (state.Summary, error)
	Close() error
}

package grading

import (
	"context"

	"bathygrade/internal/dataset"
)

type Grader interface {
	Grade(ctx context.Context, req Request) (Result, error)
}

// Logger receives run, check and execution events.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// DatasetOpener loads a grid; dataset.Open by default.
type DatasetOpener func(path string) (*dataset.Grid, error)

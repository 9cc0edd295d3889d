package telemetry

import (
	"io"

	"github.com/charmbracelet/log"
)

// NewConsole returns the human-facing stderr logger used by the CLI.
func NewConsole(w io.Writer, verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          "bathygrade",
		ReportTimestamp: verbose,
	})
}

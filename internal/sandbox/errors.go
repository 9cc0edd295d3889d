package sandbox

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bathygrade/internal/notebook"
)

var ErrEngineUnavailable = errors.New("execution engine unavailable")

// ExecError reports a notebook that did not run to completion.
type ExecError struct {
	Timeout   bool
	Limit     time.Duration
	CellIndex int
	EName     string
	EValue    string
	Trace     string
	Log       string
	Err       error
}

func (e *ExecError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("notebook execution timed out after %s", e.Limit)
	case e.EName != "":
		msg := fmt.Sprintf("%s: %s", e.EName, e.EValue)
		if e.CellIndex >= 0 {
			return fmt.Sprintf("cell %d raised %s", e.CellIndex+1, msg)
		}
		return "notebook raised " + msg
	case e.Err != nil:
		return "notebook execution failed: " + e.Err.Error()
	default:
		return "notebook execution failed"
	}
}

func (e *ExecError) Unwrap() error { return e.Err }

const (
	nbconvertErrorMarker = "An error occurred while executing the following cell:"
	nbconvertRule        = "------------------"
)

// parseFailure turns nbconvert log output into an ExecError, matching the
// failing cell source back to its index in nb.
func parseFailure(log string, nb *notebook.Notebook, limit time.Duration, cause error) *ExecError {
	e := &ExecError{CellIndex: -1, Limit: limit, Log: log, Err: cause}
	if strings.Contains(log, "CellTimeoutError") || strings.Contains(log, "Cell execution timed out") {
		e.Timeout = true
	}
	idx := strings.Index(log, nbconvertErrorMarker)
	if idx < 0 {
		e.Trace = lastLines(log, 20)
		return e
	}
	rest := log[idx+len(nbconvertErrorMarker):]
	parts := strings.SplitN(rest, nbconvertRule, 3)
	if len(parts) == 3 {
		src := strings.TrimSpace(parts[1])
		if nb != nil {
			for i, c := range nb.Cells {
				if c.CellType == notebook.CellCode && strings.TrimSpace(c.Source.String()) == src {
					e.CellIndex = i
					break
				}
			}
		}
		rest = parts[2]
	}
	e.Trace = strings.TrimSpace(notebook.StripANSI(rest))
	if !e.Timeout {
		e.EName, e.EValue = lastException(e.Trace)
	}
	return e
}

// lastException finds the final "Name: value" line of a traceback.
func lastException(trace string) (string, string) {
	lines := strings.Split(trace, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if ok && isIdentifier(name) {
			return name, strings.TrimSpace(value)
		}
		if isIdentifier(line) {
			return line, ""
		}
	}
	return "", ""
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

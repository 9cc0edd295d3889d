package grading

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"bathygrade/internal/notebook"
	"bathygrade/internal/probe"
	"bathygrade/internal/sandbox"
)

// probeCheck returns the first selected function_probe check; its
// parameters shape the probe cell appended to the single execution.
func (s *session) probeCheck() (CheckSpec, bool) {
	for _, c := range s.selected {
		if c.Type == "function_probe" {
			return c, true
		}
	}
	return CheckSpec{}, false
}

func (s *session) execTimeout(check CheckSpec) time.Duration {
	if check.TimeoutSeconds > 0 {
		return time.Duration(check.TimeoutSeconds) * time.Second
	}
	if s.Execution.Timeout > 0 {
		return s.Execution.Timeout
	}
	return sandbox.DefaultTimeout
}

// execute runs the notebook once per session. Later callers get the first
// outcome.
func (g *DefaultGrader) execute(ctx context.Context, s *session, check CheckSpec) (*execOutcome, *evaluation, error) {
	if s.exec != nil {
		return s.exec, nil, nil
	}
	if g.runner == nil {
		e := fail(KindEnvironmentUnavailable, "no kernel", "notebook execution is disabled")
		return nil, &e, nil
	}
	loaded, decided, err := s.loadNotebook(check)
	if err != nil || decided != nil {
		return nil, decided, err
	}
	path := loaded.path

	spec := sandbox.ExecSpec{
		RunID:        s.RunID,
		Notebook:     loaded.nb,
		NotebookName: filepath.Base(path),
		KeepScratch:  s.Execution.KeepScratch,
		Timeout:      s.execTimeout(check),
		KernelName:   s.Execution.KernelName,
		Container:    s.Execution.Container,
	}
	if data, ok := s.loc.FindDir(filepath.Dir(s.loc.Layout.Dataset)); ok {
		spec.DataDir = data
	}
	if mods, ok := s.loc.Modules(); ok {
		spec.ModulesDir = mods
	}
	if pc, ok := s.probeCheck(); ok {
		spec.Probe = ProbeScript(pc)
	}

	g.info("exec.start", map[string]any{"run_id": s.RunID, "notebook": path, "timeout": spec.Timeout.String(), "probe": spec.Probe != ""})
	res, err := g.runner.Execute(ctx, spec)
	s.exec = &execOutcome{res: res, err: err}
	if err != nil {
		g.logError("exec.failed", map[string]any{"run_id": s.RunID, "error": err.Error()})
	} else {
		g.info("exec.done", map[string]any{"run_id": s.RunID, "engine": res.Engine, "ms": res.Duration.Milliseconds()})
	}
	return s.exec, nil, nil
}

// ProbeScript builds the probe cell for a function_probe check.
func ProbeScript(check CheckSpec) string {
	return probe.Script(check.Function, check.DatasetVar, lookupLocations(check))
}

// execFailure turns an execution error into a check outcome.
func execFailure(err error) evaluation {
	if errors.Is(err, sandbox.ErrEngineUnavailable) {
		return fail(KindEnvironmentUnavailable, "no kernel", err.Error())
	}
	var ee *sandbox.ExecError
	if errors.As(err, &ee) {
		e := fail(KindExecutionFailure, "execution failed", ee.Error())
		if ee.Timeout {
			e.Summary = "execution timed out"
		}
		if ee.Trace != "" {
			e.Artifact = &Artifact{
				Ref:         "trace_" + safeID(ee.EName),
				Kind:        "traceback",
				Title:       "Failing cell output",
				TextPreview: notebook.StripANSI(ee.Trace),
			}
		}
		return e
	}
	return fail(KindExecutionFailure, "execution failed", err.Error())
}

func (g *DefaultGrader) evalNotebookExecutes(ctx context.Context, s *session, check CheckSpec) (evaluation, error) {
	out, decided, err := g.execute(ctx, s, check)
	if err != nil || decided != nil {
		return deref(decided), err
	}
	if out.err != nil {
		if ctx.Err() != nil {
			return evaluation{}, ctx.Err()
		}
		return execFailure(out.err), nil
	}
	n := len(out.res.Notebook.CodeCells())
	if out.res.ProbeCell >= 0 {
		n--
	}
	return pass("notebook executed", fmt.Sprintf("%d code cells ran on %s in %s", n, out.res.Engine, out.res.Duration.Round(time.Millisecond))), nil
}

func (g *DefaultGrader) evalFunctionProbe(ctx context.Context, s *session, check CheckSpec) (evaluation, error) {
	out, decided, err := g.execute(ctx, s, check)
	if err != nil || decided != nil {
		return deref(decided), err
	}
	if out.err != nil {
		if ctx.Err() != nil {
			return evaluation{}, ctx.Err()
		}
		e := execFailure(out.err)
		if e.Kind == KindExecutionFailure {
			e.Message = "notebook did not run to the probe: " + e.Message
		}
		return e, nil
	}
	want := len(lookupLocations(check))
	report := probe.Parse(out.res.ProbeOutput)
	if !report.Found {
		return fail(KindExecutionFailure, "probe silent", "probe cell printed no results"), nil
	}
	if report.Passed(want) {
		return pass("function verified", fmt.Sprintf("%d of %d locations within tolerance", report.Count("PASS"), want)), nil
	}
	problems := report.Problems()
	if len(problems) == 0 {
		problems = []string{fmt.Sprintf("only %d of %d locations reported", report.Count("PASS"), want)}
	}
	return evaluation{
		Status:  StatusFail,
		Kind:    KindAssertionMismatch,
		Summary: "function mismatch",
		Message: joinLimited(problems, 5),
		Artifact: &Artifact{
			Ref:         "probe_" + safeID(check.ID),
			Kind:        "probe_output",
			Title:       "Probe cell output",
			TextPreview: out.res.ProbeOutput,
		},
	}, nil
}

// evalPythonImports checks that each module imports in the kernel's
// interpreter.
func (g *DefaultGrader) evalPythonImports(ctx context.Context, s *session, check CheckSpec) (evaluation, error) {
	if g.runner == nil {
		return fail(KindEnvironmentUnavailable, "no interpreter", "python is not available"), nil
	}
	if len(check.Modules) == 0 {
		return evaluation{}, fmt.Errorf("python_imports needs at least one module")
	}
	var missing []string
	for _, mod := range check.Modules {
		out, err := g.runner.RunScript(ctx, s.loc.Root(), "import "+mod)
		if errors.Is(err, sandbox.ErrEngineUnavailable) {
			return fail(KindEnvironmentUnavailable, "no interpreter", err.Error()), nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return evaluation{}, ctx.Err()
			}
			missing = append(missing, fmt.Sprintf("%s (%s)", mod, lastLine(string(out))))
		}
	}
	if len(missing) > 0 {
		return fail(KindAssertionMismatch, "imports failed", "cannot import "+strings.Join(missing, ", ")), nil
	}
	return pass("imports ok", strings.Join(check.Modules, ", ")), nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

package grading

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"bathygrade/internal/dataset"
	"bathygrade/internal/locate"
	"bathygrade/internal/sandbox"
)

type evaluatorFunc func(context.Context, *session, CheckSpec) (evaluation, error)

type Options struct {
	// Runner executes notebooks. Execution checks skip when it is nil.
	Runner      sandbox.Runner
	OpenDataset DatasetOpener
	Logger      Logger
}

type DefaultGrader struct {
	registry map[string]evaluatorFunc
	runner   sandbox.Runner
	open     DatasetOpener
	log      Logger
}

func NewGrader(opts Options) *DefaultGrader {
	g := &DefaultGrader{
		registry: map[string]evaluatorFunc{},
		runner:   opts.Runner,
		open:     opts.OpenDataset,
		log:      opts.Logger,
	}
	if g.open == nil {
		g.open = dataset.Open
	}
	g.registry["file_exists"] = g.evalFileExists
	g.registry["dir_exists"] = g.evalDirExists
	g.registry["dataset_schema"] = g.evalDatasetSchema
	g.registry["dataset_expr"] = g.evalDatasetExpr
	g.registry["dataset_lookup"] = g.evalDatasetLookup
	g.registry["figures_present"] = g.evalFiguresPresent
	g.registry["figure_image"] = g.evalFigureImage
	g.registry["figure_sizes"] = g.evalFigureSizes
	g.registry["notebook_contains"] = g.evalNotebookContains
	g.registry["notebook_regex"] = g.evalNotebookRegex
	g.registry["notebook_no_marker"] = g.evalNotebookNoMarker
	g.registry["function_body"] = g.evalFunctionBody
	g.registry["markdown_placeholders"] = g.evalMarkdownPlaceholders
	g.registry["notebook_executes"] = g.evalNotebookExecutes
	g.registry["function_probe"] = g.evalFunctionProbe
	g.registry["python_imports"] = g.evalPythonImports
	return g
}

// KnownTypes lists the registered check types in sorted order.
func KnownTypes() []string {
	g := NewGrader(Options{})
	out := make([]string, 0, len(g.registry))
	for k := range g.registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// session is the state of one Grade call. The notebook is executed at most
// once per session and shared by the execution checks.
type session struct {
	Request
	selected []CheckSpec
	loc      *locate.Locator
	exec     *execOutcome
}

type execOutcome struct {
	res sandbox.ExecResult
	err error
}

func (g *DefaultGrader) Grade(ctx context.Context, req Request) (Result, error) {
	if req.StartedAt.IsZero() {
		req.StartedAt = time.Now()
	}
	checks, err := selectChecks(req.Checks, req.Only)
	if err != nil {
		return Result{}, err
	}
	s := &session{Request: req, selected: checks, loc: locate.New(req.WorkDir, req.Layout.WithDefaults())}

	result := Result{
		Kind:          ResultKind,
		SchemaVersion: SchemaVersion,
		AppVersion:    req.AppVersion,
		SuiteID:       req.SuiteID,
		SuiteVersion:  req.SuiteVersion,
		Run: RunInfo{
			RunID:           req.RunID,
			WorkDir:         s.loc.Root(),
			StartedAtUnixMS: req.StartedAt.UnixMilli(),
		},
	}
	g.info("run.start", map[string]any{"run_id": req.RunID, "suite": req.SuiteID, "checks": len(checks), "work_dir": s.loc.Root()})

	for _, check := range checks {
		start := time.Now()
		eval, err := g.evaluateCheck(ctx, s, check)
		if err != nil {
			return Result{}, fmt.Errorf("check %s: %w", check.ID, err)
		}
		eval = settle(eval, check)

		msg := eval.Message
		if eval.Status == StatusFail && check.OnFailMessage != "" {
			msg = check.OnFailMessage
		}
		if eval.Status == StatusPass && check.OnPassMessage != "" {
			msg = check.OnPassMessage
		}
		cr := CheckResult{
			ID:          check.ID,
			Type:        check.Type,
			Description: check.Description,
			Required:    check.Required,
			Status:      eval.Status,
			Kind:        eval.Kind,
			Summary:     eval.Summary,
			Message:     msg,
			DurationMS:  time.Since(start).Milliseconds(),
		}
		if eval.Artifact != nil {
			result.Artifacts = append(result.Artifacts, *eval.Artifact)
			cr.Artifacts = append(cr.Artifacts, ArtifactRef{Kind: eval.Artifact.Kind, Ref: eval.Artifact.Ref})
		}

		result.Score.Possible += check.Points
		switch eval.Status {
		case StatusPass:
			result.Counts.Pass++
			cr.PointsAwarded = check.Points
			result.Score.Earned += check.Points
		case StatusFail:
			result.Counts.Fail++
			if check.Required {
				result.Counts.RequiredFailed++
			}
		case StatusSkip:
			result.Counts.Skip++
		}
		result.Checks = append(result.Checks, cr)
		g.info("check.done", map[string]any{
			"run_id": req.RunID,
			"check":  check.ID,
			"status": string(cr.Status),
			"kind":   string(cr.Kind),
			"ms":     cr.DurationMS,
		})
	}

	if s.exec != nil {
		result.Engine.Engine = s.exec.res.Engine
	}
	if g.runner != nil && result.Engine.Engine != "" {
		if info, err := g.runner.Detect(ctx); err == nil {
			result.Engine.Version = info.Version
		}
	}

	finished := req.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	result.Run.FinishedAtUnixMS = finished.UnixMilli()
	result.Run.DurationMS = max(0, finished.Sub(req.StartedAt).Milliseconds())
	result.Passed = result.Counts.RequiredFailed == 0
	result.Fingerprint, err = Fingerprint(result.Checks)
	if err != nil {
		return Result{}, err
	}
	g.info("run.done", map[string]any{
		"run_id":      req.RunID,
		"passed":      result.Passed,
		"pass":        result.Counts.Pass,
		"fail":        result.Counts.Fail,
		"skip":        result.Counts.Skip,
		"fingerprint": result.Fingerprint,
	})
	return result, nil
}

// settle applies the skip rules: an unavailable environment never fails a
// check, and a missing artifact skips when the check allows it.
func settle(e evaluation, check CheckSpec) evaluation {
	if e.Status != StatusFail {
		return e
	}
	if e.Kind == KindEnvironmentUnavailable {
		e.Status = StatusSkip
	}
	if e.Kind == KindMissingArtifact && check.SkipIfMissing {
		e.Status = StatusSkip
	}
	return e
}

func selectChecks(all []CheckSpec, only []string) ([]CheckSpec, error) {
	if len(only) == 0 {
		return all, nil
	}
	var out []CheckSpec
	for _, id := range only {
		i := slices.IndexFunc(all, func(c CheckSpec) bool { return c.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("unknown check id %q", id)
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (g *DefaultGrader) evaluateCheck(ctx context.Context, s *session, check CheckSpec) (evaluation, error) {
	evaluator, ok := g.registry[check.Type]
	if !ok {
		return evaluation{}, fmt.Errorf("unknown check type %q", check.Type)
	}
	return evaluator(ctx, s, check)
}

func (g *DefaultGrader) info(msg string, fields map[string]any) {
	if g.log != nil {
		g.log.Info(msg, fields)
	}
}

func (g *DefaultGrader) logError(msg string, fields map[string]any) {
	if g.log != nil {
		g.log.Error(msg, fields)
	}
}

// layoutPath maps the layout keys to their configured paths; anything else
// is taken as a project-relative path.
func (s *session) layoutPath(p string) string {
	l := s.loc.Layout
	switch p {
	case "notebook":
		return l.Notebook
	case "dataset":
		return l.Dataset
	case "modules":
		return l.Modules
	case "figures":
		return l.Figures
	}
	return p
}

func (s *session) findFile(p, fallback string) (string, string, bool) {
	if p == "" {
		p = fallback
	}
	rel := s.layoutPath(p)
	abs, ok := s.loc.Find(rel)
	return abs, rel, ok
}

func notFound(rel, what string) evaluation {
	return fail(KindMissingArtifact, what+" missing", filepath.Base(rel)+" "+what+" not found")
}

func safeID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "artifact"
	}
	return unsafeRef.ReplaceAllString(s, "_")
}

var unsafeRef = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

func defaultInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

func joinLimited(items []string, limit int) string {
	if len(items) <= limit {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(items[:limit], ", "), len(items)-limit)
}

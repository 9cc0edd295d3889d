package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"bathygrade/internal/dataset"
	"bathygrade/internal/devtools"
	"bathygrade/internal/grading"
	"bathygrade/internal/locate"
	"bathygrade/internal/notebook"
	"bathygrade/internal/probe"
	"bathygrade/internal/sandbox"
	"bathygrade/internal/state"
	"bathygrade/internal/suites"
	"bathygrade/internal/telemetry"
)

// Version is overridden at build time.
var Version = "0.1.0"

// execTypes need a kernel.
var execTypes = []string{"notebook_executes", "function_probe", "python_imports"}

type App struct {
	cfg     Config
	console *log.Logger
	logger  *telemetry.JSONLogger
	store   Store

	suite  suites.Suite
	loc    *locate.Locator
	runner Runner
	grader *grading.DefaultGrader
	engine sandbox.EngineInfo
}

func New(cfg Config, console *log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if console == nil {
		console = log.New(io.Discard)
	}
	suite, err := suites.Resolve(cfg.Suite)
	if err != nil {
		return nil, fmt.Errorf("load suite: %w", err)
	}

	logger, err := telemetry.NewJSONLogger(cfg.LogPath)
	if err != nil {
		return nil, err
	}

	var store Store
	if cfg.HistoryPath != "" {
		s, err := openHistory(cfg.HistoryPath)
		if err != nil {
			_ = logger.Close()
			return nil, err
		}
		store = s
	}

	runner := newRunner(cfg, suite)
	a := &App{
		cfg:     cfg,
		console: console,
		logger:  logger,
		store:   store,
		suite:   suite,
		loc:     locate.New(cfg.WorkDir, suite.Layout),
		runner:  runner,
		grader:  grading.NewGrader(grading.Options{Runner: runner, Logger: logger}),
	}
	console.Debug("suite loaded", "suite", suite.SuiteID, "version", suite.Version, "path", suite.Path, "checks", len(suite.Checks))
	return a, nil
}

func newRunner(cfg Config, suite suites.Suite) *sandbox.Manager {
	image := cfg.Image
	if image == "" {
		image = suite.Sandbox.Image
	}
	if cfg.SandboxMode == "mock" {
		k := devtools.NewMockKernel()
		k.MissingModules = cfg.MissingModules
		return sandbox.NewManager("mock", sandbox.WithKernel(k))
	}
	return sandbox.NewManager(cfg.SandboxMode, sandbox.WithImage(image))
}

func openHistory(path string) (*state.SQLiteStore, error) {
	store, err := state.NewSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (a *App) Suite() suites.Suite { return a.suite }

// Config returns the validated configuration.
func (a *App) Config() Config { return a.cfg }

// Root is the resolved project directory.
func (a *App) Root() string { return a.loc.Root() }

func (a *App) Close() {
	if err := dataset.CloseShared(); err != nil {
		a.logger.Error("dataset.close_failed", map[string]any{"error": err.Error()})
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logger.Close()
}

func (a *App) timeout() time.Duration {
	if a.cfg.Timeout > 0 {
		return a.cfg.Timeout
	}
	return a.suite.Timeout()
}

func (a *App) execOptions() grading.ExecOptions {
	return grading.ExecOptions{
		Timeout:     a.timeout(),
		KernelName:  a.suite.Execution.Kernel,
		KeepScratch: a.cfg.KeepScratch,
		Container:   a.suite.Container(a.cfg.Image),
	}
}

// Check grades the project once. Only restricts the run to those check ids.
func (a *App) Check(ctx context.Context, only []string) (CheckOutcome, error) {
	runID := uuid.NewString()
	started := time.Now()
	if a.needsKernel(only) {
		a.prepareEngine(ctx)
	}
	inputs, err := digestInputs(a.loc, a.suite.SuiteID, only)
	if err != nil {
		a.console.Debug("inputs digest failed", "err", err)
	}

	res, err := a.grader.Grade(ctx, grading.Request{
		AppVersion:   Version,
		SuiteID:      a.suite.SuiteID,
		SuiteVersion: a.suite.Version,
		RunID:        runID,
		StartedAt:    started,
		WorkDir:      a.cfg.WorkDir,
		Layout:       a.suite.Layout,
		Checks:       a.suite.GradingChecks(),
		Only:         only,
		Execution:    a.execOptions(),
	})
	if err != nil {
		return CheckOutcome{}, err
	}

	out := CheckOutcome{Result: res, Inputs: inputs, Hints: Hints(res)}
	if a.store != nil {
		warning, err := a.record(ctx, res, inputs)
		if err != nil {
			a.logger.Error("history.write_failed", map[string]any{"run_id": runID, "error": err.Error()})
			out.Warnings = append(out.Warnings, "run history not recorded: "+err.Error())
		}
		if warning != "" {
			out.Warnings = append(out.Warnings, warning)
		}
	}
	return out, nil
}

func (a *App) needsKernel(only []string) bool {
	for _, c := range a.suite.Checks {
		if len(only) > 0 && !slices.Contains(only, c.ID) {
			continue
		}
		if slices.Contains(execTypes, c.Type) {
			return true
		}
	}
	return false
}

// prepareEngine detects the kernel once and removes containers left behind
// by earlier runs.
func (a *App) prepareEngine(ctx context.Context) {
	if a.engine.Name != "" {
		return
	}
	engine, err := a.runner.Detect(ctx)
	if err != nil {
		a.logger.Error("engine.detect_failed", map[string]any{"error": err.Error()})
		a.console.Warn("notebook execution unavailable, execution checks will be skipped", "err", err)
		return
	}
	a.engine = engine
	a.logger.Info("engine.detected", map[string]any{"engine": engine.Name, "version": engine.Version})
	a.console.Debug("engine detected", "engine", engine.Name, "version", engine.Version)
	if err := a.runner.CleanupOrphans(ctx); err != nil {
		a.console.Debug("orphan cleanup failed", "err", err)
	}
}

// record writes res to the history and compares it with the previous run
// over the same project. It returns a warning when the result changed while
// the graded artifacts did not.
func (a *App) record(ctx context.Context, res grading.Result, inputs string) (string, error) {
	prev, hadPrev, err := a.store.LastFingerprint(ctx, res.SuiteID, res.Run.WorkDir)
	if err != nil {
		return "", err
	}
	if err := a.store.StartRun(ctx, state.Run{
		RunID:        res.Run.RunID,
		SuiteID:      res.SuiteID,
		SuiteVersion: res.SuiteVersion,
		WorkDir:      res.Run.WorkDir,
		Engine:       res.Engine.Engine,
		Inputs:       inputs,
		StartTS:      time.UnixMilli(res.Run.StartedAtUnixMS),
	}); err != nil {
		return "", err
	}
	for _, c := range res.Checks {
		if err := a.store.RecordCheck(ctx, res.Run.RunID, state.CheckRecord{
			CheckID:    c.ID,
			Status:     string(c.Status),
			Kind:       string(c.Kind),
			Required:   c.Required,
			Message:    c.Message,
			DurationMS: c.DurationMS,
		}); err != nil {
			return "", err
		}
	}
	if err := a.store.FinishRun(ctx, res.Run.RunID, state.Outcome{
		Passed:      res.Passed,
		Pass:        res.Counts.Pass,
		Fail:        res.Counts.Fail,
		Skip:        res.Counts.Skip,
		Earned:      res.Score.Earned,
		Possible:    res.Score.Possible,
		Fingerprint: res.Fingerprint,
		Engine:      res.Engine.Engine,
		FinishTS:    time.UnixMilli(res.Run.FinishedAtUnixMS),
	}); err != nil {
		return "", err
	}

	if !hadPrev || inputs == "" || prev.Inputs != inputs || prev.Result == res.Fingerprint {
		return "", nil
	}
	a.logger.Error("run.nondeterministic", map[string]any{
		"run_id":      res.Run.RunID,
		"previous":    prev.RunID,
		"fingerprint": res.Fingerprint,
		"was":         prev.Result,
	})
	return fmt.Sprintf("results differ from run %s although the graded artifacts are unchanged", prev.RunID), nil
}

// Exec runs the notebook without grading it. With withProbe the reference
// probe cell is appended and its report parsed.
func (a *App) Exec(ctx context.Context, withProbe bool) (ExecReport, error) {
	path, ok := a.loc.Notebook()
	if !ok {
		return ExecReport{}, fmt.Errorf("notebook %s not found under %s", a.suite.Layout.Notebook, a.loc.Root())
	}
	nb, err := notebook.Load(path)
	if err != nil {
		return ExecReport{}, err
	}
	opts := a.execOptions()
	spec := sandbox.ExecSpec{
		RunID:        uuid.NewString(),
		Notebook:     nb,
		NotebookName: filepath.Base(path),
		KeepScratch:  opts.KeepScratch,
		Timeout:      opts.Timeout,
		KernelName:   opts.KernelName,
		Container:    opts.Container,
	}
	if data, ok := a.loc.FindDir(filepath.Dir(a.suite.Layout.Dataset)); ok {
		spec.DataDir = data
	}
	if mods, ok := a.loc.Modules(); ok {
		spec.ModulesDir = mods
	}
	if withProbe {
		spec.Probe = grading.ProbeScript(a.probeCheck())
	}

	a.prepareEngine(ctx)
	a.logger.Info("exec.start", map[string]any{"run_id": spec.RunID, "notebook": path, "probe": withProbe})
	res, err := a.runner.Execute(ctx, spec)
	rep := ExecReport{Notebook: path, Result: res}
	if err != nil {
		a.logger.Error("exec.failed", map[string]any{"run_id": spec.RunID, "error": err.Error()})
		return rep, err
	}
	a.logger.Info("exec.done", map[string]any{"run_id": spec.RunID, "engine": res.Engine, "ms": res.Duration.Milliseconds()})
	if withProbe {
		r := probe.Parse(res.ProbeOutput)
		rep.Probe = &r
	}
	return rep, nil
}

func (a *App) probeCheck() grading.CheckSpec {
	for _, c := range a.suite.GradingChecks() {
		if c.Type == "function_probe" {
			return c
		}
	}
	return grading.CheckSpec{Type: "function_probe"}
}

// Depth answers a nearest-neighbour lookup against the reference dataset.
// An empty path uses the project's dataset.
func (a *App) Depth(lat, lon float64, path string) (DepthAnswer, error) {
	if path == "" {
		p, ok := a.loc.Dataset()
		if !ok {
			return DepthAnswer{}, fmt.Errorf("dataset %s not found under %s", a.suite.Layout.Dataset, a.loc.Root())
		}
		path = p
	}
	grid, err := dataset.Shared(path)
	if err != nil {
		return DepthAnswer{}, err
	}
	depth, glat, glon, err := grid.Nearest(lat, lon)
	if err != nil {
		return DepthAnswer{}, err
	}
	return DepthAnswer{Dataset: grid.Path, Lat: lat, Lon: lon, GridLat: glat, GridLon: glon, Depth: depth}, nil
}

// History reads the run history. It does not create a database.
func (a *App) History(ctx context.Context, limit int) (HistoryView, error) {
	path := a.cfg.HistoryFile()
	store, closeFn, err := a.historyStore(path)
	if err != nil {
		return HistoryView{}, err
	}
	defer closeFn()

	view := HistoryView{Path: path}
	if view.Summary, err = store.GetSummary(ctx); err != nil {
		return HistoryView{}, err
	}
	if view.Runs, err = store.LastRuns(ctx, limit); err != nil {
		return HistoryView{}, err
	}
	return view, nil
}

// HistoryRun lists the checks recorded for runID.
func (a *App) HistoryRun(ctx context.Context, runID string) ([]state.CheckRecord, error) {
	store, closeFn, err := a.historyStore(a.cfg.HistoryFile())
	if err != nil {
		return nil, err
	}
	defer closeFn()
	checks, err := store.RunChecks(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(checks) == 0 {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return checks, nil
}

func (a *App) historyStore(path string) (Store, func(), error) {
	if a.store != nil {
		return a.store, func() {}, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("no run history at %s (run check with --history)", path)
		}
		return nil, nil, err
	}
	s, err := openHistory(path)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

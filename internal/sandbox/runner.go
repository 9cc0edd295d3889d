package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"bathygrade/internal/notebook"
)

const (
	DefaultTimeout      = 300 * time.Second
	DefaultKernelName   = "python3"
	DefaultNotebookName = "assignment.ipynb"
	executedSuffix      = ".executed.ipynb"
)

type Option func(*Manager)

// WithKernel installs k instead of detecting one. Used for the mock engine.
func WithKernel(k Kernel) Option {
	return func(m *Manager) { m.kernel = k }
}

// WithImage sets the image used by the container engines.
func WithImage(image string) Option {
	return func(m *Manager) { m.image = image }
}

type Manager struct {
	mode   string
	image  string
	kernel Kernel
	info   EngineInfo
}

func NewManager(mode string, opts ...Option) *Manager {
	if mode == "" {
		mode = "auto"
	}
	m := &Manager{mode: mode}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Mode() string { return m.mode }

// Detect picks the kernel for the configured mode. In auto mode a host
// jupyter wins over podman, podman over docker.
func (m *Manager) Detect(ctx context.Context) (EngineInfo, error) {
	if m.info.Name != "" {
		return m.info, nil
	}
	if m.kernel == nil {
		k, err := m.detectKernel(ctx)
		if err != nil {
			return EngineInfo{}, err
		}
		m.kernel = k
	}
	v, err := m.kernel.Version(ctx)
	if err != nil {
		return EngineInfo{}, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	m.info = EngineInfo{Name: m.kernel.Name(), Version: v}
	return m.info, nil
}

func (m *Manager) detectKernel(ctx context.Context) (Kernel, error) {
	switch m.mode {
	case "mock":
		return nil, fmt.Errorf("%w: mock kernel not configured", ErrEngineUnavailable)
	case "local":
		if err := validateLocal(); err != nil {
			return nil, err
		}
		return &LocalKernel{}, nil
	case "podman", "docker":
		if err := validateEngine(ctx, m.mode); err != nil {
			return nil, err
		}
		return &ContainerKernel{Engine: m.mode, Image: m.image}, nil
	case "auto":
		if err := validateLocal(); err == nil {
			return &LocalKernel{}, nil
		}
		if m.image != "" {
			for _, engine := range []string{"podman", "docker"} {
				if err := validateEngine(ctx, engine); err == nil {
					return &ContainerKernel{Engine: engine, Image: m.image}, nil
				}
			}
		}
		return nil, fmt.Errorf("%w: no jupyter on PATH and no usable container engine", ErrEngineUnavailable)
	default:
		return nil, fmt.Errorf("unknown sandbox mode %q", m.mode)
	}
}

func validateLocal() error {
	if _, err := exec.LookPath("jupyter"); err != nil {
		return fmt.Errorf("%w: jupyter not found in PATH", ErrEngineUnavailable)
	}
	return nil
}

func validateEngine(ctx context.Context, engine string) error {
	if _, err := exec.LookPath(engine); err != nil {
		return fmt.Errorf("%w: %s not found in PATH", ErrEngineUnavailable, engine)
	}
	out, err := exec.CommandContext(ctx, engine, "info").CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s info failed: %s", ErrEngineUnavailable, engine, strings.TrimSpace(string(out)))
	}
	return nil
}

// Execute stages the notebook into a scratch directory and runs every cell
// once under spec.Timeout. A probe cell, when given, runs last in the same
// kernel session.
func (m *Manager) Execute(ctx context.Context, spec ExecSpec) (ExecResult, error) {
	if spec.Notebook == nil {
		return ExecResult{}, errors.New("no notebook to execute")
	}
	info, err := m.Detect(ctx)
	if err != nil {
		return ExecResult{}, err
	}
	if spec.Timeout <= 0 {
		spec.Timeout = DefaultTimeout
	}
	if spec.KernelName == "" {
		spec.KernelName = DefaultKernelName
	}
	if spec.NotebookName == "" {
		spec.NotebookName = DefaultNotebookName
	}

	nb, err := spec.Notebook.Clone()
	if err != nil {
		return ExecResult{}, fmt.Errorf("copy notebook: %w", err)
	}
	probeCell := -1
	if spec.Probe != "" {
		probeCell = nb.AppendCode(spec.Probe)
	}

	scratch, cleanup, err := Stage(spec)
	if err != nil {
		return ExecResult{}, fmt.Errorf("stage scratch dir: %w", err)
	}
	if !spec.KeepScratch {
		defer cleanup()
	}
	if err := nb.Write(filepath.Join(scratch, spec.NotebookName)); err != nil {
		return ExecResult{}, fmt.Errorf("write staged notebook: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	out := strings.TrimSuffix(spec.NotebookName, ".ipynb") + executedSuffix
	start := time.Now()
	logOut, runErr := m.kernel.Run(cctx, scratch, spec.NotebookName, out, spec)
	res := ExecResult{
		Engine:     info.Name,
		ScratchDir: scratch,
		Duration:   time.Since(start),
		ProbeCell:  probeCell,
		Log:        string(logOut),
	}
	if runErr != nil {
		var ee *ExecError
		if !errors.As(runErr, &ee) {
			ee = parseFailure(string(logOut), nb, spec.Timeout, runErr)
		}
		ee.Limit = spec.Timeout
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			ee.Timeout = true
		}
		if ctx.Err() != nil && !ee.Timeout {
			return res, ctx.Err()
		}
		return res, ee
	}

	executed, err := loadExecuted(filepath.Join(scratch, out))
	if err != nil {
		return res, err
	}
	res.Notebook = executed
	if i, o, ok := executed.FirstError(); ok {
		return res, &ExecError{CellIndex: i, EName: o.EName, EValue: o.EValue, Trace: o.PlainText(), Limit: spec.Timeout}
	}
	if probeCell >= 0 {
		res.ProbeOutput = executed.CellText(probeCell)
	}
	return res, nil
}

// RunScript runs a Python snippet with the detected kernel's interpreter.
func (m *Manager) RunScript(ctx context.Context, dir, script string) ([]byte, error) {
	if _, err := m.Detect(ctx); err != nil {
		return nil, err
	}
	return m.kernel.Python(ctx, dir, script)
}

// CleanupOrphans removes containers left behind by interrupted runs.
func (m *Manager) CleanupOrphans(ctx context.Context) error {
	ck, ok := m.kernel.(*ContainerKernel)
	if !ok {
		return nil
	}
	listCmd := exec.CommandContext(ctx, ck.Engine, "ps", "-a", "--filter", "label="+runLabel, "--format", "{{.ID}}")
	out, err := listCmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("list containers: %s", strings.TrimSpace(string(out)))
	}
	for _, id := range strings.Fields(string(out)) {
		_ = exec.CommandContext(ctx, ck.Engine, "rm", "-f", id).Run()
	}
	return nil
}

func loadExecuted(path string) (*notebook.Notebook, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("executed notebook missing: %w", err)
	}
	return notebook.Load(path)
}

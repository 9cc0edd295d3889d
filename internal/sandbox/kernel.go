package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// LocalKernel runs nbconvert from the host PATH.
type LocalKernel struct {
	// Jupyter and Python override the executables looked up on PATH.
	Jupyter string
	Python3 string
}

func (k *LocalKernel) Name() string { return "local" }

func (k *LocalKernel) jupyter() string {
	if k.Jupyter != "" {
		return k.Jupyter
	}
	return "jupyter"
}

func (k *LocalKernel) python() string {
	if k.Python3 != "" {
		return k.Python3
	}
	return "python3"
}

func (k *LocalKernel) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, k.jupyter(), "nbconvert", "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("jupyter nbconvert --version failed: %s", strings.TrimSpace(string(out)))
	}
	return "nbconvert " + strings.TrimSpace(string(out)), nil
}

func (k *LocalKernel) Run(ctx context.Context, dir, in, out string, spec ExecSpec) ([]byte, error) {
	cmd := exec.CommandContext(ctx, k.jupyter(), nbconvertArgs(in, out, spec)...)
	cmd.Dir = dir
	return runCaptured(cmd)
}

func (k *LocalKernel) Python(ctx context.Context, dir, script string) ([]byte, error) {
	if _, err := exec.LookPath(k.python()); err != nil {
		return nil, fmt.Errorf("%w: %s not found in PATH", ErrEngineUnavailable, k.python())
	}
	cmd := exec.CommandContext(ctx, k.python(), "-c", script)
	cmd.Dir = dir
	return runCaptured(cmd)
}

func nbconvertArgs(in, out string, spec ExecSpec) []string {
	seconds := int(spec.Timeout / time.Second)
	if seconds <= 0 {
		seconds = int(DefaultTimeout / time.Second)
	}
	kernel := spec.KernelName
	if kernel == "" {
		kernel = DefaultKernelName
	}
	return []string{
		"nbconvert", "--to", "notebook", "--execute",
		fmt.Sprintf("--ExecutePreprocessor.timeout=%d", seconds),
		"--ExecutePreprocessor.kernel_name=" + kernel,
		"--output", out,
		in,
	}
}

// runCaptured runs cmd with stdout and stderr merged. When the context ends
// the whole process group is killed, so kernels started by nbconvert do not
// outlive the run. WaitDelay bounds Wait if a pipe is still held.
func runCaptured(cmd *exec.Cmd) ([]byte, error) {
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = 2 * time.Second
	err := cmd.Run()
	return buf.Bytes(), err
}

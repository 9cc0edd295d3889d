package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	runLabel  = "bathygrade.run"
	workMount = "/work"
)

// ContainerKernel runs nbconvert inside a throwaway docker or podman
// container with the scratch directory mounted at /work.
type ContainerKernel struct {
	Engine string
	Image  string
}

func (k *ContainerKernel) Name() string { return k.Engine }

func (k *ContainerKernel) Version(ctx context.Context) (string, error) {
	if k.Image == "" {
		return "", fmt.Errorf("no image configured for %s", k.Engine)
	}
	out, err := exec.CommandContext(ctx, k.Engine, "--version").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s --version failed: %w", k.Engine, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (k *ContainerKernel) Run(ctx context.Context, dir, in, out string, spec ExecSpec) ([]byte, error) {
	name := containerName(spec.RunID)
	c := spec.Container
	if c.Image == "" {
		c.Image = k.Image
	}
	args := buildRunArgs(k.Engine, name, spec.RunID, dir, c)
	args = append(args, append([]string{"jupyter"}, nbconvertArgs(in, out, spec)...)...)
	// The client process dying does not stop the container.
	defer k.remove(name)
	return runCaptured(exec.CommandContext(ctx, k.Engine, args...))
}

func (k *ContainerKernel) Python(ctx context.Context, dir, script string) ([]byte, error) {
	name := containerName("")
	args := buildRunArgs(k.Engine, name, "", dir, ContainerSpec{Image: k.Image})
	args = append(args, "python3", "-c", script)
	defer k.remove(name)
	return runCaptured(exec.CommandContext(ctx, k.Engine, args...))
}

func (k *ContainerKernel) remove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, k.Engine, "rm", "-f", name).Run()
}

func containerName(runID string) string {
	if runID == "" {
		runID = uuid.NewString()
	}
	id := strings.ReplaceAll(runID, "-", "")
	if len(id) > 12 {
		id = id[:12]
	}
	return "bathygrade-" + id + "-" + uuid.NewString()[:8]
}

func buildRunArgs(engine, name, runID, scratch string, spec ContainerSpec) []string {
	mountWork := ""
	if engine == "docker" {
		mountWork = fmt.Sprintf("type=bind,src=%s,dst=%s,rw", scratch, workMount)
	} else {
		selinux := ""
		if spec.UseSELinuxZ {
			selinux = ":Z"
		}
		mountWork = fmt.Sprintf("%s:%s:rw%s", scratch, workMount, selinux)
	}

	network := spec.Network
	if network == "" {
		network = "none"
	}
	cpu := spec.CPU
	if cpu <= 0 {
		cpu = 1.0
	}
	memoryMB := spec.MemoryMB
	if memoryMB <= 0 {
		memoryMB = 2048
	}
	pids := spec.PidsLimit
	if pids <= 0 {
		pids = 256
	}

	args := []string{
		"run", "--rm", "--name", name,
		"--hostname", "bathygrade",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--pids-limit", fmt.Sprintf("%d", pids),
		"--memory", fmt.Sprintf("%dm", memoryMB),
		"--cpus", fmt.Sprintf("%.2f", cpu),
		"--label", runLabel + "=" + runID,
		"-e", "LANG=C.UTF-8",
		"-e", "MPLBACKEND=Agg",
		"-w", workMount,
	}
	if engine == "podman" {
		// podman docs use lower-case "all", while docker accepts "ALL".
		args[7] = "all"
	}
	if network != "inherit" {
		args = append(args[:4], append([]string{"--network", network}, args[4:]...)...)
	}
	if spec.ReadOnlyRoot {
		args = append(args, "--read-only")
	}
	tmpfs := spec.Tmpfs
	if len(tmpfs) == 0 {
		tmpfs = []TmpfsMount{
			{Mount: "/tmp", Options: "rw,nosuid,size=256m"},
			{Mount: "/run", Options: "rw,noexec,nosuid,size=16m"},
		}
	}
	for _, tm := range tmpfs {
		if tm.Mount == "" {
			continue
		}
		opt := tm.Mount
		if tm.Options != "" {
			opt = tm.Mount + ":" + tm.Options
		}
		args = append(args, "--tmpfs", opt)
	}
	if engine == "docker" {
		args = append(args, "--mount", mountWork)
	} else {
		args = append(args, "-v", mountWork)
	}
	return append(args, spec.Image)
}

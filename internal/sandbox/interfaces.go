package sandbox

import "context"

type Runner interface {
	Detect(ctx context.Context) (EngineInfo, error)
	Execute(ctx context.Context, spec ExecSpec) (ExecResult, error)
	RunScript(ctx context.Context, dir, script string) ([]byte, error)
}

// Kernel executes a staged notebook. Run reads in and writes the executed
// notebook to out, both relative to dir, and returns the tool's log output.
type Kernel interface {
	Name() string
	Version(ctx context.Context) (string, error)
	Run(ctx context.Context, dir, in, out string, spec ExecSpec) ([]byte, error)
	Python(ctx context.Context, dir, script string) ([]byte, error)
}

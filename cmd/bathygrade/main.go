package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"bathygrade/internal/app"
	"bathygrade/internal/telemetry"
)

// Exit codes: 0 all required checks passed, 1 a required check failed,
// 2 the harness itself could not run.
const (
	exitFailed  = 1
	exitHarness = 2
)

// exitError carries a process exit status through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

var stdoutIsTerminal = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, "bathygrade:", ee.err)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintln(os.Stderr, "bathygrade:", err)
	os.Exit(exitHarness)
}

var flags struct {
	workDir     string
	suite       string
	sandbox     string
	image       string
	timeout     time.Duration
	dataDir     string
	logPath     string
	history     string
	keepScratch bool
	verbose     bool
}

var rootCmd = &cobra.Command{
	Use:           "bathygrade",
	Short:         "Grade bathymetry notebook exercises",
	Long:          "bathygrade checks a student's bathymetry exercise: the dataset, the figures, the notebook source, and the notebook run end to end.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.workDir, "workdir", "C", ".", "Project directory (or one directory below it)")
	pf.StringVar(&flags.suite, "suite", "builtin", "Suite manifest (suite.yaml) or \"builtin\"")
	pf.StringVar(&flags.sandbox, "sandbox", "auto", "Kernel: auto, local, docker, podman or mock")
	pf.StringVar(&flags.image, "image", "", "Container image for the docker and podman kernels")
	pf.DurationVar(&flags.timeout, "timeout", 0, "Notebook execution limit (default from the suite, 300s)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "State directory (default ~/.local/share/bathygrade)")
	pf.StringVar(&flags.logPath, "log", "", "Write JSON event log to this file")
	pf.StringVar(&flags.history, "history", "", "Record runs in this SQLite database")
	pf.BoolVar(&flags.keepScratch, "keep-scratch", false, "Keep the execution scratch directory")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Debug logging and detailed reports")
}

// loadConfig layers defaults, BATHYGRADE_* variables and explicit flags.
func loadConfig(cmd *cobra.Command) (app.Config, error) {
	cfg := app.DefaultConfig()
	if err := cfg.LoadEnv(); err != nil {
		return cfg, err
	}
	changed := cmd.Flags().Changed
	if changed("workdir") {
		cfg.WorkDir = flags.workDir
	}
	if changed("suite") {
		cfg.Suite = flags.suite
	}
	if changed("sandbox") {
		cfg.SandboxMode = flags.sandbox
	}
	if changed("image") {
		cfg.Image = flags.image
	}
	if changed("timeout") {
		cfg.Timeout = flags.timeout
	}
	if changed("data-dir") {
		cfg.DataDir = flags.dataDir
	}
	if changed("log") {
		cfg.LogPath = flags.logPath
	}
	if changed("history") {
		cfg.HistoryPath = flags.history
	}
	if changed("keep-scratch") {
		cfg.KeepScratch = flags.keepScratch
	}
	if changed("verbose") {
		cfg.Verbose = flags.verbose
	}
	return cfg, cfg.Validate()
}

func newApp(cmd *cobra.Command, mutate func(*app.Config)) (*app.App, *log.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, &exitError{code: exitHarness, err: err}
	}
	if mutate != nil {
		mutate(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, nil, &exitError{code: exitHarness, err: err}
		}
	}
	console := telemetry.NewConsole(cmd.ErrOrStderr(), cfg.Verbose)
	a, err := app.New(cfg, console)
	if err != nil {
		return nil, nil, &exitError{code: exitHarness, err: err}
	}
	return a, console, nil
}

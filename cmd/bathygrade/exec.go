package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bathygrade/internal/notebook"
	"bathygrade/internal/sandbox"
)

var execProbe bool

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Run the notebook once and print its outputs",
	Long:  "exec runs every cell of the notebook in a scratch copy of the project, without grading. With --probe the reference probe of the lookup function runs as a final cell.",
	Args:  cobra.NoArgs,
	RunE:  runExec,
}

func init() {
	execCmd.Flags().BoolVar(&execProbe, "probe", false, "Append the lookup function probe")
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, _ []string) error {
	a, console, err := newApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.Exec(cmd.Context(), execProbe)
	if err != nil {
		var execErr *sandbox.ExecError
		switch {
		case errors.As(err, &execErr):
			if execErr.Trace != "" {
				fmt.Fprintln(cmd.OutOrStdout(), notebook.StripANSI(strings.TrimRight(execErr.Trace, "\n")))
			}
			return &exitError{code: exitFailed, err: err}
		default:
			return &exitError{code: exitHarness, err: err}
		}
	}

	nb := rep.Result.Notebook
	for _, c := range nb.CodeCells() {
		if c.Number-1 == rep.Result.ProbeCell {
			continue
		}
		text := strings.TrimRight(nb.CellText(c.Number-1), "\n")
		if text == "" {
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "--- cell %d\n%s\n", c.Number, notebook.StripANSI(text))
	}
	console.Info("notebook ran", "engine", rep.Result.Engine, "duration", rep.Result.Duration.Round(time.Millisecond))
	if rep.Result.ScratchDir != "" && a.Config().KeepScratch {
		console.Info("scratch kept", "dir", rep.Result.ScratchDir)
	}

	if rep.Probe == nil {
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), "--- probe")
	fmt.Fprint(cmd.OutOrStdout(), rep.Result.ProbeOutput)
	if !rep.Probe.Found {
		return &exitError{code: exitFailed, err: errors.New("probe produced no report")}
	}
	if problems := rep.Probe.Problems(); len(problems) > 0 {
		return &exitError{code: exitFailed, err: fmt.Errorf("probe reported %d problem(s)", len(problems))}
	}
	return nil
}

package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"bathygrade/internal/app"
	"bathygrade/internal/report"
)

var (
	checkOnly   []string
	checkFormat string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Grade the project and print a report",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringArrayVar(&checkOnly, "only", nil, "Run only this check id, repeatable")
	checkCmd.Flags().StringVar(&checkFormat, "format", "text", "Report format: text, json or markdown")
	rootCmd.AddCommand(checkCmd)
}

func withFormat(cmd *cobra.Command) func(*app.Config) {
	return func(c *app.Config) {
		if cmd.Flags().Changed("format") {
			c.Format = checkFormat
		}
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	a, console, err := newApp(cmd, withFormat(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.Check(cmd.Context(), checkOnly)
	if err != nil {
		return &exitError{code: exitHarness, err: err}
	}
	if err := printOutcome(cmd.OutOrStdout(), console, a, out); err != nil {
		return &exitError{code: exitHarness, err: err}
	}
	if code := out.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

func reportOptions(a *app.App) report.Options {
	cfg := a.Config()
	return report.Options{
		Color:   stdoutIsTerminal,
		Render:  stdoutIsTerminal,
		Verbose: cfg.Verbose,
	}
}

func printOutcome(w io.Writer, console *log.Logger, a *app.App, out app.CheckOutcome) error {
	format := a.Config().Format
	if err := report.Write(w, format, out.Result, reportOptions(a)); err != nil {
		return err
	}
	if format == report.FormatText && len(out.Hints) > 0 {
		fmt.Fprintln(w)
		for _, h := range out.Hints {
			fmt.Fprintf(w, "hint %s: %s\n", h.CheckID, h.Text)
		}
	}
	for _, warning := range out.Warnings {
		console.Warn(warning)
	}
	return nil
}

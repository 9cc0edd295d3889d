package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var historyFlags struct {
	limit int
	run   string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded grading runs",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyFlags.limit, "limit", 20, "Number of runs to show")
	historyCmd.Flags().StringVar(&historyFlags.run, "run", "", "Show the checks of one run")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	a, _, err := newApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	if historyFlags.run != "" {
		checks, err := a.HistoryRun(ctx, historyFlags.run)
		if err != nil {
			return &exitError{code: exitHarness, err: err}
		}
		t := newTable("CHECK", "STATUS", "KIND", "MESSAGE")
		for _, c := range checks {
			t.Row(c.CheckID, c.Status, c.Kind, c.Message)
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	}

	view, err := a.History(ctx, historyFlags.limit)
	if err != nil {
		return &exitError{code: exitHarness, err: err}
	}
	t := newTable("RUN", "STARTED", "SUITE", "RESULT", "SCORE", "ENGINE", "FINGERPRINT")
	for _, r := range view.Runs {
		result := "running"
		if r.Finished {
			result = fmt.Sprintf("%s %d/%d/%d", passWord(r.Outcome.Passed), r.Outcome.Pass, r.Outcome.Fail, r.Outcome.Skip)
		}
		t.Row(
			r.RunID[:min(8, len(r.RunID))],
			humanize.Time(r.StartTS),
			r.SuiteID,
			result,
			strconv.Itoa(r.Outcome.Earned)+"/"+strconv.Itoa(r.Outcome.Possible),
			r.Engine,
			r.Outcome.Fingerprint,
		)
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d runs, %d passed, %d checks, %d distinct fingerprints\n",
		view.Path, view.Summary.Runs, view.Summary.Passed, view.Summary.ChecksRecorded, view.Summary.Fingerprints)
	return nil
}

func newTable(headers ...string) *table.Table {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
}

func passWord(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bathygrade/internal/app"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run the static checks whenever project files change",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", app.DefaultDebounce, "Quiet period before re-grading")
	watchCmd.Flags().StringArrayVar(&checkOnly, "only", nil, "Watch only this check id, repeatable")
	watchCmd.Flags().StringVar(&checkFormat, "format", "text", "Report format: text, json or markdown")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	a, console, err := newApp(cmd, withFormat(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console.Info("watching", "root", a.Root(), "checks", len(a.StaticChecks(checkOnly)))
	err = a.Watch(ctx, checkOnly, watchDebounce, func(out app.CheckOutcome) {
		if a.Config().Format == "text" {
			fmt.Fprintf(cmd.OutOrStdout(), "\n== %s\n", time.Now().Format("15:04:05"))
		}
		if err := printOutcome(cmd.OutOrStdout(), console, a, out); err != nil {
			console.Error("report failed", "err", err)
		}
	})
	if err != nil {
		return &exitError{code: exitHarness, err: err}
	}
	return nil
}

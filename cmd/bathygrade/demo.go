package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"bathygrade/internal/devtools"
)

var demoScenario string

var demoCmd = &cobra.Command{
	Use:   "demo DIR",
	Short: "Write a synthetic exercise project for trying the grader",
	Long: "demo scaffolds a complete project (notebook, dataset, modules, figures) shaped by a scenario. " +
		"Grade it with: bathygrade check --sandbox mock -C DIR",
	Args: cobra.ExactArgs(1),
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().StringVar(&demoScenario, "scenario", "pass", "One of: "+strings.Join(devtools.ScenarioNames(), ", "))
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	if !slices.Contains(devtools.ScenarioNames(), demoScenario) {
		return &exitError{code: exitHarness, err: fmt.Errorf("unknown scenario %q", demoScenario)}
	}
	dir := args[0]
	if err := devtools.Scaffold(dir, devtools.Resolve(demoScenario)); err != nil {
		return &exitError{code: exitHarness, err: err}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s project to %s\n", demoScenario, dir)
	return nil
}

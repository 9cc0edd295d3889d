package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bathygrade/internal/suites"
)

var schemaCheck string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the suite manifest JSON Schema",
	Long:  "schema prints the JSON Schema for suite.yaml. With --check it validates a manifest instead.",
	Args:  cobra.NoArgs,
	RunE:  runSchema,
}

func init() {
	schemaCmd.Flags().StringVar(&schemaCheck, "check", "", "Validate this suite manifest")
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, _ []string) error {
	if schemaCheck != "" {
		s, err := suites.Load(schemaCheck)
		if err != nil {
			return &exitError{code: exitFailed, err: err}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: suite %s %s, %d checks\n", schemaCheck, s.SuiteID, s.Version, len(s.Checks))
		return nil
	}
	raw, err := suites.GenerateJSONSchema()
	if err != nil {
		return &exitError{code: exitHarness, err: err}
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(raw))
	return err
}

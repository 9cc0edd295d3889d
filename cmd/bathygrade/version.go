package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"

	"bathygrade/internal/app"
	"bathygrade/internal/grading"
	"bathygrade/internal/suites"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "bathygrade %s (%s %s/%s)\n", app.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					fmt.Fprintf(cmd.OutOrStdout(), "revision %s\n", s.Value)
				}
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "report schema %d, suite schema %d\n", grading.SchemaVersion, suites.SupportedSchemaVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Package commands implements the rangingctl subcommands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rangingctl",
	Short: "Inspection and dry-run tooling for the ranging core",
	Long:  "rangingctl decodes OOB wire messages and runs the configuration selector offline against capability fixtures, without needing a live rangingd process.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(oobCmd())
	rootCmd.AddCommand(selectCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

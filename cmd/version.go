package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the build version, set with
// -ldflags "-X github.com/rajshirolkar/evaluation-copilot/cmd.Version=v1.2.3".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Args:  cobra.NoArgs,
	// No config or telemetry needed.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "eval-copilot %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

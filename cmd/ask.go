package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the model a question and print its answer",
	Long: `Send a question to the configured model and print the answer.

Multiple arguments are joined with spaces, so quoting is optional.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		answer, err := engine.Ask(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}

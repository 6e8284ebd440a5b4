package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rajshirolkar/evaluation-copilot/internal/playground"
)

var (
	flagTheme            string
	flagPlaygroundRubric string
)

var playgroundCmd = &cobra.Command{
	Use:   "playground",
	Short: "Interactive terminal UI to try rubrics by hand",
	Long: `Launch the Evaluation Playground: pick a rubric, type a question and
press ctrl+s. The model answers the question, the answer is scored against
the rubric and improvements are suggested.

Relevance and groundedness show a context box, prefilled with an example.

Logs are written to stderr; redirect it (2>playground.log) to keep the
screen clean.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rubric, err := rubricOrDefault(flagPlaygroundRubric)
		if err != nil {
			return err
		}
		engine, cleanup, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		p := &playground.Playground{
			Engine: engine,
			Theme:  playground.ThemeByName(flagTheme),
			Rubric: rubric,
		}
		return p.Run(cmd.Context())
	},
}

func init() {
	playgroundCmd.Flags().StringVar(&flagTheme, "theme", "dark", "Color theme: dark, light")
	playgroundCmd.Flags().StringVarP(&flagPlaygroundRubric, "rubric", "r", "", "initially selected rubric (default from config)")
	rootCmd.AddCommand(playgroundCmd)
}

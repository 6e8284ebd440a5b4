package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/rajshirolkar/evaluation-copilot/internal/model"
)

var (
	flagImpQuestion      string
	flagImpAnswer        string
	flagImpContext       string
	flagImpScore         float64
	flagImpJustification string
	flagImpJSON          bool
)

var improveCmd = &cobra.Command{
	Use:   "improve",
	Short: "Suggest a better question and answer given a prior evaluation",
	Long: `Ask the model for improved formulations of a question and its answer,
given the score and justification they received.

A dimension the model considers already satisfactory is reported as
"no change suggested".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, cleanup, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		req := model.NewImprovementRequest(
			model.NewEvaluationRequest(flagImpQuestion, flagImpAnswer, flagImpContext),
			model.EvaluationResult{Score: flagImpScore, Justification: flagImpJustification},
		)
		result, err := engine.SuggestImprovements(cmd.Context(), req)
		if err != nil {
			return err
		}

		if flagImpJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		printImprovements(cmd.OutOrStdout(), result.QuestionImprovement, result.AnswerImprovement)
		return nil
	},
}

func init() {
	f := improveCmd.Flags()
	f.StringVarP(&flagImpQuestion, "question", "q", "", "the question (required)")
	f.StringVarP(&flagImpAnswer, "answer", "a", "", "the answer (required)")
	f.StringVarP(&flagImpContext, "context", "c", "", "reference context")
	f.Float64Var(&flagImpScore, "score", 0, "score the answer received")
	f.StringVar(&flagImpJustification, "justification", "", "justification of the score")
	f.BoolVar(&flagImpJSON, "json", false, "print the result as JSON")
	_ = improveCmd.MarkFlagRequired("question")
	_ = improveCmd.MarkFlagRequired("answer")
	rootCmd.AddCommand(improveCmd)
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rajshirolkar/evaluation-copilot/internal/evaluator"
	"github.com/rajshirolkar/evaluation-copilot/internal/model"
)

var (
	flagEvalQuestion string
	flagEvalAnswer   string
	flagEvalContext  string
	flagEvalRubric   string
	flagEvalAsk      bool
	flagEvalImprove  bool
	flagEvalJSON     bool
)

// evaluationOutput is the --json shape of evaluate.
type evaluationOutput struct {
	model.EvaluationRequest
	Rubric        model.Rubric `json:"rubric"`
	Score         float64      `json:"score"`
	Justification string       `json:"justification"`

	QuestionImprovement *string `json:"question_improvement,omitempty"`
	AnswerImprovement   *string `json:"answer_improvement,omitempty"`
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score an answer to a question against a rubric",
	Long: `Evaluate an answer with the LLM judge and print the score and its
justification.

With --ask the answer is obtained from the model itself instead of
--answer. With --improve, improved formulations of the question and the
answer are suggested after scoring.

The relevance and groundedness rubrics require --context.`,
	Example: `  eval-copilot evaluate --question "What is the capital of France?" --answer Paris
  eval-copilot evaluate --rubric groundedness --context "$(cat france.txt)" \
      --question "What is the capital of France?" --ask --improve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rubric, err := rubricOrDefault(flagEvalRubric)
		if err != nil {
			return err
		}
		req := model.NewEvaluationRequest(flagEvalQuestion, flagEvalAnswer, flagEvalContext)
		// Fail before asking the model for an answer that cannot be scored.
		if evaluator.RequiresContext(rubric) && !req.HasContext() {
			return &evaluator.MissingContextError{Rubric: rubric}
		}

		engine, cleanup, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		if flagEvalAsk {
			req.Answer, err = engine.Ask(cmd.Context(), req.Question)
			if err != nil {
				return fmt.Errorf("asking for an answer: %w", err)
			}
		}

		result, err := engine.Evaluate(cmd.Context(), req, rubric)
		if err != nil {
			return err
		}
		out := evaluationOutput{
			EvaluationRequest: req,
			Rubric:            rubric,
			Score:             result.Score,
			Justification:     result.Justification,
		}

		if flagEvalImprove {
			imp, err := engine.SuggestImprovements(cmd.Context(), model.NewImprovementRequest(req, *result))
			if err != nil {
				return err
			}
			out.QuestionImprovement = imp.QuestionImprovement
			out.AnswerImprovement = imp.AnswerImprovement
		}

		if flagEvalJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		printEvaluation(cmd.OutOrStdout(), out, flagEvalAsk, flagEvalImprove)
		return nil
	},
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVarP(&flagEvalQuestion, "question", "q", "", "the question (required)")
	f.StringVarP(&flagEvalAnswer, "answer", "a", "", "the answer to evaluate")
	f.StringVarP(&flagEvalContext, "context", "c", "", "reference context (required by relevance and groundedness)")
	f.StringVarP(&flagEvalRubric, "rubric", "r", "", "rubric: general, relevance, coherence, fluency, groundedness (default from config)")
	f.BoolVar(&flagEvalAsk, "ask", false, "obtain the answer from the model")
	f.BoolVar(&flagEvalImprove, "improve", false, "suggest improved question and answer")
	f.BoolVar(&flagEvalJSON, "json", false, "print the result as JSON")
	_ = evaluateCmd.MarkFlagRequired("question")
	evaluateCmd.MarkFlagsMutuallyExclusive("ask", "answer")
	evaluateCmd.MarkFlagsOneRequired("ask", "answer")
	rootCmd.AddCommand(evaluateCmd)
}

func printEvaluation(w io.Writer, out evaluationOutput, showAnswer, showImprovements bool) {
	lo, hi := evaluator.ScoreRange(out.Rubric)
	if showAnswer {
		fmt.Fprintf(w, "Answer:        %s\n", out.Answer)
	}
	fmt.Fprintf(w, "Rubric:        %s\n", out.Rubric)
	fmt.Fprintf(w, "Score:         %g (%d-%d)\n", out.Score, lo, hi)
	fmt.Fprintf(w, "Justification: %s\n", indentContinuation(out.Justification, 15))
	if showImprovements {
		printImprovements(w, out.QuestionImprovement, out.AnswerImprovement)
	}
}

func printImprovements(w io.Writer, question, answer *string) {
	fmt.Fprintf(w, "Question improvement: %s\n", suggestionOrNone(question))
	fmt.Fprintf(w, "Answer improvement:   %s\n", suggestionOrNone(answer))
}

func suggestionOrNone(s *string) string {
	if s == nil {
		return "(no change suggested)"
	}
	return indentContinuation(*s, 22)
}

// indentContinuation indents every line after the first by n spaces.
func indentContinuation(s string, n int) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n"+strings.Repeat(" ", n))
}

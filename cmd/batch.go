package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rajshirolkar/evaluation-copilot/internal/batch"
	"github.com/rajshirolkar/evaluation-copilot/internal/evaluator"
)

var (
	flagBatchIn       string
	flagBatchOut      string
	flagBatchRubric   string
	flagBatchParallel int
	flagBatchImprove  bool
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Evaluate every row of a CSV file",
	Long: `Evaluate question/answer pairs read from a CSV file with a header row
containing "question" and "answer" and, optionally, "context".

Rows are evaluated concurrently (--parallel) and written in input order to
--out (default: stdout) with the score, justification, improvements and,
for failed rows, the error. A failing row never stops the batch; the
command exits non-zero when any row failed.`,
	Example: `  eval-copilot batch --in qa.csv --out scored.csv --rubric coherence --parallel 8`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rubric, err := rubricOrDefault(flagBatchRubric)
		if err != nil {
			return err
		}
		parallel := cfg.Parallel
		if cmd.Flags().Changed("parallel") {
			parallel = flagBatchParallel
		}
		if parallel <= 0 {
			return fmt.Errorf("invalid --parallel %d: must be positive", parallel)
		}

		in, err := os.Open(flagBatchIn)
		if err != nil {
			return err
		}
		items, err := batch.ReadCSV(in)
		in.Close()
		if err != nil {
			return fmt.Errorf("reading %s: %w", flagBatchIn, err)
		}

		engine, cleanup, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		runner := &batch.Runner{
			Engine:   engine,
			Rubric:   rubric,
			Parallel: parallel,
			Improve:  flagBatchImprove,
			OnResult: func(i int, r batch.Result) {
				if r.Err != nil {
					slog.Debug("batch item failed", "row", i+1, "error_kind", evaluator.Kind(r.Err), "error", r.Err)
				}
			},
		}
		slog.Info("batch started", "items", len(items), "rubric", rubric.String(), "parallel", parallel)
		results := runner.Run(cmd.Context(), items)

		var w io.Writer = cmd.OutOrStdout()
		if flagBatchOut != "" && flagBatchOut != "-" {
			f, err := os.Create(flagBatchOut)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		if err := batch.WriteCSV(w, results); err != nil {
			return fmt.Errorf("writing results: %w", err)
		}

		stats := batch.Summarize(results)
		slog.Info("batch finished", "items", stats.Total, "failed", stats.Failed, "mean_score", stats.Mean)
		if stats.Failed > 0 {
			return fmt.Errorf("%d of %d rows failed", stats.Failed, stats.Total)
		}
		return nil
	},
}

func init() {
	f := batchCmd.Flags()
	f.StringVar(&flagBatchIn, "in", "", "input CSV file (required)")
	f.StringVar(&flagBatchOut, "out", "", "output CSV file (default: stdout)")
	f.StringVarP(&flagBatchRubric, "rubric", "r", "", "rubric for every row (default from config)")
	f.IntVar(&flagBatchParallel, "parallel", 0, "concurrent evaluations (default from config)")
	f.BoolVar(&flagBatchImprove, "improve", false, "also suggest improvements for each row")
	_ = batchCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(batchCmd)
}

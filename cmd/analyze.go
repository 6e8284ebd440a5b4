package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rajshirolkar/evaluation-copilot/internal/model"
	"github.com/rajshirolkar/evaluation-copilot/internal/store"
)

var (
	flagDB            string
	flagAnalyzeRubric string
	flagAnalyzeJSON   bool

	flagRecordsScore    float64
	flagRecordsContains string
	flagRecordsLimit    int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Query recorded and imported evaluations",
	Long: `Analyze the evaluation store, a DuckDB database filled by --record or
by importing a CSV of earlier evaluations.

The store lives at db_path from the config (default:
~/.local/share/eval-copilot/evaluations.duckdb); override with --db.`,
}

var analyzeImportCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import evaluations from a CSV file",
	Long: `Import a CSV with a header row containing question, answer, score and
justification columns, and optionally rubric and context. Rows without a
rubric are stored as "general".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(st *store.Store) error {
			n, err := st.ImportCSV(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d evaluations from %s\n", n, args[0])
			return nil
		})
	},
}

var analyzeExportCmd = &cobra.Command{
	Use:   "export <file.csv>",
	Short: "Export all evaluations to a CSV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(st *store.Store) error {
			if err := st.ExportCSV(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported evaluations to %s\n", args[0])
			return nil
		})
	},
}

var analyzeSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print count, mean, min and max score",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(st *store.Store) error {
			sum, err := st.Summary(cmd.Context(), flagAnalyzeRubric)
			if err != nil {
				return err
			}
			if flagAnalyzeJSON {
				return writeJSON(cmd.OutOrStdout(), sum)
			}
			w := cmd.OutOrStdout()
			if sum.Count == 0 {
				fmt.Fprintln(w, "no evaluations")
				return nil
			}
			fmt.Fprintf(w, "count: %d\nmean:  %.2f\nmin:   %g\nmax:   %g\n", sum.Count, sum.Mean, sum.Min, sum.Max)
			return nil
		})
	},
}

var analyzeHistogramCmd = &cobra.Command{
	Use:   "histogram",
	Short: "Print the score distribution",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(st *store.Store) error {
			buckets, err := st.ScoreDistribution(cmd.Context(), flagAnalyzeRubric)
			if err != nil {
				return err
			}
			if flagAnalyzeJSON {
				return writeJSON(cmd.OutOrStdout(), buckets)
			}
			printHistogram(cmd.OutOrStdout(), buckets, 40)
			return nil
		})
	},
}

var analyzeRecordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List evaluations, newest first",
	Example: `  eval-copilot analyze records --score 1
  eval-copilot analyze records --contains inaccurate --rubric groundedness`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := store.Filter{
			Rubric:                flagAnalyzeRubric,
			JustificationContains: flagRecordsContains,
			Limit:                 flagRecordsLimit,
		}
		if cmd.Flags().Changed("score") {
			f.Score = &flagRecordsScore
		}
		return withStore(cmd.Context(), func(st *store.Store) error {
			recs, err := st.Query(cmd.Context(), f)
			if err != nil {
				return err
			}
			if flagAnalyzeJSON {
				if recs == nil {
					recs = []model.EvaluationRecord{}
				}
				return writeJSON(cmd.OutOrStdout(), recs)
			}
			printRecords(cmd.OutOrStdout(), recs)
			return nil
		})
	},
}

func init() {
	pf := analyzeCmd.PersistentFlags()
	pf.StringVar(&flagDB, "db", "", "evaluation store path (default from config)")
	pf.StringVarP(&flagAnalyzeRubric, "rubric", "r", "", "only evaluations with this rubric")
	pf.BoolVar(&flagAnalyzeJSON, "json", false, "print JSON")

	rf := analyzeRecordsCmd.Flags()
	rf.Float64Var(&flagRecordsScore, "score", 0, "only evaluations with exactly this score")
	rf.StringVar(&flagRecordsContains, "contains", "", "only evaluations whose justification contains this text (case-insensitive)")
	rf.IntVar(&flagRecordsLimit, "limit", 20, "maximum number of records (0 for all)")

	analyzeCmd.AddCommand(analyzeImportCmd, analyzeExportCmd, analyzeSummaryCmd, analyzeHistogramCmd, analyzeRecordsCmd)
	rootCmd.AddCommand(analyzeCmd)
}

// withStore opens the evaluation store for the duration of fn.
func withStore(ctx context.Context, fn func(*store.Store) error) error {
	path := flagDB
	if path == "" {
		path = cfg.DBPath
	}
	st, err := store.Open(ctx, path)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printHistogram draws one bar per score, scaled so the largest bucket
// spans width cells.
func printHistogram(w io.Writer, buckets []store.Bucket, width int) {
	if len(buckets) == 0 {
		fmt.Fprintln(w, "no evaluations")
		return
	}
	var peak int64
	for _, b := range buckets {
		peak = max(peak, b.Count)
	}
	for _, b := range buckets {
		n := int(b.Count * int64(width) / peak)
		if n == 0 && b.Count > 0 {
			n = 1
		}
		fmt.Fprintf(w, "%5g │ %s %d\n", b.Score, strings.Repeat("█", n), b.Count)
	}
}

func printRecords(w io.Writer, recs []model.EvaluationRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no evaluations")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tRUBRIC\tSCORE\tQUESTION\tJUSTIFICATION")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%s\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Rubric,
			r.Score,
			oneLine(r.Question, 40),
			oneLine(r.Justification, 60),
		)
	}
	tw.Flush()
}

// oneLine collapses whitespace and cuts s to at most n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

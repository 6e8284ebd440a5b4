// Package batch evaluates many question/answer pairs at once, reading them
// from CSV and writing the scores back out as CSV.
package batch

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/pool"

	"github.com/rajshirolkar/evaluation-copilot/internal/evaluator"
	"github.com/rajshirolkar/evaluation-copilot/internal/model"
)

// Engine is the part of *evaluator.Engine the runner needs.
type Engine interface {
	Evaluate(ctx context.Context, req model.EvaluationRequest, rubric model.Rubric) (*model.EvaluationResult, error)
	SuggestImprovements(ctx context.Context, req model.ImprovementRequest) (*model.ImprovementResult, error)
}

// Item is one input row.
type Item struct {
	Question string
	Answer   string
	Context  *string
}

// Request converts the item into an evaluation request.
func (it Item) Request() model.EvaluationRequest {
	return model.NewEvaluationRequest(it.Question, it.Answer, model.Deref(it.Context))
}

// Result is the outcome for one Item. Err is set when any step failed;
// Evaluation may still be present when only the improvement step failed.
type Result struct {
	Item        Item
	Rubric      model.Rubric
	Evaluation  *model.EvaluationResult
	Improvement *model.ImprovementResult
	Err         error
}

// ReadCSV reads items from CSV with a header row. The question and answer
// columns are required, context is optional; column order is free and
// names are case-insensitive. Other columns are ignored.
func ReadCSV(r io.Reader) ([]Item, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading CSV: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	idx := map[string]int{}
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	qi, okQ := idx["question"]
	ai, okA := idx["answer"]
	if !okQ || !okA {
		return nil, fmt.Errorf("reading CSV: header must contain question and answer columns, got %v", header)
	}
	ci, okC := idx["context"]

	var items []Item
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV line %d: %w", line, err)
		}
		it := Item{Question: field(rec, qi), Answer: field(rec, ai)}
		if okC {
			if c := field(rec, ci); strings.TrimSpace(c) != "" {
				it.Context = &c
			}
		}
		if strings.TrimSpace(it.Question) == "" && strings.TrimSpace(it.Answer) == "" {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

// Runner evaluates items concurrently.
type Runner struct {
	Engine   Engine
	Rubric   model.Rubric
	Parallel int
	// Improve also asks for improvement suggestions after each successful evaluation.
	Improve bool
	// OnResult, if set, is called as each item finishes, from the worker goroutine.
	OnResult func(index int, r Result)
}

// Run evaluates every item and returns results in input order. Per-item
// failures are reported on the Result and never stop the batch.
func (r *Runner) Run(ctx context.Context, items []Item) []Result {
	parallel := r.Parallel
	if parallel <= 0 {
		parallel = 1
	}

	type indexed struct {
		i int
		r Result
	}
	p := pool.NewWithResults[indexed]().WithMaxGoroutines(parallel)
	for i, it := range items {
		p.Go(func() indexed {
			res := r.runOne(ctx, it)
			if r.OnResult != nil {
				r.OnResult(i, res)
			}
			return indexed{i: i, r: res}
		})
	}

	out := make([]Result, len(items))
	for _, ir := range p.Wait() {
		out[ir.i] = ir.r
	}
	return out
}

func (r *Runner) runOne(ctx context.Context, it Item) Result {
	res := Result{Item: it, Rubric: r.Rubric}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	req := it.Request()
	eval, err := r.Engine.Evaluate(ctx, req, r.Rubric)
	if err != nil {
		res.Err = err
		return res
	}
	res.Evaluation = eval

	if r.Improve {
		imp, err := r.Engine.SuggestImprovements(ctx, model.NewImprovementRequest(req, *eval))
		if err != nil {
			res.Err = fmt.Errorf("improve: %w", err)
			return res
		}
		res.Improvement = imp
	}
	return res
}

// Stats counts results by outcome.
type Stats struct {
	Total  int
	Failed int
	Mean   float64
}

// Summarize returns counts and the mean score of successful evaluations.
func Summarize(results []Result) Stats {
	var s Stats
	var sum float64
	var scored int
	for _, r := range results {
		s.Total++
		if r.Err != nil {
			s.Failed++
		}
		if r.Evaluation != nil {
			sum += r.Evaluation.Score
			scored++
		}
	}
	if scored > 0 {
		s.Mean = sum / float64(scored)
	}
	return s
}

var outputHeader = []string{
	"question", "answer", "context", "rubric", "score", "justification",
	"question_improvement", "answer_improvement", "error",
}

// WriteCSV writes results with a header row. Failed rows keep their inputs
// and carry the error as "kind: message".
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(outputHeader); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			r.Item.Question,
			r.Item.Answer,
			model.Deref(r.Item.Context),
			r.Rubric.String(),
			"", "", "", "", "",
		}
		if r.Evaluation != nil {
			row[4] = strconv.FormatFloat(r.Evaluation.Score, 'f', -1, 64)
			row[5] = r.Evaluation.Justification
		}
		if r.Improvement != nil {
			row[6] = model.Deref(r.Improvement.QuestionImprovement)
			row[7] = model.Deref(r.Improvement.AnswerImprovement)
		}
		if r.Err != nil {
			row[8] = evaluator.Kind(r.Err) + ": " + r.Err.Error()
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

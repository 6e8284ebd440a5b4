package store

import (
	"context"
	"log/slog"

	"github.com/rajshirolkar/evaluation-copilot/internal/evaluator"
	"github.com/rajshirolkar/evaluation-copilot/internal/model"
)

// Record persists successful engine calls, which makes Store an
// evaluator.Recorder. Evaluations become new rows; improvement suggestions
// are attached to the latest row for the same question and answer. Storage
// errors are logged, never returned.
func (s *Store) Record(ctx context.Context, r evaluator.Record) {
	if r.Err != nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	switch r.Operation {
	case evaluator.OpEvaluate:
		if r.Evaluation == nil || r.EvaluationResult == nil {
			return
		}
		_, err := s.Insert(ctx, model.EvaluationRecord{
			Rubric:        r.Rubric.String(),
			Question:      r.Evaluation.Question,
			Answer:        r.Evaluation.Answer,
			Context:       r.Evaluation.Context,
			Score:         r.EvaluationResult.Score,
			Justification: r.EvaluationResult.Justification,
			Provider:      r.Provider,
			Model:         r.Model,
			CreatedAt:     r.At.UTC(),
		})
		if err != nil {
			slog.Warn("store: recording evaluation failed", "error", err)
		}

	case evaluator.OpImprove:
		if r.Improvement == nil || r.ImprovementResult == nil {
			return
		}
		found, err := s.AttachImprovement(ctx, r.Improvement.Question, r.Improvement.Answer, *r.ImprovementResult)
		if err != nil {
			slog.Warn("store: recording improvement failed", "error", err)
			return
		}
		if !found {
			slog.Debug("store: no evaluation to attach improvement to", "question", r.Improvement.Question)
		}
	}
}

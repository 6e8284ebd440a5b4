// Package evaluator scores question/answer pairs against a rubric and
// suggests improvements, using an LLM as the judge.
//
// Go code renders the prompt and parses the reply. The score and every
// piece of feedback come from the model; nothing here inspects the answer
// itself beyond checking that it is non-empty.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rajshirolkar/evaluation-copilot/internal/llm"
	"github.com/rajshirolkar/evaluation-copilot/internal/model"
	telem "github.com/rajshirolkar/evaluation-copilot/internal/otel"
)

var tracer = otel.Tracer("eval-copilot/evaluator")

// Engine runs evaluations and improvement suggestions through a Model
// Client. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	client   llm.Client
	recorder Recorder
	metrics  *telem.Metrics
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder sends one Record per call to r. A nil r disables recording.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithMetrics records call counts, scores and token usage on m.
func WithMetrics(m *telem.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New returns an Engine that sends prompts through client.
func New(client llm.Client, opts ...Option) *Engine {
	e := &Engine{client: client, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Provider returns the provider name of the underlying client.
func (e *Engine) Provider() string { return e.client.Provider() }

// Model returns the model name of the underlying client.
func (e *Engine) Model() string { return e.client.Model() }

// Evaluate scores req under rubric.
func (e *Engine) Evaluate(ctx context.Context, req model.EvaluationRequest, rubric model.Rubric) (result *model.EvaluationResult, err error) {
	ctx, span := tracer.Start(ctx, "evaluate "+rubric.String(),
		trace.WithAttributes(attribute.String("evaluation.rubric", rubric.String())))
	defer span.End()

	rec := Record{
		Operation:  OpEvaluate,
		Rubric:     rubric,
		Evaluation: &req,
		Provider:   e.client.Provider(),
		Model:      e.client.Model(),
		At:         e.now(),
	}
	defer func() {
		rec.EvaluationResult = result
		rec.Err = err
		e.finish(ctx, span, &rec)
		outcome := outcomeOf(err)
		e.metrics.RecordEvaluation(ctx, rubric.String(), outcome)
		if result != nil {
			e.metrics.RecordScore(ctx, rubric.String(), result.Score)
			span.SetAttributes(attribute.Float64("evaluation.score", result.Score))
		}
	}()

	spec, ok := rubricSpecs[rubric]
	if !ok {
		return nil, &InvalidRequestError{Field: "rubric", Reason: fmt.Sprintf("%q is not known", rubric)}
	}
	if err := validate(req.Question, req.Answer); err != nil {
		return nil, err
	}
	if spec.requiresContext && !req.HasContext() {
		return nil, &MissingContextError{Rubric: rubric}
	}

	prompt, err := renderEvaluationPrompt(spec, req)
	if err != nil {
		return nil, err
	}
	rec.Prompt = prompt

	raw, err := e.send(ctx, prompt, &rec)
	if err != nil {
		return nil, err
	}
	return parseEvaluation(raw, spec)
}

// SuggestImprovements asks the model how the question and answer could be
// made better, given an earlier evaluation.
func (e *Engine) SuggestImprovements(ctx context.Context, req model.ImprovementRequest) (result *model.ImprovementResult, err error) {
	ctx, span := tracer.Start(ctx, "improve")
	defer span.End()

	rec := Record{
		Operation:   OpImprove,
		Improvement: &req,
		Provider:    e.client.Provider(),
		Model:       e.client.Model(),
		At:          e.now(),
	}
	defer func() {
		rec.ImprovementResult = result
		rec.Err = err
		e.finish(ctx, span, &rec)
		e.metrics.RecordImprovement(ctx, outcomeOf(err))
	}()

	if err := validate(req.Question, req.Answer); err != nil {
		return nil, err
	}

	prompt, err := renderImprovementPrompt(req)
	if err != nil {
		return nil, err
	}
	rec.Prompt = prompt

	raw, err := e.send(ctx, prompt, &rec)
	if err != nil {
		return nil, err
	}
	return parseImprovement(raw)
}

// Ask sends question to the model as-is and returns its answer text. It is
// how callers obtain an answer to evaluate.
func (e *Engine) Ask(ctx context.Context, question string) (string, error) {
	ctx, span := tracer.Start(ctx, "ask")
	defer span.End()

	q := strings.TrimSpace(question)
	if q == "" {
		err := &InvalidRequestError{Field: "question"}
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	completion, err := e.client.Send(ctx, q)
	if err != nil {
		err = &ModelUnavailableError{Provider: e.client.Provider(), Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	e.metrics.RecordTokens(ctx, e.client.Provider(), e.client.Model(),
		completion.Usage.InputTokens, completion.Usage.OutputTokens)
	return strings.TrimSpace(completion.Text), nil
}

func (e *Engine) send(ctx context.Context, prompt string, rec *Record) (string, error) {
	completion, err := e.client.Send(ctx, prompt)
	if err != nil {
		return "", &ModelUnavailableError{Provider: e.client.Provider(), Err: err}
	}
	rec.RawResponse = completion.Text
	rec.Usage = completion.Usage
	e.metrics.RecordTokens(ctx, e.client.Provider(), e.client.Model(),
		completion.Usage.InputTokens, completion.Usage.OutputTokens)
	return completion.Text, nil
}

// finish closes out the span and hands the record to the recorder. A
// panicking recorder is logged and otherwise ignored.
func (e *Engine) finish(ctx context.Context, span trace.Span, rec *Record) {
	rec.Duration = e.now().Sub(rec.At)
	e.metrics.RecordLatency(ctx, rec.Operation, rec.Duration.Seconds())

	if rec.Err != nil {
		span.RecordError(rec.Err)
		span.SetStatus(codes.Error, rec.Err.Error())
		span.SetAttributes(attribute.String("error.type", Kind(rec.Err)))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	if e.recorder == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("recorder panicked", "operation", rec.Operation, "panic", fmt.Sprint(r))
		}
	}()
	e.recorder.Record(ctx, *rec)
}

func validate(question, answer string) error {
	if strings.TrimSpace(question) == "" {
		return &InvalidRequestError{Field: "question"}
	}
	if strings.TrimSpace(answer) == "" {
		return &InvalidRequestError{Field: "answer"}
	}
	return nil
}

func outcomeOf(err error) string {
	if err == nil {
		return telem.OutcomeOK
	}
	return Kind(err)
}

package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "eval-copilot"

// Outcome values for evaluation and improvement counters.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds all OTEL metric instruments for eval-copilot.
// All instruments are safe for concurrent use.
type Metrics struct {
	// LLM token counters (partitioned by provider + model via attributes)
	InputTokens  metric.Int64Counter
	OutputTokens metric.Int64Counter

	// Engine call counters, partitioned by outcome (ok or an error kind)
	Evaluations  metric.Int64Counter
	Improvements metric.Int64Counter

	Scores  metric.Float64Histogram
	Latency metric.Float64Histogram
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered (safe to call unconditionally).
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter(meterName))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.InputTokens, err = meter.Int64Counter("llm.tokens.input",
		metric.WithDescription("Total LLM input tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.OutputTokens, err = meter.Int64Counter("llm.tokens.output",
		metric.WithDescription("Total LLM output tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	m.Evaluations, err = meter.Int64Counter("evaluations.total",
		metric.WithDescription("Evaluations partitioned by rubric and outcome"))
	if err != nil {
		return nil, err
	}

	m.Improvements, err = meter.Int64Counter("improvements.total",
		metric.WithDescription("Improvement suggestions partitioned by outcome"))
	if err != nil {
		return nil, err
	}

	m.Scores, err = meter.Float64Histogram("evaluation.score",
		metric.WithDescription("Scores returned by successful evaluations"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5))
	if err != nil {
		return nil, err
	}

	m.Latency, err = meter.Float64Histogram("llm.request.duration",
		metric.WithDescription("Wall time of engine calls including the model round trip"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordTokens records LLM token usage on the metric counters.
func (m *Metrics) RecordTokens(ctx context.Context, provider, model string, input, output int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("llm.provider", provider),
		attribute.String("llm.model", model),
	)
	m.InputTokens.Add(ctx, input, attrs)
	m.OutputTokens.Add(ctx, output, attrs)
}

// RecordEvaluation counts one evaluation for rubric with the given outcome.
func (m *Metrics) RecordEvaluation(ctx context.Context, rubric, outcome string) {
	if m == nil {
		return
	}
	m.Evaluations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("evaluation.rubric", rubric),
		attribute.String("evaluation.outcome", outcome),
	))
}

// RecordScore adds a successful evaluation score to the histogram.
func (m *Metrics) RecordScore(ctx context.Context, rubric string, score float64) {
	if m == nil {
		return
	}
	m.Scores.Record(ctx, score, metric.WithAttributes(
		attribute.String("evaluation.rubric", rubric),
	))
}

// RecordImprovement counts one improvement call with the given outcome.
func (m *Metrics) RecordImprovement(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Improvements.Add(ctx, 1, metric.WithAttributes(
		attribute.String("improvement.outcome", outcome),
	))
}

// RecordLatency records how long an engine operation took, in seconds.
func (m *Metrics) RecordLatency(ctx context.Context, operation string, seconds float64) {
	if m == nil {
		return
	}
	m.Latency.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("operation", operation),
	))
}

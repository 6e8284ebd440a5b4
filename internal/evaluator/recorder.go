package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rajshirolkar/evaluation-copilot/internal/model"
)

// Operation names used in records.
const (
	OpEvaluate = "evaluate"
	OpImprove  = "improve"
)

// Record describes one engine invocation: inputs, raw model output and the
// parsed result or error.
type Record struct {
	Operation string
	// Rubric is only meaningful for OpEvaluate.
	Rubric model.Rubric

	Evaluation  *model.EvaluationRequest
	Improvement *model.ImprovementRequest

	Prompt      string
	RawResponse string

	EvaluationResult  *model.EvaluationResult
	ImprovementResult *model.ImprovementResult
	Err               error

	Provider string
	Model    string
	Usage    model.TokenUsage
	At       time.Time
	Duration time.Duration
}

// Recorder receives one Record per engine call. Implementations must be
// safe for concurrent use. Record must not retain ctx.
type Recorder interface {
	Record(ctx context.Context, r Record)
}

// LogRecorder writes every record as one structured log line.
type LogRecorder struct {
	Logger *slog.Logger
	// IncludePrompt adds the rendered prompt to each line.
	IncludePrompt bool
}

// NewLogRecorder returns a recorder that logs through logger, or through
// slog.Default() when logger is nil.
func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{Logger: logger}
}

func (l *LogRecorder) Record(ctx context.Context, r Record) {
	attrs := []slog.Attr{
		slog.String("operation", r.Operation),
		slog.String("provider", r.Provider),
		slog.String("model", r.Model),
		slog.Duration("duration", r.Duration),
	}
	if r.Operation == OpEvaluate {
		attrs = append(attrs, slog.String("rubric", r.Rubric.String()))
	}

	switch {
	case r.Evaluation != nil:
		attrs = append(attrs, slog.Group("request",
			slog.String("question", r.Evaluation.Question),
			slog.String("answer", r.Evaluation.Answer),
			slog.String("context", model.Deref(r.Evaluation.Context)),
		))
	case r.Improvement != nil:
		attrs = append(attrs, slog.Group("request",
			slog.String("question", r.Improvement.Question),
			slog.String("answer", r.Improvement.Answer),
			slog.String("context", model.Deref(r.Improvement.Context)),
			slog.Float64("score", r.Improvement.Score),
			slog.String("justification", r.Improvement.Justification),
		))
	}

	if l.IncludePrompt {
		attrs = append(attrs, slog.String("prompt", r.Prompt))
	}
	attrs = append(attrs, slog.String("raw_response", r.RawResponse))

	if r.EvaluationResult != nil {
		attrs = append(attrs, slog.Group("result",
			slog.Float64("score", r.EvaluationResult.Score),
			slog.String("justification", r.EvaluationResult.Justification),
		))
	}
	if r.ImprovementResult != nil {
		attrs = append(attrs, slog.Group("result",
			slog.String("question_improvement", model.Deref(r.ImprovementResult.QuestionImprovement)),
			slog.String("answer_improvement", model.Deref(r.ImprovementResult.AnswerImprovement)),
		))
	}

	level := slog.LevelInfo
	msg := r.Operation + " completed"
	if r.Err != nil {
		level = slog.LevelWarn
		msg = r.Operation + " failed"
		attrs = append(attrs, slog.String("error", r.Err.Error()), slog.String("error_kind", Kind(r.Err)))
	}
	l.Logger.LogAttrs(context.WithoutCancel(ctx), level, msg, attrs...)
}

// MultiRecorder fans records out to every recorder in order.
type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, r Record) {
	for _, rec := range m {
		if rec != nil {
			rec.Record(ctx, r)
		}
	}
}

const defaultAsyncBuffer = 64

// AsyncRecorder hands records to a background goroutine so that slow sinks
// never delay the engine. When the buffer is full the record is dropped.
type AsyncRecorder struct {
	next    Recorder
	ch      chan asyncItem
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

type asyncItem struct {
	ctx context.Context
	rec Record
}

// NewAsyncRecorder starts the drain goroutine. Call Close to flush and stop it.
func NewAsyncRecorder(next Recorder, buffer int) *AsyncRecorder {
	if buffer <= 0 {
		buffer = defaultAsyncBuffer
	}
	a := &AsyncRecorder{
		next: next,
		ch:   make(chan asyncItem, buffer),
		done: make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *AsyncRecorder) drain() {
	defer close(a.done)
	for item := range a.ch {
		a.deliver(item)
	}
}

// deliver forwards one record; a panicking sink loses only that record.
func (a *AsyncRecorder) deliver(item asyncItem) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("recorder panicked", "operation", item.rec.Operation, "panic", fmt.Sprint(r))
		}
	}()
	a.next.Record(item.ctx, item.rec)
}

// Record enqueues r without blocking.
func (a *AsyncRecorder) Record(ctx context.Context, r Record) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return
	}
	select {
	case a.ch <- asyncItem{ctx: context.WithoutCancel(ctx), rec: r}:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of records discarded because the buffer was full
// or the recorder was closed.
func (a *AsyncRecorder) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting records and waits until the buffered ones are delivered.
func (a *AsyncRecorder) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
	})
	<-a.done
}

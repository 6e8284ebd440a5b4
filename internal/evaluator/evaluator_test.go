package evaluator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rajshirolkar/evaluation-copilot/internal/llm"
	"github.com/rajshirolkar/evaluation-copilot/internal/model"
)

// fakeClient answers every prompt through reply and remembers the prompts.
type fakeClient struct {
	reply func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func replyWith(text string) *fakeClient {
	return &fakeClient{reply: func(string) (string, error) { return text, nil }}
}

func (f *fakeClient) Send(_ context.Context, prompt string) (*llm.Completion, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	text, err := f.reply(prompt)
	if err != nil {
		return nil, err
	}
	return &llm.Completion{Text: text, Usage: model.TokenUsage{InputTokens: 10, OutputTokens: 5}}, nil
}

func (f *fakeClient) Provider() string { return "fake" }
func (f *fakeClient) Model() string    { return "fake-model" }

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeClient) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// captureRecorder keeps every record it receives.
type captureRecorder struct {
	mu      sync.Mutex
	records []Record
}

func (c *captureRecorder) Record(_ context.Context, r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

func (c *captureRecorder) all() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

const franceContext = "France is a country in Western Europe. Its capital and largest city is Paris."

func TestEvaluate_FranceExample(t *testing.T) {
	client := replyWith("Score: 5\nJustification: The answer correctly names Paris.")
	rec := &captureRecorder{}
	engine := New(client, WithRecorder(rec))

	req := model.NewEvaluationRequest("What is the capital of France?", "Paris", franceContext)
	for _, r := range model.Rubrics() {
		got, err := engine.Evaluate(context.Background(), req, r)
		if err != nil {
			t.Fatalf("Evaluate(%s): %v", r, err)
		}
		if got.Score != 5 {
			t.Errorf("Evaluate(%s).Score = %v, want 5", r, got.Score)
		}
		if got.Justification == "" {
			t.Errorf("Evaluate(%s).Justification is empty", r)
		}
		if !strings.Contains(client.lastPrompt(), "largest city is Paris") {
			t.Errorf("prompt for %s does not embed the context", r)
		}
	}

	records := rec.all()
	if len(records) != len(model.Rubrics()) {
		t.Fatalf("recorded %d records, want %d", len(records), len(model.Rubrics()))
	}
	first := records[0]
	if first.Operation != OpEvaluate || first.Rubric != model.General {
		t.Errorf("first record = %s/%s", first.Operation, first.Rubric)
	}
	if first.RawResponse == "" || first.Prompt == "" || first.EvaluationResult == nil || first.Err != nil {
		t.Errorf("first record incomplete: %+v", first)
	}
	if first.Usage.InputTokens != 10 {
		t.Errorf("record usage = %+v", first.Usage)
	}
}

func TestEvaluate_ScoreAndJustification(t *testing.T) {
	engine := New(replyWith("Score: 4\nJustification: sounds right"))
	got, err := engine.Evaluate(context.Background(),
		model.NewEvaluationRequest("Is water wet?", "Yes.", ""), model.General)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.Score != 4 || got.Justification != "sounds right" {
		t.Errorf("got %+v, want {4 sounds right}", got)
	}
}

func TestEvaluate_MissingContext(t *testing.T) {
	for _, r := range []model.Rubric{model.Relevance, model.Groundedness} {
		for _, ctxValue := range []string{"", "   \n"} {
			t.Run(r.String(), func(t *testing.T) {
				client := replyWith("Score: 5\nJustification: x")
				rec := &captureRecorder{}
				engine := New(client, WithRecorder(rec))

				_, err := engine.Evaluate(context.Background(),
					model.NewEvaluationRequest("Q?", "A.", ctxValue), r)

				var mce *MissingContextError
				if !errors.As(err, &mce) {
					t.Fatalf("error = %v, want MissingContextError", err)
				}
				if mce.Rubric != r {
					t.Errorf("MissingContextError.Rubric = %s, want %s", mce.Rubric, r)
				}
				if !errors.Is(err, ErrMissingContext) {
					t.Error("errors.Is(err, ErrMissingContext) = false")
				}
				if client.calls() != 0 {
					t.Errorf("model called %d times, want 0", client.calls())
				}
				if got := rec.all(); len(got) != 1 || got[0].Err == nil {
					t.Errorf("want one failed record, got %+v", got)
				}
			})
		}
	}
}

func TestEvaluate_ContextOptionalForOtherRubrics(t *testing.T) {
	for _, r := range []model.Rubric{model.General, model.Coherence, model.Fluency} {
		if RequiresContext(r) {
			t.Errorf("RequiresContext(%s) = true", r)
		}
		engine := New(replyWith("Score: 3\nJustification: ok"))
		if _, err := engine.Evaluate(context.Background(), model.NewEvaluationRequest("Q?", "A.", ""), r); err != nil {
			t.Errorf("Evaluate(%s) without context: %v", r, err)
		}
	}
}

func TestEvaluate_InvalidRequest(t *testing.T) {
	tests := []struct {
		name      string
		req       model.EvaluationRequest
		rubric    model.Rubric
		wantField string
	}{
		{"empty question", model.NewEvaluationRequest("", "A", ""), model.General, "question"},
		{"blank answer", model.NewEvaluationRequest("Q", "  ", ""), model.General, "answer"},
		{"unknown rubric", model.NewEvaluationRequest("Q", "A", ""), model.Rubric(99), "rubric"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := replyWith("Score: 5\nJustification: x")
			_, err := New(client).Evaluate(context.Background(), tt.req, tt.rubric)
			var ire *InvalidRequestError
			if !errors.As(err, &ire) || ire.Field != tt.wantField {
				t.Fatalf("error = %v, want InvalidRequestError on %s", err, tt.wantField)
			}
			if Kind(err) != "invalid_request" {
				t.Errorf("Kind = %q", Kind(err))
			}
			if client.calls() != 0 {
				t.Errorf("model called for invalid request")
			}
		})
	}
}

func TestEvaluate_MalformedResponse(t *testing.T) {
	rec := &captureRecorder{}
	engine := New(replyWith("I think it's pretty good overall."), WithRecorder(rec))
	_, err := engine.Evaluate(context.Background(), model.NewEvaluationRequest("Q?", "A.", ""), model.General)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("error = %v, want ErrMalformedResponse", err)
	}
	records := rec.all()
	if len(records) != 1 || records[0].RawResponse != "I think it's pretty good overall." {
		t.Errorf("record should keep raw response, got %+v", records)
	}
}

func TestEvaluate_ModelUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	client := &fakeClient{reply: func(string) (string, error) { return "", cause }}
	_, err := New(client).Evaluate(context.Background(), model.NewEvaluationRequest("Q?", "A.", ""), model.General)

	var mue *ModelUnavailableError
	if !errors.As(err, &mue) {
		t.Fatalf("error = %v, want ModelUnavailableError", err)
	}
	if mue.Provider != "fake" {
		t.Errorf("Provider = %q", mue.Provider)
	}
	if !errors.Is(err, cause) || !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("error chain should match both the cause and ErrModelUnavailable")
	}
	if client.calls() != 1 {
		t.Errorf("engine must not retry, got %d calls", client.calls())
	}
}

func TestEvaluate_Concurrent(t *testing.T) {
	client := &fakeClient{reply: func(prompt string) (string, error) {
		for i := 1; i <= 5; i++ {
			if strings.Contains(prompt, fmt.Sprintf("question-%d?", i)) {
				return fmt.Sprintf("Score: %d\nJustification: item %d", i, i), nil
			}
		}
		return "", errors.New("unexpected prompt")
	}}
	var recorded atomic.Int64
	engine := New(client, WithRecorder(recorderFunc(func(context.Context, Record) { recorded.Add(1) })))

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := i%5 + 1
			req := model.NewEvaluationRequest(fmt.Sprintf("question-%d?", want), "answer", "")
			got, err := engine.Evaluate(context.Background(), req, model.General)
			if err != nil {
				errs <- err
				return
			}
			if got.Score != float64(want) {
				errs <- fmt.Errorf("call %d: score %v, want %d", i, got.Score, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if recorded.Load() != n {
		t.Errorf("recorded %d, want %d", recorded.Load(), n)
	}
}

func TestEvaluate_RecorderPanicIgnored(t *testing.T) {
	engine := New(replyWith("Score: 2\nJustification: weak"),
		WithRecorder(recorderFunc(func(context.Context, Record) { panic("sink down") })))
	got, err := engine.Evaluate(context.Background(), model.NewEvaluationRequest("Q?", "A.", ""), model.General)
	if err != nil || got.Score != 2 {
		t.Fatalf("Evaluate = %+v, %v; recorder panic must not change the result", got, err)
	}
}

func TestSuggestImprovements_AnswerOnly(t *testing.T) {
	engine := New(replyWith("Question Improvement: NONE\nAnswer Improvement: Paris is the capital of France."))
	got, err := engine.SuggestImprovements(context.Background(), model.ImprovementRequest{
		Question:      "What is the capital of France?",
		Answer:        "Lyon",
		Score:         1,
		Justification: "Incorrect city.",
	})
	if err != nil {
		t.Fatalf("SuggestImprovements: %v", err)
	}
	if got.QuestionImprovement != nil {
		t.Errorf("QuestionImprovement = %q, want nil", *got.QuestionImprovement)
	}
	if got.AnswerImprovement == nil || *got.AnswerImprovement != "Paris is the capital of France." {
		t.Errorf("AnswerImprovement = %v", got.AnswerImprovement)
	}
}

func TestSuggestImprovements_Errors(t *testing.T) {
	t.Run("empty answer", func(t *testing.T) {
		client := replyWith("Answer Improvement: x")
		_, err := New(client).SuggestImprovements(context.Background(), model.ImprovementRequest{Question: "Q"})
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("error = %v, want ErrInvalidRequest", err)
		}
		if client.calls() != 0 {
			t.Error("model called for invalid request")
		}
	})
	t.Run("no labels", func(t *testing.T) {
		_, err := New(replyWith("Looks fine to me.")).SuggestImprovements(context.Background(),
			model.ImprovementRequest{Question: "Q", Answer: "A"})
		if !errors.Is(err, ErrMalformedResponse) {
			t.Errorf("error = %v, want ErrMalformedResponse", err)
		}
	})
	t.Run("model down", func(t *testing.T) {
		client := &fakeClient{reply: func(string) (string, error) { return "", errors.New("429") }}
		_, err := New(client).SuggestImprovements(context.Background(),
			model.ImprovementRequest{Question: "Q", Answer: "A"})
		if Kind(err) != "model_unavailable" {
			t.Errorf("Kind = %q, want model_unavailable", Kind(err))
		}
	})
}

func TestEvaluateThenImprove_RoundTrip(t *testing.T) {
	client := &fakeClient{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Question Improvement:") {
			return "Question Improvement: Which city is the capital of France?\nAnswer Improvement: NONE", nil
		}
		return "Score: 3\nJustification: Correct but terse.", nil
	}}
	rec := &captureRecorder{}
	engine := New(client, WithRecorder(rec))
	ctx := context.Background()

	evalReq := model.NewEvaluationRequest("capital of france", "Paris", franceContext)
	res, err := engine.Evaluate(ctx, evalReq, model.Groundedness)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	impReq := model.NewImprovementRequest(evalReq, *res)
	imp, err := engine.SuggestImprovements(ctx, impReq)
	if err != nil {
		t.Fatalf("SuggestImprovements: %v", err)
	}

	prompt := client.lastPrompt()
	for _, want := range []string{"Reviewer score: 3", "Correct but terse.", "largest city is Paris"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("improvement prompt missing %q", want)
		}
	}
	if imp.QuestionImprovement == nil || imp.AnswerImprovement != nil {
		t.Errorf("improvement = %+v", imp)
	}

	records := rec.all()
	if len(records) != 2 || records[1].Operation != OpImprove || records[1].ImprovementResult == nil {
		t.Errorf("records = %+v", records)
	}
}

func TestAsk(t *testing.T) {
	engine := New(replyWith("  Paris.\n"))
	got, err := engine.Ask(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got != "Paris." {
		t.Errorf("Ask = %q, want %q", got, "Paris.")
	}
	if _, err := engine.Ask(context.Background(), " "); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Ask(blank) error = %v", err)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&InvalidRequestError{Field: "question"}, "invalid_request"},
		{fmt.Errorf("wrapped: %w", &MissingContextError{Rubric: model.Relevance}), "missing_context"},
		{&MalformedResponseError{Reason: "x"}, "malformed_response"},
		{&ModelUnavailableError{Provider: "p", Err: errors.New("x")}, "model_unavailable"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

type recorderFunc func(context.Context, Record)

func (f recorderFunc) Record(ctx context.Context, r Record) { f(ctx, r) }

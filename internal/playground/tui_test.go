package playground

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rajshirolkar/evaluation-copilot/internal/evaluator"
	"github.com/rajshirolkar/evaluation-copilot/internal/model"
)

type fakeEngine struct {
	answer      string
	evalErr     error
	asked       []string
	evaluations int
}

func (f *fakeEngine) Ask(_ context.Context, question string) (string, error) {
	f.asked = append(f.asked, question)
	return f.answer, nil
}

func (f *fakeEngine) Evaluate(_ context.Context, req model.EvaluationRequest, rubric model.Rubric) (*model.EvaluationResult, error) {
	f.evaluations++
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	return &model.EvaluationResult{Score: 5, Justification: "Correct for " + rubric.String() + ": " + req.Answer}, nil
}

func (f *fakeEngine) SuggestImprovements(_ context.Context, req model.ImprovementRequest) (*model.ImprovementResult, error) {
	s := "Which city is the capital of France?"
	return &model.ImprovementResult{QuestionImprovement: &s}, nil
}

func newTestModel(engine Engine, rubric model.Rubric) *tuiModel {
	m := newModel(context.Background(), engine, DarkTheme(), rubric)
	m.width, m.height = 120, 40
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "ctrl+s":
		return tea.KeyMsg{Type: tea.KeyCtrlS}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// runPipeline drives ask → evaluate → improve synchronously.
func runPipeline(t *testing.T, m *tuiModel) {
	t.Helper()
	var msg tea.Msg = m.askCmd(m.request.Question)()
	for i := 0; i < 3 && msg != nil; i++ {
		_, cmd := m.Update(msg)
		if cmd == nil {
			return
		}
		msg = cmd()
	}
}

func TestTabCyclesFields(t *testing.T) {
	m := newTestModel(&fakeEngine{}, model.General)
	if m.focus != focusQuestion {
		t.Fatalf("initial focus = %v, want question", m.focus)
	}
	m.handleKey(key("tab"))
	if m.focus != focusRubric {
		t.Errorf("after tab focus = %v, want rubric (context hidden for general)", m.focus)
	}

	m = newTestModel(&fakeEngine{}, model.Groundedness)
	m.handleKey(key("tab"))
	if m.focus != focusContext {
		t.Errorf("after tab focus = %v, want context", m.focus)
	}
	m.handleKey(key("shift+tab"))
	if m.focus != focusQuestion {
		t.Errorf("after shift+tab focus = %v, want question", m.focus)
	}
}

func TestRubricSelector(t *testing.T) {
	m := newTestModel(&fakeEngine{}, model.General)
	m.setFocus(focusRubric)

	m.handleKey(key("right"))
	if m.rubric != model.Relevance || !m.contextVisible() {
		t.Errorf("right: rubric = %s, context visible = %v", m.rubric, m.contextVisible())
	}
	m.handleKey(key("left"))
	m.handleKey(key("left"))
	if m.rubric != model.Groundedness {
		t.Errorf("left wraps around: rubric = %s, want groundedness", m.rubric)
	}
	if !strings.Contains(m.View(), "Context") {
		t.Error("context box should be visible for groundedness")
	}
}

func TestSwitchingToContextFreeRubricMovesFocus(t *testing.T) {
	m := newTestModel(&fakeEngine{}, model.Relevance)
	m.setFocus(focusContext)
	m.shiftRubric(1) // coherence
	if m.focus != focusQuestion {
		t.Errorf("focus = %v, want question after context box disappears", m.focus)
	}
}

func TestSubmit_EmptyQuestion(t *testing.T) {
	engine := &fakeEngine{}
	m := newTestModel(engine, model.General)
	m.question.SetValue("  ")
	if cmd := m.submit(); cmd != nil {
		t.Error("submit with empty question should not start a run")
	}
	if !errors.Is(m.err, evaluator.ErrInvalidRequest) {
		t.Errorf("err = %v, want invalid request", m.err)
	}
	if !strings.Contains(m.View(), "Nothing to evaluate") {
		t.Error("view should render the invalid request error")
	}
}

func TestSubmit_MissingContext(t *testing.T) {
	engine := &fakeEngine{}
	m := newTestModel(engine, model.Relevance)
	m.question.SetValue("What is the capital of France?")
	m.context.SetValue("   ")

	if cmd := m.submit(); cmd != nil {
		t.Error("submit without context should not start a run")
	}
	if !errors.Is(m.err, evaluator.ErrMissingContext) {
		t.Fatalf("err = %v, want missing context", m.err)
	}
	if len(engine.asked) != 0 {
		t.Error("model must not be asked")
	}
	view := m.View()
	if !strings.Contains(view, "Context required") || !strings.Contains(view, "relevance rubric") {
		t.Errorf("view does not explain the missing context:\n%s", view)
	}
}

func TestFullRun(t *testing.T) {
	engine := &fakeEngine{answer: "Paris"}
	m := newTestModel(engine, model.Groundedness)

	if cmd := m.submit(); cmd == nil {
		t.Fatal("submit returned no command")
	}
	if m.stage != stageAsking || !m.busy() {
		t.Fatalf("stage = %v, want asking", m.stage)
	}
	if cmd := m.submit(); cmd != nil {
		t.Error("second submit while busy should be ignored")
	}

	runPipeline(t, m)

	if m.busy() {
		t.Errorf("stage = %v, want idle", m.stage)
	}
	if len(engine.asked) != 1 || engine.asked[0] != DefaultQuestion {
		t.Errorf("model should be asked the bare question, got %q", engine.asked)
	}
	if !m.request.HasContext() || !strings.Contains(*m.request.Context, "Its capital and largest city is Paris") {
		t.Errorf("evaluation request should carry the context, got %+v", m.request)
	}
	if m.answer != "Paris" || m.result == nil || m.result.Score != 5 {
		t.Errorf("answer=%q result=%+v", m.answer, m.result)
	}
	if m.improvement == nil || m.improvement.QuestionImprovement == nil {
		t.Fatalf("improvement = %+v", m.improvement)
	}

	view := m.View()
	for _, want := range []string{"Paris", "Groundedness score", "5 / 5", "Which city is the capital of France?", "No change suggested."} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestRun_EvaluationError(t *testing.T) {
	engine := &fakeEngine{
		answer:  "Paris",
		evalErr: &evaluator.MalformedResponseError{Reason: "no score label found", Raw: "I like it."},
	}
	m := newTestModel(engine, model.General)
	m.question.SetValue("What is the capital of France?")
	m.submit()
	runPipeline(t, m)

	if m.busy() {
		t.Error("run should stop after an evaluation error")
	}
	if m.result != nil || m.improvement != nil {
		t.Errorf("no result expected, got %+v / %+v", m.result, m.improvement)
	}
	view := m.View()
	if !strings.Contains(view, "Could not read the model's response") || !strings.Contains(view, "I like it.") {
		t.Errorf("view does not render the malformed response:\n%s", view)
	}
}

func TestEscQuits(t *testing.T) {
	m := newTestModel(&fakeEngine{}, model.General)
	_, cmd := m.handleKey(key("esc"))
	if cmd == nil {
		t.Fatal("esc returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("esc should quit")
	}
}

func TestQuestionPrefilled(t *testing.T) {
	m := newTestModel(&fakeEngine{}, model.General)
	if got := m.question.Value(); got != "What is the capital of France?" {
		t.Errorf("question = %q, want the France example", got)
	}
}

func TestTypingGoesToQuestion(t *testing.T) {
	m := newTestModel(&fakeEngine{}, model.General)
	m.question.SetValue("")
	m.handleKey(key("P"))
	m.handleKey(key("a"))
	if got := m.question.Value(); got != "Pa" {
		t.Errorf("question = %q, want %q", got, "Pa")
	}
}

func TestThemeByName(t *testing.T) {
	if ThemeByName("light") != LightTheme() {
		t.Error("light theme not selected")
	}
	if ThemeByName("anything") != DarkTheme() {
		t.Error("unknown names should fall back to dark")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"héllo wörld", 8, "héllo..."},
		{"abc", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

// Package playground is an interactive terminal UI for trying rubrics by
// hand: type a question, let the model answer it, then see the score,
// the justification and the suggested improvements.
package playground

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rajshirolkar/evaluation-copilot/internal/evaluator"
	"github.com/rajshirolkar/evaluation-copilot/internal/model"
)

// DefaultQuestion prefills the question input.
const DefaultQuestion = "What is the capital of France?"

// DefaultContext prefills the context box.
const DefaultContext = `France, officially the French Republic, is a country located primarily in Western Europe. Its capital and largest city is Paris, which is also its main cultural and commercial centre. France shares borders with Belgium, Luxembourg, Germany, Switzerland, Monaco, Italy, Andorra and Spain.`

// Engine is what the playground needs from *evaluator.Engine.
type Engine interface {
	Ask(ctx context.Context, question string) (string, error)
	Evaluate(ctx context.Context, req model.EvaluationRequest, rubric model.Rubric) (*model.EvaluationResult, error)
	SuggestImprovements(ctx context.Context, req model.ImprovementRequest) (*model.ImprovementResult, error)
}

// Playground runs the interactive UI.
type Playground struct {
	Engine Engine
	Theme  Theme
	Rubric model.Rubric // initially selected rubric
}

// Run blocks until the user quits.
func (p *Playground) Run(ctx context.Context) error {
	m := newModel(ctx, p.Engine, p.Theme, p.Rubric)
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// focusField is the input that receives keystrokes.
type focusField int

const (
	focusRubric focusField = iota
	focusQuestion
	focusContext
)

// stage of the ask → evaluate → improve pipeline.
type stage int

const (
	stageIdle stage = iota
	stageAsking
	stageEvaluating
	stageImproving
)

// messages
type answerMsg struct {
	answer string
	err    error
}

type evaluationMsg struct {
	result *model.EvaluationResult
	err    error
}

type improvementMsg struct {
	result *model.ImprovementResult
	err    error
}

type tuiModel struct {
	engine Engine
	ctx    context.Context
	st     styles

	rubric   model.Rubric
	focus    focusField
	question textinput.Model
	context  textarea.Model
	spinner  spinner.Model

	stage   stage
	request model.EvaluationRequest

	answer      string
	result      *model.EvaluationResult
	improvement *model.ImprovementResult
	err         error

	width  int
	height int
}

func newModel(ctx context.Context, engine Engine, theme Theme, rubric model.Rubric) *tuiModel {
	q := textinput.New()
	q.Placeholder = "Ask a question"
	q.CharLimit = 2048
	q.Width = 80
	q.SetValue(DefaultQuestion)

	c := textarea.New()
	c.ShowLineNumbers = false
	c.SetValue(DefaultContext)
	c.SetWidth(80)
	c.SetHeight(5)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &tuiModel{
		engine:   engine,
		ctx:      ctx,
		st:       newStyles(theme),
		rubric:   rubric,
		question: q,
		context:  c,
		spinner:  sp,
	}
	m.setFocus(focusQuestion)
	return m
}

func (m *tuiModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *tuiModel) busy() bool { return m.stage != stageIdle }

func (m *tuiModel) contextVisible() bool {
	return evaluator.RequiresContext(m.rubric)
}

// fields returns the focusable fields in tab order.
func (m *tuiModel) fields() []focusField {
	if m.contextVisible() {
		return []focusField{focusRubric, focusQuestion, focusContext}
	}
	return []focusField{focusRubric, focusQuestion}
}

func (m *tuiModel) setFocus(f focusField) {
	m.focus = f
	m.question.Blur()
	m.context.Blur()
	switch f {
	case focusQuestion:
		m.question.Focus()
	case focusContext:
		m.context.Focus()
	}
}

func (m *tuiModel) cycleFocus(delta int) {
	fields := m.fields()
	cur := 0
	for i, f := range fields {
		if f == m.focus {
			cur = i
		}
	}
	next := (cur + delta + len(fields)) % len(fields)
	m.setFocus(fields[next])
}

func (m *tuiModel) shiftRubric(delta int) {
	all := model.Rubrics()
	idx := 0
	for i, r := range all {
		if r == m.rubric {
			idx = i
		}
	}
	m.rubric = all[(idx+delta+len(all))%len(all)]
	if m.focus == focusContext && !m.contextVisible() {
		m.setFocus(focusQuestion)
	}
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		w := min(max(msg.Width-4, 20), 120)
		m.question.Width = w
		m.context.SetWidth(w)
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case answerMsg:
		if msg.err != nil {
			return m.fail(msg.err)
		}
		m.answer = msg.answer
		m.request.Answer = msg.answer
		m.stage = stageEvaluating
		return m, m.evaluateCmd(m.request, m.rubric)

	case evaluationMsg:
		if msg.err != nil {
			return m.fail(msg.err)
		}
		m.result = msg.result
		m.stage = stageImproving
		return m, m.improveCmd(model.NewImprovementRequest(m.request, *msg.result))

	case improvementMsg:
		m.stage = stageIdle
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.improvement = msg.result
		return m, nil
	}

	return m, nil
}

func (m *tuiModel) fail(err error) (tea.Model, tea.Cmd) {
	m.stage = stageIdle
	m.err = err
	return m, nil
}

func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "ctrl+s":
		return m, m.submit()
	case "tab":
		m.cycleFocus(1)
		return m, nil
	case "shift+tab":
		m.cycleFocus(-1)
		return m, nil
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusRubric:
		switch msg.String() {
		case "left", "h":
			m.shiftRubric(-1)
		case "right", "l":
			m.shiftRubric(1)
		case "enter", "down":
			m.setFocus(focusQuestion)
		}
	case focusQuestion:
		if msg.String() == "enter" {
			return m, m.submit()
		}
		m.question, cmd = m.question.Update(msg)
	case focusContext:
		m.context, cmd = m.context.Update(msg)
	}
	return m, cmd
}

// submit starts a new ask → evaluate → improve run. It returns nil while a
// run is in progress or when there is nothing to run.
func (m *tuiModel) submit() tea.Cmd {
	if m.busy() {
		return nil
	}
	m.answer, m.result, m.improvement, m.err = "", nil, nil, nil

	question := strings.TrimSpace(m.question.Value())
	if question == "" {
		m.err = &evaluator.InvalidRequestError{Field: "question"}
		return nil
	}
	var contextText string
	if m.contextVisible() {
		contextText = strings.TrimSpace(m.context.Value())
		if contextText == "" {
			m.err = &evaluator.MissingContextError{Rubric: m.rubric}
			return nil
		}
	}

	m.request = model.NewEvaluationRequest(question, "", contextText)
	m.stage = stageAsking
	return tea.Batch(m.spinner.Tick, m.askCmd(question))
}

// askCmd asks the model the bare question; the context is only used to
// grade the answer.
func (m *tuiModel) askCmd(question string) tea.Cmd {
	engine, ctx := m.engine, m.ctx
	return func() tea.Msg {
		answer, err := engine.Ask(ctx, question)
		return answerMsg{answer: answer, err: err}
	}
}

func (m *tuiModel) evaluateCmd(req model.EvaluationRequest, rubric model.Rubric) tea.Cmd {
	engine, ctx := m.engine, m.ctx
	return func() tea.Msg {
		res, err := engine.Evaluate(ctx, req, rubric)
		return evaluationMsg{result: res, err: err}
	}
}

func (m *tuiModel) improveCmd(req model.ImprovementRequest) tea.Cmd {
	engine, ctx := m.engine, m.ctx
	return func() tea.Msg {
		res, err := engine.SuggestImprovements(ctx, req)
		return improvementMsg{result: res, err: err}
	}
}

func (m *tuiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.st.title.Render("Evaluation Playground"))
	b.WriteString("\n\n")

	b.WriteString(m.fieldLabel(focusRubric, "Rubric"))
	b.WriteString("  ")
	b.WriteString(m.viewRubrics())
	b.WriteString("\n\n")

	b.WriteString(m.fieldLabel(focusQuestion, "Question"))
	b.WriteString("\n")
	b.WriteString(m.question.View())
	b.WriteString("\n\n")

	if m.contextVisible() {
		b.WriteString(m.fieldLabel(focusContext, "Context"))
		b.WriteString(m.st.dim.Render(fmt.Sprintf("  (required by %s)", m.rubric)))
		b.WriteString("\n")
		b.WriteString(m.context.View())
		b.WriteString("\n\n")
	}

	b.WriteString(m.viewHints())
	b.WriteString("\n\n")

	if m.busy() {
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(m.st.dim.Render(m.stageText()))
		b.WriteString("\n\n")
	}

	if out := m.viewResults(); out != "" {
		b.WriteString(out)
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(m.viewError())
		b.WriteString("\n")
	}
	return b.String()
}

func (m *tuiModel) fieldLabel(f focusField, text string) string {
	if m.focus == f {
		return m.st.focused.Render("▸ " + text)
	}
	return m.st.label.Render("  " + text)
}

func (m *tuiModel) viewRubrics() string {
	var parts []string
	for _, r := range model.Rubrics() {
		if r == m.rubric {
			parts = append(parts, m.st.selected.Render(r.Title()))
		} else {
			parts = append(parts, m.st.dim.Render(r.Title()))
		}
	}
	return strings.Join(parts, m.st.dim.Render(" · "))
}

func (m *tuiModel) viewHints() string {
	hints := [][2]string{
		{"tab", "next field"},
		{"←/→", "rubric"},
		{"ctrl+s", "ask & evaluate"},
		{"esc", "quit"},
	}
	var parts []string
	for _, h := range hints {
		parts = append(parts, m.st.hintKey.Render(h[0])+" "+m.st.hintDesc.Render(h[1]))
	}
	return strings.Join(parts, "  ")
}

func (m *tuiModel) stageText() string {
	switch m.stage {
	case stageAsking:
		return "Asking the model..."
	case stageEvaluating:
		return fmt.Sprintf("Evaluating %s...", m.rubric)
	case stageImproving:
		return "Suggesting improvements..."
	}
	return ""
}

func (m *tuiModel) contentWidth() int {
	return min(max(m.width-6, 20), 116)
}

func (m *tuiModel) viewResults() string {
	if m.answer == "" && m.result == nil {
		return ""
	}
	wrap := lipgloss.NewStyle().Width(m.contentWidth())
	var lines []string

	if m.answer != "" {
		lines = append(lines, m.st.info.Render("Answer"), wrap.Render(m.st.text.Render(m.answer)), "")
	}
	if m.result != nil {
		lo, hi := evaluator.ScoreRange(m.rubric)
		score := fmt.Sprintf("%g / %d", m.result.Score, hi)
		lines = append(lines,
			m.st.info.Render(m.rubric.Title()+" score")+"  "+m.scoreStyle(m.result.Score, lo, hi).Render(score),
			wrap.Render(m.st.text.Render(m.result.Justification)),
		)
	}
	if m.improvement != nil {
		lines = append(lines, "",
			m.st.info.Render("Question improvement"),
			wrap.Render(m.suggestionText(m.improvement.QuestionImprovement)),
			m.st.info.Render("Answer improvement"),
			wrap.Render(m.suggestionText(m.improvement.AnswerImprovement)),
		)
	}
	return m.st.panel.Render(strings.Join(lines, "\n"))
}

func (m *tuiModel) suggestionText(s *string) string {
	if s == nil {
		return m.st.dim.Render("No change suggested.")
	}
	return m.st.text.Render(*s)
}

func (m *tuiModel) scoreStyle(score float64, lo, hi int) lipgloss.Style {
	span := float64(hi - lo)
	if span <= 0 {
		return m.st.scoreMid
	}
	frac := (score - float64(lo)) / span
	switch {
	case frac >= 0.75:
		return m.st.scoreHigh
	case frac >= 0.4:
		return m.st.scoreMid
	default:
		return m.st.scoreLow
	}
}

// errorTitle returns a short headline for err based on its kind.
func errorTitle(err error) string {
	switch evaluator.Kind(err) {
	case "invalid_request":
		return "Nothing to evaluate"
	case "missing_context":
		return "Context required"
	case "malformed_response":
		return "Could not read the model's response"
	case "model_unavailable":
		return "Model unavailable"
	default:
		return "Error"
	}
}

func (m *tuiModel) viewError() string {
	var detail string
	var mce *evaluator.MissingContextError
	var mre *evaluator.MalformedResponseError
	switch {
	case errors.As(m.err, &mce):
		detail = fmt.Sprintf("The %s rubric compares the answer against reference material. Fill in the Context box.", mce.Rubric)
	case errors.As(m.err, &mre):
		detail = mre.Error()
		if raw := strings.TrimSpace(mre.Raw); raw != "" {
			detail += "\n" + m.st.dim.Render(truncate(raw, 300))
		}
	default:
		detail = m.err.Error()
	}
	wrap := lipgloss.NewStyle().Width(m.contentWidth())
	return m.st.err.Render("✗ "+errorTitle(m.err)) + "\n" + wrap.Render(detail)
}

// truncate cuts a string to at most maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

package evaluator

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/rajshirolkar/evaluation-copilot/internal/model"
)

// Prompt templates are loaded from prompts/*.md at compile time. Every
// rubric template ends with the shared "output" block, which fixes the
// response grammar the parser expects.
//
//go:embed prompts/*.md
var promptFS embed.FS

var prompts = template.Must(template.New("prompts").Option("missingkey=error").ParseFS(promptFS, "prompts/*.md"))

type evaluationPromptData struct {
	Rubric     string
	Question   string
	Answer     string
	Context    string
	HasContext bool
	MinScore   int
	MaxScore   int
}

type improvementPromptData struct {
	Question      string
	Answer        string
	Context       string
	HasContext    bool
	Score         float64
	Justification string
}

// renderEvaluationPrompt fills the rubric's template with the request.
func renderEvaluationPrompt(spec rubricSpec, req model.EvaluationRequest) (string, error) {
	return render(spec.template, evaluationPromptData{
		Rubric:     spec.rubric.String(),
		Question:   strings.TrimSpace(req.Question),
		Answer:     strings.TrimSpace(req.Answer),
		Context:    strings.TrimSpace(model.Deref(req.Context)),
		HasContext: req.HasContext(),
		MinScore:   spec.minScore,
		MaxScore:   spec.maxScore,
	})
}

// renderImprovementPrompt fills the improvement template with the request.
func renderImprovementPrompt(req model.ImprovementRequest) (string, error) {
	context := strings.TrimSpace(model.Deref(req.Context))
	return render("improve.md", improvementPromptData{
		Question:      strings.TrimSpace(req.Question),
		Answer:        strings.TrimSpace(req.Answer),
		Context:       context,
		HasContext:    context != "",
		Score:         req.Score,
		Justification: strings.TrimSpace(req.Justification),
	})
}

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

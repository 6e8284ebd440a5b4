// Package model holds the request and result types exchanged between the
// presentation layer, the evaluation engine and the improvement engine.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Rubric is a named evaluation dimension. Each rubric maps to its own
// prompt template and decides whether reference context is required.
type Rubric int

const (
	General Rubric = iota
	Relevance
	Coherence
	Fluency
	Groundedness
)

var rubricNames = [...]string{
	General:      "general",
	Relevance:    "relevance",
	Coherence:    "coherence",
	Fluency:      "fluency",
	Groundedness: "groundedness",
}

// Rubrics returns all rubrics in declaration order.
func Rubrics() []Rubric {
	return []Rubric{General, Relevance, Coherence, Fluency, Groundedness}
}

// String returns the lowercase rubric name (e.g., "relevance").
func (r Rubric) String() string {
	if r < 0 || int(r) >= len(rubricNames) {
		return fmt.Sprintf("rubric(%d)", int(r))
	}
	return rubricNames[r]
}

// Title returns the capitalized rubric name for display (e.g., "Relevance").
func (r Rubric) Title() string {
	s := r.String()
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseRubric resolves a rubric by name, case-insensitively.
func ParseRubric(name string) (Rubric, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range rubricNames {
		if candidate == n {
			return Rubric(i), nil
		}
	}
	return General, fmt.Errorf("unknown rubric %q (supported: %s)", name, strings.Join(rubricNames[:], ", "))
}

// MarshalText implements encoding.TextMarshaler so rubrics render as names
// in JSON and YAML.
func (r Rubric) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rubric) UnmarshalText(text []byte) error {
	parsed, err := ParseRubric(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// EvaluationRequest is one user submission: a question, the answer being
// judged and optional reference context.
type EvaluationRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	// Context is nil when no reference material was supplied.
	Context *string `json:"context,omitempty"`
}

// NewEvaluationRequest builds a request. An empty context is treated as absent.
func NewEvaluationRequest(question, answer, context string) EvaluationRequest {
	return EvaluationRequest{
		Question: question,
		Answer:   answer,
		Context:  optional(context),
	}
}

// HasContext reports whether non-blank context was supplied.
func (r EvaluationRequest) HasContext() bool {
	return r.Context != nil && strings.TrimSpace(*r.Context) != ""
}

// EvaluationResult is the parsed judgment of the model.
type EvaluationResult struct {
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
}

// ImprovementRequest carries a question/answer pair together with the
// evaluation it received. The linkage between the two is not validated.
type ImprovementRequest struct {
	Question      string  `json:"question"`
	Answer        string  `json:"answer"`
	Score         float64 `json:"score"`
	Justification string  `json:"justification"`
	Context       *string `json:"context,omitempty"`
}

// NewImprovementRequest derives an improvement request from a prior
// evaluation. Question, answer and context are carried over unchanged.
func NewImprovementRequest(req EvaluationRequest, res EvaluationResult) ImprovementRequest {
	return ImprovementRequest{
		Question:      req.Question,
		Answer:        req.Answer,
		Score:         res.Score,
		Justification: res.Justification,
		Context:       req.Context,
	}
}

// ImprovementResult holds the suggested rewrites. A nil field means the
// model judged that dimension already satisfactory.
type ImprovementResult struct {
	QuestionImprovement *string `json:"question_improvement,omitempty"`
	AnswerImprovement   *string `json:"answer_improvement,omitempty"`
}

// TokenUsage tracks LLM token consumption for a single model call.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// EvaluationRecord is one row of the evaluation history.
type EvaluationRecord struct {
	ID                  string    `json:"id"`
	Rubric              string    `json:"rubric"`
	Question            string    `json:"question"`
	Answer              string    `json:"answer"`
	Context             *string   `json:"context,omitempty"`
	Score               float64   `json:"score"`
	Justification       string    `json:"justification"`
	QuestionImprovement *string   `json:"question_improvement,omitempty"`
	AnswerImprovement   *string   `json:"answer_improvement,omitempty"`
	Provider            string    `json:"provider,omitempty"`
	Model               string    `json:"model,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

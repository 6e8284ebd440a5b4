package evaluator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/rajshirolkar/evaluation-copilot/internal/model"
)

// Response grammar
//
// The model is asked for labeled lines ("Score: 4", "Justification: ...").
// A label line is optional markdown decoration (whitespace, *, _, #, >, -),
// a label, an optional parenthetical such as "(1-5)", a separator (":",
// "=" or " - ") and the value. Labels match case-insensitively and a few
// synonyms are accepted. Only the labels of the reply being parsed are
// recognised. Other lines, and repeats of a label already seen, continue
// the value of the previous label, or are collected as unlabeled prose
// before the first label. A bare JSON object with the same keys in
// snake_case is accepted as well.

const (
	labelScore               = "score"
	labelJustification       = "justification"
	labelQuestionImprovement = "question improvement"
	labelAnswerImprovement   = "answer improvement"
)

var labelAliases = map[string]string{
	"score":                labelScore,
	"rating":               labelScore,
	"justification":        labelJustification,
	"reason":               labelJustification,
	"reasoning":            labelJustification,
	"explanation":          labelJustification,
	"question improvement": labelQuestionImprovement,
	"improved question":    labelQuestionImprovement,
	"answer improvement":   labelAnswerImprovement,
	"improved answer":      labelAnswerImprovement,
}

var (
	evaluationLabels  = []string{labelScore, labelJustification}
	improvementLabels = []string{labelQuestionImprovement, labelAnswerImprovement}
)

var (
	labelLineRe = regexp.MustCompile(`^[\s*_#>\-]*([A-Za-z][A-Za-z ]*?)[\s*_]*(?:\([^)]*\))?[\s*_]*(?::|=|-\s)[\s*_]*(.*)$`)
	numberRe    = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	spacesRe    = regexp.MustCompile(`\s+`)
)

// declined values mean "nothing to improve".
var declined = map[string]bool{
	"":                       true,
	"none":                   true,
	"n/a":                    true,
	"na":                     true,
	"-":                      true,
	"no improvement":         true,
	"no improvement needed":  true,
	"no improvements needed": true,
}

// labeledResponse is a response split into labeled values.
type labeledResponse struct {
	values    map[string]string
	unlabeled string
}

func (r labeledResponse) lookup(label string) (string, bool) {
	v, ok := r.values[label]
	return v, ok
}

// splitLabels scans text line by line for the given labels. The first
// occurrence of a label wins; a repeated label line is kept as text of the
// current value.
func splitLabels(text string, labels []string) labeledResponse {
	values := map[string]*strings.Builder{}
	var order []string
	var unlabeled strings.Builder
	var current *strings.Builder

	for _, line := range strings.Split(text, "\n") {
		label, value, ok := matchLabel(line, labels)
		if _, seen := values[label]; ok && !seen {
			current = &strings.Builder{}
			current.WriteString(value)
			values[label] = current
			order = append(order, label)
			continue
		}
		if current != nil {
			current.WriteString("\n")
			current.WriteString(line)
			continue
		}
		unlabeled.WriteString(line)
		unlabeled.WriteString("\n")
	}

	out := labeledResponse{
		values:    make(map[string]string, len(order)),
		unlabeled: strings.TrimSpace(unlabeled.String()),
	}
	for _, label := range order {
		out.values[label] = strings.TrimSpace(values[label].String())
	}
	return out
}

func matchLabel(line string, labels []string) (label, value string, ok bool) {
	m := labelLineRe.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	name := strings.ToLower(spacesRe.ReplaceAllString(strings.TrimSpace(m[1]), " "))
	canonical, known := labelAliases[name]
	if !known || !slices.Contains(labels, canonical) {
		return "", "", false
	}
	return canonical, m[2], true
}

// stripMarkdownFences removes a surrounding ``` code fence, if any.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return ""
	}
	s = strings.TrimSpace(s[nl+1:])
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// parseEvaluation extracts score and justification from raw model output.
func parseEvaluation(raw string, spec rubricSpec) (*model.EvaluationResult, error) {
	text := stripMarkdownFences(raw)

	if res, ok := parseEvaluationJSON(text); ok {
		return checkScore(res, spec, raw)
	}

	resp := splitLabels(text, evaluationLabels)
	scoreText, ok := resp.lookup(labelScore)
	if !ok {
		return nil, &MalformedResponseError{Reason: "no score label found", Raw: raw}
	}
	num := numberRe.FindString(scoreText)
	if num == "" {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("score %q is not a number", scoreText), Raw: raw}
	}
	score, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("score %q is not a number", num), Raw: raw}
	}

	justification, ok := resp.lookup(labelJustification)
	if !ok {
		justification = resp.unlabeled
	}

	return checkScore(&model.EvaluationResult{Score: score, Justification: justification}, spec, raw)
}

func checkScore(res *model.EvaluationResult, spec rubricSpec, raw string) (*model.EvaluationResult, error) {
	if res.Score < float64(spec.minScore) || res.Score > float64(spec.maxScore) {
		return nil, &MalformedResponseError{
			Reason: fmt.Sprintf("score %g outside %d-%d", res.Score, spec.minScore, spec.maxScore),
			Raw:    raw,
		}
	}
	return res, nil
}

func parseEvaluationJSON(text string) (*model.EvaluationResult, bool) {
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var payload struct {
		Score         *float64 `json:"score"`
		Justification string   `json:"justification"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil || payload.Score == nil {
		return nil, false
	}
	return &model.EvaluationResult{
		Score:         *payload.Score,
		Justification: strings.TrimSpace(payload.Justification),
	}, true
}

// parseImprovement extracts the two optional suggestions from raw model output.
func parseImprovement(raw string) (*model.ImprovementResult, error) {
	text := stripMarkdownFences(raw)

	if res, ok := parseImprovementJSON(text); ok {
		return res, nil
	}

	resp := splitLabels(text, improvementLabels)
	question, hasQuestion := resp.lookup(labelQuestionImprovement)
	answer, hasAnswer := resp.lookup(labelAnswerImprovement)
	if !hasQuestion && !hasAnswer {
		return nil, &MalformedResponseError{Reason: "no improvement labels found", Raw: raw}
	}

	return &model.ImprovementResult{
		QuestionImprovement: suggestion(question),
		AnswerImprovement:   suggestion(answer),
	}, nil
}

func parseImprovementJSON(text string) (*model.ImprovementResult, bool) {
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var payload map[string]*string
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, false
	}
	question, hasQuestion := payload["question_improvement"]
	answer, hasAnswer := payload["answer_improvement"]
	if !hasQuestion && !hasAnswer {
		return nil, false
	}
	return &model.ImprovementResult{
		QuestionImprovement: suggestion(model.Deref(question)),
		AnswerImprovement:   suggestion(model.Deref(answer)),
	}, true
}

// suggestion maps a labeled value to nil when the model declined to improve.
func suggestion(value string) *string {
	v := strings.TrimSpace(value)
	norm := strings.ToLower(strings.Trim(v, "*_`\"' "))
	norm = strings.TrimRight(norm, ".!")
	if declined[norm] {
		return nil
	}
	return &v
}

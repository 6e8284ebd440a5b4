package evaluator

import "github.com/rajshirolkar/evaluation-copilot/internal/model"

// rubricSpec is the configuration of one evaluation dimension. Adding a
// rubric means adding a model.Rubric value, an entry here and a template
// under prompts/.
type rubricSpec struct {
	rubric          model.Rubric
	template        string
	requiresContext bool
	minScore        int
	maxScore        int
}

var rubricSpecs = map[model.Rubric]rubricSpec{
	model.General:      {rubric: model.General, template: "general.md", minScore: 1, maxScore: 5},
	model.Relevance:    {rubric: model.Relevance, template: "relevance.md", requiresContext: true, minScore: 1, maxScore: 5},
	model.Coherence:    {rubric: model.Coherence, template: "coherence.md", minScore: 1, maxScore: 5},
	model.Fluency:      {rubric: model.Fluency, template: "fluency.md", minScore: 1, maxScore: 5},
	model.Groundedness: {rubric: model.Groundedness, template: "groundedness.md", requiresContext: true, minScore: 1, maxScore: 5},
}

// RequiresContext reports whether evaluations under r need reference context.
func RequiresContext(r model.Rubric) bool {
	return rubricSpecs[r].requiresContext
}

// ScoreRange returns the inclusive score bounds of r.
func ScoreRange(r model.Rubric) (lo, hi int) {
	spec := rubricSpecs[r]
	return spec.minScore, spec.maxScore
}

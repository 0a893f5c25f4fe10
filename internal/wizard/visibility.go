package wizard

import "github.com/propelhealth/onboardflow/internal/models"

// VisibleSteps derives the ordered list of currently-visible steps from the
// schema and the answers. The result is computed fresh on every call and is
// never cached across answer changes.
func VisibleSteps(schema *models.FormSchema, answers models.AnswerSet) []models.StepDef {
	visible := make([]models.StepDef, 0, len(schema.Steps))
	for _, step := range schema.Steps {
		if EvaluateCondition(step.ShowWhen, answers) {
			visible = append(visible, step)
		}
	}
	return visible
}

// VisibleQuestions filters a step's questions by their show_when conditions.
// Hidden questions keep their stored answers; hiding is not deleting.
func VisibleQuestions(step models.StepDef, answers models.AnswerSet) []models.QuestionDef {
	visible := make([]models.QuestionDef, 0, len(step.Questions))
	for _, q := range step.Questions {
		if EvaluateCondition(q.ShowWhen, answers) {
			visible = append(visible, q)
		}
	}
	return visible
}

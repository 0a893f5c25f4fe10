package wizard

import (
	"fmt"

	"github.com/propelhealth/onboardflow/internal/models"
)

// SectionErrorKey is the reserved error-map key for section-level failures
// of a repeatable step (too few items).
const SectionErrorKey = "_section"

// StepValidation is the aggregated result of validating one step.
type StepValidation struct {
	IsValid bool              `json:"is_valid"`
	Errors  map[string]string `json:"errors"`
}

// ValidateStep validates every visible question of a step against the
// current answers. Review steps always validate as valid. Error keys are the
// question id, questionID_subFieldID for composite sub-fields, and for
// repeatable steps the keys are prefixed with the item's positional index.
func ValidateStep(step models.StepDef, answers models.AnswerSet, composites map[string]models.CompositeTypeDef) StepValidation {
	errors := make(map[string]string)

	if step.IsReviewStep {
		return StepValidation{IsValid: true, Errors: errors}
	}

	if step.Repeatable {
		validateRepeatableStep(step, answers, composites, errors)
	} else {
		for _, q := range step.Questions {
			if !EvaluateCondition(q.ShowWhen, answers) {
				continue
			}
			value := answers[q.QuestionID]
			if msg := ValidateField(value, q); msg != "" {
				errors[q.QuestionID] = msg
			}
			// provider_filter_list carries an array value and is fully
			// validated by ValidateField, not by composite expansion.
			if def, ok := composites[string(q.Type)]; ok && q.Type != models.QuestionTypeProviderFilterList {
				for fieldID, msg := range ValidateComposite(value, def, q.Required) {
					errors[fmt.Sprintf("%s_%s", q.QuestionID, fieldID)] = msg
				}
			}
		}
	}

	return StepValidation{IsValid: len(errors) == 0, Errors: errors}
}

func validateRepeatableStep(step models.StepDef, answers models.AnswerSet, composites map[string]models.CompositeTypeDef, errors map[string]string) {
	items := answers.Items(step.StepID)

	minItems := 0
	if step.RepeatableConfig != nil {
		minItems = step.RepeatableConfig.MinItems
	}
	if len(items) < minItems {
		errors[SectionErrorKey] = fmt.Sprintf("At least %d item(s) required", minItems)
	}

	for index, item := range items {
		// Overlay the item's fields so conditions can reference siblings
		// within the same item.
		merged := answers.Merged(item)
		for _, q := range step.Questions {
			if !EvaluateCondition(q.ShowWhen, merged) {
				continue
			}
			value := item[q.QuestionID]
			if msg := ValidateField(value, q); msg != "" {
				errors[fmt.Sprintf("%d_%s", index, q.QuestionID)] = msg
			}
			if def, ok := composites[string(q.Type)]; ok {
				for fieldID, msg := range ValidateComposite(value, def, q.Required) {
					errors[fmt.Sprintf("%d_%s_%s", index, q.QuestionID, fieldID)] = msg
				}
			}
		}
	}
}

// Package wizard implements the form-definition-driven engine: condition
// evaluation, field/step validation, step visibility, and the navigation
// state machine over a single session-owned answer set.
package wizard

import (
	"log/slog"
	"reflect"

	"github.com/propelhealth/onboardflow/internal/models"
)

// EvaluateCondition evaluates a show_when condition against the current
// answers. A nil condition always evaluates to true.
//
// The in/not_in operators fail closed when the target is not an array; an
// unknown operator fails open with a diagnostic so a bad schema never
// silently hides a step.
func EvaluateCondition(cond *models.Condition, answers models.AnswerSet) bool {
	if cond == nil {
		return true
	}

	current := answers[cond.QuestionID]

	switch cond.Operator {
	case models.OperatorEquals:
		return valueEquals(current, cond.Value)
	case models.OperatorNotEquals:
		return !valueEquals(current, cond.Value)
	case models.OperatorIn:
		targets, ok := targetList(cond.Value)
		if !ok {
			return false
		}
		return listContains(targets, current)
	case models.OperatorNotIn:
		targets, ok := targetList(cond.Value)
		if !ok {
			return false
		}
		return !listContains(targets, current)
	case models.OperatorNotEmpty:
		return !isEmptyValue(current)
	case models.OperatorEmpty:
		return isEmptyValue(current)
	default:
		slog.Warn("EvaluateCondition: unknown operator, treating as visible",
			"operator", cond.Operator, "question_id", cond.QuestionID)
		return true
	}
}

// FilterConditionalOptions narrows an option list based on another answer.
// If the dependent answer is absent, or has no entry in the mapping table,
// the original list is returned unfiltered (fail open, show everything).
// This asymmetry with the in/not_in operators above is intentional.
func FilterConditionalOptions(options []models.Option, cfg *models.ConditionalOptions, answers models.AnswerSet) []models.Option {
	if cfg == nil {
		return options
	}

	dependent := answers.String(cfg.DependsOn)
	if dependent == "" || cfg.Mapping == nil {
		return options
	}
	allowed, ok := cfg.Mapping[dependent]
	if !ok {
		slog.Debug("FilterConditionalOptions: no mapping entry, returning unfiltered",
			"depends_on", cfg.DependsOn, "value", dependent)
		return options
	}

	filtered := make([]models.Option, 0, len(options))
	for _, opt := range options {
		for _, v := range allowed {
			if opt.Value == v {
				filtered = append(filtered, opt)
				break
			}
		}
	}
	return filtered
}

// valueEquals performs strict value comparison. A missing answer (nil) is
// not equal to any non-nil target. Numeric values are normalized so a JSON
// float64 compares equal to an in-process int.
func valueEquals(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(normalizeScalar(a), normalizeScalar(b))
}

func normalizeScalar(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

func targetList(v interface{}) ([]interface{}, bool) {
	switch list := v.(type) {
	case []interface{}:
		return list, true
	case []string:
		out := make([]interface{}, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func listContains(list []interface{}, v interface{}) bool {
	for _, entry := range list {
		if valueEquals(entry, v) {
			return true
		}
	}
	return false
}

// isEmptyValue reports whether an answer counts as empty: nil, empty string,
// zero-length array, or object with no keys. Numbers and booleans are never
// empty.
func isEmptyValue(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.Len() == 0
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	default:
		return false
	}
}

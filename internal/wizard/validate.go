package wizard

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/propelhealth/onboardflow/internal/models"
)

// ValidateField validates a single value against its question definition and
// returns an error message, or "" when valid.
//
// Check precedence: required, then type-specific emptiness, then pattern,
// then max length. The first failing check wins; a field reports at most one
// error at a time. Pattern and length checks are skipped on empty values so
// "invalid format" is never conflated with "missing".
func ValidateField(value interface{}, q models.QuestionDef) string {
	if q.Required {
		if value == nil || value == "" {
			return fmt.Sprintf("%s is required", q.Label)
		}
		if msg := validateTypedEmptiness(value, q); msg != "" {
			return msg
		}
	}

	if q.Pattern != "" && !isEmptyValue(value) {
		if s, ok := value.(string); ok && !patternMatches(q.Pattern, s) {
			if q.PatternError != "" {
				return q.PatternError
			}
			return fmt.Sprintf("%s format is invalid", q.Label)
		}
	}

	if q.MaxLength > 0 && !isEmptyValue(value) {
		if s, ok := value.(string); ok && len([]rune(s)) > q.MaxLength {
			return fmt.Sprintf("%s must be %d characters or less", q.Label, q.MaxLength)
		}
	}

	return ""
}

// validateTypedEmptiness applies per-type required semantics: a multi-select
// is empty without selections, an alternates value without a default slot,
// and a provider list below its minimum or with entries missing mandatory
// names.
func validateTypedEmptiness(value interface{}, q models.QuestionDef) string {
	switch q.Type {
	case models.QuestionTypeGeneSelector:
		if len(toStringList(value)) == 0 {
			return fmt.Sprintf("%s: Please select at least one gene", q.Label)
		}
	case models.QuestionTypeProviderFilterList:
		minItems := 1
		if q.RepeatableConfig != nil && q.RepeatableConfig.MinItems > 0 {
			minItems = q.RepeatableConfig.MinItems
		}
		items := toItemList(value)
		if len(items) < minItems {
			return fmt.Sprintf("%s: Please add at least %d provider(s)", q.Label, minItems)
		}
		for _, item := range items {
			first, _ := item["first_name"].(string)
			last, _ := item["last_name"].(string)
			if strings.TrimSpace(first) == "" || strings.TrimSpace(last) == "" {
				return fmt.Sprintf("%s: Please fill in first and last name for all providers", q.Label)
			}
		}
	case models.QuestionTypeSelectAlternates:
		if obj, ok := value.(map[string]interface{}); ok {
			if def, _ := obj["default"].(string); def == "" {
				return fmt.Sprintf("%s default selection is required", q.Label)
			}
		}
	}
	return ""
}

// ValidateComposite validates a composite-typed answer's sub-fields and
// returns a map of sub-field id to error message.
//
// Sub-field checks are only enforced when the parent question is itself
// required: an optional composite group with required-looking sub-fields
// never blocks navigation.
func ValidateComposite(value interface{}, def models.CompositeTypeDef, parentRequired bool) map[string]string {
	if !parentRequired {
		return nil
	}

	obj, _ := value.(map[string]interface{})
	errs := make(map[string]string)
	for _, field := range def.Fields {
		var fv interface{}
		if obj != nil {
			fv = obj[field.FieldID]
		}
		if field.Required && isEmptyValue(fv) {
			errs[field.FieldID] = fmt.Sprintf("%s is required", field.Label)
			continue
		}
		if field.Pattern != "" && !isEmptyValue(fv) {
			if s, ok := fv.(string); ok && !patternMatches(field.Pattern, s) {
				errs[field.FieldID] = fmt.Sprintf("%s format is invalid", field.Label)
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// patternMatches reports whether the value fully matches the pattern.
// Patterns are anchored so partial matches do not pass. Schemas are
// validated at load time, so a compile failure here is a programming error
// and counts as a mismatch.
func patternMatches(pattern, value string) bool {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

func toStringList(v interface{}) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, entry := range list {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toItemList(v interface{}) []map[string]interface{} {
	switch list := v.(type) {
	case []map[string]interface{}:
		return list
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(list))
		for _, entry := range list {
			if m, ok := entry.(map[string]interface{}); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

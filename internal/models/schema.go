// Package models defines the core data structures for OnboardFlow.
//
// It includes the form definition schema (steps, questions, conditions,
// composite types), answer and draft shapes, and API response envelopes,
// which are shared across modules.
package models

import (
	"errors"
	"fmt"
	"regexp"
)

// QuestionType identifies how a question's value is shaped and rendered.
type QuestionType string

const (
	QuestionTypeText               QuestionType = "text"
	QuestionTypeTextarea           QuestionType = "textarea"
	QuestionTypeSelect             QuestionType = "select"
	QuestionTypeRadio              QuestionType = "radio"
	QuestionTypeCheckbox           QuestionType = "checkbox"
	QuestionTypeAddress            QuestionType = "address"
	QuestionTypeContactGroup       QuestionType = "contact_group"
	QuestionTypeStakeholderGroup   QuestionType = "stakeholder_group"
	QuestionTypeSelectAlternates   QuestionType = "select_with_alternates"
	QuestionTypeGeneSelector       QuestionType = "gene_selector"
	QuestionTypeProviderFilterList QuestionType = "provider_filter_list"
	QuestionTypeNCCNRuleSearch     QuestionType = "nccn_rule_search"
	QuestionTypeRuleModification   QuestionType = "rule_modification_editor"
)

// IsValidQuestionType checks if the given question type is supported.
func IsValidQuestionType(qt QuestionType) bool {
	switch qt {
	case QuestionTypeText, QuestionTypeTextarea, QuestionTypeSelect,
		QuestionTypeRadio, QuestionTypeCheckbox, QuestionTypeAddress,
		QuestionTypeContactGroup, QuestionTypeStakeholderGroup,
		QuestionTypeSelectAlternates, QuestionTypeGeneSelector,
		QuestionTypeProviderFilterList, QuestionTypeNCCNRuleSearch,
		QuestionTypeRuleModification:
		return true
	default:
		return false
	}
}

// ConditionOperator is the comparison applied by a show_when condition.
type ConditionOperator string

const (
	OperatorEquals    ConditionOperator = "equals"
	OperatorNotEquals ConditionOperator = "not_equals"
	OperatorIn        ConditionOperator = "in"
	OperatorNotIn     ConditionOperator = "not_in"
	OperatorEmpty     ConditionOperator = "empty"
	OperatorNotEmpty  ConditionOperator = "not_empty"
)

// Condition is a predicate over the current answers controlling visibility
// of a step or question. A nil Condition always evaluates to visible.
type Condition struct {
	QuestionID string            `json:"question_id" yaml:"question_id"`
	Operator   ConditionOperator `json:"operator" yaml:"operator"`
	Value      interface{}       `json:"value,omitempty" yaml:"value,omitempty"`
}

// ConditionalOptions narrows an option list based on another answer.
// A dependent value with no mapping entry leaves the list unfiltered.
type ConditionalOptions struct {
	DependsOn string              `json:"depends_on" yaml:"depends_on"`
	Mapping   map[string][]string `json:"mapping" yaml:"mapping"`
}

// Option is a single selectable entry in a reference option list.
type Option struct {
	Value       string `json:"value" yaml:"value"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	ProgramID   string `json:"program_id,omitempty" yaml:"program_id,omitempty"`
}

// RepeatableConfig bounds the cardinality of a repeatable section.
type RepeatableConfig struct {
	MinItems          int    `json:"min_items" yaml:"min_items"`
	MaxItems          int    `json:"max_items,omitempty" yaml:"max_items,omitempty"`
	ItemTitleTemplate string `json:"item_title,omitempty" yaml:"item_title,omitempty"`
}

// CompositeFieldDef is one sub-field of a composite type.
type CompositeFieldDef struct {
	FieldID  string `json:"field_id" yaml:"field_id"`
	Label    string `json:"label" yaml:"label"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Pattern  string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// CompositeTypeDef is a named reusable bundle of sub-fields (e.g. a contact:
// name/email/phone) validated as a unit.
type CompositeTypeDef struct {
	Label  string              `json:"label,omitempty" yaml:"label,omitempty"`
	Fields []CompositeFieldDef `json:"fields" yaml:"fields"`
}

// QuestionDef describes a single question within a step.
type QuestionDef struct {
	QuestionID         string              `json:"question_id" yaml:"question_id"`
	Label              string              `json:"label" yaml:"label"`
	Type               QuestionType        `json:"type" yaml:"type"`
	Required           bool                `json:"required,omitempty" yaml:"required,omitempty"`
	ShowWhen           *Condition          `json:"show_when,omitempty" yaml:"show_when,omitempty"`
	OptionsRef         string              `json:"options_ref,omitempty" yaml:"options_ref,omitempty"`
	ConditionalOptions *ConditionalOptions `json:"conditional_options,omitempty" yaml:"conditional_options,omitempty"`
	Pattern            string              `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	PatternError       string              `json:"pattern_error,omitempty" yaml:"pattern_error,omitempty"`
	MaxLength          int                 `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	RepeatableConfig   *RepeatableConfig   `json:"repeatable_config,omitempty" yaml:"repeatable_config,omitempty"`
}

// StepDef describes a single wizard step.
type StepDef struct {
	StepID           string            `json:"step_id" yaml:"step_id"`
	Title            string            `json:"title" yaml:"title"`
	Description      string            `json:"description,omitempty" yaml:"description,omitempty"`
	Questions        []QuestionDef     `json:"questions,omitempty" yaml:"questions,omitempty"`
	ShowWhen         *Condition        `json:"show_when,omitempty" yaml:"show_when,omitempty"`
	Repeatable       bool              `json:"repeatable,omitempty" yaml:"repeatable,omitempty"`
	RepeatableConfig *RepeatableConfig `json:"repeatable_config,omitempty" yaml:"repeatable_config,omitempty"`
	IsReviewStep     bool              `json:"is_review_step,omitempty" yaml:"is_review_step,omitempty"`
}

// DefaultTrackQuestionID is the answer whose change invalidates downstream
// progress: switching program re-locks later steps.
const DefaultTrackQuestionID = "program"

// FormSchema is the immutable form definition, loaded once at startup and
// never mutated afterwards.
type FormSchema struct {
	FormID          string                      `json:"form_id" yaml:"form_id"`
	Version         string                      `json:"version" yaml:"version"`
	Title           string                      `json:"title,omitempty" yaml:"title,omitempty"`
	TrackQuestionID string                      `json:"track_question_id,omitempty" yaml:"track_question_id,omitempty"`
	Steps           []StepDef                   `json:"steps" yaml:"steps"`
	CompositeTypes  map[string]CompositeTypeDef `json:"composite_types,omitempty" yaml:"composite_types,omitempty"`
}

// Schema validation errors.
var (
	ErrSchemaNoSteps         = errors.New("form schema must define at least one step")
	ErrSchemaDuplicateStep   = errors.New("duplicate step_id in form schema")
	ErrSchemaMissingStepID   = errors.New("step is missing step_id")
	ErrSchemaMissingQuestion = errors.New("question is missing question_id")
	ErrSchemaBadQuestionType = errors.New("unsupported question type")
	ErrSchemaBadPattern      = errors.New("invalid validation pattern")
	ErrSchemaBadOperator     = errors.New("unsupported condition operator")
	ErrSchemaAllConditional  = errors.New("form schema needs at least one step without show_when")
)

// Validate checks structural integrity of the schema. A schema that fails
// validation is a startup error, never a per-request condition.
func (s *FormSchema) Validate() error {
	if len(s.Steps) == 0 {
		return ErrSchemaNoSteps
	}
	seen := make(map[string]bool, len(s.Steps))
	unconditional := false
	for _, step := range s.Steps {
		if step.ShowWhen == nil {
			unconditional = true
		}
		if step.StepID == "" {
			return ErrSchemaMissingStepID
		}
		if seen[step.StepID] {
			return fmt.Errorf("%w: %s", ErrSchemaDuplicateStep, step.StepID)
		}
		seen[step.StepID] = true
		if err := validateCondition(step.ShowWhen, step.StepID); err != nil {
			return err
		}
		for _, q := range step.Questions {
			if q.QuestionID == "" {
				return fmt.Errorf("%w (step %s)", ErrSchemaMissingQuestion, step.StepID)
			}
			if !IsValidQuestionType(q.Type) {
				return fmt.Errorf("%w: %s (question %s)", ErrSchemaBadQuestionType, q.Type, q.QuestionID)
			}
			if q.Pattern != "" {
				if _, err := regexp.Compile(q.Pattern); err != nil {
					return fmt.Errorf("%w: question %s: %v", ErrSchemaBadPattern, q.QuestionID, err)
				}
			}
			if err := validateCondition(q.ShowWhen, q.QuestionID); err != nil {
				return err
			}
		}
	}
	if !unconditional {
		return ErrSchemaAllConditional
	}
	for name, ct := range s.CompositeTypes {
		for _, f := range ct.Fields {
			if f.Pattern != "" {
				if _, err := regexp.Compile(f.Pattern); err != nil {
					return fmt.Errorf("%w: composite %s field %s: %v", ErrSchemaBadPattern, name, f.FieldID, err)
				}
			}
		}
	}
	return nil
}

// TrackQuestion returns the configured track answer id, defaulting to
// DefaultTrackQuestionID when the schema does not set one.
func (s *FormSchema) TrackQuestion() string {
	if s.TrackQuestionID != "" {
		return s.TrackQuestionID
	}
	return DefaultTrackQuestionID
}

func validateCondition(c *Condition, owner string) error {
	if c == nil {
		return nil
	}
	switch c.Operator {
	case OperatorEquals, OperatorNotEquals, OperatorIn, OperatorNotIn,
		OperatorEmpty, OperatorNotEmpty:
		return nil
	default:
		return fmt.Errorf("%w: %q (%s)", ErrSchemaBadOperator, c.Operator, owner)
	}
}

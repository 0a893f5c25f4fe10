package models

import (
	"errors"
	"testing"
)

func validSchema() *FormSchema {
	return &FormSchema{
		FormID:  "clinic_onboarding",
		Version: "1.0.0",
		Steps: []StepDef{
			{
				StepID: "program_selection",
				Title:  "Program Selection",
				Questions: []QuestionDef{
					{QuestionID: "program", Label: "Program", Type: QuestionTypeSelect, Required: true},
				},
			},
			{StepID: "review", Title: "Review", IsReviewStep: true},
		},
		CompositeTypes: map[string]CompositeTypeDef{
			"contact_group": {Fields: []CompositeFieldDef{
				{FieldID: "name", Label: "Name", Required: true},
				{FieldID: "email", Label: "Email", Pattern: `^[^@\s]+@[^@\s]+$`},
			}},
		},
	}
}

func TestSchemaValidateAccepts(t *testing.T) {
	if err := validSchema().Validate(); err != nil {
		t.Fatalf("valid schema rejected: %v", err)
	}
}

func TestSchemaValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*FormSchema)
		wantErr error
	}{
		{"no steps", func(s *FormSchema) { s.Steps = nil }, ErrSchemaNoSteps},
		{"duplicate step id", func(s *FormSchema) { s.Steps[1].StepID = "program_selection" }, ErrSchemaDuplicateStep},
		{"blank step id", func(s *FormSchema) { s.Steps[0].StepID = "" }, ErrSchemaMissingStepID},
		{"blank question id", func(s *FormSchema) { s.Steps[0].Questions[0].QuestionID = "" }, ErrSchemaMissingQuestion},
		{"unknown question type", func(s *FormSchema) { s.Steps[0].Questions[0].Type = "slider" }, ErrSchemaBadQuestionType},
		{"broken question pattern", func(s *FormSchema) { s.Steps[0].Questions[0].Pattern = "[unclosed" }, ErrSchemaBadPattern},
		{"broken composite pattern", func(s *FormSchema) {
			ct := s.CompositeTypes["contact_group"]
			ct.Fields[1].Pattern = "[unclosed"
			s.CompositeTypes["contact_group"] = ct
		}, ErrSchemaBadPattern},
		{"every step conditional", func(s *FormSchema) {
			for i := range s.Steps {
				s.Steps[i].ShowWhen = &Condition{QuestionID: "program", Operator: OperatorEquals, Value: "GRX"}
			}
		}, ErrSchemaAllConditional},
		{"bad step operator", func(s *FormSchema) {
			s.Steps[1].ShowWhen = &Condition{QuestionID: "program", Operator: "matches"}
		}, ErrSchemaBadOperator},
		{"bad question operator", func(s *FormSchema) {
			s.Steps[0].Questions[0].ShowWhen = &Condition{QuestionID: "program", Operator: "like"}
		}, ErrSchemaBadOperator},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			schema := validSchema()
			tc.mutate(schema)
			if err := schema.Validate(); !errors.Is(err, tc.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestIsValidQuestionType(t *testing.T) {
	for _, qt := range []QuestionType{
		QuestionTypeText, QuestionTypeContactGroup, QuestionTypeGeneSelector,
		QuestionTypeSelectAlternates, QuestionTypeRuleModification,
	} {
		if !IsValidQuestionType(qt) {
			t.Errorf("%q should be valid", qt)
		}
	}
	if IsValidQuestionType("slider") || IsValidQuestionType("") {
		t.Error("unknown types must be invalid")
	}
}

func TestTrackQuestionDefault(t *testing.T) {
	s := validSchema()
	if s.TrackQuestion() != DefaultTrackQuestionID {
		t.Errorf("default track question = %q", s.TrackQuestion())
	}
	s.TrackQuestionID = "pathway"
	if s.TrackQuestion() != "pathway" {
		t.Errorf("explicit track question = %q", s.TrackQuestion())
	}
}

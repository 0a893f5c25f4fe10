// Package testutil provides common test fixtures and helpers for
// OnboardFlow tests.
package testutil

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/propelhealth/onboardflow/internal/models"
	"github.com/propelhealth/onboardflow/internal/refdata"
)

// NewTestSchema builds a compact form definition exercising the engine's
// step machinery: a track select, required text fields, a conditionally
// visible step, a composite contact, a repeatable section, and a review
// step. It is shared across the engine and API tests.
func NewTestSchema() *models.FormSchema {
	schema := &models.FormSchema{
		FormID:  "clinic_onboarding_test",
		Version: "1.0.0",
		Title:   "Clinic Onboarding",
		Steps: []models.StepDef{
			{
				StepID: "program_selection",
				Title:  "Program",
				Questions: []models.QuestionDef{
					{
						QuestionID: "program",
						Label:      "Program",
						Type:       models.QuestionTypeSelect,
						Required:   true,
						OptionsRef: "programs",
					},
				},
			},
			{
				StepID: "clinic_info",
				Title:  "Clinic Information",
				Questions: []models.QuestionDef{
					{
						QuestionID: "clinic_name",
						Label:      "Clinic Name",
						Type:       models.QuestionTypeText,
						Required:   true,
						MaxLength:  100,
					},
					{
						QuestionID:   "epic_department_id",
						Label:        "Epic Department ID",
						Type:         models.QuestionTypeText,
						Pattern:      `\d{3,10}`,
						PatternError: "Epic Department ID must be 3 to 10 digits",
					},
					{
						QuestionID: "website_main",
						Label:      "Main Website",
						Type:       models.QuestionTypeText,
					},
				},
			},
			{
				StepID: "nccn_criteria",
				Title:  "Testing Criteria",
				ShowWhen: &models.Condition{
					QuestionID: "program",
					Operator:   models.OperatorIn,
					Value:      []interface{}{"P4M", "PR4M"},
				},
				Questions: []models.QuestionDef{
					{
						QuestionID: "criteria_for_testing",
						Label:      "Criteria for Testing",
						Type:       models.QuestionTypeTextarea,
					},
				},
			},
			{
				StepID: "contacts",
				Title:  "Contacts",
				Questions: []models.QuestionDef{
					{
						QuestionID: "clinic_champion",
						Label:      "Clinic Champion",
						Type:       models.QuestionTypeContactGroup,
						Required:   true,
					},
					{
						QuestionID: "contact_primary",
						Label:      "Primary Contact",
						Type:       models.QuestionTypeContactGroup,
						ShowWhen: &models.Condition{
							QuestionID: "champion_is_primary",
							Operator:   models.OperatorNotEquals,
							Value:      true,
						},
					},
				},
			},
			{
				StepID:     "ordering_providers",
				Title:      "Ordering Providers",
				Repeatable: true,
				RepeatableConfig: &models.RepeatableConfig{
					MinItems:          1,
					MaxItems:          20,
					ItemTitleTemplate: "Provider {index}",
				},
				Questions: []models.QuestionDef{
					{
						QuestionID: "provider_name",
						Label:      "Provider Name",
						Type:       models.QuestionTypeText,
						Required:   true,
					},
					{
						QuestionID:   "provider_npi",
						Label:        "NPI",
						Type:         models.QuestionTypeText,
						Pattern:      `\d{10}`,
						PatternError: "NPI must be exactly 10 digits",
					},
					{
						QuestionID: "provider_email",
						Label:      "Provider Email",
						Type:       models.QuestionTypeText,
					},
				},
			},
			{
				StepID:       "review",
				Title:        "Review & Submit",
				IsReviewStep: true,
			},
		},
		CompositeTypes: map[string]models.CompositeTypeDef{
			"contact_group": {
				Label: "Contact",
				Fields: []models.CompositeFieldDef{
					{FieldID: "name", Label: "Name", Required: true},
					{FieldID: "email", Label: "Email", Required: true, Pattern: `[^@\s]+@[^@\s]+\.[^@\s]+`},
					{FieldID: "phone", Label: "Phone"},
				},
			},
		},
	}
	if err := schema.Validate(); err != nil {
		panic("testutil: invalid test schema: " + err.Error())
	}
	return schema
}

// NewTestReferenceData builds reference data matching NewTestSchema.
func NewTestReferenceData() *refdata.ReferenceData {
	return &refdata.ReferenceData{
		Programs: []models.Option{
			{Value: "P4M", DisplayName: "Prevention 4 Me"},
			{Value: "PR4M", DisplayName: "Prevention Plus"},
			{Value: "GRX", DisplayName: "GeneRx"},
		},
		TestPanels: []refdata.TestPanel{
			{Value: "cancerguard", DisplayName: "CancerGuard", TestCode: "CG-84", TestCodeRNA: "CG-84R", GeneCount: 84},
			{Value: "custom", DisplayName: "Custom Panel", TestCode: "CU-00", IsCustom: true},
		},
		NCCNRules: []refdata.NCCNRule{
			{ID: "rule_brca", Title: "BRCA Testing", RuleText: "Test individuals with a known familial BRCA1/2 variant."},
			{ID: "rule_lynch", Title: "Lynch Syndrome", RuleText: "Test individuals meeting Amsterdam II criteria."},
		},
		GeneList:           []string{"BRCA1", "BRCA2", "MLH1", "MSH2", "PALB2"},
		DefaultCustomGenes: []string{"BRCA1", "BRCA2"},
		OptionLists: map[string][]models.Option{
			"billing_methods": {
				{Value: "insurance", DisplayName: "Insurance"},
				{Value: "institutional", DisplayName: "Institutional"},
			},
		},
	}
}

// ValidContact returns a composite contact value accepted by the test
// schema's contact_group type.
func ValidContact(name, email string) map[string]interface{} {
	return map[string]interface{}{
		"name":  name,
		"email": email,
		"phone": "555-0100",
	}
}

// ValidProviderItem returns a repeatable ordering-provider item accepted by
// the test schema.
func ValidProviderItem(name string) map[string]interface{} {
	return map[string]interface{}{
		"provider_name":  name,
		"provider_npi":   "1234567890",
		"provider_email": "provider@clinic.org",
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes a JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}
	return response
}

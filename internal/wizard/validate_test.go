package wizard

import (
	"strings"
	"testing"

	"github.com/propelhealth/onboardflow/internal/models"
)

func TestValidateFieldRequired(t *testing.T) {
	q := models.QuestionDef{QuestionID: "clinic_name", Label: "Clinic Name", Type: models.QuestionTypeText, Required: true}

	if msg := ValidateField(nil, q); msg != "Clinic Name is required" {
		t.Errorf("nil value: got %q", msg)
	}
	if msg := ValidateField("", q); msg != "Clinic Name is required" {
		t.Errorf("empty string: got %q", msg)
	}
	if msg := ValidateField("Mercy Health", q); msg != "" {
		t.Errorf("valid value: got %q", msg)
	}
}

func TestValidateFieldPatternFullMatch(t *testing.T) {
	q := models.QuestionDef{
		QuestionID: "epic_department_id",
		Label:      "Epic Department ID",
		Type:       models.QuestionTypeText,
		Pattern:    `\d{3,10}`,
	}

	if msg := ValidateField("12345", q); msg != "" {
		t.Errorf("matching value: got %q", msg)
	}
	// A partial match is not a match.
	if msg := ValidateField("123abc", q); msg != "Epic Department ID format is invalid" {
		t.Errorf("partial match: got %q", msg)
	}
	// Optional and empty: pattern is skipped entirely.
	if msg := ValidateField("", q); msg != "" {
		t.Errorf("empty optional value: got %q", msg)
	}
}

func TestValidateFieldPatternErrorMessage(t *testing.T) {
	q := models.QuestionDef{
		QuestionID:   "provider_npi",
		Label:        "NPI",
		Type:         models.QuestionTypeText,
		Pattern:      `\d{10}`,
		PatternError: "NPI must be exactly 10 digits",
	}
	if msg := ValidateField("123", q); msg != "NPI must be exactly 10 digits" {
		t.Errorf("custom pattern error: got %q", msg)
	}
}

func TestValidateFieldMaxLength(t *testing.T) {
	q := models.QuestionDef{QuestionID: "clinic_name", Label: "Clinic Name", Type: models.QuestionTypeText, MaxLength: 5}

	if msg := ValidateField("abcde", q); msg != "" {
		t.Errorf("value at limit: got %q", msg)
	}
	if msg := ValidateField("abcdef", q); msg != "Clinic Name must be 5 characters or less" {
		t.Errorf("value over limit: got %q", msg)
	}
	// Length counts runes, not bytes.
	if msg := ValidateField(strings.Repeat("é", 5), q); msg != "" {
		t.Errorf("multibyte value at limit: got %q", msg)
	}
}

func TestValidateFieldPrecedence(t *testing.T) {
	q := models.QuestionDef{
		QuestionID: "epic_department_id",
		Label:      "Epic Department ID",
		Type:       models.QuestionTypeText,
		Required:   true,
		Pattern:    `\d+`,
		MaxLength:  4,
	}
	// Required wins over pattern for an empty value.
	if msg := ValidateField("", q); msg != "Epic Department ID is required" {
		t.Errorf("empty required: got %q", msg)
	}
	// Pattern wins over max length.
	if msg := ValidateField("abcdefgh", q); msg != "Epic Department ID format is invalid" {
		t.Errorf("pattern before length: got %q", msg)
	}
}

func TestValidateFieldGeneSelector(t *testing.T) {
	q := models.QuestionDef{QuestionID: "custom_genes", Label: "Genes", Type: models.QuestionTypeGeneSelector, Required: true}

	if msg := ValidateField([]interface{}{}, q); msg != "Genes: Please select at least one gene" {
		t.Errorf("empty selection: got %q", msg)
	}
	if msg := ValidateField([]interface{}{"BRCA1"}, q); msg != "" {
		t.Errorf("non-empty selection: got %q", msg)
	}
}

func TestValidateFieldProviderFilterList(t *testing.T) {
	q := models.QuestionDef{
		QuestionID:       "extract_filter_providers",
		Label:            "Providers",
		Type:             models.QuestionTypeProviderFilterList,
		Required:         true,
		RepeatableConfig: &models.RepeatableConfig{MinItems: 2},
	}

	one := []interface{}{map[string]interface{}{"first_name": "A", "last_name": "B"}}
	if msg := ValidateField(one, q); msg != "Providers: Please add at least 2 provider(s)" {
		t.Errorf("below minimum: got %q", msg)
	}

	incomplete := []interface{}{
		map[string]interface{}{"first_name": "A", "last_name": "B"},
		map[string]interface{}{"first_name": " ", "last_name": "C"},
	}
	if msg := ValidateField(incomplete, q); msg != "Providers: Please fill in first and last name for all providers" {
		t.Errorf("blank name: got %q", msg)
	}

	complete := []interface{}{
		map[string]interface{}{"first_name": "A", "last_name": "B"},
		map[string]interface{}{"first_name": "C", "last_name": "D"},
	}
	if msg := ValidateField(complete, q); msg != "" {
		t.Errorf("complete list: got %q", msg)
	}
}

func TestValidateFieldSelectAlternates(t *testing.T) {
	q := models.QuestionDef{QuestionID: "specimen_type", Label: "Specimen Type", Type: models.QuestionTypeSelectAlternates, Required: true}

	noDefault := map[string]interface{}{"default": "", "alternates": []interface{}{"saliva"}}
	if msg := ValidateField(noDefault, q); msg != "Specimen Type default selection is required" {
		t.Errorf("missing default slot: got %q", msg)
	}

	valid := map[string]interface{}{"default": "blood"}
	if msg := ValidateField(valid, q); msg != "" {
		t.Errorf("valid alternates value: got %q", msg)
	}
}

func TestValidateComposite(t *testing.T) {
	def := models.CompositeTypeDef{
		Fields: []models.CompositeFieldDef{
			{FieldID: "name", Label: "Name", Required: true},
			{FieldID: "email", Label: "Email", Required: true, Pattern: `[^@\s]+@[^@\s]+\.[^@\s]+`},
			{FieldID: "phone", Label: "Phone"},
		},
	}

	// Optional parent: sub-field requirements never fire.
	if errs := ValidateComposite(nil, def, false); errs != nil {
		t.Errorf("optional parent: got %v", errs)
	}

	errs := ValidateComposite(map[string]interface{}{"email": "not-an-email"}, def, true)
	if errs["name"] != "Name is required" {
		t.Errorf("missing name: got %v", errs)
	}
	if errs["email"] != "Email format is invalid" {
		t.Errorf("bad email: got %v", errs)
	}
	if _, ok := errs["phone"]; ok {
		t.Errorf("optional phone should not error: got %v", errs)
	}

	valid := map[string]interface{}{"name": "Dana", "email": "dana@clinic.org"}
	if errs := ValidateComposite(valid, def, true); errs != nil {
		t.Errorf("valid contact: got %v", errs)
	}

	// A required composite with no value at all reports every required field.
	missing := ValidateComposite(nil, def, true)
	if len(missing) != 2 {
		t.Errorf("nil value for required composite: got %v", missing)
	}
}

// Package projector transforms a final answer set into the canonical
// submission document. The transform is pure and deterministic: identical
// inputs yield identical output except for the generation timestamp.
package projector

import (
	"log/slog"
	"time"

	"github.com/propelhealth/onboardflow/internal/models"
	"github.com/propelhealth/onboardflow/internal/refdata"
)

// SchemaVersion identifies the submission document shape for downstream
// consumers to branch on.
const SchemaVersion = "1.0"

// generatedBy stamps the producing system in the document metadata.
const generatedBy = "onboardflow"

// SubmissionDocument is the canonical system output.
type SubmissionDocument struct {
	SchemaVersion     string                   `json:"schema_version"`
	SubmittedAt       time.Time                `json:"submitted_at"`
	Program           string                   `json:"program"`
	ClinicInfo        ClinicInformation        `json:"clinic_information"`
	Contacts          Contacts                 `json:"contacts"`
	Stakeholders      []map[string]interface{} `json:"stakeholders"`
	LabOrderConfig    LabOrderConfiguration    `json:"lab_order_configuration"`
	OrderingProviders []OrderingProvider       `json:"ordering_providers"`
	NCCNRuleChanges   []NCCNRuleChange         `json:"nccn_rule_changes"`
	Helpdesk          Helpdesk                 `json:"helpdesk"`
	ExtractFiltering  ExtractFiltering         `json:"extract_filtering"`
	Metadata          Metadata                 `json:"metadata"`
}

// ClinicInformation is the flattened clinic profile section.
type ClinicInformation struct {
	ClinicName       string      `json:"clinic_name"`
	EpicDepartmentID interface{} `json:"epic_department_id"`
	Address          interface{} `json:"address"`
	Timezone         string      `json:"timezone"`
	HoursOfOperation interface{} `json:"hours_of_operation"`
	UseHoursInEmails bool        `json:"use_hours_in_emails"`
	WebsiteMain      interface{} `json:"website_main"`
	WebsiteClinic    interface{} `json:"website_clinic"`
}

// Contacts folds the clinic champion into the primary slot when the
// champion-is-primary flag is set.
type Contacts struct {
	ClinicChampion    interface{} `json:"clinic_champion"`
	ChampionIsPrimary bool        `json:"champion_is_primary"`
	Primary           interface{} `json:"primary"`
	GeneticCounselor  interface{} `json:"genetic_counselor"`
	Secondary         interface{} `json:"secondary"`
	IT                interface{} `json:"it"`
	Lab               interface{} `json:"lab"`
}

// SpecimenCollection is the normalized alternates structure for specimen
// type configuration.
type SpecimenCollection struct {
	Default                  interface{}   `json:"default"`
	AdditionalOptionsEnabled bool          `json:"additional_options_enabled"`
	AdditionalOptions        []interface{} `json:"additional_options"`
}

// TestPanelOutput carries the resolved panel with display data joined from
// reference data.
type TestPanelOutput struct {
	TestName          string   `json:"test_name"`
	TestCode          string   `json:"test_code"`
	IncludeRNAInsight bool     `json:"include_rna_insight"`
	SelectedGenes     []string `json:"selected_genes"`
	GeneCount         int      `json:"gene_count"`
}

// AdditionalTestPanel is an optional extra panel beyond the default.
type AdditionalTestPanel struct {
	TestCode      interface{} `json:"test_code"`
	SelectedGenes interface{} `json:"selected_genes"`
	Modifications interface{} `json:"modifications"`
}

// LabOrderConfiguration is the lab ordering section.
type LabOrderConfiguration struct {
	TestProvider         string                `json:"test_provider"`
	SpecimenCollection   *SpecimenCollection   `json:"specimen_collection"`
	BillingMethod        string                `json:"billing_method"`
	SendKitToPatient     interface{}           `json:"send_kit_to_patient"`
	Indication           interface{}           `json:"indication"`
	CriteriaForTesting   interface{}           `json:"criteria_for_testing"`
	TestPanel            *TestPanelOutput      `json:"test_panel"`
	AdditionalTestPanels []AdditionalTestPanel `json:"additional_test_panels"`
}

// OrderingProvider is a normalized provider entry.
type OrderingProvider struct {
	Name          string      `json:"name"`
	Title         interface{} `json:"title"`
	Email         string      `json:"email"`
	Phone         interface{} `json:"phone"`
	NPI           string      `json:"npi"`
	Specialty     interface{} `json:"specialty"`
	OfficeAddress interface{} `json:"office_address"`
}

// NCCNRuleChange is one requested criteria change, with rule text joined
// from reference data for modified/deprecated changes.
type NCCNRuleChange struct {
	ChangeType         string      `json:"change_type"`
	NewRuleContent     interface{} `json:"new_rule_content,omitempty"`
	NewRuleDescription interface{} `json:"new_rule_description,omitempty"`
	TargetRuleID       string      `json:"target_rule_id,omitempty"`
	TargetRuleTitle    interface{} `json:"target_rule_title,omitempty"`
	OriginalRuleText   interface{} `json:"original_rule_text,omitempty"`
	ModifiedRuleText   interface{} `json:"modified_rule_text,omitempty"`
	DeprecationReason  interface{} `json:"deprecation_reason,omitempty"`
}

// Helpdesk is the clinic helpdesk phone configuration.
type Helpdesk struct {
	Phone           interface{} `json:"phone"`
	IncludeInEmails bool        `json:"include_in_emails"`
}

// ExtractFiltering controls EHR extract scoping.
type ExtractFiltering struct {
	PatientStatus    interface{} `json:"patient_status"`
	ProcedureType    interface{} `json:"procedure_type"`
	FilterByProvider bool        `json:"filter_by_provider"`
	ProviderList     interface{} `json:"provider_list"`
}

// Metadata stamps the producing form version.
type Metadata struct {
	FormVersion string `json:"form_version"`
	GeneratedBy string `json:"generated_by"`
}

// nccnPrograms are the programs for which NCCN rule changes apply.
var nccnPrograms = map[string]bool{"P4M": true, "PR4M": true}

// Project builds the canonical submission document from the final answers.
func Project(answers models.AnswerSet, schema *models.FormSchema, ref *refdata.ReferenceData) SubmissionDocument {
	slog.Debug("projector.Project invoked", "answers", len(answers))

	doc := SubmissionDocument{
		SchemaVersion: SchemaVersion,
		SubmittedAt:   time.Now().UTC(),
		Program:       answers.String("program"),
		ClinicInfo: ClinicInformation{
			ClinicName:       answers.String("clinic_name"),
			EpicDepartmentID: nullableString(answers.String("epic_department_id")),
			Address:          nullableObject(answers.Object("clinic_address")),
			Timezone:         answers.String("timezone"),
			HoursOfOperation: nullableString(answers.String("hours_of_operation")),
			UseHoursInEmails: answers.Bool("hours_in_emails"),
			WebsiteMain:      nullableString(answers.String("website_main")),
			WebsiteClinic:    nullableString(answers.String("website_patient_facing")),
		},
		Contacts:          projectContacts(answers),
		Stakeholders:      projectStakeholders(answers),
		LabOrderConfig:    projectLabOrder(answers, ref),
		OrderingProviders: projectProviders(answers),
		NCCNRuleChanges:   projectNCCNChanges(answers, ref),
		Helpdesk: Helpdesk{
			Phone:           nullableString(answers.String("helpdesk_phone")),
			IncludeInEmails: answers.Bool("helpdesk_phone_in_emails"),
		},
		ExtractFiltering: projectExtractFiltering(answers),
		Metadata: Metadata{
			FormVersion: schema.Version,
			GeneratedBy: generatedBy,
		},
	}
	return doc
}

func projectContacts(answers models.AnswerSet) Contacts {
	champion := answers.Object("clinic_champion")
	championIsPrimary := answers.Bool("champion_is_primary")

	var primary interface{}
	if championIsPrimary && champion != nil {
		merged := make(map[string]interface{}, len(champion)+1)
		for k, v := range champion {
			merged[k] = v
		}
		merged["is_also_champion"] = true
		primary = merged
	} else {
		primary = nullableObject(answers.Object("contact_primary"))
	}

	return Contacts{
		ClinicChampion:    nullableObject(champion),
		ChampionIsPrimary: championIsPrimary,
		Primary:           primary,
		GeneticCounselor:  nullableObject(answers.Object("genetic_counselor")),
		Secondary:         nullableObject(answers.Object("contact_secondary")),
		IT:                nullableObject(answers.Object("contact_it")),
		Lab:               nullableObject(answers.Object("contact_lab")),
	}
}

// projectStakeholders includes only entries with a non-empty name.
func projectStakeholders(answers models.AnswerSet) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, 3)
	for _, field := range []string{"stakeholder_champion", "stakeholder_executive", "stakeholder_it_director"} {
		s := answers.Object(field)
		if s == nil {
			continue
		}
		if name, _ := s["name"].(string); name != "" {
			out = append(out, s)
		}
	}
	return out
}

func projectLabOrder(answers models.AnswerSet, ref *refdata.ReferenceData) LabOrderConfiguration {
	cfg := LabOrderConfiguration{
		TestProvider:         answers.String("lab_partner"),
		BillingMethod:        answers.String("billing_method"),
		SendKitToPatient:     answers["send_kit_to_patient"],
		Indication:           nullableString(answers.String("indication")),
		CriteriaForTesting:   nullableString(answers.String("criteria_for_testing")),
		TestPanel:            projectTestPanel(answers, ref),
		AdditionalTestPanels: projectAdditionalPanels(answers),
	}

	if specimen, ok := answers["specimen_type"]; ok && specimen != nil {
		sc := &SpecimenCollection{AdditionalOptions: []interface{}{}}
		if obj, ok := specimen.(map[string]interface{}); ok {
			sc.Default = obj["default"]
			sc.AdditionalOptionsEnabled, _ = obj["offer_alternates"].(bool)
			if alternates, ok := obj["alternates"].([]interface{}); ok {
				sc.AdditionalOptions = alternates
			}
		} else {
			// Legacy scalar answer shape.
			sc.Default = specimen
		}
		cfg.SpecimenCollection = sc
	}
	return cfg
}

// projectTestPanel resolves the selected panel against reference data. The
// RNA-insight checkbox swaps in the RNA test code and decorates the name;
// custom panels carry the user's gene selection.
func projectTestPanel(answers models.AnswerSet, ref *refdata.ReferenceData) *TestPanelOutput {
	value := answers.String("test_panel")
	if value == "" || ref == nil {
		return nil
	}
	panel := ref.TestPanel(value)
	if panel == nil {
		slog.Warn("projector: selected test panel not found in reference data", "value", value)
		return nil
	}

	includeRNA := answers.Bool("include_rna_insight")
	testCode := panel.TestCode
	testName := panel.DisplayName
	if includeRNA {
		if panel.TestCodeRNA != "" {
			testCode = panel.TestCodeRNA
		}
		testName = panel.DisplayName + " +RNAInsight"
	}

	out := &TestPanelOutput{
		TestName:          testName,
		TestCode:          testCode,
		IncludeRNAInsight: includeRNA,
		GeneCount:         panel.GeneCount,
	}
	if panel.IsCustom {
		out.SelectedGenes = answers.StringList("custom_genes")
		out.GeneCount = len(out.SelectedGenes)
	}
	return out
}

func projectAdditionalPanels(answers models.AnswerSet) []AdditionalTestPanel {
	items := answers.Items("additional_test_panels")
	out := make([]AdditionalTestPanel, 0, len(items))
	for _, item := range items {
		out = append(out, AdditionalTestPanel{
			TestCode:      item["test_code"],
			SelectedGenes: item["panel_custom_genes"],
			Modifications: item["test_modifications"],
		})
	}
	return out
}

func projectProviders(answers models.AnswerSet) []OrderingProvider {
	items := answers.Items(wizardOrderingProvidersStepID)
	out := make([]OrderingProvider, 0, len(items))
	for _, item := range items {
		name, _ := item["provider_name"].(string)
		email, _ := item["provider_email"].(string)
		npi, _ := item["provider_npi"].(string)
		out = append(out, OrderingProvider{
			Name:          name,
			Title:         nullableField(item, "provider_title"),
			Email:         email,
			Phone:         nullableField(item, "provider_phone"),
			NPI:           npi,
			Specialty:     nullableField(item, "provider_specialty"),
			OfficeAddress: nullableField(item, "provider_office_address"),
		})
	}
	return out
}

// wizardOrderingProvidersStepID mirrors the wizard package's step id without
// importing it (the projector stays a leaf).
const wizardOrderingProvidersStepID = "ordering_providers"

func projectNCCNChanges(answers models.AnswerSet, ref *refdata.ReferenceData) []NCCNRuleChange {
	if !nccnPrograms[answers.String("program")] {
		return []NCCNRuleChange{}
	}
	items := answers.Items("nccn_rule_changes")
	out := make([]NCCNRuleChange, 0, len(items))
	for _, item := range items {
		changeType, _ := item["change_type"].(string)
		change := NCCNRuleChange{ChangeType: changeType}
		if changeType == "new" {
			change.NewRuleContent = item["new_rule_content"]
			change.NewRuleDescription = item["new_rule_description"]
			out = append(out, change)
			continue
		}

		targetRule, _ := item["target_rule"].(string)
		change.TargetRuleID = targetRule
		if ref != nil {
			if rule := ref.NCCNRule(targetRule); rule != nil {
				change.TargetRuleTitle = rule.Title
				change.OriginalRuleText = rule.RuleText
			}
		}
		if changeType == "modified" {
			change.ModifiedRuleText = item["modified_rule_content"]
		} else {
			change.DeprecationReason = item["deprecation_reason"]
		}
		out = append(out, change)
	}
	return out
}

func projectExtractFiltering(answers models.AnswerSet) ExtractFiltering {
	filterByProvider := answers.Bool("extract_filter_by_provider")
	ef := ExtractFiltering{
		PatientStatus:    nullableString(answers.String("extract_patient_status")),
		ProcedureType:    nullableString(answers.String("extract_procedure_type")),
		FilterByProvider: filterByProvider,
	}
	if filterByProvider {
		ef.ProviderList = answers["extract_filter_providers"]
	}
	return ef
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableObject(m map[string]interface{}) interface{} {
	if m == nil {
		return nil
	}
	return m
}

func nullableField(item map[string]interface{}, key string) interface{} {
	v, ok := item[key]
	if !ok || v == nil || v == "" {
		return nil
	}
	return v
}

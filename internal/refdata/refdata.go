// Package refdata loads the static form definition and reference data
// consumed by the wizard engine, and supports a best-effort program-list
// override from an external registry.
package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/propelhealth/onboardflow/internal/models"
	"gopkg.in/yaml.v3"
)

// TestPanel is a reference entry for an orderable test panel.
type TestPanel struct {
	Value       string `json:"value"`
	DisplayName string `json:"display_name"`
	TestCode    string `json:"test_code"`
	TestCodeRNA string `json:"test_code_rna,omitempty"`
	GeneCount   int    `json:"gene_count,omitempty"`
	IsCustom    bool   `json:"is_custom,omitempty"`
}

// NCCNRule is a reference entry for a selectable NCCN criteria rule.
type NCCNRule struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	RuleText string `json:"rule_text"`
}

// ReferenceData holds the named option lists and lookup tables supplied to
// the engine at startup. Treated as read-only after load, except for the
// all-or-nothing program override.
type ReferenceData struct {
	Programs           []models.Option            `json:"programs"`
	TestPanels         []TestPanel                `json:"test_panels"`
	NCCNRules          []NCCNRule                 `json:"nccn_rules"`
	GeneList           []string                   `json:"gene_list"`
	DefaultCustomGenes []string                   `json:"default_custom_genes"`
	OptionLists        map[string][]models.Option `json:"option_lists"`
}

// Options resolves a named option list for an options_ref lookup. The
// "programs" name maps to the program list; anything else comes from the
// generic option lists. A missing name yields nil.
func (r *ReferenceData) Options(name string) []models.Option {
	if name == "programs" {
		return r.Programs
	}
	if r.OptionLists == nil {
		return nil
	}
	return r.OptionLists[name]
}

// TestPanel returns the panel with the given value, or nil.
func (r *ReferenceData) TestPanel(value string) *TestPanel {
	for i := range r.TestPanels {
		if r.TestPanels[i].Value == value {
			return &r.TestPanels[i]
		}
	}
	return nil
}

// NCCNRule returns the rule with the given id, or nil.
func (r *ReferenceData) NCCNRule(id string) *NCCNRule {
	for i := range r.NCCNRules {
		if r.NCCNRules[i].ID == id {
			return &r.NCCNRules[i]
		}
	}
	return nil
}

// LoadFormSchema reads and validates a form definition from a JSON or YAML
// file (by extension) and applies defaults.
func LoadFormSchema(path string) (*models.FormSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read form schema %s: %w", path, err)
	}

	var schema models.FormSchema
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &schema); err != nil {
			return nil, fmt.Errorf("failed to parse form schema %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &schema); err != nil {
			return nil, fmt.Errorf("failed to parse form schema %s: %w", path, err)
		}
	}

	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid form schema %s: %w", path, err)
	}
	slog.Info("Form schema loaded", "form_id", schema.FormID, "version", schema.Version, "steps", len(schema.Steps))
	return &schema, nil
}

// LoadReferenceData reads reference data from a JSON file.
func LoadReferenceData(path string) (*ReferenceData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference data %s: %w", path, err)
	}
	var ref ReferenceData
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("failed to parse reference data %s: %w", path, err)
	}
	slog.Info("Reference data loaded", "programs", len(ref.Programs), "test_panels", len(ref.TestPanels),
		"nccn_rules", len(ref.NCCNRules), "option_lists", len(ref.OptionLists))
	return &ref, nil
}

// registryProgram is the wire shape of an external program registry entry.
type registryProgram struct {
	ProgramID string `json:"program_id"`
	Name      string `json:"name"`
	Prefix    string `json:"prefix"`
	Status    string `json:"status"`
}

// excludedPrograms are registry entries never selectable for clinic
// onboarding.
var excludedPrograms = map[string]bool{
	"Platform": true,
	"Discover": true,
}

// FetchPrograms retrieves the live program list from the registry endpoint.
// Only Active programs are returned, sorted by name. Callers fall back to
// the static list on error or an empty result; the merge is all-or-nothing.
func FetchPrograms(ctx context.Context, client *http.Client, url string) ([]models.Option, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch program registry: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("program registry returned status %d", resp.StatusCode)
	}

	var entries []registryProgram
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode program registry response: %w", err)
	}

	programs := make([]models.Option, 0, len(entries))
	for _, p := range entries {
		if p.Status != "Active" || excludedPrograms[p.Name] {
			continue
		}
		value := p.Prefix
		if value == "" {
			value = p.ProgramID
		}
		programs = append(programs, models.Option{Value: value, DisplayName: p.Name, ProgramID: p.ProgramID})
	}
	sort.Slice(programs, func(i, j int) bool { return programs[i].DisplayName < programs[j].DisplayName })
	return programs, nil
}

// OverridePrograms attempts the registry fetch and swaps the program list in
// on success. On any failure the static list stays as-is.
func (r *ReferenceData) OverridePrograms(ctx context.Context, client *http.Client, url string) {
	programs, err := FetchPrograms(ctx, client, url)
	if err != nil {
		slog.Warn("Program registry fetch failed, keeping static program list", "error", err)
		return
	}
	if len(programs) == 0 {
		slog.Warn("Program registry returned no programs, keeping static program list")
		return
	}
	slog.Info("Program list overridden from registry", "programs", len(programs))
	r.Programs = programs
}

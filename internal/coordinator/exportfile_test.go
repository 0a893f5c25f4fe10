package coordinator

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/propelhealth/onboardflow/internal/models"
	"github.com/propelhealth/onboardflow/internal/store"
)

func TestExportImportRoundTrip(t *testing.T) {
	mem := store.NewInMemoryStore()
	first := newTestCoordinator(t, mem, mem)
	fillValidAnswers(first.Session())
	first.Session().Next()

	data, err := first.Export()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	first.Close()

	// The file uses the stable snapshot key names.
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	for _, key := range []string{"formData", "currentStep", "savedAt"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("export missing key %q: %v", key, raw)
		}
	}
	if _, ok := raw["remoteId"]; ok {
		t.Error("export must not carry the device-coupled remote id")
	}

	second := newTestCoordinator(t, store.NewInMemoryStore(), store.NewInMemoryStore())
	defer second.Close()
	if err := second.Import(data); err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if second.Session().Answers().String("clinic_name") != "Mercy Health" {
		t.Errorf("imported answers mismatch: %v", second.Session().Answers())
	}
	if second.Session().State().CurrentStepIndex != 1 {
		t.Errorf("imported position mismatch: %d", second.Session().State().CurrentStepIndex)
	}
}

func TestImportRejectsMalformedFile(t *testing.T) {
	mem := store.NewInMemoryStore()
	c := newTestCoordinator(t, mem, mem)
	defer c.Close()

	c.Session().SetAnswer("clinic_name", "Mercy Health")

	cases := []struct {
		name string
		data []byte
	}{
		{"not JSON", []byte("not a draft file")},
		{"missing formData", []byte(`{"currentStep": 2, "savedAt": "2026-01-01T00:00:00Z"}`)},
		{"negative step", []byte(`{"formData": {}, "currentStep": -3}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := c.Import(tc.data); !errors.Is(err, models.ErrMalformedImport) {
				t.Errorf("expected ErrMalformedImport, got %v", err)
			}
			// A rejected import leaves the session untouched.
			if c.Session().Answers().String("clinic_name") != "Mercy Health" {
				t.Error("rejected import must not mutate the session")
			}
		})
	}
}

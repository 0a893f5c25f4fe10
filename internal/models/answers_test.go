package models

import "testing"

func TestAnswerSetAccessors(t *testing.T) {
	a := AnswerSet{
		"clinic_name": "  Mercy Health  ",
		"flag":        true,
		"count":       float64(3),
		"champion":    map[string]interface{}{"name": "Dr. Reyes", "email": " reyes@mercy.org "},
		"providers": []interface{}{
			map[string]interface{}{"provider_name": "Dr. Chen"},
			"not an item",
			map[string]interface{}{"provider_name": "Dr. Okafor"},
		},
		"genes": []interface{}{"BRCA1", 7, "MLH1"},
	}

	if got := a.String("clinic_name"); got != "Mercy Health" {
		t.Errorf("String trimmed = %q", got)
	}
	if a.String("count") != "" || a.String("missing") != "" {
		t.Error("non-string answers must read as empty strings")
	}
	if !a.Bool("flag") || a.Bool("clinic_name") || a.Bool("missing") {
		t.Error("Bool coercion is strict")
	}
	if a.Object("champion")["name"] != "Dr. Reyes" {
		t.Errorf("Object = %v", a.Object("champion"))
	}
	if a.Object("clinic_name") != nil {
		t.Error("non-object answer must read as nil object")
	}
	if got := a.ObjectField("champion", "email"); got != "reyes@mercy.org" {
		t.Errorf("ObjectField trimmed = %q", got)
	}
	if a.ObjectField("champion", "phone") != "" || a.ObjectField("missing", "email") != "" {
		t.Error("absent composite fields must read as empty strings")
	}

	items := a.Items("providers")
	if len(items) != 2 || items[1]["provider_name"] != "Dr. Okafor" {
		t.Errorf("Items skipping non-objects = %v", items)
	}
	if a.Items("clinic_name") != nil {
		t.Error("non-list answer must read as nil items")
	}

	genes := a.StringList("genes")
	if len(genes) != 2 || genes[0] != "BRCA1" || genes[1] != "MLH1" {
		t.Errorf("StringList coercion = %v", genes)
	}
	if a.StringList("flag") != nil {
		t.Error("non-list answer must read as nil string list")
	}
}

func TestAnswerSetItemsTypedForm(t *testing.T) {
	typed := []map[string]interface{}{{"provider_name": "Dr. Chen"}}
	a := AnswerSet{"providers": typed}
	items := a.Items("providers")
	if len(items) != 1 || items[0]["provider_name"] != "Dr. Chen" {
		t.Errorf("typed items = %v", items)
	}
}

func TestAnswerSetCopySemantics(t *testing.T) {
	a := AnswerSet{"program": "P4M"}

	b := a.WithValue("clinic_name", "Mercy Health")
	if _, leaked := a["clinic_name"]; leaked {
		t.Error("WithValue mutated the receiver")
	}
	if b.String("program") != "P4M" || b.String("clinic_name") != "Mercy Health" {
		t.Errorf("WithValue copy = %v", b)
	}

	merged := a.Merged(map[string]interface{}{"program": "GRX", "credentialed": true})
	if merged.String("program") != "GRX" || !merged.Bool("credentialed") {
		t.Errorf("Merged overlay = %v", merged)
	}
	if a.String("program") != "P4M" {
		t.Error("Merged mutated the receiver")
	}

	clone := a.Clone()
	clone["program"] = "GRX"
	if a.String("program") != "P4M" {
		t.Error("Clone shares storage with the receiver")
	}
}

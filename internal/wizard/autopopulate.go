package wizard

import (
	"log/slog"

	"github.com/propelhealth/onboardflow/internal/models"
)

// OrderingProvidersStepID is the step whose first entry can be derived from
// a stakeholder marked as ordering provider.
const OrderingProvidersStepID = "ordering_providers"

// autoFillMarkerKey tags a provider entry that was derived from a
// stakeholder, so a later real edit is not overwritten on re-entry. The
// marker is consumed on the first real edit of the list.
const (
	autoFillMarkerKey    = "_pre_filled_from_stakeholder"
	autoFillSourceKey    = "_stakeholder_source"
	orderingProviderFlag = "is_ordering_provider"
)

// stakeholderFields are scanned in order for an entry marked as ordering
// provider.
var stakeholderFields = []string{
	"stakeholder_champion",
	"stakeholder_executive",
	"stakeholder_it_director",
}

// autoPopulateLocked derives the first ordering-provider entry from a
// stakeholder when entering the ordering providers step, provided the first
// entry is empty or was itself auto-populated. Called with s.mu held.
func (s *Session) autoPopulateLocked(targetIndex int, visible []models.StepDef) {
	if targetIndex < 0 || targetIndex >= len(visible) || visible[targetIndex].StepID != OrderingProvidersStepID {
		return
	}

	source := stakeholderOrderingProvider(s.answers)
	if source == nil {
		return
	}

	existing := s.answers.Items(OrderingProvidersStepID)
	if len(existing) > 0 {
		first := existing[0]
		name, _ := first["provider_name"].(string)
		autoFilled, _ := first[autoFillMarkerKey].(bool)
		if name != "" && !autoFilled {
			return
		}
	}

	slog.Debug("Session: auto-populating first ordering provider from stakeholder",
		"source", source[autoFillSourceKey])
	next := make([]interface{}, 0, len(existing)+1)
	next = append(next, source)
	if len(existing) > 1 {
		for _, item := range existing[1:] {
			next = append(next, item)
		}
	}
	s.answers = s.answers.WithValue(OrderingProvidersStepID, next)
}

// stakeholderOrderingProvider finds the first stakeholder flagged as
// ordering provider and shapes it as a provider list entry, tagged as
// auto-filled.
func stakeholderOrderingProvider(answers models.AnswerSet) map[string]interface{} {
	for _, fieldID := range stakeholderFields {
		stakeholder := answers.Object(fieldID)
		if stakeholder == nil {
			continue
		}
		isProvider, _ := stakeholder[orderingProviderFlag].(bool)
		name, _ := stakeholder["name"].(string)
		if !isProvider || name == "" {
			continue
		}
		title, _ := stakeholder["title"].(string)
		email, _ := stakeholder["email"].(string)
		phone, _ := stakeholder["phone"].(string)
		return map[string]interface{}{
			"provider_name":           name,
			"provider_title":          title,
			"provider_email":          email,
			"provider_phone":          phone,
			"provider_npi":            "",
			"provider_specialty":      "",
			"provider_office_address": map[string]interface{}{},
			autoFillMarkerKey:         true,
			autoFillSourceKey:         fieldID,
		}
	}
	return nil
}

// consumeAutoFillMarker strips the auto-fill marker from the first provider
// entry once the incoming value differs from the stored auto-filled one.
// From then on re-entering the step leaves the user's edit alone.
func consumeAutoFillMarker(current models.AnswerSet, incoming interface{}) interface{} {
	items := toItemList(incoming)
	if len(items) == 0 {
		return incoming
	}
	first := items[0]
	marked, _ := first[autoFillMarkerKey].(bool)
	if !marked {
		return incoming
	}

	prev := current.Items(OrderingProvidersStepID)
	if len(prev) > 0 && sameProviderEntry(prev[0], first) {
		return incoming
	}

	edited := make(map[string]interface{}, len(first))
	for k, v := range first {
		if k == autoFillMarkerKey || k == autoFillSourceKey {
			continue
		}
		edited[k] = v
	}
	out := make([]interface{}, 0, len(items))
	out = append(out, edited)
	for _, item := range items[1:] {
		out = append(out, item)
	}
	return out
}

func sameProviderEntry(a, b map[string]interface{}) bool {
	for _, key := range []string{"provider_name", "provider_title", "provider_email", "provider_phone", "provider_npi", "provider_specialty"} {
		av, _ := a[key].(string)
		bv, _ := b[key].(string)
		if av != bv {
			return false
		}
	}
	return true
}

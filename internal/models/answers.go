package models

import "strings"

// AnswerSet maps question ids (or step ids, for repeatable sections) to the
// current answer value. Value shapes are type-dependent: scalars, composite
// objects (map[string]interface{}), arrays of composite objects, or the
// tri-part default/offer_alternates/alternates structure.
//
// An AnswerSet is owned by exactly one session. Mutation goes through
// WithValue, which returns a fresh map so observers never see partial
// updates and stale references stay internally consistent.
type AnswerSet map[string]interface{}

// Clone returns a shallow copy of the answer set. Item slices and composite
// objects are shared; callers replace them wholesale rather than mutating
// in place.
func (a AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// WithValue returns a copy of the answer set with one value replaced.
func (a AnswerSet) WithValue(questionID string, value interface{}) AnswerSet {
	out := a.Clone()
	out[questionID] = value
	return out
}

// Merged overlays item-local values over the step-level answers. Repeatable
// item validation uses this so show_when conditions can reference sibling
// fields within the same item.
func (a AnswerSet) Merged(item map[string]interface{}) AnswerSet {
	out := a.Clone()
	for k, v := range item {
		out[k] = v
	}
	return out
}

// String returns the answer as a trimmed string, or "" when absent or not
// string-shaped.
func (a AnswerSet) String(questionID string) string {
	if s, ok := a[questionID].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// Bool returns the answer as a bool, or false when absent or not a bool.
func (a AnswerSet) Bool(questionID string) bool {
	b, _ := a[questionID].(bool)
	return b
}

// Object returns the answer as a composite object, or nil.
func (a AnswerSet) Object(questionID string) map[string]interface{} {
	m, _ := a[questionID].(map[string]interface{})
	return m
}

// ObjectField returns a string field from a composite answer, trimmed.
func (a AnswerSet) ObjectField(questionID, fieldID string) string {
	if m := a.Object(questionID); m != nil {
		if s, ok := m[fieldID].(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// Items returns the answer as a list of composite objects. Entries that are
// not object-shaped are skipped.
func (a AnswerSet) Items(stepID string) []map[string]interface{} {
	raw, ok := a[stepID].([]interface{})
	if !ok {
		// Accept the already-typed form produced by in-process callers.
		if typed, ok := a[stepID].([]map[string]interface{}); ok {
			return typed
		}
		return nil
	}
	items := make([]map[string]interface{}, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]interface{}); ok {
			items = append(items, m)
		}
	}
	return items
}

// StringList returns the answer as a list of strings (e.g. a gene selection).
func (a AnswerSet) StringList(questionID string) []string {
	switch v := a[questionID].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

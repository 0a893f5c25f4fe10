package wizard

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/propelhealth/onboardflow/internal/models"
)

// NavigationState is the navigation machine's externally visible state.
// CurrentStepIndex is always a valid index into the currently visible step
// list; FurthestReachedStepIndex advances monotonically except on a track
// answer change, which resets it to the current step.
type NavigationState struct {
	CurrentStepIndex         int  `json:"current_step_index"`
	FurthestReachedStepIndex int  `json:"furthest_reached_step_index"`
	AttemptedAdvance         bool `json:"attempted_advance"`
	ReturnToReview           bool `json:"return_to_review"`
}

// ChangeListener is notified after every answer or navigation mutation.
// Listeners run on the mutating goroutine and must not call back into the
// session.
type ChangeListener func()

// Session owns the working answer set for one onboarding run and drives the
// navigation state machine over it. All reads and writes are serialized by
// an internal mutex; no other component holds a divergent copy of the
// answers.
type Session struct {
	ID string

	mu        sync.Mutex
	schema    *models.FormSchema
	answers   models.AnswerSet
	nav       NavigationState
	errors    map[string]string
	identity  *models.Identity
	listeners []ChangeListener
	lastTrack interface{}
}

// NewSession creates a session over a validated schema. identity may be nil
// for unauthenticated use.
func NewSession(schema *models.FormSchema, identity *models.Identity) *Session {
	slog.Debug("wizard.NewSession", "form_id", schema.FormID, "version", schema.Version,
		"authenticated", identity != nil)
	return &Session{
		ID:       uuid.NewString(),
		schema:   schema,
		answers:  make(models.AnswerSet),
		errors:   map[string]string{},
		identity: identity,
	}
}

// Subscribe registers a listener invoked after every mutation.
func (s *Session) Subscribe(fn ChangeListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Schema returns the immutable form schema.
func (s *Session) Schema() *models.FormSchema { return s.schema }

// Identity returns the authenticated identity, or nil.
func (s *Session) Identity() *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Answers returns a copy of the current answer set.
func (s *Session) Answers() models.AnswerSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Clone()
}

// State returns the current navigation state.
func (s *Session) State() NavigationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav
}

// Errors returns the current transient validation error map.
func (s *Session) Errors() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}

// VisibleSteps returns the steps visible under the current answers.
func (s *Session) VisibleSteps() []models.StepDef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return VisibleSteps(s.schema, s.answers)
}

// CurrentStep returns the step the session is on.
func (s *Session) CurrentStep() models.StepDef {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible := VisibleSteps(s.schema, s.answers)
	if len(visible) == 0 {
		return models.StepDef{}
	}
	return visible[clampIndex(s.nav.CurrentStepIndex, len(visible))]
}

// SetAnswer records one answer value. The update is copy-on-write: a fresh
// answer map replaces the old one so observers never see partial state.
// Side effects, in order: auto-fill marker consumption, track-change
// furthest reset, visibility clamp, revalidation when an advance was already
// attempted, and listener notification.
func (s *Session) SetAnswer(questionID string, value interface{}) {
	s.mu.Lock()
	if questionID == OrderingProvidersStepID {
		value = consumeAutoFillMarker(s.answers, value)
	}
	s.answers = s.answers.WithValue(questionID, value)

	if questionID == s.schema.TrackQuestion() {
		if !valueEquals(value, s.lastTrack) {
			slog.Debug("Session.SetAnswer: track answer changed, resetting furthest step",
				"question_id", questionID, "current", s.nav.CurrentStepIndex)
			s.lastTrack = value
			s.nav.FurthestReachedStepIndex = s.nav.CurrentStepIndex
		}
	}

	s.clampLocked()
	if s.nav.AttemptedAdvance {
		s.revalidateLocked()
	}
	s.notifyLocked()
}

// SetAnswers applies a batch of answer values as a single mutation.
func (s *Session) SetAnswers(values map[string]interface{}) {
	s.mu.Lock()
	next := s.answers.Clone()
	trackChanged := false
	for qid, v := range values {
		if qid == OrderingProvidersStepID {
			v = consumeAutoFillMarker(s.answers, v)
		}
		next[qid] = v
		if qid == s.schema.TrackQuestion() && !valueEquals(v, s.lastTrack) {
			s.lastTrack = v
			trackChanged = true
		}
	}
	s.answers = next
	if trackChanged {
		s.nav.FurthestReachedStepIndex = s.nav.CurrentStepIndex
	}
	s.clampLocked()
	if s.nav.AttemptedAdvance {
		s.revalidateLocked()
	}
	s.notifyLocked()
}

// Next validates the current step and advances on success. On failure the
// session stays put, the error map is populated, and AttemptedAdvance is
// set so later edits revalidate live. When a return-to-review flag is
// armed, a successful validation jumps straight back to the review step.
func (s *Session) Next() StepValidation {
	s.mu.Lock()
	visible := VisibleSteps(s.schema, s.answers)
	if len(visible) == 0 {
		s.nav.AttemptedAdvance = true
		s.notifyLocked()
		return StepValidation{IsValid: false, Errors: map[string]string{}}
	}
	current := visible[clampIndex(s.nav.CurrentStepIndex, len(visible))]

	s.nav.AttemptedAdvance = true
	result := ValidateStep(current, s.answers, s.schema.CompositeTypes)
	if !result.IsValid {
		slog.Debug("Session.Next: step invalid", "step_id", current.StepID, "errors", len(result.Errors))
		s.errors = result.Errors
		s.notifyLocked()
		return result
	}

	if s.nav.ReturnToReview {
		s.nav.ReturnToReview = false
		s.nav.CurrentStepIndex = len(visible) - 1
		s.clearTransientLocked()
		slog.Debug("Session.Next: returning to review step", "index", s.nav.CurrentStepIndex)
		s.notifyLocked()
		return result
	}

	next := s.nav.CurrentStepIndex + 1
	if next > len(visible)-1 {
		next = len(visible) - 1
	}
	s.autoPopulateLocked(next, visible)
	s.nav.CurrentStepIndex = next
	if next > s.nav.FurthestReachedStepIndex {
		s.nav.FurthestReachedStepIndex = next
	}
	s.clearTransientLocked()
	slog.Debug("Session.Next: advanced", "step_id", visible[next].StepID, "index", next)
	s.notifyLocked()
	return result
}

// Previous moves back one step. Going backward never requires validation.
func (s *Session) Previous() {
	s.mu.Lock()
	if s.nav.CurrentStepIndex > 0 {
		s.nav.CurrentStepIndex--
	}
	s.clearTransientLocked()
	s.notifyLocked()
}

// JumpTo moves directly to a visible step index. Jumps beyond the furthest
// reached step are a no-op and return false.
func (s *Session) JumpTo(index int) bool {
	s.mu.Lock()
	if index < 0 || index > s.nav.FurthestReachedStepIndex {
		s.mu.Unlock()
		return false
	}
	visible := VisibleSteps(s.schema, s.answers)
	if index >= len(visible) {
		s.mu.Unlock()
		return false
	}
	s.autoPopulateLocked(index, visible)
	s.nav.CurrentStepIndex = index
	s.clearTransientLocked()
	s.notifyLocked()
	return true
}

// EditFromReview jumps to the step with the given id and arms the
// return-to-review flag, so the next successful advance lands back on the
// review step. Returns false when the step is not currently visible.
func (s *Session) EditFromReview(stepID string) bool {
	s.mu.Lock()
	visible := VisibleSteps(s.schema, s.answers)
	target := -1
	for i, step := range visible {
		if step.StepID == stepID {
			target = i
			break
		}
	}
	if target == -1 {
		s.mu.Unlock()
		return false
	}
	s.autoPopulateLocked(target, visible)
	s.nav.ReturnToReview = true
	s.nav.CurrentStepIndex = target
	s.clearTransientLocked()
	s.notifyLocked()
	return true
}

// Restore replaces the whole answer set and navigation position, e.g. after
// a draft resume or file import. Transient validation state is reset.
func (s *Session) Restore(answers models.AnswerSet, currentStep int) {
	s.mu.Lock()
	if answers == nil {
		answers = make(models.AnswerSet)
	}
	s.answers = answers.Clone()
	s.lastTrack = s.answers[s.schema.TrackQuestion()]
	visible := VisibleSteps(s.schema, s.answers)
	s.nav.CurrentStepIndex = clampIndex(currentStep, len(visible))
	s.nav.FurthestReachedStepIndex = s.nav.CurrentStepIndex
	s.nav.ReturnToReview = false
	s.clearTransientLocked()
	s.notifyLocked()
}

// Reset discards all answers and navigation progress (start over).
func (s *Session) Reset() {
	s.mu.Lock()
	s.answers = make(models.AnswerSet)
	s.lastTrack = nil
	s.nav = NavigationState{}
	s.clearTransientLocked()
	s.notifyLocked()
}

// Snapshot serializes the current answers and position. The coordinator
// calls this on demand; it never keeps its own copy of the answers.
func (s *Session) Snapshot() models.DraftSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.DraftSnapshot{
		Answers:     s.answers.Clone(),
		CurrentStep: s.nav.CurrentStepIndex,
		SavedAt:     time.Now().UTC(),
		Version:     s.schema.Version,
	}
}

// clampLocked re-clamps the current index after an answer change may have
// shrunk the visible step list.
func (s *Session) clampLocked() {
	visible := VisibleSteps(s.schema, s.answers)
	if s.nav.CurrentStepIndex >= len(visible) {
		slog.Debug("Session: visible steps shrank, clamping index",
			"from", s.nav.CurrentStepIndex, "to", len(visible)-1)
		s.nav.CurrentStepIndex = len(visible) - 1
	}
	if s.nav.FurthestReachedStepIndex >= len(visible) {
		s.nav.FurthestReachedStepIndex = len(visible) - 1
	}
	if s.nav.CurrentStepIndex < 0 {
		s.nav.CurrentStepIndex = 0
	}
	if s.nav.FurthestReachedStepIndex < 0 {
		s.nav.FurthestReachedStepIndex = 0
	}
}

func (s *Session) revalidateLocked() {
	visible := VisibleSteps(s.schema, s.answers)
	if len(visible) == 0 {
		s.errors = map[string]string{}
		return
	}
	current := visible[clampIndex(s.nav.CurrentStepIndex, len(visible))]
	s.errors = ValidateStep(current, s.answers, s.schema.CompositeTypes).Errors
}

func (s *Session) clearTransientLocked() {
	s.nav.AttemptedAdvance = false
	s.errors = map[string]string{}
}

// notifyLocked releases the lock and then invokes listeners, so a listener
// reading session state does not deadlock.
func (s *Session) notifyLocked() {
	listeners := make([]ChangeListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func clampIndex(i, length int) int {
	if length == 0 {
		return 0
	}
	if i < 0 {
		return 0
	}
	if i >= length {
		return length - 1
	}
	return i
}

package coordinator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/propelhealth/onboardflow/internal/models"
)

// ResumeWindow bounds how far back the remote resume picker looks.
const ResumeWindow = 14 * 24 * time.Hour

// contactEmailFields are the answer objects whose email sub-field can
// verify a resume request.
var contactEmailFields = []string{
	"clinic_champion",
	"contact_primary",
	"genetic_counselor",
	"contact_secondary",
	"contact_it",
	"contact_lab",
	"stakeholder_champion",
	"stakeholder_executive",
	"stakeholder_it_director",
}

// LoadLocalSnapshot reads the device-local slot without mutating the
// session. A nil snapshot means the slot is empty.
func (c *Coordinator) LoadLocalSnapshot() (*models.DraftSnapshot, error) {
	snap, err := c.local.ReadSnapshot(c.slotKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read local snapshot: %w", err)
	}
	return snap, nil
}

// RestoreLocal restores the session from the local slot. It reports false
// when no snapshot exists.
func (c *Coordinator) RestoreLocal() (bool, error) {
	snap, err := c.LoadLocalSnapshot()
	if err != nil {
		return false, err
	}
	if snap == nil {
		return false, nil
	}

	c.mu.Lock()
	c.draftID = snap.RemoteID
	c.mu.Unlock()

	c.session.Restore(snap.Answers, snap.CurrentStep)
	slog.Info("Coordinator restored session from local snapshot", "slotKey", c.slotKey, "currentStep", snap.CurrentStep)
	return true, nil
}

// DiscardLocal clears the local slot without touching the session.
func (c *Coordinator) DiscardLocal() error {
	return c.local.ClearSnapshot(c.slotKey)
}

// ListRemoteDrafts returns resumable drafts for the given email, limited to
// the resume window. Missing display values get neutral placeholders.
func (c *Coordinator) ListRemoteDrafts(email string) ([]models.DraftSummary, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, models.ErrNoSubmitterEmail
	}

	since := time.Now().Add(-ResumeWindow)
	records, err := c.remote.ListDraftsForEmail(email, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}

	summaries := make([]models.DraftSummary, 0, len(records))
	for _, rec := range records {
		summary := models.DraftSummary{
			ID:         rec.ID,
			OwnerEmail: rec.OwnerEmail,
			ClinicName: rec.Snapshot.Answers.String("clinic_name"),
			Program:    rec.Program,
			UpdatedAt:  rec.UpdatedAt,
		}
		if summary.ClinicName == "" {
			summary.ClinicName = "Unnamed Clinic"
		}
		if summary.Program == "" {
			summary.Program = "Unknown"
		}
		summaries = append(summaries, summary)
	}
	slog.Debug("Coordinator listed remote drafts", "email", email, "count", len(summaries))
	return summaries, nil
}

// ResumeRemoteDraft restores a remote draft after verifying the caller
// knows one of its contact emails. The submitter's own email is not
// accepted. Not-found and verification failure return the same error so a
// caller cannot probe for draft existence.
func (c *Coordinator) ResumeRemoteDraft(draftID, contactEmail string) error {
	rec, err := c.loadResumableDraft(draftID)
	if errors.Is(err, models.ErrDraftNotFound) {
		slog.Warn("Coordinator resume rejected, draft unavailable", "draftID", draftID)
		return models.ErrResumeVerification
	}
	if err != nil {
		return fmt.Errorf("failed to load draft %s: %w", draftID, err)
	}

	email := normalizeEmail(contactEmail)
	if email == "" || email == normalizeEmail(rec.OwnerEmail) {
		slog.Warn("Coordinator resume rejected, email not usable for verification", "draftID", draftID)
		return models.ErrResumeVerification
	}
	if !draftContactEmailMatches(rec.Snapshot.Answers, email) {
		slog.Warn("Coordinator resume rejected, email matched no contact", "draftID", draftID)
		return models.ErrResumeVerification
	}

	c.mu.Lock()
	c.draftID = rec.ID
	c.mu.Unlock()

	c.session.Restore(rec.Snapshot.Answers, rec.Snapshot.CurrentStep)
	slog.Info("Coordinator resumed remote draft", "draftID", rec.ID, "currentStep", rec.Snapshot.CurrentStep)
	return nil
}

// loadResumableDraft fetches a draft eligible for resumption. A missing
// record and a submitted one both report ErrDraftNotFound; only open drafts
// can be picked back up.
func (c *Coordinator) loadResumableDraft(draftID string) (*models.DraftRecord, error) {
	rec, err := c.remote.GetDraftByID(draftID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Status != models.DraftStatusDraft {
		return nil, models.ErrDraftNotFound
	}
	return rec, nil
}

func draftContactEmailMatches(answers models.AnswerSet, email string) bool {
	for _, field := range contactEmailFields {
		if candidate := normalizeEmail(answers.ObjectField(field, "email")); candidate != "" && candidate == email {
			return true
		}
	}
	return false
}

// StartOver resets the session and clears the local slot. The previous
// remote draft is left in place; the next save creates a fresh record.
// Autosave is suspended across the reset so its change notification cannot
// rewrite the slot being cleared.
func (c *Coordinator) StartOver() error {
	c.mu.Lock()
	c.suspended = true
	c.draftID = ""
	c.remoteState = models.SaveStateIdle
	c.mu.Unlock()

	c.session.Reset()
	c.debouncer.Cancel()

	c.mu.Lock()
	c.suspended = false
	c.mu.Unlock()

	if err := c.local.ClearSnapshot(c.slotKey); err != nil {
		return fmt.Errorf("failed to clear local snapshot: %w", err)
	}
	slog.Info("Coordinator session restarted", "slotKey", c.slotKey)
	return nil
}

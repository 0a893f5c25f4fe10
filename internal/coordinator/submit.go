package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/propelhealth/onboardflow/internal/models"
	"github.com/propelhealth/onboardflow/internal/notify"
	"github.com/propelhealth/onboardflow/internal/projector"
)

// Submit finalizes the session: it projects the answers into the canonical
// submission document, stores the submitted record, clears the local slot,
// and fires a best-effort notification. The stored record becomes immutable;
// any later draft write creates a new record.
func (c *Coordinator) Submit(ctx context.Context) (*projector.SubmissionDocument, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, models.ErrSessionClosed
	}
	c.mu.Unlock()
	c.debouncer.Cancel()

	snap := c.session.Snapshot()
	c.mu.Lock()
	snap.RemoteID = c.draftID
	c.mu.Unlock()

	doc := projector.Project(snap.Answers, c.session.Schema(), c.ref)

	rec, ok := c.buildDraftRecord(snap, models.DraftStatusSubmitted)
	if !ok {
		return nil, models.ErrNoSubmitterEmail
	}
	now := time.Now()
	rec.SubmittedAt = &now

	stored, err := c.remote.UpsertDraft(rec)
	if err != nil {
		c.mu.Lock()
		c.remoteState = models.SaveStateError
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to store submission: %w", err)
	}

	c.mu.Lock()
	c.draftID = stored.ID
	c.remoteState = models.SaveStateIdle
	c.lastSavedAt = now
	c.mu.Unlock()

	if err := c.local.ClearSnapshot(c.slotKey); err != nil {
		slog.Warn("Coordinator failed to clear local slot after submission", "error", err, "slotKey", c.slotKey)
	}

	sub := notify.Submission{
		DraftID:        stored.ID,
		Program:        doc.Program,
		ClinicName:     doc.ClinicInfo.ClinicName,
		SubmitterName:  rec.OwnerName,
		SubmitterEmail: rec.OwnerEmail,
		SubmittedAt:    now,
	}
	if err := c.notifier.SubmissionReceived(ctx, sub); err != nil {
		slog.Error("Coordinator submission notification failed", "error", err, "draftID", stored.ID)
	}

	slog.Info("Coordinator submission stored", "draftID", stored.ID, "program", doc.Program)
	return &doc, nil
}

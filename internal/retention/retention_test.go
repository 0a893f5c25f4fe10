package retention

import (
	"errors"
	"testing"
	"time"

	"github.com/propelhealth/onboardflow/internal/models"
	"github.com/propelhealth/onboardflow/internal/store"
)

// sweepRecordingStore captures the cutoff passed to the delete call so tests
// can check the age arithmetic without a real clock.
type sweepRecordingStore struct {
	store.DraftStore
	cutoff  time.Time
	deleted int64
	err     error
}

func (s *sweepRecordingStore) DeleteDraftsOlderThan(cutoff time.Time) (int64, error) {
	s.cutoff = cutoff
	return s.deleted, s.err
}

func TestRunOnceComputesCutoffFromMaxAge(t *testing.T) {
	rec := &sweepRecordingStore{deleted: 3}
	cleaner := NewCleaner(rec, WithMaxAge(7*24*time.Hour))

	before := time.Now()
	if got := cleaner.RunOnce(); got != 3 {
		t.Errorf("RunOnce = %d, want 3", got)
	}

	wantCutoff := before.Add(-7 * 24 * time.Hour)
	if diff := rec.cutoff.Sub(wantCutoff); diff < 0 || diff > time.Minute {
		t.Errorf("cutoff %v not near %v", rec.cutoff, wantCutoff)
	}
}

func TestRunOnceSwallowsStoreErrors(t *testing.T) {
	rec := &sweepRecordingStore{err: errors.New("connection reset")}
	cleaner := NewCleaner(rec)
	if got := cleaner.RunOnce(); got != 0 {
		t.Errorf("RunOnce = %d, want 0 on store error", got)
	}
}

func TestRunOnceAgainstMemoryStore(t *testing.T) {
	mem := store.NewInMemoryStore()
	now := time.Now()

	if _, err := mem.UpsertDraft(models.DraftRecord{
		OwnerEmail: "alice@clinic.org",
		Status:     models.DraftStatusDraft,
	}); err != nil {
		t.Fatalf("seeding draft: %v", err)
	}
	submitted := models.DraftRecord{
		OwnerEmail:  "bob@clinic.org",
		Status:      models.DraftStatusSubmitted,
		SubmittedAt: &now,
	}
	stored, err := mem.UpsertDraft(submitted)
	if err != nil {
		t.Fatalf("seeding submitted record: %v", err)
	}

	// A negative max age puts the cutoff in the future, so every draft is
	// stale. Submitted records must still survive the sweep.
	cleaner := NewCleaner(mem, WithMaxAge(-time.Hour))
	if got := cleaner.RunOnce(); got != 1 {
		t.Errorf("RunOnce = %d, want 1", got)
	}
	kept, err := mem.GetDraftByID(stored.ID)
	if err != nil || kept == nil {
		t.Fatalf("submitted record missing after sweep: %v, %v", kept, err)
	}
	if cleaner.RunOnce() != 0 {
		t.Error("second sweep should find nothing")
	}
}

func TestCleanerStartRejectsBadSchedule(t *testing.T) {
	cleaner := NewCleaner(&sweepRecordingStore{}, WithSchedule("not a cron expression"))
	if err := cleaner.Start(); err == nil {
		t.Error("expected error for malformed schedule")
	}
}

func TestCleanerStartStop(t *testing.T) {
	cleaner := NewCleaner(&sweepRecordingStore{}, WithSchedule("0 0 * * 0"))
	if err := cleaner.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	cleaner.Stop()
}

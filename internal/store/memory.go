package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/propelhealth/onboardflow/internal/models"
)

// InMemoryStore implements DraftStore and SnapshotStore in memory. Used in
// tests and for ephemeral development runs.
type InMemoryStore struct {
	mu        sync.Mutex
	drafts    map[string]models.DraftRecord
	snapshots map[string]models.DraftSnapshot
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		drafts:    make(map[string]models.DraftRecord),
		snapshots: make(map[string]models.DraftSnapshot),
	}
}

// UpsertDraft creates or updates a draft record following the same keying
// rules as the database-backed stores.
func (s *InMemoryStore) UpsertDraft(rec models.DraftRecord) (models.DraftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	targetID := ""
	switch {
	case rec.ID != "":
		existing, ok := s.drafts[rec.ID]
		switch {
		case !ok:
			targetID = rec.ID
		case existing.Status == models.DraftStatusSubmitted && rec.Status == models.DraftStatusDraft:
			targetID = uuid.NewString()
		default:
			targetID = existing.ID
		}
	case rec.OwnerID != "":
		targetID = s.findLocked(func(r models.DraftRecord) bool { return r.OwnerID == rec.OwnerID })
	case rec.OwnerEmail != "":
		targetID = s.findLocked(func(r models.DraftRecord) bool { return r.OwnerEmail == rec.OwnerEmail })
	default:
		return models.DraftRecord{}, ErrNoDraftKey
	}
	if targetID == "" {
		targetID = uuid.NewString()
	}

	saved, existed := s.drafts[targetID]
	if !existed {
		saved = models.DraftRecord{ID: targetID, CreatedAt: now}
	}
	saved.Status = rec.Status
	saved.OwnerID = rec.OwnerID
	saved.OwnerEmail = rec.OwnerEmail
	saved.OwnerName = rec.OwnerName
	saved.Program = rec.Program
	saved.Snapshot = rec.Snapshot
	saved.UpdatedAt = now
	if rec.Status == models.DraftStatusSubmitted && saved.SubmittedAt == nil {
		t := now
		saved.SubmittedAt = &t
	}
	s.drafts[targetID] = saved
	return saved, nil
}

// GetDraftByID returns a record by id, or nil when absent.
func (s *InMemoryStore) GetDraftByID(id string) (*models.DraftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.drafts[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// ListDraftsForEmail returns drafts for the owner email, newest first.
func (s *InMemoryStore) ListDraftsForEmail(email string, since time.Time) ([]models.DraftRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []models.DraftRecord
	for _, rec := range s.drafts {
		if rec.Status != models.DraftStatusDraft {
			continue
		}
		if !strings.EqualFold(rec.OwnerEmail, email) {
			continue
		}
		if rec.UpdatedAt.Before(since) {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].UpdatedAt.After(recs[j].UpdatedAt) })
	return recs, nil
}

// DeleteDraftsOlderThan removes stale drafts and returns the count deleted.
func (s *InMemoryStore) DeleteDraftsOlderThan(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.drafts {
		if rec.Status == models.DraftStatusDraft && rec.UpdatedAt.Before(cutoff) {
			delete(s.drafts, id)
			n++
		}
	}
	return n, nil
}

// WriteSnapshot stores the snapshot under the slot key.
func (s *InMemoryStore) WriteSnapshot(key string, snap models.DraftSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[key] = snap
	return nil
}

// ReadSnapshot returns the stored snapshot for the slot key, or nil.
func (s *InMemoryStore) ReadSnapshot(key string) (*models.DraftSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[key]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// ClearSnapshot removes the slot's snapshot, if any.
func (s *InMemoryStore) ClearSnapshot(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, key)
	return nil
}

func (s *InMemoryStore) findLocked(match func(models.DraftRecord) bool) string {
	bestID := ""
	var bestAt time.Time
	for id, rec := range s.drafts {
		if rec.Status != models.DraftStatusDraft || !match(rec) {
			continue
		}
		if bestID == "" || rec.UpdatedAt.After(bestAt) {
			bestID = id
			bestAt = rec.UpdatedAt
		}
	}
	return bestID
}

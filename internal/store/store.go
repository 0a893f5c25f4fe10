// Package store provides storage backends for OnboardFlow drafts.
//
// It includes the remote draft store (SQLite, PostgreSQL, in-memory) and the
// device-local snapshot slot used by the persistence coordinator's local
// channel.
package store

import (
	"errors"
	"time"

	"github.com/propelhealth/onboardflow/internal/models"
)

// DraftStore is the remote draft collaborator contract. A record already
// marked submitted is never overwritten by a draft write; implementations
// create a new draft record instead.
type DraftStore interface {
	// UpsertDraft creates or updates a draft record, keyed by record id,
	// then owner id, then owner email, in that order. It returns the stored
	// record including its assigned id.
	UpsertDraft(rec models.DraftRecord) (models.DraftRecord, error)
	// ListDraftsForEmail returns draft-status records for the given owner
	// email (case-insensitive) updated at or after since, newest first.
	// Filtering happens store-side; this is a privacy boundary.
	ListDraftsForEmail(email string, since time.Time) ([]models.DraftRecord, error)
	// GetDraftByID returns a record by id, or nil when absent.
	GetDraftByID(id string) (*models.DraftRecord, error)
	// DeleteDraftsOlderThan removes draft-status records last updated
	// before cutoff and returns the number deleted. Submitted records are
	// never touched.
	DeleteDraftsOlderThan(cutoff time.Time) (int64, error)
}

// SnapshotStore is the durable local slot: one snapshot per key, overwrite
// semantics, no history.
type SnapshotStore interface {
	WriteSnapshot(key string, snap models.DraftSnapshot) error
	ReadSnapshot(key string) (*models.DraftSnapshot, error)
	ClearSnapshot(key string) error
}

// ErrNoDraftKey is returned when an upsert carries no id, owner id, or
// owner email to key the record by.
var ErrNoDraftKey = errors.New("draft record requires an id, owner id, or owner email")

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string: a file path for SQLite, a
	// connection URL for PostgreSQL.
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

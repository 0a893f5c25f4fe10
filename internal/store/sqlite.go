// Package store provides storage backends for OnboardFlow drafts.
//
// This file implements the SQLite-backed draft store and local snapshot
// slot.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/propelhealth/onboardflow/internal/models"
)

// DefaultDirPermissions defines the default permissions for database
// directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements DraftStore and SnapshotStore on a single database
// file. It serves both as the standalone remote tier for single-node
// deployments and as the durable local snapshot slot.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the database file; its directory is created if
// missing.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied")

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertDraft creates or updates a draft record. See DraftStore for keying
// rules; a submitted record is never downgraded to draft in place.
func (s *SQLiteStore) UpsertDraft(rec models.DraftRecord) (models.DraftRecord, error) {
	targetID, insert, err := resolveUpsertTarget(s, rec)
	if err != nil {
		return models.DraftRecord{}, err
	}

	snapshotJSON, err := marshalSnapshot(rec)
	if err != nil {
		return models.DraftRecord{}, err
	}
	now := time.Now().UTC()
	var submittedAt interface{}
	if rec.Status == models.DraftStatusSubmitted {
		submittedAt = now
	}

	if insert {
		_, err = s.db.Exec(`INSERT INTO onboarding_drafts
			(id, status, owner_id, owner_email, owner_name, program, snapshot, created_at, updated_at, submitted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			targetID, string(rec.Status), nilIfEmpty(rec.OwnerID), rec.OwnerEmail,
			nilIfEmpty(rec.OwnerName), nilIfEmpty(rec.Program), snapshotJSON, now, now, submittedAt)
	} else {
		_, err = s.db.Exec(`UPDATE onboarding_drafts
			SET status = ?, owner_id = ?, owner_email = ?, owner_name = ?, program = ?,
			    snapshot = ?, updated_at = ?, submitted_at = COALESCE(?, submitted_at)
			WHERE id = ?`,
			string(rec.Status), nilIfEmpty(rec.OwnerID), rec.OwnerEmail,
			nilIfEmpty(rec.OwnerName), nilIfEmpty(rec.Program), snapshotJSON, now, submittedAt, targetID)
	}
	if err != nil {
		slog.Error("SQLiteStore UpsertDraft failed", "error", err, "id", targetID, "insert", insert)
		return models.DraftRecord{}, fmt.Errorf("failed to upsert draft %s: %w", targetID, err)
	}

	saved, err := s.GetDraftByID(targetID)
	if err != nil {
		return models.DraftRecord{}, err
	}
	slog.Debug("SQLiteStore UpsertDraft succeeded", "id", targetID, "status", rec.Status, "inserted", insert)
	return *saved, nil
}

// GetDraftByID returns a record by id, or nil when absent.
func (s *SQLiteStore) GetDraftByID(id string) (*models.DraftRecord, error) {
	row := s.db.QueryRow(`SELECT id, status, owner_id, owner_email, owner_name, program, snapshot, created_at, updated_at, submitted_at
		FROM onboarding_drafts WHERE id = ?`, id)
	rec, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetDraftByID failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get draft %s: %w", id, err)
	}
	return &rec, nil
}

// ListDraftsForEmail returns drafts for the owner email, newest first.
func (s *SQLiteStore) ListDraftsForEmail(email string, since time.Time) ([]models.DraftRecord, error) {
	rows, err := s.db.Query(`SELECT id, status, owner_id, owner_email, owner_name, program, snapshot, created_at, updated_at, submitted_at
		FROM onboarding_drafts
		WHERE status = ? AND lower(owner_email) = lower(?) AND updated_at >= ?
		ORDER BY updated_at DESC`,
		string(models.DraftStatusDraft), email, since.UTC())
	if err != nil {
		slog.Error("SQLiteStore ListDraftsForEmail query failed", "error", err)
		return nil, fmt.Errorf("failed to list drafts: %w", err)
	}
	defer rows.Close()

	var recs []models.DraftRecord
	for rows.Next() {
		rec, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteDraftsOlderThan removes stale drafts and returns the count deleted.
func (s *SQLiteStore) DeleteDraftsOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM onboarding_drafts WHERE status = ? AND updated_at < ?`,
		string(models.DraftStatusDraft), cutoff.UTC())
	if err != nil {
		slog.Error("SQLiteStore DeleteDraftsOlderThan failed", "error", err)
		return 0, fmt.Errorf("failed to delete stale drafts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	slog.Debug("SQLiteStore DeleteDraftsOlderThan succeeded", "deleted", n, "cutoff", cutoff)
	return n, nil
}

func (s *SQLiteStore) findDraftIDByColumn(column, value string) (string, error) {
	// column is one of two fixed identifiers, never user input.
	query := fmt.Sprintf(`SELECT id FROM onboarding_drafts WHERE %s = ? AND status = ? ORDER BY updated_at DESC LIMIT 1`, column)
	var id string
	err := s.db.QueryRow(query, value, string(models.DraftStatusDraft)).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find draft by %s: %w", column, err)
	}
	return id, nil
}

// WriteSnapshot stores the snapshot under the slot key, replacing any
// previous value.
func (s *SQLiteStore) WriteSnapshot(key string, snap models.DraftSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode local snapshot: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO local_snapshots (slot_key, payload, saved_at) VALUES (?, ?, ?)
		ON CONFLICT(slot_key) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		key, string(payload), snap.SavedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore WriteSnapshot failed", "error", err, "key", key)
		return fmt.Errorf("failed to write local snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot returns the stored snapshot for the slot key, or nil.
func (s *SQLiteStore) ReadSnapshot(key string) (*models.DraftSnapshot, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM local_snapshots WHERE slot_key = ?`, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore ReadSnapshot failed", "error", err, "key", key)
		return nil, fmt.Errorf("failed to read local snapshot: %w", err)
	}
	var snap models.DraftSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decode local snapshot: %w", err)
	}
	return &snap, nil
}

// ClearSnapshot removes the slot's snapshot, if any.
func (s *SQLiteStore) ClearSnapshot(key string) error {
	if _, err := s.db.Exec(`DELETE FROM local_snapshots WHERE slot_key = ?`, key); err != nil {
		slog.Error("SQLiteStore ClearSnapshot failed", "error", err, "key", key)
		return fmt.Errorf("failed to clear local snapshot: %w", err)
	}
	return nil
}

// draftFinder is the backend-internal lookup surface shared by the upsert
// target resolution.
type draftFinder interface {
	GetDraftByID(id string) (*models.DraftRecord, error)
	findDraftIDByColumn(column, value string) (string, error)
}

// resolveUpsertTarget decides which row an upsert lands on and whether it is
// an insert. A submitted record hit by a draft write forces a fresh insert
// so finalized submissions stay immutable.
func resolveUpsertTarget(f draftFinder, rec models.DraftRecord) (string, bool, error) {
	if rec.ID != "" {
		existing, err := f.GetDraftByID(rec.ID)
		if err != nil {
			return "", false, err
		}
		if existing == nil {
			return rec.ID, true, nil
		}
		if existing.Status == models.DraftStatusSubmitted && rec.Status == models.DraftStatusDraft {
			slog.Debug("store: record already submitted, creating new draft instead", "submitted_id", rec.ID)
			return uuid.NewString(), true, nil
		}
		return existing.ID, false, nil
	}
	if rec.OwnerID != "" {
		id, err := f.findDraftIDByColumn("owner_id", rec.OwnerID)
		if err != nil {
			return "", false, err
		}
		if id != "" {
			return id, false, nil
		}
		return uuid.NewString(), true, nil
	}
	if rec.OwnerEmail != "" {
		id, err := f.findDraftIDByColumn("owner_email", rec.OwnerEmail)
		if err != nil {
			return "", false, err
		}
		if id != "" {
			return id, false, nil
		}
		return uuid.NewString(), true, nil
	}
	return "", false, ErrNoDraftKey
}

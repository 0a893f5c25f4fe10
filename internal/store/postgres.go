// Package store provides storage backends for OnboardFlow drafts.
//
// This file implements the PostgreSQL-backed remote draft store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/propelhealth/onboardflow/internal/models"
)

// Database connection pool configuration constants.
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements DraftStore on PostgreSQL. It serves as the
// shared remote tier when multiple instances front the same draft pool.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied")

	return &PostgresStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// UpsertDraft creates or updates a draft record. See DraftStore for keying
// rules; a submitted record is never downgraded to draft in place.
func (s *PostgresStore) UpsertDraft(rec models.DraftRecord) (models.DraftRecord, error) {
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
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			targetID, string(rec.Status), nilIfEmpty(rec.OwnerID), rec.OwnerEmail,
			nilIfEmpty(rec.OwnerName), nilIfEmpty(rec.Program), snapshotJSON, now, now, submittedAt)
	} else {
		_, err = s.db.Exec(`UPDATE onboarding_drafts
			SET status = $1, owner_id = $2, owner_email = $3, owner_name = $4, program = $5,
			    snapshot = $6, updated_at = $7, submitted_at = COALESCE($8, submitted_at)
			WHERE id = $9`,
			string(rec.Status), nilIfEmpty(rec.OwnerID), rec.OwnerEmail,
			nilIfEmpty(rec.OwnerName), nilIfEmpty(rec.Program), snapshotJSON, now, submittedAt, targetID)
	}
	if err != nil {
		slog.Error("PostgresStore UpsertDraft failed", "error", err, "id", targetID, "insert", insert)
		return models.DraftRecord{}, fmt.Errorf("failed to upsert draft %s: %w", targetID, err)
	}

	saved, err := s.GetDraftByID(targetID)
	if err != nil {
		return models.DraftRecord{}, err
	}
	slog.Debug("PostgresStore UpsertDraft succeeded", "id", targetID, "status", rec.Status, "inserted", insert)
	return *saved, nil
}

// GetDraftByID returns a record by id, or nil when absent.
func (s *PostgresStore) GetDraftByID(id string) (*models.DraftRecord, error) {
	row := s.db.QueryRow(`SELECT id, status, owner_id, owner_email, owner_name, program, snapshot, created_at, updated_at, submitted_at
		FROM onboarding_drafts WHERE id = $1`, id)
	rec, err := scanDraft(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetDraftByID failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get draft %s: %w", id, err)
	}
	return &rec, nil
}

// ListDraftsForEmail returns drafts for the owner email, newest first.
func (s *PostgresStore) ListDraftsForEmail(email string, since time.Time) ([]models.DraftRecord, error) {
	rows, err := s.db.Query(`SELECT id, status, owner_id, owner_email, owner_name, program, snapshot, created_at, updated_at, submitted_at
		FROM onboarding_drafts
		WHERE status = $1 AND lower(owner_email) = lower($2) AND updated_at >= $3
		ORDER BY updated_at DESC`,
		string(models.DraftStatusDraft), email, since.UTC())
	if err != nil {
		slog.Error("PostgresStore ListDraftsForEmail query failed", "error", err)
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
func (s *PostgresStore) DeleteDraftsOlderThan(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM onboarding_drafts WHERE status = $1 AND updated_at < $2`,
		string(models.DraftStatusDraft), cutoff.UTC())
	if err != nil {
		slog.Error("PostgresStore DeleteDraftsOlderThan failed", "error", err)
		return 0, fmt.Errorf("failed to delete stale drafts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	slog.Debug("PostgresStore DeleteDraftsOlderThan succeeded", "deleted", n, "cutoff", cutoff)
	return n, nil
}

func (s *PostgresStore) findDraftIDByColumn(column, value string) (string, error) {
	// column is one of two fixed identifiers, never user input.
	query := fmt.Sprintf(`SELECT id FROM onboarding_drafts WHERE %s = $1 AND status = $2 ORDER BY updated_at DESC LIMIT 1`, column)
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

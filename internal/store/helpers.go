package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/propelhealth/onboardflow/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanDraft scans a DraftRecord from a row or rows cursor. Column order:
// id, status, owner_id, owner_email, owner_name, program, snapshot,
// created_at, updated_at, submitted_at.
func scanDraft(row rowScanner) (models.DraftRecord, error) {
	var rec models.DraftRecord
	var status string
	var ownerID, ownerName, program sql.NullString
	var snapshotJSON string
	var submittedAt sql.NullTime
	err := row.Scan(
		&rec.ID, &status, &ownerID, &rec.OwnerEmail, &ownerName, &program,
		&snapshotJSON, &rec.CreatedAt, &rec.UpdatedAt, &submittedAt,
	)
	if err != nil {
		return rec, err
	}
	rec.Status = models.DraftStatus(status)
	rec.OwnerID = ownerID.String
	rec.OwnerName = ownerName.String
	rec.Program = program.String
	if submittedAt.Valid {
		t := submittedAt.Time
		rec.SubmittedAt = &t
	}
	if err := json.Unmarshal([]byte(snapshotJSON), &rec.Snapshot); err != nil {
		return rec, fmt.Errorf("decode draft snapshot for %s: %w", rec.ID, err)
	}
	return rec, nil
}

func marshalSnapshot(rec models.DraftRecord) (string, error) {
	data, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return "", fmt.Errorf("encode draft snapshot: %w", err)
	}
	return string(data), nil
}

package models

import (
	"errors"
	"time"
)

// DraftStatus is the lifecycle state of a remote draft record.
type DraftStatus string

const (
	// DraftStatusDraft marks an in-progress, resumable record.
	DraftStatusDraft DraftStatus = "draft"
	// DraftStatusSubmitted marks a finalized record. Submitted records are
	// immutable: a draft write against one creates a new record instead.
	DraftStatusSubmitted DraftStatus = "submitted"
)

// DraftSnapshot is the persisted save shape, identical across the local
// slot, the remote answers blob, and the export file. The JSON field names
// are a forward-compatibility contract: future versions must keep parsing
// this shape.
type DraftSnapshot struct {
	Answers     AnswerSet `json:"formData"`
	CurrentStep int       `json:"currentStep"`
	SavedAt     time.Time `json:"savedAt"`
	Version     string    `json:"version,omitempty"`
	RemoteID    string    `json:"remoteId,omitempty"`
}

// DraftRecord is a remote draft store row. The Snapshot carries the full
// answer set plus navigation position.
type DraftRecord struct {
	ID          string        `json:"id"`
	Status      DraftStatus   `json:"status"`
	OwnerID     string        `json:"owner_id,omitempty"`
	OwnerEmail  string        `json:"owner_email"`
	OwnerName   string        `json:"owner_name,omitempty"`
	Program     string        `json:"program,omitempty"`
	Snapshot    DraftSnapshot `json:"snapshot"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	SubmittedAt *time.Time    `json:"submitted_at,omitempty"`
}

// DraftSummary is the listing shape for the resume picker. Clinic name and
// program are extracted from the answers blob for display.
type DraftSummary struct {
	ID         string    `json:"id"`
	OwnerEmail string    `json:"owner_email"`
	ClinicName string    `json:"clinic_name"`
	Program    string    `json:"program"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Identity is the opaque authenticated identity consumed at the auth
// boundary. A nil *Identity means unauthenticated.
type Identity struct {
	Email string `json:"email"`
	ID    string `json:"id,omitempty"`
}

// SaveState tracks the remote channel's health.
type SaveState string

const (
	SaveStateIdle   SaveState = "idle"
	SaveStateSaving SaveState = "saving"
	SaveStateSaved  SaveState = "saved"
	// SaveStateError is sticky until a manual retry re-runs the upsert.
	SaveStateError SaveState = "error"
)

// Persistence and resume errors.
var (
	ErrDraftNotFound      = errors.New("draft not found")
	ErrNoSubmitterEmail   = errors.New("no submitter email available to key the draft")
	ErrResumeVerification = errors.New("email does not match any contact in this draft")
	ErrMalformedImport    = errors.New("invalid draft file")
	ErrSessionClosed      = errors.New("session is closed")
)

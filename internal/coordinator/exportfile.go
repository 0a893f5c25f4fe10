package coordinator

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/propelhealth/onboardflow/internal/models"
)

// Export serializes the current session state as a portable draft file.
// The file shape is the same snapshot contract used by the local slot, so
// an exported file from one device imports cleanly on another.
func (c *Coordinator) Export() ([]byte, error) {
	snap := c.session.Snapshot()
	// The remote record id is device-coupled state and stays out of the file.
	snap.RemoteID = ""

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize draft export: %w", err)
	}
	slog.Debug("Coordinator exported draft file", "bytes", len(data))
	return data, nil
}

// Import restores the session from an exported draft file. A malformed file
// is rejected without touching the session.
func (c *Coordinator) Import(data []byte) error {
	var snap models.DraftSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		slog.Warn("Coordinator import rejected, unparseable file", "error", err)
		return models.ErrMalformedImport
	}
	if snap.Answers == nil || snap.CurrentStep < 0 {
		slog.Warn("Coordinator import rejected, missing required fields", "currentStep", snap.CurrentStep)
		return models.ErrMalformedImport
	}

	c.session.Restore(snap.Answers, snap.CurrentStep)
	slog.Info("Coordinator imported draft file", "currentStep", snap.CurrentStep, "answers", len(snap.Answers))
	return nil
}

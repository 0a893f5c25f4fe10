// Package notify delivers submission notifications to operations staff.
// Delivery is best effort: a failed notification never fails the submission.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Submission is the notification payload describing a completed intake.
type Submission struct {
	DraftID        string    `json:"draft_id"`
	Program        string    `json:"program"`
	ClinicName     string    `json:"clinic_name"`
	SubmitterName  string    `json:"submitter_name"`
	SubmitterEmail string    `json:"submitter_email"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// Notifier receives submission events.
type Notifier interface {
	SubmissionReceived(ctx context.Context, sub Submission) error
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) SubmissionReceived(ctx context.Context, sub Submission) error {
	slog.Debug("NopNotifier dropping submission notification", "draftID", sub.DraftID)
	return nil
}

// MultiNotifier fans out to several notifiers and reports the first error
// after attempting all of them.
type MultiNotifier []Notifier

func (m MultiNotifier) SubmissionReceived(ctx context.Context, sub Submission) error {
	var firstErr error
	for _, n := range m {
		if err := n.SubmissionReceived(ctx, sub); err != nil {
			slog.Error("MultiNotifier delivery failed", "error", err, "draftID", sub.DraftID)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// WebhookNotifier POSTs the submission payload as JSON to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier targeting url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) SubmissionReceived(ctx context.Context, sub Submission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed to marshal submission notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver submission webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("submission webhook returned status %d", resp.StatusCode)
	}

	slog.Debug("WebhookNotifier delivered submission", "draftID", sub.DraftID, "status", resp.StatusCode)
	return nil
}

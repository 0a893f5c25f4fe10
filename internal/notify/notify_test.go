package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func testSubmission() Submission {
	return Submission{
		DraftID:        "draft-1",
		Program:        "P4M",
		ClinicName:     "Mercy Health",
		SubmitterName:  "Dr. Reyes",
		SubmitterEmail: "reyes@mercy.org",
		SubmittedAt:    time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
	}
}

type stubNotifier struct {
	calls int32
	err   error
}

func (s *stubNotifier) SubmissionReceived(ctx context.Context, sub Submission) error {
	atomic.AddInt32(&s.calls, 1)
	return s.err
}

func TestMultiNotifierAttemptsAllAndReportsFirstError(t *testing.T) {
	errA := errors.New("sms down")
	errB := errors.New("webhook down")
	first := &stubNotifier{err: errA}
	second := &stubNotifier{}
	third := &stubNotifier{err: errB}

	multi := MultiNotifier{first, second, third}
	err := multi.SubmissionReceived(context.Background(), testSubmission())
	if !errors.Is(err, errA) {
		t.Errorf("expected first error, got %v", err)
	}
	for i, n := range []*stubNotifier{first, second, third} {
		if n.calls != 1 {
			t.Errorf("notifier %d called %d times", i, n.calls)
		}
	}
}

func TestMultiNotifierEmptyIsNop(t *testing.T) {
	if err := (MultiNotifier{}).SubmissionReceived(context.Background(), testSubmission()); err != nil {
		t.Errorf("empty multi notifier returned %v", err)
	}
}

func TestWebhookNotifierDeliversJSON(t *testing.T) {
	var received Submission
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.SubmissionReceived(context.Background(), testSubmission()); err != nil {
		t.Fatalf("webhook delivery failed: %v", err)
	}
	if contentType != "application/json" {
		t.Errorf("content type = %q", contentType)
	}
	if received.ClinicName != "Mercy Health" || received.DraftID != "draft-1" {
		t.Errorf("received payload = %+v", received)
	}
}

func TestWebhookNotifierErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	if err := NewWebhookNotifier(srv.URL).SubmissionReceived(context.Background(), testSubmission()); err == nil {
		t.Error("expected error for non-2xx response")
	}
	srv.Close()

	// Connection refused after the server closes.
	if err := NewWebhookNotifier(srv.URL).SubmissionReceived(context.Background(), testSubmission()); err == nil {
		t.Error("expected error for unreachable webhook")
	}
}

func TestSMSNotifierFormatsMessage(t *testing.T) {
	sender := NewMockSMSSender()
	n := NewSMSNotifier(sender, "+15550100")
	if err := n.SubmissionReceived(context.Background(), testSubmission()); err != nil {
		t.Fatalf("SMS notification failed: %v", err)
	}

	if len(sender.Sent) != 1 {
		t.Fatalf("sent = %v", sender.Sent)
	}
	msg := sender.Sent[0]
	if msg.To != "+15550100" {
		t.Errorf("to = %q", msg.To)
	}
	for _, want := range []string{"Mercy Health", "P4M", "Dr. Reyes", "reyes@mercy.org"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body %q missing %q", msg.Body, want)
		}
	}
}

func TestNewTwilioSMSClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewTwilioSMSClient(); err == nil {
		t.Error("expected error with no credentials")
	}
	if _, err := NewTwilioSMSClient(WithAccountSID("AC123"), WithAuthToken("token")); err == nil {
		t.Error("expected error with no from number")
	}
	client, err := NewTwilioSMSClient(WithAccountSID("AC123"), WithAuthToken("token"), WithFromNumber("+15550100"))
	if err != nil {
		t.Fatalf("client construction failed: %v", err)
	}
	if client == nil {
		t.Fatal("client is nil")
	}
}

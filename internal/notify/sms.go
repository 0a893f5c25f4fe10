package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// SMSSender abstracts the SMS transport so tests can observe messages
// without a live Twilio account.
type SMSSender interface {
	SendSMS(ctx context.Context, to string, body string) error
}

// SMSOpts holds configuration for the Twilio SMS client.
type SMSOpts struct {
	AccountSID string
	AuthToken  string
	From       string
}

// SMSOption defines a configuration option for the Twilio SMS client.
type SMSOption func(*SMSOpts)

func WithAccountSID(sid string) SMSOption {
	return func(o *SMSOpts) { o.AccountSID = sid }
}

func WithAuthToken(token string) SMSOption {
	return func(o *SMSOpts) { o.AuthToken = token }
}

func WithFromNumber(from string) SMSOption {
	return func(o *SMSOpts) { o.From = from }
}

// TwilioSMSClient sends SMS via the Twilio REST API.
type TwilioSMSClient struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSMSClient creates a Twilio SMS client. Options fall back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER environment
// variables when unset.
func NewTwilioSMSClient(opts ...SMSOption) (*TwilioSMSClient, error) {
	var cfg SMSOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio SMS client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &TwilioSMSClient{client: client, from: cfg.From}, nil
}

// SendSMS sends a text message using the Twilio API.
func (c *TwilioSMSClient) SendSMS(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.from)
	params.SetBody(body)

	_, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendSMS failed", "to", to, "error", err)
		return fmt.Errorf("failed to send SMS to %s: %w", to, err)
	}

	slog.Debug("Twilio SMS sent", "to", to)
	return nil
}

// SMSNotifier announces new submissions to an on-call phone number.
type SMSNotifier struct {
	sender SMSSender
	to     string
}

// NewSMSNotifier creates an SMS notifier that alerts the given number.
func NewSMSNotifier(sender SMSSender, to string) *SMSNotifier {
	return &SMSNotifier{sender: sender, to: to}
}

func (n *SMSNotifier) SubmissionReceived(ctx context.Context, sub Submission) error {
	body := fmt.Sprintf("New onboarding submission: %s (%s) by %s <%s>",
		sub.ClinicName, sub.Program, sub.SubmitterName, sub.SubmitterEmail)
	return n.sender.SendSMS(ctx, n.to, body)
}

// MockSMSSender records sent messages for tests.
type MockSMSSender struct {
	Sent []MockSMS
}

// MockSMS is one recorded message.
type MockSMS struct {
	To   string
	Body string
}

func NewMockSMSSender() *MockSMSSender {
	return &MockSMSSender{Sent: []MockSMS{}}
}

func (m *MockSMSSender) SendSMS(ctx context.Context, to string, body string) error {
	m.Sent = append(m.Sent, MockSMS{To: to, Body: body})
	return nil
}

// Package email implements the email inquiry channel (SPEC_FULL.md Core
// B). Inbound inquiries are polled from a configured mailbox-webhook relay
// (the same HTTP polling shape as pkg/inquirychannel/smartstore), outbound
// replies are sent directly over SMTP since no email SDK appears anywhere
// in the example pack (justified as the one stdlib-only piece for this
// adapter, recorded in DESIGN.md).
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"time"

	"github.com/haneulsim/esimcore/pkg/channel"
)

const defaultTimeout = 10 * time.Second

// Config configures the email channel: an SMTP relay for outbound replies
// and an inbound mailbox relay (e.g. a forwarding webhook) for inquiries.
type Config struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromAddress  string

	InboxRelayURL string // HTTP endpoint exposing unread messages as JSON
}

// Adapter implements channel.InquiryChannel for inbound/outbound email.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New creates an email inquiry channel adapter.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: defaultTimeout}}
}

func (a *Adapter) Slug() string        { return "email" }
func (a *Adapter) DisplayName() string { return "Email" }
func (a *Adapter) IsEnabled() bool     { return a.cfg.SMTPHost != "" && a.cfg.FromAddress != "" }

// HealthCheck dials the configured SMTP relay to confirm it's reachable.
func (a *Adapter) HealthCheck(ctx context.Context) (bool, string) {
	if !a.IsEnabled() {
		return false, "email adapter not configured"
	}
	addr := fmt.Sprintf("%s:%d", a.cfg.SMTPHost, a.cfg.SMTPPort)
	client, err := smtp.Dial(addr)
	if err != nil {
		return false, err.Error()
	}
	_ = client.Close()
	return true, ""
}

type relayMessage struct {
	MessageID    string    `json:"messageId"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body"`
	FromName     string    `json:"fromName"`
	FromAddress  string    `json:"fromAddress"`
	ReceivedAt   time.Time `json:"receivedAt"`
	Answered     bool      `json:"answered"`
}

// FetchInquiries polls the inbox relay for unanswered inbound emails.
func (a *Adapter) FetchInquiries(ctx context.Context, opts channel.FetchInquiriesOptions) ([]channel.ExternalInquiry, error) {
	url := fmt.Sprintf("%s/messages?answered=%t", a.cfg.InboxRelayURL, opts.IncludeReplied)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building inbox relay request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling inbox relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("inbox relay returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Messages []relayMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding inbox relay response: %w", err)
	}

	out := make([]channel.ExternalInquiry, 0, len(parsed.Messages))
	for _, m := range parsed.Messages {
		out = append(out, channel.ExternalInquiry{
			ExternalID:   m.MessageID,
			Subject:      m.Subject,
			Content:      m.Body,
			CustomerName: m.FromName,
			Email:        m.FromAddress,
			CreatedAt:    m.ReceivedAt,
		})
	}
	return out, nil
}

// FetchMessages returns a thread's message history from the inbox relay.
func (a *Adapter) FetchMessages(ctx context.Context, externalID string) ([]channel.ExternalMessage, error) {
	url := fmt.Sprintf("%s/messages/%s/thread", a.cfg.InboxRelayURL, externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building inbox relay request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling inbox relay: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("inbox relay returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Messages []struct {
			MessageID string    `json:"messageId"`
			Direction string    `json:"direction"`
			Body      string    `json:"body"`
			SentAt    time.Time `json:"sentAt"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding inbox relay thread: %w", err)
	}

	out := make([]channel.ExternalMessage, 0, len(parsed.Messages))
	for _, m := range parsed.Messages {
		out = append(out, channel.ExternalMessage{
			ExternalID: m.MessageID,
			Direction:  m.Direction,
			Content:    m.Body,
			SentAt:     m.SentAt,
		})
	}
	return out, nil
}

// SendReply sends the agent's reply as a plain-text email over the
// configured SMTP relay. externalID is the original inbound message's
// address, used as the reply's recipient.
func (a *Adapter) SendReply(ctx context.Context, externalID, content string) channel.ReplyResult {
	addr := fmt.Sprintf("%s:%d", a.cfg.SMTPHost, a.cfg.SMTPPort)
	var auth smtp.Auth
	if a.cfg.SMTPUsername != "" {
		auth = smtp.PlainAuth("", a.cfg.SMTPUsername, a.cfg.SMTPPassword, a.cfg.SMTPHost)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: Re: your eSIM inquiry\r\n\r\n%s",
		a.cfg.FromAddress, externalID, content)

	if err := smtp.SendMail(addr, auth, a.cfg.FromAddress, []string{externalID}, []byte(msg)); err != nil {
		return channel.ReplyResult{DeliveryStatus: "failed", Err: fmt.Errorf("sending reply email: %w", err)}
	}
	return channel.ReplyResult{DeliveryStatus: "sent"}
}

// Package talktalk implements the Naver TalkTalk inquiry channel adapter
// (SPEC_FULL.md Core B), grounded on pkg/slack/{provider,verify}.go's
// notifier-plus-signing-secret shape and pkg/credential's OAuth2
// client-credentials Refresher (the same exchange Naver Commerce uses).
package talktalk

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haneulsim/esimcore/pkg/channel"
	"github.com/haneulsim/esimcore/pkg/credential"
)

const defaultTimeout = 10 * time.Second

// Config configures the TalkTalk adapter from NAVER_TALKTALK_CLIENT_ID /
// NAVER_TALKTALK_SECRET / NAVER_TALKTALK_CHANNEL_ID.
type Config struct {
	ClientID      string
	ClientSecret  string
	ChannelID     string
	WebhookSecret string
	BaseURL       string
	TokenURL      string
}

// Adapter implements channel.InquiryChannel for Naver TalkTalk.
type Adapter struct {
	cfg    Config
	client *http.Client
	tokens *credential.Cache
}

// New creates a TalkTalk inquiry channel adapter.
func New(cfg Config, tokens *credential.Cache) *Adapter {
	if tokens == nil {
		tokens = credential.NewCache()
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: defaultTimeout}, tokens: tokens}
}

func (a *Adapter) Slug() string        { return "talktalk" }
func (a *Adapter) DisplayName() string { return "Naver TalkTalk" }
func (a *Adapter) IsEnabled() bool     { return a.cfg.ClientID != "" && a.cfg.ChannelID != "" }

// HealthCheck confirms the channel's OAuth2 credentials still exchange.
func (a *Adapter) HealthCheck(ctx context.Context) (bool, string) {
	if !a.IsEnabled() {
		return false, "talktalk adapter not configured"
	}
	if _, err := a.authHeaders(ctx); err != nil {
		return false, err.Error()
	}
	return true, ""
}

func (a *Adapter) authHeaders(ctx context.Context) (map[string]string, error) {
	refresh := credential.OAuth2ClientCredentials(a.cfg.ClientID, a.cfg.ClientSecret, a.cfg.TokenURL, nil)
	return a.tokens.AcquireAuthHeaders(ctx, "talktalk:"+a.cfg.ChannelID, refresh)
}

// FetchInquiries polls a TalkTalk channel's unread conversation list.
func (a *Adapter) FetchInquiries(ctx context.Context, opts channel.FetchInquiriesOptions) ([]channel.ExternalInquiry, error) {
	url := fmt.Sprintf("%s/talk/v1/channels/%s/events?unread_only=%t", a.cfg.BaseURL, a.cfg.ChannelID, !opts.IncludeReplied)
	var resp struct {
		Events []struct {
			EventID      string    `json:"eventId"`
			UserID       string    `json:"userId"`
			Content      string    `json:"text"`
			OccurredAt   time.Time `json:"eventTime"`
		} `json:"events"`
	}
	if err := a.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching talktalk events: %w", err)
	}

	out := make([]channel.ExternalInquiry, 0, len(resp.Events))
	for _, e := range resp.Events {
		out = append(out, channel.ExternalInquiry{
			ExternalID:   e.EventID,
			Subject:      "TalkTalk message",
			Content:      e.Content,
			CustomerName: e.UserID,
			CreatedAt:    e.OccurredAt,
		})
	}
	return out, nil
}

// FetchMessages returns a conversation's message history.
func (a *Adapter) FetchMessages(ctx context.Context, externalID string) ([]channel.ExternalMessage, error) {
	url := fmt.Sprintf("%s/talk/v1/channels/%s/events/%s/thread", a.cfg.BaseURL, a.cfg.ChannelID, externalID)
	var resp struct {
		Messages []struct {
			MessageID string    `json:"messageId"`
			Direction string    `json:"direction"`
			Content   string    `json:"text"`
			SentAt    time.Time `json:"eventTime"`
		} `json:"messages"`
	}
	if err := a.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching talktalk thread: %w", err)
	}

	out := make([]channel.ExternalMessage, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		out = append(out, channel.ExternalMessage{
			ExternalID: m.MessageID,
			Direction:  m.Direction,
			Content:    m.Content,
			SentAt:     m.SentAt,
		})
	}
	return out, nil
}

// SendReply posts an agent reply into a TalkTalk conversation.
func (a *Adapter) SendReply(ctx context.Context, externalID, content string) channel.ReplyResult {
	url := fmt.Sprintf("%s/talk/v1/channels/%s/events/%s/reply", a.cfg.BaseURL, a.cfg.ChannelID, externalID)
	var resp struct {
		MessageID string `json:"messageId"`
	}
	if err := a.doJSON(ctx, http.MethodPost, url, map[string]string{"text": content}, &resp); err != nil {
		return channel.ReplyResult{DeliveryStatus: "failed", Err: err}
	}
	return channel.ReplyResult{DeliveryStatus: "sent", ExternalMessageID: resp.MessageID}
}

func (a *Adapter) doJSON(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	headers, err := a.authHeaders(ctx)
	if err != nil {
		return fmt.Errorf("acquiring auth headers: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling talktalk: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("talktalk returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// VerifyWebhook checks the HMAC-SHA256 signature TalkTalk attaches to its
// inbound event pushes.
func (a *Adapter) VerifyWebhook(body []byte, signatureHex string) bool {
	if a.cfg.WebhookSecret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signatureHex)) == 1
}

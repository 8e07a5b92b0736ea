// Package smartstore implements the Naver SmartStore inquiry channel
// adapter (§4.11, SPEC_FULL.md Core B): SmartStore is both a sales channel
// (its orders flow through pkg/order.Normalize) and an inquiry channel, so
// this adapter only covers the inquiry half of that surface.
package smartstore

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

// Config configures the SmartStore adapter from NAVER_COMMERCE_* env vars
// (SPEC_FULL.md's configuration section).
type Config struct {
	AppID         string
	AppSecret     string
	WebhookSecret string
	BaseURL       string
	TokenURL      string
}

// Adapter implements channel.InquiryChannel for Naver SmartStore, following
// the teacher's Notifier/Provider split (pkg/slack/{notifier,provider}.go):
// Adapter owns the HTTP client and auth, Purchase/inquiry calls are thin
// wrappers over it.
type Adapter struct {
	cfg    Config
	client *http.Client
	tokens *credential.Cache
}

// New creates a SmartStore inquiry channel adapter. An empty AppID disables
// it (§4.3's Identity.IsEnabled()).
func New(cfg Config, tokens *credential.Cache) *Adapter {
	if tokens == nil {
		tokens = credential.NewCache()
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: defaultTimeout}, tokens: tokens}
}

func (a *Adapter) Slug() string        { return "smartstore" }
func (a *Adapter) DisplayName() string { return "Naver SmartStore" }
func (a *Adapter) IsEnabled() bool     { return a.cfg.AppID != "" && a.cfg.AppSecret != "" }

// HealthCheck pings the SmartStore token endpoint to confirm credentials
// still exchange for a usable token.
func (a *Adapter) HealthCheck(ctx context.Context) (bool, string) {
	if !a.IsEnabled() {
		return false, "smartstore adapter not configured"
	}
	if _, err := a.authHeaders(ctx); err != nil {
		return false, err.Error()
	}
	return true, ""
}

func (a *Adapter) authHeaders(ctx context.Context) (map[string]string, error) {
	refresh := credential.OAuth2ClientCredentials(a.cfg.AppID, a.cfg.AppSecret, a.cfg.TokenURL, nil)
	return a.tokens.AcquireAuthHeaders(ctx, "smartstore", refresh)
}

type inquiryResponse struct {
	Inquiries []struct {
		InquiryID    string    `json:"inquiryId"`
		Subject      string    `json:"title"`
		Content      string    `json:"content"`
		CustomerName string    `json:"customerName"`
		Email        string    `json:"customerEmail"`
		Phone        string    `json:"customerPhone"`
		CreatedAt    time.Time `json:"createdAt"`
	} `json:"inquiries"`
}

// FetchInquiries polls the SmartStore "1:1 inquiries" API for unanswered
// customer questions (§4.11 SyncFromAllChannels).
func (a *Adapter) FetchInquiries(ctx context.Context, opts channel.FetchInquiriesOptions) ([]channel.ExternalInquiry, error) {
	url := fmt.Sprintf("%s/external/v1/pay-user/inquiries?answered=%t", a.cfg.BaseURL, opts.IncludeReplied)
	var resp inquiryResponse
	if err := a.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching smartstore inquiries: %w", err)
	}

	out := make([]channel.ExternalInquiry, 0, len(resp.Inquiries))
	for _, inq := range resp.Inquiries {
		out = append(out, channel.ExternalInquiry{
			ExternalID:   inq.InquiryID,
			Subject:      inq.Subject,
			Content:      inq.Content,
			CustomerName: inq.CustomerName,
			Email:        inq.Email,
			Phone:        inq.Phone,
			CreatedAt:    inq.CreatedAt,
		})
	}
	return out, nil
}

type messagesResponse struct {
	Messages []struct {
		MessageID string    `json:"messageId"`
		Direction string    `json:"direction"`
		Content   string    `json:"content"`
		SentAt    time.Time `json:"sentAt"`
	} `json:"messages"`
}

// FetchMessages returns a single inquiry's conversation thread.
func (a *Adapter) FetchMessages(ctx context.Context, externalID string) ([]channel.ExternalMessage, error) {
	url := fmt.Sprintf("%s/external/v1/pay-user/inquiries/%s/messages", a.cfg.BaseURL, externalID)
	var resp messagesResponse
	if err := a.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching smartstore messages: %w", err)
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

// SendReply posts an agent's answer back to SmartStore.
func (a *Adapter) SendReply(ctx context.Context, externalID, content string) channel.ReplyResult {
	url := fmt.Sprintf("%s/external/v1/pay-user/inquiries/%s/answer", a.cfg.BaseURL, externalID)
	body := map[string]string{"content": content}

	var resp struct {
		AnswerID string `json:"answerId"`
		Status   string `json:"status"`
	}
	if err := a.doJSON(ctx, http.MethodPost, url, body, &resp); err != nil {
		return channel.ReplyResult{DeliveryStatus: "failed", Err: err}
	}

	status := resp.Status
	if status == "" {
		status = "sent"
	}
	return channel.ReplyResult{DeliveryStatus: status, ExternalMessageID: resp.AnswerID}
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
		return fmt.Errorf("calling smartstore: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("smartstore returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// VerifyWebhook checks the HMAC-SHA256 signature SmartStore attaches to
// inbound order/inquiry push events (§4.13's "webhook signature
// verification" requirement, same pattern as pkg/slack.VerifyMiddleware's
// signing-secret check, generalized to a raw HMAC since SmartStore has no
// Go SDK in the example pack).
func (a *Adapter) VerifyWebhook(body []byte, signatureHex string) bool {
	if a.cfg.WebhookSecret == "" {
		return true // verification disabled in dev mode
	}
	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signatureHex)) == 1
}

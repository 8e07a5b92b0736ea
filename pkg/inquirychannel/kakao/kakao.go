// Package kakao implements the Kakao Channel inquiry adapter (SPEC_FULL.md
// Core B), grounded on pkg/slack/{provider,verify}.go's notifier-plus-
// signing-secret shape.
package kakao

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
)

const defaultTimeout = 10 * time.Second

// Config configures the Kakao adapter from KAKAO_REST_API_KEY /
// KAKAO_WEBHOOK_SECRET.
type Config struct {
	RestAPIKey    string
	WebhookSecret string
	BaseURL       string
}

// Adapter implements channel.InquiryChannel for the Kakao Channel 1:1 chat
// API.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New creates a Kakao inquiry channel adapter.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: defaultTimeout}}
}

func (a *Adapter) Slug() string        { return "kakao" }
func (a *Adapter) DisplayName() string { return "Kakao Channel" }
func (a *Adapter) IsEnabled() bool     { return a.cfg.RestAPIKey != "" }

// HealthCheck confirms the configured REST API key authenticates.
func (a *Adapter) HealthCheck(ctx context.Context) (bool, string) {
	if !a.IsEnabled() {
		return false, "kakao adapter not configured"
	}
	url := fmt.Sprintf("%s/v1/api/channels/status", a.cfg.BaseURL)
	var out struct {
		Status string `json:"status"`
	}
	if err := a.doJSON(ctx, http.MethodGet, url, nil, &out); err != nil {
		return false, err.Error()
	}
	return true, ""
}

type chatsResponse struct {
	Chats []struct {
		ChatID       string    `json:"chatId"`
		Content      string    `json:"message"`
		CustomerName string    `json:"userName"`
		CreatedAt    time.Time `json:"createdAt"`
		Answered     bool      `json:"answered"`
	} `json:"chats"`
}

// FetchInquiries polls Kakao Channel for unanswered 1:1 chats.
func (a *Adapter) FetchInquiries(ctx context.Context, opts channel.FetchInquiriesOptions) ([]channel.ExternalInquiry, error) {
	url := fmt.Sprintf("%s/v1/api/channels/chats?answered=%t", a.cfg.BaseURL, opts.IncludeReplied)
	var resp chatsResponse
	if err := a.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching kakao chats: %w", err)
	}

	out := make([]channel.ExternalInquiry, 0, len(resp.Chats))
	for _, c := range resp.Chats {
		out = append(out, channel.ExternalInquiry{
			ExternalID:   c.ChatID,
			Subject:      "Kakao chat",
			Content:      c.Content,
			CustomerName: c.CustomerName,
			CreatedAt:    c.CreatedAt,
		})
	}
	return out, nil
}

// FetchMessages returns a chat's message history.
func (a *Adapter) FetchMessages(ctx context.Context, externalID string) ([]channel.ExternalMessage, error) {
	url := fmt.Sprintf("%s/v1/api/channels/chats/%s/messages", a.cfg.BaseURL, externalID)
	var resp struct {
		Messages []struct {
			MessageID string    `json:"messageId"`
			Direction string    `json:"direction"`
			Content   string    `json:"message"`
			SentAt    time.Time `json:"sentAt"`
		} `json:"messages"`
	}
	if err := a.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching kakao messages: %w", err)
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

// SendReply posts an agent reply into a Kakao 1:1 chat.
func (a *Adapter) SendReply(ctx context.Context, externalID, content string) channel.ReplyResult {
	url := fmt.Sprintf("%s/v1/api/channels/chats/%s/reply", a.cfg.BaseURL, externalID)
	var resp struct {
		MessageID string `json:"messageId"`
	}
	if err := a.doJSON(ctx, http.MethodPost, url, map[string]string{"message": content}, &resp); err != nil {
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
	req.Header.Set("Authorization", "KakaoAK "+a.cfg.RestAPIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling kakao: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("kakao returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// VerifyWebhook checks the HMAC-SHA256 signature Kakao attaches to its
// inbound chat-event pushes, following the same constant-time-compare
// discipline as pkg/slack.VerifyMiddleware.
func (a *Adapter) VerifyWebhook(body []byte, signatureHex string) bool {
	if a.cfg.WebhookSecret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signatureHex)) == 1
}

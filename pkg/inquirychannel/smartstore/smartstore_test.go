package smartstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haneulsim/esimcore/pkg/channel"
	"github.com/haneulsim/esimcore/pkg/credential"
)

func hmacHex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestAdapter(t *testing.T, srv *httptest.Server) *Adapter {
	t.Helper()
	cfg := Config{
		AppID:     "app-1",
		AppSecret: "secret-1",
		BaseURL:   srv.URL,
		TokenURL:  srv.URL + "/oauth/token",
	}
	return New(cfg, credential.NewCache())
}

func tokenHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth/token" {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-123",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
		return
	}
}

func TestIsEnabledRequiresAppCredentials(t *testing.T) {
	a := New(Config{}, nil)
	if a.IsEnabled() {
		t.Fatalf("expected adapter without credentials to be disabled")
	}
}

func TestFetchInquiriesParsesResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", tokenHandler)
	mux.HandleFunc("/external/v1/pay-user/inquiries", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"inquiries": []map[string]any{
				{"inquiryId": "sq-1", "title": "shipping", "content": "where's my order", "customerEmail": "a@example.com"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := newTestAdapter(t, srv)
	out, err := a.FetchInquiries(context.Background(), channel.FetchInquiriesOptions{IncludeReplied: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || out[0].ExternalID != "sq-1" {
		t.Fatalf("expected one inquiry with id sq-1, got %+v", out)
	}
}

func TestSendReplyReturnsDeliveryStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", tokenHandler)
	mux.HandleFunc("/external/v1/pay-user/inquiries/sq-1/answer", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"answerId": "ans-1", "status": "sent"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := newTestAdapter(t, srv)
	result := a.SendReply(context.Background(), "sq-1", "your order shipped")
	if result.Err != nil || result.DeliveryStatus != "sent" || result.ExternalMessageID != "ans-1" {
		t.Fatalf("unexpected reply result: %+v", result)
	}
}

func TestVerifyWebhookAcceptsValidSignatureAndRejectsInvalid(t *testing.T) {
	a := New(Config{AppID: "x", AppSecret: "y", WebhookSecret: "whsec"}, nil)
	body := []byte(`{"event":"inquiry.created"}`)

	// Compute the expected signature the same way production code does.
	valid := hmacHex("whsec", body)
	if !a.VerifyWebhook(body, valid) {
		t.Fatalf("expected valid signature to verify")
	}
	if a.VerifyWebhook(body, "deadbeef") {
		t.Fatalf("expected invalid signature to fail verification")
	}
}

func TestVerifyWebhookSkippedWhenSecretUnset(t *testing.T) {
	a := New(Config{AppID: "x", AppSecret: "y"}, nil)
	if !a.VerifyWebhook([]byte("anything"), "garbage") {
		t.Fatalf("expected verification to be skipped when no webhook secret is configured")
	}
}

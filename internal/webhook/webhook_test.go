package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/haneulsim/esimcore/internal/store"
	"github.com/haneulsim/esimcore/pkg/breaker"
	"github.com/haneulsim/esimcore/pkg/cascade"
	"github.com/haneulsim/esimcore/pkg/channel"
	"github.com/haneulsim/esimcore/pkg/fulfillment"
	"github.com/haneulsim/esimcore/pkg/order"
)

type stubMapper struct{}

func (stubMapper) Map(ctx context.Context, externalProductID string) (string, string, error) {
	return "prod-1", "japan-7d-1g", nil
}

type stubEmail struct{}

func (stubEmail) SendDeliveryEmail(ctx context.Context, o order.Order) (string, error) {
	return "msg-1", nil
}

type stubProvider struct{ name string }

func (s stubProvider) Slug() string        { return s.name }
func (s stubProvider) DisplayName() string { return s.name }
func (s stubProvider) IsEnabled() bool     { return true }
func (s stubProvider) HealthCheck(ctx context.Context) (bool, string) { return true, "" }
func (s stubProvider) Purchase(ctx context.Context, req channel.PurchaseRequest) channel.PurchaseResult {
	return channel.PurchaseResult{Outcome: channel.PurchaseOK, Artifact: channel.ESIMArtifact{
		QRCodeURL: "https://qr", ICCID: "890100000001", ActivationCode: "LPA:1$x$y", ProviderOrderID: "po-1",
	}}
}

func newTestHandler(t *testing.T, secret string) (*Handler, *order.Repository) {
	t.Helper()
	mem := store.NewMemoryStore()
	repo := order.NewRepository(mem.Collection(order.CollectionName))

	svc := &fulfillment.Service{
		Machine: repo.Machine(),
		Breaker: breaker.New(mem.Collection(breaker.CollectionName), nil, slog.Default()),
		EmailPort: stubEmail{},
	}
	providers := func() []cascade.ProviderConfig {
		return []cascade.ProviderConfig{{Slug: "airalo", Priority: 1, Active: true, Adapter: stubProvider{name: "airalo"}, MaxRetries: 1}}
	}

	h := New(slog.Default(), repo, stubMapper{}, svc, providers, 5*time.Second, secret)
	return h, repo
}

func TestHandlePaymentWebhookRejectsInvalidSignature(t *testing.T) {
	h, _ := newTestHandler(t, "topsecret")
	r := chi.NewRouter()
	r.Mount("/", h.Routes())

	body, _ := json.Marshal(PaymentPayload{ExternalOrderID: "ext-1", Status: "PAYED", Orderer: ordererPayload{Email: "a@example.com"}})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("X-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlePaymentWebhookFulfillsEligibleOrder(t *testing.T) {
	secret := "topsecret"
	h, repo := newTestHandler(t, secret)
	r := chi.NewRouter()
	r.Mount("/", h.Routes())

	body, _ := json.Marshal(PaymentPayload{ExternalOrderID: "ext-2", Status: "PAYED", Orderer: ordererPayload{Email: "b@example.com"}})
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	req.Header.Set("X-Signature", sig)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	fetched, err := repo.GetByOrderNumber(context.Background(), "ext-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched.Status != order.StatusDelivered {
		t.Fatalf("expected order delivered, got %q", fetched.Status)
	}
}

func TestHandlePaymentWebhookSkipsIneligibleOrder(t *testing.T) {
	h, _ := newTestHandler(t, "")
	r := chi.NewRouter()
	r.Mount("/", h.Routes())

	body, _ := json.Marshal(PaymentPayload{ExternalOrderID: "ext-3", Status: "CANCELED", Orderer: ordererPayload{Email: "c@example.com"}})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted, _ := resp["accepted"].(bool); accepted {
		t.Fatalf("expected ineligible order to be rejected, got %+v", resp)
	}
}

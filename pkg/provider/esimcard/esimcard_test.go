package esimcard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haneulsim/esimcore/pkg/channel"
)

func TestIsEnabledRequiresAPIKey(t *testing.T) {
	a := New(Config{})
	if a.IsEnabled() {
		t.Fatalf("expected adapter without an API key to be disabled")
	}
}

func TestPurchaseSucceedsOnCompletedStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		if key := r.Header.Get("X-Api-Key"); key != "key-1" {
			t.Errorf("expected api key header, got %q", key)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "COMPLETED",
			"order_id": "ord-1",
			"esim": map[string]any{
				"iccid":         "89010000000000000001",
				"smdp_address":  "rsp.esimcard.test",
				"matching_id":   "XYZ789",
				"qr_code_url":   "",
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := New(Config{APIKey: "key-1", BaseURL: srv.URL})
	result := a.Purchase(context.Background(), channel.PurchaseRequest{ProductSKU: "japan-7d-1g"})
	if result.Outcome != channel.PurchaseOK {
		t.Fatalf("expected purchase ok, got %+v", result)
	}
	if result.Artifact.ActivationCode != "LPA:1$rsp.esimcard.test$XYZ789" {
		t.Fatalf("expected synthesized activation code, got %q", result.Artifact.ActivationCode)
	}
}

func TestPurchaseFailsOnNonCompletedStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "PENDING"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	a := New(Config{APIKey: "key-1", BaseURL: srv.URL})
	result := a.Purchase(context.Background(), channel.PurchaseRequest{ProductSKU: "japan-7d-1g"})
	if result.Outcome != channel.PurchaseFailure {
		t.Fatalf("expected purchase failure on non-completed status, got %+v", result)
	}
}

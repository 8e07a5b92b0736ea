// Package esimcard implements the eSIMCard eSIM supplier adapter (§4.4).
// eSIMCard authenticates with a long-lived API key rather than an OAuth2
// exchange, so it sets its header directly instead of going through
// pkg/credential.
package esimcard

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/haneulsim/esimcore/pkg/channel"
	"github.com/haneulsim/esimcore/pkg/errtax"
	"github.com/haneulsim/esimcore/pkg/provider"
)

const defaultTimeout = 10 * time.Second

// Config configures the eSIMCard adapter from ESIMCARD_* env vars.
type Config struct {
	APIKey  string
	BaseURL string
}

// Adapter implements channel.Provider for eSIMCard.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New creates an eSIMCard adapter. An empty APIKey disables it.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: defaultTimeout}}
}

func (a *Adapter) Slug() string        { return "esimcard" }
func (a *Adapter) DisplayName() string { return "eSIMCard" }
func (a *Adapter) IsEnabled() bool     { return a.cfg.APIKey != "" }

func (a *Adapter) HealthCheck(ctx context.Context) (bool, string) {
	if !a.IsEnabled() {
		return false, "esimcard adapter not configured"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/v1/account/status", nil)
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("X-Api-Key", a.cfg.APIKey)
	resp, err := a.client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return false, errtax.FromHTTPStatus(resp.StatusCode, nil).Error()
	}
	return true, ""
}

type orderResponse struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
	ESIM    struct {
		ICCID       string `json:"iccid"`
		SMDPAddress string `json:"smdp_address"`
		MatchingID  string `json:"matching_id"`
		QRCodeURL   string `json:"qr_code_url"`
	} `json:"esim"`
}

// Purchase places an order against eSIMCard's provisioning API. Success
// predicate: HTTP 2xx and status == "COMPLETED" (§4.4).
func (a *Adapter) Purchase(ctx context.Context, req channel.PurchaseRequest) channel.PurchaseResult {
	body, _ := json.Marshal(map[string]any{
		"sku":      req.ProductSKU,
		"quantity": req.Quantity,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("failed to build esimcard order request", false)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Api-Key", a.cfg.APIKey)
	httpReq.Header.Set("X-Correlation-ID", req.CorrelationID)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.FromError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.FromHTTPStatus(resp.StatusCode, nil)}
	}

	var out orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("invalid esimcard response body", false)}
	}

	if out.Status != "COMPLETED" {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("esimcard order status was "+out.Status, false)}
	}
	if out.ESIM.ICCID == "" {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("esimcard order returned no iccid", false)}
	}

	artifact := provider.ExtractArtifact(provider.SIMFields{
		ICCID:           out.ESIM.ICCID,
		QRCodeURL:       out.ESIM.QRCodeURL,
		ProviderOrderID: out.OrderID,
		SMDPAddress:     out.ESIM.SMDPAddress,
		MatchingID:      out.ESIM.MatchingID,
	})

	return channel.PurchaseResult{Outcome: channel.PurchaseOK, Artifact: artifact}
}

// Package mobimatter implements the MobiMatter eSIM supplier adapter (§4.4).
package mobimatter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/haneulsim/esimcore/pkg/channel"
	"github.com/haneulsim/esimcore/pkg/credential"
	"github.com/haneulsim/esimcore/pkg/errtax"
	"github.com/haneulsim/esimcore/pkg/provider"
)

const defaultTimeout = 10 * time.Second

// Config configures the MobiMatter adapter from MOBIMATTER_* env vars.
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
}

// Adapter implements channel.Provider for MobiMatter.
type Adapter struct {
	cfg    Config
	client *http.Client
	tokens *credential.Cache
}

// New creates a MobiMatter adapter. An empty ClientID disables it.
func New(cfg Config, tokens *credential.Cache) *Adapter {
	if tokens == nil {
		tokens = credential.NewCache()
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: defaultTimeout}, tokens: tokens}
}

func (a *Adapter) Slug() string        { return "mobimatter" }
func (a *Adapter) DisplayName() string { return "MobiMatter" }
func (a *Adapter) IsEnabled() bool     { return a.cfg.ClientID != "" && a.cfg.ClientSecret != "" }

func (a *Adapter) HealthCheck(ctx context.Context) (bool, string) {
	if !a.IsEnabled() {
		return false, "mobimatter adapter not configured"
	}
	if _, err := a.authHeaders(ctx); err != nil {
		return false, err.Error()
	}
	return true, ""
}

func (a *Adapter) authHeaders(ctx context.Context) (map[string]string, error) {
	refresh := credential.OAuth2ClientCredentials(a.cfg.ClientID, a.cfg.ClientSecret, a.cfg.TokenURL, nil)
	return a.tokens.AcquireAuthHeaders(ctx, "mobimatter", refresh)
}

type orderResponse struct {
	OrderID     string `json:"orderId"`
	SimProfiles []struct {
		ICCID          string `json:"iccid"`
		ActivationCode string `json:"activationCode"`
		SMDPAddress    string `json:"smdpAddress"`
		MatchingID     string `json:"matchingId"`
		QRCodeURL      string `json:"qrCodeUrl"`
	} `json:"simProfiles"`
}

// Purchase places an order against MobiMatter's provisioning API.
func (a *Adapter) Purchase(ctx context.Context, req channel.PurchaseRequest) channel.PurchaseResult {
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.Classified{Kind: errtax.KindAuthentication, Message: err.Error(), Retryable: false}}
	}

	body, _ := json.Marshal(map[string]any{
		"productSku": req.ProductSKU,
		"quantity":   req.Quantity,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/v2/orders", bytes.NewReader(body))
	if err != nil {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("failed to build mobimatter order request", false)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Correlation-ID", req.CorrelationID)
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

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
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("invalid mobimatter response body", false)}
	}

	if len(out.SimProfiles) == 0 {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("mobimatter order returned an empty sim profile list", false)}
	}

	sim := out.SimProfiles[0]
	artifact := provider.ExtractArtifact(provider.SIMFields{
		ICCID:           sim.ICCID,
		QRCodeURL:       sim.QRCodeURL,
		ActivationCode:  sim.ActivationCode,
		ProviderOrderID: out.OrderID,
		SMDPAddress:     sim.SMDPAddress,
		MatchingID:      sim.MatchingID,
	})

	return channel.PurchaseResult{Outcome: channel.PurchaseOK, Artifact: artifact}
}

// Package redteago implements the RedteaGo eSIM supplier adapter (§4.4).
// RedteaGo documents 502/503/504 as its only retryable server errors; a
// plain 500 means the order itself was rejected and is not worth retrying.
package redteago

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

var retryableStatusCodes = map[int]bool{
	502: true,
	503: true,
	504: true,
}

// Config configures the RedteaGo adapter from REDTEAGO_* env vars.
type Config struct {
	APIKey  string
	BaseURL string
}

// Adapter implements channel.Provider for RedteaGo.
type Adapter struct {
	cfg    Config
	client *http.Client
}

// New creates a RedteaGo adapter. An empty APIKey disables it.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: defaultTimeout}}
}

func (a *Adapter) Slug() string        { return "redteago" }
func (a *Adapter) DisplayName() string { return "RedteaGo" }
func (a *Adapter) IsEnabled() bool     { return a.cfg.APIKey != "" }

func (a *Adapter) HealthCheck(ctx context.Context) (bool, string) {
	if !a.IsEnabled() {
		return false, "redteago adapter not configured"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/open/v1/ping", nil)
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	resp, err := a.client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return false, errtax.FromHTTPStatus(resp.StatusCode, retryableStatusCodes).Error()
	}
	return true, ""
}

type orderResponse struct {
	Code string `json:"code"`
	Data struct {
		OrderNo string `json:"orderNo"`
		Profile struct {
			ICCID          string `json:"iccid"`
			ActivationCode string `json:"ac"`
			QRCodeURL      string `json:"qrCode"`
		} `json:"profile"`
	} `json:"data"`
}

// Purchase places an order against RedteaGo's open API. Success predicate:
// HTTP 2xx and code == "0000" (§4.4).
func (a *Adapter) Purchase(ctx context.Context, req channel.PurchaseRequest) channel.PurchaseResult {
	body, _ := json.Marshal(map[string]any{
		"packageCode": req.ProductSKU,
		"count":       req.Quantity,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/open/v1/order", bytes.NewReader(body))
	if err != nil {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("failed to build redteago order request", false)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	httpReq.Header.Set("X-Correlation-ID", req.CorrelationID)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.FromError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.FromHTTPStatus(resp.StatusCode, retryableStatusCodes)}
	}

	var out orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("invalid redteago response body", false)}
	}

	if out.Code != "0000" {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("redteago order code was "+out.Code, false)}
	}
	if out.Data.Profile.ICCID == "" {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("redteago order returned no iccid", false)}
	}

	artifact := provider.ExtractArtifact(provider.SIMFields{
		ICCID:           out.Data.Profile.ICCID,
		QRCodeURL:       out.Data.Profile.QRCodeURL,
		ActivationCode:  out.Data.Profile.ActivationCode,
		ProviderOrderID: out.Data.OrderNo,
	})

	return channel.PurchaseResult{Outcome: channel.PurchaseOK, Artifact: artifact}
}

// Package airalo implements the Airalo eSIM supplier adapter (§4.4).
package airalo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/haneulsim/esimcore/pkg/channel"
	"github.com/haneulsim/esimcore/pkg/credential"
	"github.com/haneulsim/esimcore/pkg/errtax"
	"github.com/haneulsim/esimcore/pkg/provider"
)

const defaultTimeout = 10 * time.Second

// Config configures the Airalo adapter from AIRALO_* env vars.
type Config struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
}

// Adapter implements channel.Provider for Airalo.
type Adapter struct {
	cfg    Config
	client *http.Client
	tokens *credential.Cache
}

// New creates an Airalo adapter. An empty ClientID disables it.
func New(cfg Config, tokens *credential.Cache) *Adapter {
	if tokens == nil {
		tokens = credential.NewCache()
	}
	return &Adapter{cfg: cfg, client: &http.Client{Timeout: defaultTimeout}, tokens: tokens}
}

func (a *Adapter) Slug() string        { return "airalo" }
func (a *Adapter) DisplayName() string { return "Airalo" }
func (a *Adapter) IsEnabled() bool     { return a.cfg.ClientID != "" && a.cfg.ClientSecret != "" }

func (a *Adapter) HealthCheck(ctx context.Context) (bool, string) {
	if !a.IsEnabled() {
		return false, "airalo adapter not configured"
	}
	if _, err := a.authHeaders(ctx); err != nil {
		return false, err.Error()
	}
	return true, ""
}

func (a *Adapter) authHeaders(ctx context.Context) (map[string]string, error) {
	refresh := credential.OAuth2ClientCredentials(a.cfg.ClientID, a.cfg.ClientSecret, a.cfg.TokenURL, nil)
	return a.tokens.AcquireAuthHeaders(ctx, "airalo", refresh)
}

type orderResponse struct {
	Data struct {
		ID   int `json:"id"`
		Sims []struct {
			ICCID     string `json:"iccid"`
			QRCodeURL string `json:"qrcode_url"`
			LPA       string `json:"lpa"`
		} `json:"sims"`
	} `json:"data"`
	Meta struct {
		Message string `json:"message"`
	} `json:"meta"`
}

// Purchase places an order against Airalo's orders API and extracts the
// first returned SIM into the common artifact shape (§4.4).
func (a *Adapter) Purchase(ctx context.Context, req channel.PurchaseRequest) channel.PurchaseResult {
	headers, err := a.authHeaders(ctx)
	if err != nil {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.Classified{Kind: errtax.KindAuthentication, Message: err.Error(), Retryable: false}}
	}

	body, _ := json.Marshal(map[string]any{
		"package_id": req.ProductSKU,
		"quantity":   req.Quantity,
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v2/orders", bytes.NewReader(body))
	if err != nil {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("failed to build airalo order request", false)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Correlation-ID", req.CorrelationID)
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		classified := errtax.FromError(err)
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: classified}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		classified := errtax.FromHTTPStatus(resp.StatusCode, nil)
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: classified}
	}

	var out orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("invalid airalo response body", false)}
	}

	if len(out.Data.Sims) == 0 {
		return channel.PurchaseResult{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("airalo order returned an empty sim list", false)}
	}

	sim := out.Data.Sims[0]
	artifact := provider.ExtractArtifact(provider.SIMFields{
		ICCID:           sim.ICCID,
		QRCodeURL:       sim.QRCodeURL,
		ActivationCode:  sim.LPA,
		ProviderOrderID: fmt.Sprintf("%d", out.Data.ID),
	})

	return channel.PurchaseResult{Outcome: channel.PurchaseOK, Artifact: artifact}
}

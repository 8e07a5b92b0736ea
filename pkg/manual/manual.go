// Package manual implements the manual fulfillment terminal (§4.7):
// when the provider cascade is exhausted, it files a single structured
// notification to Discord and returns the pending_manual sentinel.
package manual

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/haneulsim/esimcore/pkg/errtax"
)

// Request carries everything the Discord notification needs (§4.7).
type Request struct {
	OrderID                 string
	CorrelationID           string
	CustomerEmail           string
	ProductName             string
	AttemptedProviders      []string
	AggregatedFailureReason string
}

// Outcome is the terminal's result: either pending_manual with
// notification_sent=true, or a failure the caller classifies as
// retryable/non-retryable per §4.7.
type Outcome struct {
	PendingManual    bool
	NotificationSent bool
	Err              error
}

// Notifier posts manual-fulfillment alerts to a configured Discord
// incoming webhook, following the teacher's IsEnabled()-gated notifier
// shape (pkg/slack/notifier.go) generalized to a one-shot outbound POST
// instead of a persistent chat client.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewNotifier creates a Discord Notifier. If webhookURL is empty, the
// notifier is disabled (§4.7: unconfigured webhook is a non-retryable
// failure, not a crash).
func NewNotifier(webhookURL string, httpClient *http.Client, logger *slog.Logger) *Notifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{webhookURL: webhookURL, httpClient: httpClient, logger: logger}
}

// IsEnabled reports whether a Discord webhook URL is configured.
func (n *Notifier) IsEnabled() bool {
	return n.webhookURL != ""
}

// discordPayload is a minimal Discord incoming-webhook embed payload.
type discordPayload struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbed struct {
	Title  string         `json:"title"`
	Color  int            `json:"color"`
	Fields []discordField `json:"fields"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

const manualFulfillmentColor = 0xE67E22 // orange, matches an "action needed" severity

// Notify files the manual fulfillment request (§4.7). An unconfigured
// webhook returns a non-retryable failure; a transport error or a 5xx/429
// response returns a retryable one, since the underlying POST itself may
// simply be transient. Other non-2xx responses are classified by
// errtax.FromHTTPStatus and are not retryable.
func (n *Notifier) Notify(ctx context.Context, req Request) Outcome {
	if !n.IsEnabled() {
		return Outcome{
			PendingManual: false,
			Err:           errtax.ProviderError("manual fulfillment webhook is not configured", false),
		}
	}

	payload := discordPayload{
		Content: fmt.Sprintf("Manual eSIM fulfillment required — order `%s`", req.OrderID),
		Embeds: []discordEmbed{{
			Title: "Manual Fulfillment Needed",
			Color: manualFulfillmentColor,
			Fields: []discordField{
				{Name: "Order ID", Value: req.OrderID, Inline: true},
				{Name: "Correlation ID", Value: req.CorrelationID, Inline: true},
				{Name: "Customer", Value: MaskEmail(req.CustomerEmail), Inline: true},
				{Name: "Product", Value: req.ProductName, Inline: false},
				{Name: "Attempted Providers", Value: strings.Join(req.AttemptedProviders, ", "), Inline: false},
				{Name: "Failure Reason", Value: req.AggregatedFailureReason, Inline: false},
				{Name: "Action Checklist", Value: "1. Provision eSIM manually with an active supplier.\n2. Record ICCID/activation code via PATCH /admin/orders/{id}.\n3. Confirm delivery email to customer.", Inline: false},
			},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Outcome{Err: errtax.ProviderError("failed to encode discord payload", false)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return Outcome{Err: errtax.ProviderError("failed to build discord request", false)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Correlation-ID", req.CorrelationID)

	resp, err := n.httpClient.Do(httpReq)
	if err != nil {
		n.logger.Warn("discord webhook delivery failed", "order_id", req.OrderID, "error", err)
		classified := errtax.FromError(err)
		return Outcome{Err: classified}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		classified := errtax.FromHTTPStatus(resp.StatusCode, nil)
		return Outcome{Err: classified}
	}

	n.logger.Info("manual fulfillment notification sent", "order_id", req.OrderID, "correlation_id", req.CorrelationID)
	return Outcome{PendingManual: true, NotificationSent: true}
}

var emailPattern = regexp.MustCompile(`^(.{1,2})[^@]*(@.+)$`)

// MaskEmail renders an email as its first two characters, asterisks, then
// the domain — e.g. "jo***@example.com" for "john@example.com" (§4.7
// example).
func MaskEmail(email string) string {
	match := emailPattern.FindStringSubmatch(email)
	if match == nil {
		return email
	}
	return match[1] + "***" + match[2]
}

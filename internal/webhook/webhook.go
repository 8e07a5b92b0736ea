// Package webhook implements the payment webhook intake and the
// operator-facing fulfillment trigger (§6): the two HTTP entry points that
// sit in front of the Fulfillment Service rather than the admin surface.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/haneulsim/esimcore/internal/httpserver"
	"github.com/haneulsim/esimcore/pkg/cascade"
	"github.com/haneulsim/esimcore/pkg/fulfillment"
	"github.com/haneulsim/esimcore/pkg/order"
)

// PaymentPayload is the order payload the payment processor posts on a
// payment_received event (§1, §6).
type PaymentPayload struct {
	ExternalOrderID   string         `json:"external_order_id"`
	SalesChannel      string         `json:"sales_channel"`
	Status            string         `json:"status"`
	ExternalProductID string         `json:"external_product_id"`
	Quantity          int            `json:"quantity"`
	Amount            float64        `json:"amount"`
	Currency          string         `json:"currency"`
	Orderer           ordererPayload `json:"orderer"`
	Metadata          map[string]any `json:"metadata"`
}

type ordererPayload struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	SafeNumber string `json:"safe_number"`
	Tel        string `json:"tel"`
}

// Handler wires the payment webhook and fulfillment-trigger endpoints to
// the order repository, normalizer, and Fulfillment Service.
type Handler struct {
	logger        *slog.Logger
	repo          *order.Repository
	mapper        order.ProductMapper
	service       *fulfillment.Service
	providers     func() []cascade.ProviderConfig
	budget        time.Duration
	paymentSecret string
}

// New creates a webhook Handler. providers is resolved lazily (a func, not
// a slice) so the cascade always sees each provider's live active/priority
// config rather than a snapshot taken at startup.
func New(logger *slog.Logger, repo *order.Repository, mapper order.ProductMapper, service *fulfillment.Service, providers func() []cascade.ProviderConfig, budget time.Duration, paymentSecret string) *Handler {
	return &Handler{
		logger:        logger,
		repo:          repo,
		mapper:        mapper,
		service:       service,
		providers:     providers,
		budget:        budget,
		paymentSecret: paymentSecret,
	}
}

// Routes mounts the webhook/fulfillment-trigger routes. These sit outside
// /admin and are not bearer-protected: the payment webhook authenticates
// via its own HMAC signature, and /orders/{id}/fulfill is an internal
// trigger invoked right after webhook intake (§6).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/webhooks/payment", h.handlePaymentWebhook)
	r.Post("/orders/{id}/fulfill", h.handleFulfill)
	return r
}

func (h *Handler) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return
	}

	if !h.verifySignature(body, r.Header.Get("X-Signature")) {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid webhook signature")
		return
	}

	var payload PaymentPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
		return
	}

	ext := order.ExternalOrder{
		ExternalOrderID:   payload.ExternalOrderID,
		SalesChannel:      payload.SalesChannel,
		Status:            payload.Status,
		ExternalProductID: payload.ExternalProductID,
		Quantity:          payload.Quantity,
		Amount:            payload.Amount,
		Currency:          payload.Currency,
		PaidAt:            time.Now().UTC(),
		Orderer: order.Orderer{
			Email:      payload.Orderer.Email,
			Name:       payload.Orderer.Name,
			SafeNumber: payload.Orderer.SafeNumber,
			Tel:        payload.Orderer.Tel,
		},
		Metadata: payload.Metadata,
	}

	if !order.IsEligibleForFulfillment(ext.Status, false) {
		httpserver.Respond(w, http.StatusOK, map[string]any{"accepted": false, "reason": "order not eligible for fulfillment"})
		return
	}

	if existing, err := h.repo.GetByOrderNumber(r.Context(), ext.ExternalOrderID); err == nil {
		httpserver.Respond(w, http.StatusOK, map[string]any{"accepted": true, "order_id": existing.ID, "duplicate": true})
		return
	}

	internal, err := order.Normalize(r.Context(), ext, h.mapper)
	if err != nil {
		h.logger.Error("normalizing webhook order", "error", err, "external_order_id", ext.ExternalOrderID)
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	correlationID := r.Header.Get("X-Correlation-ID")
	o, err := h.repo.Create(r.Context(), correlationID, internal)
	if err != nil {
		h.logger.Error("creating order from webhook", "error", err, "external_order_id", ext.ExternalOrderID)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create order")
		return
	}

	result, sentinel := h.service.FulfillWithTimeout(r.Context(), o, h.providers(), h.budget)
	if sentinel != nil {
		httpserver.Respond(w, http.StatusGatewayTimeout, sentinel)
		return
	}

	httpserver.Respond(w, http.StatusOK, fulfillmentSummary(o.ID, result))
}

func (h *Handler) handleFulfill(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	o, err := h.repo.Get(r.Context(), id)
	if err != nil {
		if err == order.ErrNotFound {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "order not found")
			return
		}
		h.logger.Error("getting order for fulfillment trigger", "error", err, "order_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to get order")
		return
	}
	if o.Status != order.StatusPaymentReceived {
		httpserver.RespondError(w, http.StatusConflict, "invalid_state", "order is not in payment_received")
		return
	}

	result, sentinel := h.service.FulfillWithTimeout(r.Context(), o, h.providers(), h.budget)
	if sentinel != nil {
		httpserver.Respond(w, http.StatusGatewayTimeout, sentinel)
		return
	}

	httpserver.Respond(w, http.StatusOK, fulfillmentSummary(o.ID, result))
}

func fulfillmentSummary(orderID string, result fulfillment.Result) map[string]any {
	return map[string]any{
		"order_id":          orderID,
		"final_state":       result.FinalState,
		"success":           result.Success,
		"provider_used":     result.ProviderUsed,
		"email_sent":        result.EmailSent,
		"attempts":          result.Attempts,
		"total_duration_ms": result.TotalDurationMs,
	}
}

// verifySignature checks the HMAC-SHA256 signature the payment processor
// attaches to the raw webhook body, the same constant-time-compare pattern
// as pkg/inquirychannel's channel webhook verifiers.
func (h *Handler) verifySignature(body []byte, signatureHex string) bool {
	if h.paymentSecret == "" {
		return true // verification disabled in dev mode
	}
	mac := hmac.New(sha256.New, []byte(h.paymentSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signatureHex)) == 1
}

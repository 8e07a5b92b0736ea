package order

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haneulsim/esimcore/internal/httpserver"
	"github.com/haneulsim/esimcore/pkg/provider"
)

// EmailResender is the subset of fulfillment.EmailPort the handler needs to
// support the resend-email action, kept narrow to avoid an import cycle
// back into pkg/fulfillment.
type EmailResender interface {
	SendDeliveryEmail(ctx context.Context, o Order) (messageID string, err error)
}

// ManualFulfillmentRequest is the PATCH /admin/orders/{id} body: an operator
// entering an eSIM artifact by hand after every provider in the cascade was
// exhausted (§4.7/§4.8).
type ManualFulfillmentRequest struct {
	ICCID          string `json:"iccid" validate:"required"`
	ActivationCode string `json:"activation_code" validate:"required"`
	QRCodeURL      string `json:"qr_code_url"`
}

// Handler exposes the admin order-lookup and manual-fulfillment HTTP surface.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
	email  EmailResender
}

// NewHandler creates a Handler over the given order repository.
func NewHandler(logger *slog.Logger, repo *Repository, email EmailResender) *Handler {
	return &Handler{logger: logger, repo: repo, email: email}
}

// Routes returns a chi.Router with the admin order routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handleManualFulfillment)
	r.Post("/{id}/resend-email", h.handleResendEmail)
	return r
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, id, "getting order", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, o)
}

func (h *Handler) handleManualFulfillment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ManualFulfillmentRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	qrCodeURL := req.QRCodeURL
	if qrCodeURL == "" {
		qrCodeURL = provider.SynthesizeQRURL(req.ActivationCode)
	}

	o, err := h.repo.ApplyManualFulfillment(r.Context(), id, req.ICCID, req.ActivationCode, qrCodeURL)
	if err != nil {
		h.respondLookupError(w, id, "applying manual fulfillment", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, o)
}

func (h *Handler) handleResendEmail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	o, err := h.repo.Get(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, id, "getting order for resend", err)
		return
	}
	if !o.ArtifactComplete() {
		httpserver.RespondError(w, http.StatusConflict, "artifact_incomplete", "order has no eSIM artifact to email yet")
		return
	}
	if h.email == nil {
		httpserver.RespondError(w, http.StatusServiceUnavailable, "email_unconfigured", "email delivery is not configured")
		return
	}

	messageID, err := h.email.SendDeliveryEmail(r.Context(), o)
	if err != nil {
		h.logger.Error("resending delivery email", "error", err, "order_id", id)
		httpserver.RespondError(w, http.StatusBadGateway, "email_error", err.Error())
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"message_id": messageID})
}

func (h *Handler) respondLookupError(w http.ResponseWriter, id, action string, err error) {
	if err == ErrNotFound {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	h.logger.Error(action, "error", err, "order_id", id)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to process order")
}

package inquiry

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haneulsim/esimcore/internal/httpserver"
)

// Handler exposes the admin inquiry HTTP surface (§4.11).
type Handler struct {
	logger *slog.Logger
	svc    *Service
}

// NewHandler creates a Handler over the given Service.
func NewHandler(logger *slog.Logger, svc *Service) *Handler {
	return &Handler{logger: logger, svc: svc}
}

// Routes returns a chi.Router with the admin inquiry routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Get("/metrics", h.handleMetrics)
	r.Get("/channel-health", h.handleChannelHealth)
	r.Post("/sync", h.handleSync)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handleUpdate)
	r.Get("/{id}/messages", h.handleGetMessages)
	r.Post("/{id}/reply", h.handleReply)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	pageParams, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	f := parseFilter(r, pageParams)
	page, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.logger.Error("listing inquiries", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list inquiries")
		return
	}
	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(page.Inquiries, pageParams, page.Total))
}

func parseFilter(r *http.Request, pageParams httpserver.OffsetParams) Filter {
	q := r.URL.Query()
	f := Filter{
		Channel:  q.Get("channel"),
		Priority: Priority(q.Get("priority")),
		Assignee: q.Get("assigned_to"),
		Search:   q.Get("q"),
		Sort:     q.Get("sort"),
		Desc:     q.Get("order") == "desc",
		Limit:    pageParams.PageSize,
		Offset:   pageParams.Offset,
	}
	if status := q.Get("status"); status != "" {
		f.Statuses = []Status{Status(status)}
	}
	return f
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	inq, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, id, "getting inquiry", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, inq)
}

// updateRequest is the PATCH /{id} body: every field optional, only the
// fields present are applied (§4.11's UpdatePatch).
type updateRequest struct {
	Status        *string `json:"status" validate:"omitempty,oneof=new in_progress resolved"`
	Priority      *string `json:"priority" validate:"omitempty,oneof=low normal high urgent"`
	AssignedTo    *string `json:"assigned_to"`
	LinkedOrderID *string `json:"linked_order_id"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	patch := UpdatePatch{AssignedTo: req.AssignedTo, LinkedOrderID: req.LinkedOrderID}
	if req.Status != nil {
		status := Status(*req.Status)
		patch.Status = &status
	}
	if req.Priority != nil {
		priority := Priority(*req.Priority)
		patch.Priority = &priority
	}

	inq, err := h.svc.Update(r.Context(), id, patch)
	if err != nil {
		h.respondLookupError(w, id, "updating inquiry", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, inq)
}

func (h *Handler) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	messages, err := h.svc.GetMessages(r.Context(), id)
	if err != nil {
		h.logger.Error("listing inquiry messages", "error", err, "inquiry_id", id)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to list messages")
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"messages": messages})
}

type replyRequest struct {
	Content   string `json:"content" validate:"required"`
	AgentName string `json:"agent_name" validate:"required"`
}

func (h *Handler) handleReply(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req replyRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	msg, err := h.svc.SendReply(r.Context(), id, req.Content, req.AgentName)
	if err != nil {
		if err == ErrNotFound {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "inquiry not found")
			return
		}
		h.logger.Error("sending inquiry reply", "error", err, "inquiry_id", id)
		httpserver.RespondError(w, http.StatusBadGateway, "channel_error", err.Error())
		return
	}
	httpserver.Respond(w, http.StatusOK, msg)
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	result := h.svc.SyncFromAllChannels(r.Context())
	httpserver.Respond(w, http.StatusOK, map[string]any{
		"synced": result.Synced,
		"errors": result.Errors,
	})
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.svc.Metrics(r.Context())
	if err != nil {
		h.logger.Error("computing inquiry metrics", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to compute metrics")
		return
	}
	httpserver.Respond(w, http.StatusOK, metrics)
}

func (h *Handler) handleChannelHealth(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, map[string]any{"channels": h.svc.ChannelHealth(r.Context())})
}

func (h *Handler) respondLookupError(w http.ResponseWriter, id, action string, err error) {
	if err == ErrNotFound {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "inquiry not found")
		return
	}
	h.logger.Error(action, "error", err, "inquiry_id", id)
	httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to process inquiry")
}

package webhook

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haneulsim/esimcore/internal/httpserver"
	"github.com/haneulsim/esimcore/pkg/inquiry"
)

// ChannelVerifier is the narrow slice of an inquiry channel adapter needed
// to authenticate an inbound push (§6: "TalkTalk/Kakao: channel-specific
// push; signature verification identical pattern" to the payment webhook).
type ChannelVerifier interface {
	VerifyWebhook(body []byte, signatureHex string) bool
}

// ChannelHandler receives inbound pushes from inquiry channels that support
// webhook delivery (TalkTalk, Kakao) and triggers a sync of every enabled
// channel rather than parsing the push body itself — the channel adapters'
// own FetchInquiries/FetchMessages calls remain the single source of truth
// for inquiry content, matching how pkg/inquiry.Service.SyncFromAllChannels
// already ingests these adapters.
type ChannelHandler struct {
	logger    *slog.Logger
	service   *inquiry.Service
	verifiers map[string]ChannelVerifier
}

// NewChannelHandler creates a ChannelHandler. verifiers maps a channel slug
// (e.g. "talktalk", "kakao") to the adapter instance that authenticates its
// pushes.
func NewChannelHandler(logger *slog.Logger, service *inquiry.Service, verifiers map[string]ChannelVerifier) *ChannelHandler {
	return &ChannelHandler{logger: logger, service: service, verifiers: verifiers}
}

// Routes mounts the channel webhook intake.
func (h *ChannelHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/webhooks/channel/{slug}", h.handleChannelWebhook)
	return r
}

func (h *ChannelHandler) handleChannelWebhook(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	verifier, ok := h.verifiers[slug]
	if !ok {
		httpserver.RespondError(w, http.StatusNotFound, "unknown_channel", "no webhook-capable channel registered for "+slug)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "could not read request body")
		return
	}

	if !verifier.VerifyWebhook(body, r.Header.Get("X-Signature")) {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid webhook signature")
		return
	}

	// The push itself only signals that new activity exists; fetch the
	// actual content through the adapter's own polling path so a single
	// sync implementation stays the source of truth for inquiry content.
	result := h.service.SyncFromAllChannels(r.Context())
	if len(result.Errors) > 0 {
		h.logger.Warn("channel webhook triggered sync had errors", "channel", slug, "errors", len(result.Errors))
	}

	httpserver.Respond(w, http.StatusAccepted, map[string]any{"accepted": true, "synced": result.Synced})
}

package inquiry

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/haneulsim/esimcore/internal/store"
	"github.com/haneulsim/esimcore/pkg/channel"
)

func newTestHandler(t *testing.T) (*Handler, *Service) {
	t.Helper()
	mem := store.NewMemoryStore()
	registry := channel.NewInquiryChannelRegistry()
	svc := NewService(mem.Collection(InquiriesCollection), mem.Collection(MessagesCollection), registry)
	return NewHandler(slog.Default(), svc), svc
}

func TestHandleGetReturnsNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	r := chi.NewRouter()
	r.Mount("/admin/inquiries", h.Routes())

	req := httptest.NewRequest(http.MethodGet, "/admin/inquiries/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleListAndUpdate(t *testing.T) {
	h, svc := newTestHandler(t)
	created, err := svc.Create(context.Background(), "email", channel.ExternalInquiry{
		ExternalID: "ext-1", Subject: "Help", Email: "a@example.com", Content: "I need help",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := chi.NewRouter()
	r.Mount("/admin/inquiries", h.Routes())

	listReq := httptest.NewRequest(http.MethodGet, "/admin/inquiries/", nil)
	listRec := httptest.NewRecorder()
	r.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing inquiries, got %d: %s", listRec.Code, listRec.Body.String())
	}

	body, _ := json.Marshal(map[string]string{"status": "in_progress"})
	patchReq := httptest.NewRequest(http.MethodPatch, "/admin/inquiries/"+created.ID, strings.NewReader(string(body)))
	patchReq.Header.Set("Content-Type", "application/json")
	patchRec := httptest.NewRecorder()
	r.ServeHTTP(patchRec, patchReq)
	if patchRec.Code != http.StatusOK {
		t.Fatalf("expected 200 updating inquiry, got %d: %s", patchRec.Code, patchRec.Body.String())
	}

	fetched, err := svc.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched.Status != StatusInProgress {
		t.Fatalf("expected status in_progress, got %q", fetched.Status)
	}
}

func TestHandleMetricsAndChannelHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	r := chi.NewRouter()
	r.Mount("/admin/inquiries", h.Routes())

	metricsReq := httptest.NewRequest(http.MethodGet, "/admin/inquiries/metrics", nil)
	metricsRec := httptest.NewRecorder()
	r.ServeHTTP(metricsRec, metricsReq)
	if metricsRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for metrics, got %d: %s", metricsRec.Code, metricsRec.Body.String())
	}

	healthReq := httptest.NewRequest(http.MethodGet, "/admin/inquiries/channel-health", nil)
	healthRec := httptest.NewRecorder()
	r.ServeHTTP(healthRec, healthReq)
	if healthRec.Code != http.StatusOK {
		t.Fatalf("expected 200 for channel-health, got %d: %s", healthRec.Code, healthRec.Body.String())
	}
}

package manual

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/haneulsim/esimcore/pkg/errtax"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"john@example.com": "jo***@example.com",
		"ab@example.com":   "ab***@example.com",
		"a@example.com":    "a***@example.com",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Errorf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNotifyDisabledReturnsNonRetryableFailure(t *testing.T) {
	n := NewNotifier("", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	outcome := n.Notify(context.Background(), Request{OrderID: "ord_1"})
	if outcome.PendingManual {
		t.Fatalf("expected pending_manual=false when disabled")
	}
	if outcome.Err == nil {
		t.Fatalf("expected an error when webhook is unconfigured")
	}
	if classified, ok := outcome.Err.(errtax.Classified); !ok || classified.IsRetryable() {
		t.Fatalf("expected a non-retryable classified error, got %#v", outcome.Err)
	}
}

func TestNotifySuccessSendsStructuredPayload(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	outcome := n.Notify(context.Background(), Request{
		OrderID:                 "ord_2",
		CorrelationID:           "corr-2",
		CustomerEmail:           "john@example.com",
		ProductName:             "eSIM Japan 5GB",
		AttemptedProviders:      []string{"airalo", "esimcard"},
		AggregatedFailureReason: "all providers failed",
	})

	if !outcome.PendingManual || !outcome.NotificationSent {
		t.Fatalf("expected pending_manual success, got %+v", outcome)
	}
	if len(gotBody) == 0 {
		t.Fatalf("expected a request body to be sent to discord")
	}
}

func TestNotifyHTTPFailureIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	outcome := n.Notify(context.Background(), Request{OrderID: "ord_3"})
	if outcome.PendingManual {
		t.Fatalf("expected failure, got pending_manual success")
	}
	if outcome.Err == nil {
		t.Fatalf("expected an error for 5xx discord response")
	}
	if classified, ok := outcome.Err.(errtax.Classified); !ok || !classified.IsRetryable() {
		t.Fatalf("expected a retryable classified error for 5xx, got %#v", outcome.Err)
	}
}

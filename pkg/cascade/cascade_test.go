package cascade

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/haneulsim/esimcore/internal/store"
	"github.com/haneulsim/esimcore/pkg/breaker"
	"github.com/haneulsim/esimcore/pkg/channel"
	"github.com/haneulsim/esimcore/pkg/errtax"
)

type stubAdapter struct {
	slug    string
	enabled bool
	results []channel.PurchaseResult
	calls   int
}

func (s *stubAdapter) Slug() string        { return s.slug }
func (s *stubAdapter) DisplayName() string { return s.slug }
func (s *stubAdapter) IsEnabled() bool     { return s.enabled }
func (s *stubAdapter) HealthCheck(ctx context.Context) (bool, string) { return true, "" }

func (s *stubAdapter) Purchase(ctx context.Context, req channel.PurchaseRequest) channel.PurchaseResult {
	r := s.results[s.calls]
	if s.calls < len(s.results)-1 {
		s.calls++
	}
	return r
}

func newTestBreaker() *breaker.Store {
	mem := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return breaker.New(mem.Collection(breaker.CollectionName), nil, logger)
}

func TestCascadeSucceedsOnFirstProvider(t *testing.T) {
	ctx := context.Background()
	br := newTestBreaker()

	adapter := &stubAdapter{slug: "airalo", enabled: true, results: []channel.PurchaseResult{
		{Outcome: channel.PurchaseOK, Artifact: channel.ESIMArtifact{ICCID: "8944"}},
	}}
	providers := []ProviderConfig{{Slug: "airalo", Priority: 10, Active: true, Adapter: adapter, MaxRetries: 2}}

	result := Run(ctx, br, providers, channel.PurchaseRequest{OrderID: "ord_1"})
	if !result.Success || result.ProviderUsed != "airalo" {
		t.Fatalf("expected success on airalo, got %+v", result)
	}
	if result.Artifact.ICCID != "8944" {
		t.Fatalf("expected artifact to be carried through, got %+v", result.Artifact)
	}
}

func TestCascadeFailsOverToNextProvider(t *testing.T) {
	ctx := context.Background()
	br := newTestBreaker()

	failing := &stubAdapter{slug: "airalo", enabled: true, results: []channel.PurchaseResult{
		{Outcome: channel.PurchaseFailure, Err: errors.New("boom")},
	}}
	succeeding := &stubAdapter{slug: "esimcard", enabled: true, results: []channel.PurchaseResult{
		{Outcome: channel.PurchaseOK, Artifact: channel.ESIMArtifact{ICCID: "1234"}},
	}}
	providers := []ProviderConfig{
		{Slug: "airalo", Priority: 20, Active: true, Adapter: failing, MaxRetries: 0},
		{Slug: "esimcard", Priority: 10, Active: true, Adapter: succeeding, MaxRetries: 0},
	}

	result := Run(ctx, br, providers, channel.PurchaseRequest{OrderID: "ord_2"})
	if !result.Success || result.ProviderUsed != "esimcard" {
		t.Fatalf("expected failover success on esimcard, got %+v", result)
	}
	if len(result.FailoverEvents) != 1 || result.FailoverEvents[0].From != "airalo" || result.FailoverEvents[0].To != "esimcard" {
		t.Fatalf("expected one failover event airalo->esimcard, got %+v", result.FailoverEvents)
	}
	if len(result.AttemptedProviders) != 2 {
		t.Fatalf("expected both providers attempted, got %v", result.AttemptedProviders)
	}
}

func TestCascadeAbortsEarlyOnNonRetryableClassifiedFailure(t *testing.T) {
	ctx := context.Background()
	br := newTestBreaker()

	nonRetryable := &stubAdapter{slug: "airalo", enabled: true, results: []channel.PurchaseResult{
		{Outcome: channel.PurchaseFailure, Err: errtax.ProviderError("invalid sku", false)},
	}}
	providers := []ProviderConfig{{Slug: "airalo", Priority: 10, Active: true, Adapter: nonRetryable, MaxRetries: 3}}

	result := Run(ctx, br, providers, channel.PurchaseRequest{OrderID: "ord_5"})
	if result.Success {
		t.Fatalf("expected failure, got success")
	}
	if nonRetryable.calls != 0 {
		t.Fatalf("expected a non-retryable classified failure to abort after the first attempt, got %d calls", nonRetryable.calls+1)
	}
	if len(result.Attempts) != 1 {
		t.Fatalf("expected exactly one attempt record, got %d", len(result.Attempts))
	}
	attempt := result.Attempts[0]
	if attempt.RetryCount != 0 {
		t.Fatalf("expected zero retries on a non-retryable failure despite MaxRetries budget, got %d", attempt.RetryCount)
	}
	if attempt.ErrorType != string(errtax.KindProviderError) {
		t.Fatalf("expected ErrorType %q to carry the adapter's real classification, got %q", errtax.KindProviderError, attempt.ErrorType)
	}
}

func TestCascadeExhaustionAggregatesFailureReasons(t *testing.T) {
	ctx := context.Background()
	br := newTestBreaker()

	a := &stubAdapter{slug: "airalo", enabled: true, results: []channel.PurchaseResult{
		{Outcome: channel.PurchaseFailure, Err: errors.New("a-down")},
	}}
	b := &stubAdapter{slug: "esimcard", enabled: true, results: []channel.PurchaseResult{
		{Outcome: channel.PurchaseFailure, Err: errors.New("b-down")},
	}}
	providers := []ProviderConfig{
		{Slug: "airalo", Priority: 20, Active: true, Adapter: a, MaxRetries: 0},
		{Slug: "esimcard", Priority: 10, Active: true, Adapter: b, MaxRetries: 0},
	}

	result := Run(ctx, br, providers, channel.PurchaseRequest{OrderID: "ord_3"})
	if result.Success {
		t.Fatalf("expected exhaustion failure, got success")
	}
	if len(result.FailureReasons) != 2 {
		t.Fatalf("expected two failure reasons, got %+v", result.FailureReasons)
	}
	if len(result.AttemptedProviders) != 2 || result.AttemptedProviders[0] != "airalo" || result.AttemptedProviders[1] != "esimcard" {
		t.Fatalf("expected attempted providers in priority order, got %v", result.AttemptedProviders)
	}
}

func TestCascadeSkipsInactiveProviders(t *testing.T) {
	ctx := context.Background()
	br := newTestBreaker()

	inactive := &stubAdapter{slug: "mobimatter", enabled: true}
	active := &stubAdapter{slug: "redteago", enabled: true, results: []channel.PurchaseResult{
		{Outcome: channel.PurchaseOK, Artifact: channel.ESIMArtifact{ICCID: "555"}},
	}}
	providers := []ProviderConfig{
		{Slug: "mobimatter", Priority: 30, Active: false, Adapter: inactive},
		{Slug: "redteago", Priority: 10, Active: true, Adapter: active, MaxRetries: 0},
	}

	result := Run(ctx, br, providers, channel.PurchaseRequest{OrderID: "ord_4"})
	if !result.Success || result.ProviderUsed != "redteago" {
		t.Fatalf("expected redteago to be used, got %+v", result)
	}
	for _, p := range result.AttemptedProviders {
		if p == "mobimatter" {
			t.Fatalf("inactive provider must never be attempted, got %v", result.AttemptedProviders)
		}
	}
}

package breaker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/haneulsim/esimcore/internal/store"
)

func newTestStore() *Store {
	mem := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(mem.Collection(CollectionName), nil, logger)
}

func TestClosedToOpenOnFailureThreshold(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	for i := 0; i < failureThreshold-1; i++ {
		s.RecordFailure(ctx, "airalo")
		if got := s.Get(ctx, "airalo").Phase; got != PhaseClosed {
			t.Fatalf("attempt %d: expected closed, got %s", i, got)
		}
	}
	s.RecordFailure(ctx, "airalo")
	if got := s.Get(ctx, "airalo").Phase; got != PhaseOpen {
		t.Fatalf("expected open after %d consecutive failures, got %s", failureThreshold, got)
	}
}

func TestOpenPromotesToHalfOpenAfterResetTimeout(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	for i := 0; i < failureThreshold; i++ {
		s.RecordFailure(ctx, "esimcard")
	}
	if got := s.Get(ctx, "esimcard").Phase; got != PhaseOpen {
		t.Fatalf("expected open, got %s", got)
	}

	s.mu.Lock()
	st := s.fallback["esimcard"]
	st.LastFailureTime = time.Now().Add(-resetTimeout - time.Second)
	s.fallback["esimcard"] = st
	s.mu.Unlock()

	if got := s.Get(ctx, "esimcard").Phase; got != PhaseHalfOpen {
		t.Fatalf("expected half_open after reset timeout, got %s", got)
	}
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	for i := 0; i < failureThreshold; i++ {
		s.RecordFailure(ctx, "mobimatter")
	}
	s.mu.Lock()
	st := s.fallback["mobimatter"]
	st.LastFailureTime = time.Now().Add(-resetTimeout - time.Second)
	s.fallback["mobimatter"] = st
	s.mu.Unlock()

	for i := 0; i < successThreshold-1; i++ {
		s.RecordSuccess(ctx, "mobimatter")
		if got := s.Get(ctx, "mobimatter").Phase; got != PhaseHalfOpen {
			t.Fatalf("attempt %d: expected half_open, got %s", i, got)
		}
	}
	s.RecordSuccess(ctx, "mobimatter")
	if got := s.Get(ctx, "mobimatter").Phase; got != PhaseClosed {
		t.Fatalf("expected closed after %d consecutive successes, got %s", successThreshold, got)
	}
}

func TestHalfOpenReopensOnSingleFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	for i := 0; i < failureThreshold; i++ {
		s.RecordFailure(ctx, "redteago")
	}
	s.mu.Lock()
	st := s.fallback["redteago"]
	st.LastFailureTime = time.Now().Add(-resetTimeout - time.Second)
	s.fallback["redteago"] = st
	s.mu.Unlock()

	s.Get(ctx, "redteago") // triggers promotion to half_open
	s.RecordFailure(ctx, "redteago")

	if got := s.Get(ctx, "redteago").Phase; got != PhaseOpen {
		t.Fatalf("expected open after single half_open failure, got %s", got)
	}
}

func TestFilterExcludesOpenProviders(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	for i := 0; i < failureThreshold; i++ {
		s.RecordFailure(ctx, "airalo")
	}

	providers := []ProviderIdentity{stubProvider("airalo"), stubProvider("esimcard")}
	filtered := s.Filter(ctx, providers)
	if len(filtered) != 1 || filtered[0].Slug() != "esimcard" {
		t.Fatalf("expected only esimcard to survive filtering, got %+v", filtered)
	}
}

type stubProvider string

func (s stubProvider) Slug() string { return string(s) }

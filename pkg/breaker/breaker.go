// Package breaker implements the per-provider circuit breaker store (§4.5,
// §3 Circuit Breaker State). State is persisted in the shared document
// store, fronted by a 5-second Redis TTL cache and an in-memory fallback
// map, following the teacher's Redis-hot-path/DB-fallback dedup
// discipline (pkg/alert/dedup.go).
package breaker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/haneulsim/esimcore/internal/store"
)

// Phase is the circuit breaker's closed state set (§3).
type Phase string

const (
	PhaseClosed   Phase = "closed"
	PhaseOpen     Phase = "open"
	PhaseHalfOpen Phase = "half_open"
)

const (
	failureThreshold = 5
	resetTimeout     = 30 * time.Second
	successThreshold = 2

	cacheTTL             = 5 * time.Second
	redisKeyPrefix       = "esimcore:breaker:"
	dbUnavailableBackoff = 30 * time.Second
)

// CollectionName is the document store collection this package persists to.
const CollectionName = "circuit_breaker_states"

// State is one provider's circuit breaker record.
type State struct {
	Slug                 string    `json:"slug"`
	Phase                Phase     `json:"phase"`
	ConsecutiveFailures  int       `json:"consecutive_failure_count"`
	ConsecutiveSuccesses int       `json:"consecutive_success_count"`
	LastFailureTime      time.Time `json:"last_failure_time"`
	LastStateChange      time.Time `json:"last_state_change"`
}

func newState(slug string) State {
	now := time.Now()
	return State{Slug: slug, Phase: PhaseClosed, LastStateChange: now}
}

// Store evaluates and persists circuit breaker state transitions for every
// provider slug.
type Store struct {
	docs   store.Collection
	rdb    *redis.Client
	logger *slog.Logger

	mu          sync.Mutex
	fallback    map[string]State
	fallbackAt  map[string]time.Time

	dbMu            sync.Mutex
	dbUnavailable   bool
	dbUnavailableAt time.Time
}

// New creates a breaker Store. rdb may be nil, in which case the cache tier
// is skipped and reads go straight to the fallback/document store.
func New(docs store.Collection, rdb *redis.Client, logger *slog.Logger) *Store {
	return &Store{
		docs:       docs,
		rdb:        rdb,
		logger:     logger,
		fallback:   make(map[string]State),
		fallbackAt: make(map[string]time.Time),
	}
}

func cacheKey(slug string) string { return redisKeyPrefix + slug }

// Get returns the current breaker state for slug, applying any pending
// open→half_open promotion (§3, §4.5).
func (s *Store) Get(ctx context.Context, slug string) State {
	st := s.read(ctx, slug)
	return s.promoteIfDue(st)
}

// read consults the process-local cache (a short-lived mirror of this
// process's own last write), then the Redis TTL cache, then the document
// store, falling back to the in-memory map on store error — the three
// tiers named in §4.5.
func (s *Store) read(ctx context.Context, slug string) State {
	if st, ok := s.readLocalCache(slug); ok {
		return st
	}

	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, cacheKey(slug)).Result(); err == nil {
			var st State
			if jsonErr := json.Unmarshal([]byte(raw), &st); jsonErr == nil {
				return st
			}
		} else if err != redis.Nil {
			s.logger.Warn("breaker cache read failed", "slug", slug, "error", err)
		}
	}

	if s.shouldSkipDB() {
		return s.readFallback(slug)
	}

	st, err := s.readStore(ctx, slug)
	if err != nil {
		s.markDBUnavailable()
		s.logger.Warn("breaker store read failed, using fallback", "slug", slug, "error", err)
		return s.readFallback(slug)
	}
	s.clearDBUnavailable()
	s.writeCache(ctx, st)
	s.writeFallback(st)
	return st
}

// readLocalCache returns this process's own last-written state for slug if
// it is still within the TTL window, avoiding an unnecessary round trip to
// Redis/the store for the common case of back-to-back reads right after a
// local write (e.g. a cascade re-checking Filter() immediately after
// recording an outcome, before the async persistence goroutine lands).
func (s *Store) readLocalCache(slug string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.fallbackAt[slug]
	if !ok || time.Since(at) >= cacheTTL {
		return State{}, false
	}
	return s.fallback[slug], true
}

func (s *Store) readStore(ctx context.Context, slug string) (State, error) {
	rec, err := s.docs.FindOne(ctx, store.Eq("slug", slug))
	if err != nil {
		if err == store.ErrNotFound {
			return newState(slug), nil
		}
		return State{}, err
	}
	return decodeState(rec)
}

func (s *Store) readFallback(slug string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.fallback[slug]; ok {
		return st
	}
	return newState(slug)
}

func (s *Store) writeFallback(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback[st.Slug] = st
	s.fallbackAt[st.Slug] = time.Now()
}

func (s *Store) writeCache(ctx context.Context, st State) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, cacheKey(st.Slug), raw, cacheTTL).Err(); err != nil {
		s.logger.Warn("breaker cache write failed", "slug", st.Slug, "error", err)
	}
}

func (s *Store) shouldSkipDB() bool {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if !s.dbUnavailable {
		return false
	}
	if time.Since(s.dbUnavailableAt) >= dbUnavailableBackoff {
		return false
	}
	return true
}

func (s *Store) markDBUnavailable() {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	s.dbUnavailable = true
	s.dbUnavailableAt = time.Now()
}

func (s *Store) clearDBUnavailable() {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	s.dbUnavailable = false
}

// promoteIfDue applies the open→half_open transition when reset_timeout has
// elapsed since the last failure; this happens on every read (§3).
func (s *Store) promoteIfDue(st State) State {
	if st.Phase == PhaseOpen && time.Since(st.LastFailureTime) >= resetTimeout {
		st.Phase = PhaseHalfOpen
		st.ConsecutiveSuccesses = 0
		st.LastStateChange = time.Now()
	}
	return st
}

// RecordSuccess applies a successful purchase outcome to slug's breaker
// state and persists it (§3, §4.5 write discipline).
func (s *Store) RecordSuccess(ctx context.Context, slug string) {
	st := s.promoteIfDue(s.read(ctx, slug))
	st.ConsecutiveFailures = 0
	st.ConsecutiveSuccesses++
	if st.Phase == PhaseHalfOpen && st.ConsecutiveSuccesses >= successThreshold {
		st.Phase = PhaseClosed
		st.LastStateChange = time.Now()
	}
	s.persist(ctx, st)
}

// RecordFailure applies a failed purchase outcome to slug's breaker state
// and persists it (§3, §4.5 write discipline).
func (s *Store) RecordFailure(ctx context.Context, slug string) {
	st := s.promoteIfDue(s.read(ctx, slug))
	st.ConsecutiveSuccesses = 0
	st.ConsecutiveFailures++
	st.LastFailureTime = time.Now()

	switch st.Phase {
	case PhaseHalfOpen:
		st.Phase = PhaseOpen
		st.LastStateChange = time.Now()
	case PhaseClosed:
		if st.ConsecutiveFailures >= failureThreshold {
			st.Phase = PhaseOpen
			st.LastStateChange = time.Now()
		}
	}
	s.persist(ctx, st)
}

// persist updates the cache and in-memory fallback synchronously, then
// enqueues a non-blocking document-store write; persistence failures never
// block the calling purchase (§4.5).
func (s *Store) persist(ctx context.Context, st State) {
	s.writeFallback(st)
	s.writeCache(ctx, st)

	go func() {
		bg := context.Background()
		if err := s.upsert(bg, st); err != nil {
			s.logger.Warn("breaker persistence failed", "slug", st.Slug, "error", err)
		}
	}()
}

func (s *Store) upsert(ctx context.Context, st State) error {
	existing, err := s.docs.FindOne(ctx, store.Eq("slug", st.Slug))
	fields := encodeState(st)
	if err == store.ErrNotFound {
		_, createErr := s.docs.Create(ctx, fields)
		return createErr
	}
	if err != nil {
		return err
	}
	id, _ := existing["id"].(string)
	_, err = s.docs.Update(ctx, id, fields)
	return err
}

func encodeState(st State) store.Record {
	return store.Record{
		"slug":                      st.Slug,
		"phase":                     string(st.Phase),
		"consecutive_failure_count": st.ConsecutiveFailures,
		"consecutive_success_count": st.ConsecutiveSuccesses,
		"last_failure_time":         st.LastFailureTime,
		"last_state_change":         st.LastStateChange,
	}
}

func decodeState(rec store.Record) (State, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("decoding breaker state: %w", err)
	}
	return st, nil
}

// ProviderIdentity is the subset of channel.Provider a cascade needs to
// filter and sort by.
type ProviderIdentity interface {
	Slug() string
}

// Filter returns the subset of providers whose breaker phase is not open,
// promoting any due open→half_open transitions in the process (§4.5).
func (s *Store) Filter(ctx context.Context, providers []ProviderIdentity) []ProviderIdentity {
	out := make([]ProviderIdentity, 0, len(providers))
	for _, p := range providers {
		if s.Get(ctx, p.Slug()).Phase != PhaseOpen {
			out = append(out, p)
		}
	}
	return out
}

// SortBySlug is a stable lexicographic tie-break helper, exposed so callers
// building provider lists elsewhere can reuse the same tie-break rule
// (§3 Provider Config invariant).
func SortBySlug(slugs []string) {
	sort.Strings(slugs)
}

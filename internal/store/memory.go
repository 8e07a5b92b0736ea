package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by unit tests and by local
// development without a PocketBase instance.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]*memoryCollection
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

// Ping always succeeds; there is no backing service to check.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Collection(name string) Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{records: make(map[string]Record)}
		s.collections[name] = c
	}
	return c
}

type memoryCollection struct {
	mu      sync.Mutex
	records map[string]Record
}

func (c *memoryCollection) Create(ctx context.Context, rec Record) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := cloneRecord(rec)
	id, _ := out["id"].(string)
	if id == "" {
		id = uuid.NewString()
		out["id"] = id
	}
	if _, exists := c.records[id]; exists {
		return nil, ErrConflict
	}
	c.records[id] = out
	return cloneRecord(out), nil
}

func (c *memoryCollection) Get(ctx context.Context, id string) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (c *memoryCollection) Update(ctx context.Context, id string, patch Record) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	merged := cloneRecord(rec)
	for k, v := range patch {
		merged[k] = v
	}
	c.records[id] = merged
	return cloneRecord(merged), nil
}

func (c *memoryCollection) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.records[id]; !ok {
		return ErrNotFound
	}
	delete(c.records, id)
	return nil
}

func (c *memoryCollection) List(ctx context.Context, opts ListOptions) (Page, error) {
	c.mu.Lock()
	matched := make([]Record, 0, len(c.records))
	for _, rec := range c.records {
		if opts.Filter.IsZero() || opts.Filter.Match(rec) {
			matched = append(matched, cloneRecord(rec))
		}
	}
	c.mu.Unlock()

	sortRecords(matched, opts.Sort)

	total := len(matched)
	start := opts.Offset
	if start > total {
		start = total
	}
	end := total
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}

	return Page{Records: matched[start:end], Total: total}, nil
}

func (c *memoryCollection) FindOne(ctx context.Context, filter Query) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, rec := range c.records {
		if filter.Match(rec) {
			return cloneRecord(rec), nil
		}
	}
	return nil, ErrNotFound
}

func sortRecords(recs []Record, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, f := range fields {
			vi := recs[i][f.Field]
			vj := recs[j][f.Field]
			cmp := compareAny(vi, vj)
			if cmp == 0 {
				continue
			}
			if f.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareAny(a, b any) int {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

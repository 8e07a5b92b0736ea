// Package store models the platform's persistent record store as an opaque
// document collection with filter queries, per spec §6. The real backing
// service is PocketBase (POCKETBASE_* env vars); a second, in-memory
// implementation backs unit tests.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when Get/Update/Delete targets a missing record.
var ErrNotFound = errors.New("store: record not found")

// ErrConflict is returned by Create when a record with the given id already
// exists.
var ErrConflict = errors.New("store: record already exists")

// Record is any JSON-serializable document keyed by an opaque store id.
type Record = map[string]any

// SortField describes one field to sort by, ascending unless Desc is set.
type SortField struct {
	Field string
	Desc  bool
}

// Page is the result of a List call.
type Page struct {
	Records []Record
	Total   int
}

// ListOptions bounds and orders a List call.
type ListOptions struct {
	Filter Query
	Sort   []SortField
	Limit  int
	Offset int
}

// Collection is a document collection — orders, inquiries,
// inquiry_messages, circuit_breaker_states, product_mappings,
// automation_logs all implement this over the same interface.
type Collection interface {
	// Create inserts a new record and returns it with its assigned id.
	Create(ctx context.Context, rec Record) (Record, error)

	// Get fetches a record by id.
	Get(ctx context.Context, id string) (Record, error)

	// Update performs an additive merge of patch into the existing record
	// and persists the result.
	Update(ctx context.Context, id string, patch Record) (Record, error)

	// Delete removes a record by id.
	Delete(ctx context.Context, id string) error

	// List returns records matching opts.Filter, sorted and paginated.
	List(ctx context.Context, opts ListOptions) (Page, error)

	// FindOne returns the first record matching filter, or ErrNotFound.
	FindOne(ctx context.Context, filter Query) (Record, error)
}

// Store groups every named collection the platform persists to (§6).
type Store interface {
	Collection(name string) Collection

	// Ping checks connectivity to the backing service for readiness probes.
	Ping(ctx context.Context) error
}

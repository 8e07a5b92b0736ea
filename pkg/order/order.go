// Package order implements the Order type, its durable state machine
// (§4.8), and the order normalizer (§4.12).
package order

import (
	"context"
	"errors"
	"time"
)

// Status is the closed set of order states in the §3 DAG.
type Status string

const (
	StatusPaymentReceived           Status = "payment_received"
	StatusFulfillmentStarted        Status = "fulfillment_started"
	StatusProviderConfirmed         Status = "provider_confirmed"
	StatusEmailSent                 Status = "email_sent"
	StatusDelivered                 Status = "delivered"
	StatusProviderFailed            Status = "provider_failed"
	StatusPendingManualFulfillment  Status = "pending_manual_fulfillment"
)

// Order is the internal order record (§3 Order).
type Order struct {
	ID                string
	OrderNumber       string
	CorrelationID     string
	CustomerEmail     string
	ProductID         string
	ProviderSKU       string
	Amount            float64
	Currency          string
	Status            Status
	PaymentReference  string
	QRCodeURL         string
	ICCID             string
	ActivationCode    string
	ProviderUsed      string
	ErrorMessage      string
	Metadata          map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ErrInvalidTransition is returned when a requested transition is not in
// the fixed DAG (§3).
var ErrInvalidTransition = errors.New("order: invalid state transition")

// dag enumerates every legal edge. Failure branches are reachable from any
// non-terminal state, expressed here by listing them explicitly for each
// source state rather than special-casing "any" in the checker, so the
// table is the single source of truth Transition consults.
var dag = map[Status][]Status{
	StatusPaymentReceived:    {StatusFulfillmentStarted, StatusProviderFailed, StatusPendingManualFulfillment},
	StatusFulfillmentStarted: {StatusProviderConfirmed, StatusProviderFailed, StatusPendingManualFulfillment},
	StatusProviderConfirmed:  {StatusEmailSent, StatusDelivered, StatusProviderFailed, StatusPendingManualFulfillment},
	StatusEmailSent:          {StatusDelivered, StatusProviderFailed, StatusPendingManualFulfillment},
}

func isTerminal(s Status) bool {
	return s == StatusDelivered || s == StatusProviderFailed || s == StatusPendingManualFulfillment
}

// LoadFunc loads an order's current status and metadata by id.
type LoadFunc func(ctx context.Context, orderID string) (Status, map[string]any, error)

// PersistFunc persists a new status plus an additive metadata merge for an
// order id.
type PersistFunc func(ctx context.Context, orderID string, target Status, metadata map[string]any) error

// Machine is the order state machine (C8): it validates a requested edge
// against the DAG, persists it, and is idempotent under re-application.
type Machine struct {
	Load    LoadFunc
	Persist PersistFunc
}

// NewMachine creates a Machine over the given load/persist hooks.
func NewMachine(load LoadFunc, persist PersistFunc) *Machine {
	return &Machine{Load: load, Persist: persist}
}

// Transition loads the order's current state, validates target against the
// DAG, persists the new state plus an additive metadata merge, and returns
// the new state. A transition to the order's own current state is a no-op
// success (idempotency, §4.8). Persistence failure aborts the transition
// and is propagated unchanged to the caller.
func (m *Machine) Transition(ctx context.Context, orderID string, target Status, metadata map[string]any) (Status, error) {
	current, _, err := m.Load(ctx, orderID)
	if err != nil {
		return "", err
	}

	if current == target {
		return current, nil
	}

	if !isLegalEdge(current, target) {
		return "", ErrInvalidTransition
	}

	if err := m.Persist(ctx, orderID, target, metadata); err != nil {
		return "", err
	}
	return target, nil
}

func isLegalEdge(from, target Status) bool {
	if isTerminal(from) {
		return false
	}
	for _, next := range dag[from] {
		if next == target {
			return true
		}
	}
	return false
}

// ArtifactComplete reports whether o carries every eSIM artifact field
// (§3 invariant: non-empty iff status ∈ {email_sent, delivered}).
func (o Order) ArtifactComplete() bool {
	return o.QRCodeURL != "" && o.ICCID != "" && o.ActivationCode != "" && o.ProviderUsed != ""
}

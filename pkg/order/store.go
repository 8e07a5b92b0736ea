package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haneulsim/esimcore/internal/store"
)

// CollectionName is the document-store collection backing orders (§6).
const CollectionName = "orders"

// ErrNotFound is returned when an order id does not resolve to a record.
var ErrNotFound = errors.New("order: not found")

// Repository is the document-store-backed order repository: it resolves
// orders by id and correlation id for HTTP handlers, and supplies the
// order.Machine's Load/Persist hooks over the same collection.
type Repository struct {
	collection store.Collection
}

// NewRepository creates a Repository over the given orders collection.
func NewRepository(collection store.Collection) *Repository {
	return &Repository{collection: collection}
}

// Get fetches one order by id.
func (r *Repository) Get(ctx context.Context, id string) (Order, error) {
	rec, err := r.collection.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	return decodeOrder(id, rec), nil
}

// GetByOrderNumber fetches an order by its external order number, used to
// make webhook delivery idempotent against at-least-once redelivery.
func (r *Repository) GetByOrderNumber(ctx context.Context, orderNumber string) (Order, error) {
	rec, err := r.collection.FindOne(ctx, store.Eq("order_number", orderNumber))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	id, _ := rec["id"].(string)
	return decodeOrder(id, rec), nil
}

// Create inserts a new order record from an InternalOrder (§4.12's
// normalizer output), seeding it in payment_received.
func (r *Repository) Create(ctx context.Context, correlationID string, in InternalOrder) (Order, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rec := store.Record{
		"order_number":   in.ExternalOrderID,
		"correlation_id": correlationID,
		"customer_email": in.CustomerEmail,
		"product_id":     in.ProductID,
		"provider_sku":   in.ProviderSKU,
		"amount":         in.Amount,
		"currency":       in.Currency,
		"status":         string(StatusPaymentReceived),
		"metadata":       in.Metadata,
		"created_at":     now,
		"updated_at":     now,
	}
	created, err := r.collection.Create(ctx, rec)
	if err != nil {
		return Order{}, fmt.Errorf("creating order: %w", err)
	}
	id, _ := created["id"].(string)
	return decodeOrder(id, created), nil
}

// Machine builds an order.Machine whose Load/Persist hooks read and
// additively merge against this repository's collection.
func (r *Repository) Machine() *Machine {
	return NewMachine(r.load, r.persist)
}

func (r *Repository) load(ctx context.Context, orderID string) (Status, map[string]any, error) {
	rec, err := r.collection.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, ErrNotFound
		}
		return "", nil, err
	}
	status, _ := rec["status"].(string)
	return Status(status), rec, nil
}

func (r *Repository) persist(ctx context.Context, orderID string, target Status, metadata map[string]any) error {
	patch := store.Record{
		"status":     string(target),
		"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range metadata {
		patch[k] = v
	}
	_, err := r.collection.Update(ctx, orderID, patch)
	return err
}

// ApplyManualFulfillment records an operator-entered eSIM artifact directly
// (the PATCH /admin/orders/{id} manual_fulfillment action, §6) without
// routing through the provider cascade. providerUsed is always recorded as
// "manual" since no channel.Provider adapter is involved.
func (r *Repository) ApplyManualFulfillment(ctx context.Context, orderID, iccid, activationCode, qrCodeURL string) (Order, error) {
	patch := store.Record{
		"status":          string(StatusDelivered),
		"iccid":           iccid,
		"activation_code": activationCode,
		"provider_used":   "manual",
		"updated_at":      time.Now().UTC().Format(time.RFC3339Nano),
	}
	if qrCodeURL != "" {
		patch["qr_code_url"] = qrCodeURL
	}
	rec, err := r.collection.Update(ctx, orderID, patch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	return decodeOrder(orderID, rec), nil
}

// ListByStatusUpdatedBefore returns every order in the given status whose
// updated_at is strictly before cutoff — the reconciliation sweep's stale-
// order predicate (§4.10 Open Question (b)). The document-store filter
// language has no ordering comparison operator (§6: `=`, `&&`, `||`, `~`
// only), so the status filter narrows the scan and the time comparison is
// applied client-side.
func (r *Repository) ListByStatusUpdatedBefore(ctx context.Context, status Status, cutoff time.Time) ([]Order, error) {
	page, err := r.collection.List(ctx, store.ListOptions{Filter: store.Eq("status", string(status))})
	if err != nil {
		return nil, fmt.Errorf("listing orders by status: %w", err)
	}

	var stale []Order
	for _, rec := range page.Records {
		id, _ := rec["id"].(string)
		o := decodeOrder(id, rec)
		if o.UpdatedAt.Before(cutoff) {
			stale = append(stale, o)
		}
	}
	return stale, nil
}

func decodeOrder(id string, rec store.Record) Order {
	o := Order{ID: id}
	o.OrderNumber, _ = rec["order_number"].(string)
	o.CorrelationID, _ = rec["correlation_id"].(string)
	o.CustomerEmail, _ = rec["customer_email"].(string)
	o.ProductID, _ = rec["product_id"].(string)
	o.ProviderSKU, _ = rec["provider_sku"].(string)
	o.Amount, _ = rec["amount"].(float64)
	o.Currency, _ = rec["currency"].(string)
	if status, ok := rec["status"].(string); ok {
		o.Status = Status(status)
	}
	o.PaymentReference, _ = rec["payment_reference"].(string)
	o.QRCodeURL, _ = rec["qr_code_url"].(string)
	o.ICCID, _ = rec["iccid"].(string)
	o.ActivationCode, _ = rec["activation_code"].(string)
	o.ProviderUsed, _ = rec["provider_used"].(string)
	o.ErrorMessage, _ = rec["error_message"].(string)
	if metadata, ok := rec["metadata"].(map[string]any); ok {
		o.Metadata = metadata
	}
	o.CreatedAt = parseTimestamp(rec["created_at"])
	o.UpdatedAt = parseTimestamp(rec["updated_at"])
	return o
}

func parseTimestamp(v any) time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

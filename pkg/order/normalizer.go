package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/haneulsim/esimcore/internal/store"
)

// ExternalOrder is the foreign order payload shape normalized by C12,
// mirroring what pkg/inquirychannel/smartstore receives from Naver
// Commerce (§4.12).
type ExternalOrder struct {
	ExternalOrderID   string
	SalesChannel      string
	Status            string // external status string, projected via ProjectStatus
	ExternalProductID string
	Quantity          int
	Amount            float64
	Currency          string
	PaidAt            time.Time
	Orderer           Orderer
	Metadata          map[string]any
}

// Orderer is the customer-identity portion of an external order.
type Orderer struct {
	Email      string
	Name       string
	SafeNumber string
	Tel        string
}

// InternalOrder is C12's normalized output, ready to seed an Order record.
type InternalOrder struct {
	SalesChannel    string
	ExternalOrderID string
	CustomerEmail   string
	CustomerName    string
	CustomerPhone   string
	ProductID       string
	ProviderSKU     string
	Quantity        int
	Amount          float64
	Currency        string
	PaidAt          time.Time
	Metadata        map[string]any
}

// BatchError pairs a failed external order id with the error that stopped
// its normalization, for the batch variant's non-aborting error list.
type BatchError struct {
	ExternalID string
	Err        error
}

// ErrMissingRequiredField is returned when external_order_id or
// orderer.email is absent (§4.12).
var ErrMissingRequiredField = errors.New("order: missing required field")

// ErrProductNotFound is returned when the product mapper cannot resolve
// external_product_id (§4.12).
var ErrProductNotFound = errors.New("order: product mapping not found")

// ProductMapper resolves an external product id to the internal
// {product_id, provider_sku} pair. Backed by internal/store.Collection
// over the product_mappings collection (§6).
type ProductMapper interface {
	Map(ctx context.Context, externalProductID string) (productID, providerSKU string, err error)
}

// StoreProductMapper implements ProductMapper over a document store
// collection, matching external_product_id records one at a time — the
// same thin lookup-by-key shape as the teacher's bookowl package.
type StoreProductMapper struct {
	collection store.Collection
}

// NewStoreProductMapper creates a ProductMapper over the given
// product_mappings collection.
func NewStoreProductMapper(collection store.Collection) *StoreProductMapper {
	return &StoreProductMapper{collection: collection}
}

func (m *StoreProductMapper) Map(ctx context.Context, externalProductID string) (string, string, error) {
	rec, err := m.collection.FindOne(ctx, store.Eq("external_product_id", externalProductID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", "", ErrProductNotFound
		}
		return "", "", err
	}
	productID, _ := rec["product_id"].(string)
	providerSKU, _ := rec["provider_sku"].(string)
	return productID, providerSKU, nil
}

// Normalize maps an external order payload to an InternalOrder (§4.12).
func Normalize(ctx context.Context, ext ExternalOrder, mapper ProductMapper) (InternalOrder, error) {
	if ext.ExternalOrderID == "" || ext.Orderer.Email == "" {
		return InternalOrder{}, ErrMissingRequiredField
	}

	productID, providerSKU, err := mapper.Map(ctx, ext.ExternalProductID)
	if err != nil {
		return InternalOrder{}, fmt.Errorf("normalizing order %s: %w", ext.ExternalOrderID, err)
	}

	phone := ext.Orderer.SafeNumber
	if phone == "" {
		phone = ext.Orderer.Tel
	}

	quantity := ext.Quantity
	if quantity == 0 {
		quantity = 1
	}

	metadata := make(map[string]any, len(ext.Metadata)+1)
	for k, v := range ext.Metadata {
		metadata[k] = v
	}
	metadata["sales_channel"] = ext.SalesChannel

	return InternalOrder{
		SalesChannel:    ext.SalesChannel,
		ExternalOrderID: ext.ExternalOrderID,
		CustomerEmail:   ext.Orderer.Email,
		CustomerName:    ext.Orderer.Name,
		CustomerPhone:   phone,
		ProductID:       productID,
		ProviderSKU:     providerSKU,
		Quantity:        quantity,
		Amount:          ext.Amount,
		Currency:        ext.Currency,
		PaidAt:          ext.PaidAt,
		Metadata:        metadata,
	}, nil
}

// NormalizeBatch normalizes a slice of external orders, collecting
// successes and {external_id, error} failures without aborting the batch.
func NormalizeBatch(ctx context.Context, exts []ExternalOrder, mapper ProductMapper) ([]InternalOrder, []BatchError) {
	var successes []InternalOrder
	var errs []BatchError
	for _, ext := range exts {
		internal, err := Normalize(ctx, ext, mapper)
		if err != nil {
			errs = append(errs, BatchError{ExternalID: ext.ExternalOrderID, Err: err})
			continue
		}
		successes = append(successes, internal)
	}
	return successes, errs
}

// paidStatuses and cancelStatuses are the external-status equivalence
// classes referenced by the eligibility predicates (§4.12). Naver
// Commerce's own status vocabulary supplies the concrete strings.
var paidStatuses = map[string]bool{
	"PAYED": true,
	"PAID":  true,
}

var cancelStatuses = map[string]bool{
	"CANCELED":          true,
	"CANCELED_BY_NOPAY": true,
	"RETURNED":          true,
	"EXCHANGED":         true,
}

// IsPaymentComplete reports whether status is in the paid-equivalents set.
func IsPaymentComplete(status string) bool {
	return paidStatuses[status]
}

// IsCanceled reports whether status is in the cancel-equivalents set.
func IsCanceled(status string) bool {
	return cancelStatuses[status]
}

// IsEligibleForFulfillment reports whether an order with the given
// external status and active-claim flag should enter the fulfillment
// pipeline (§4.12).
func IsEligibleForFulfillment(status string, hasActiveClaim bool) bool {
	return IsPaymentComplete(status) && !IsCanceled(status) && !hasActiveClaim
}

// InternalStatus is the fixed projection table from external order status
// strings to the internal vocabulary (§4.12), defaulting to "pending" on
// unknown input.
type InternalStatus string

const (
	InternalPending    InternalStatus = "pending"
	InternalProcessing InternalStatus = "processing"
	InternalCompleted  InternalStatus = "completed"
	InternalFailed     InternalStatus = "failed"
	InternalRefunded   InternalStatus = "refunded"
)

var statusProjection = map[string]InternalStatus{
	"PAYMENT_WAITING":   InternalPending,
	"PAYED":             InternalProcessing,
	"PAID":              InternalProcessing,
	"DELIVERING":        InternalProcessing,
	"DELIVERED":         InternalCompleted,
	"PURCHASE_DECIDED":  InternalCompleted,
	"CANCELED":          InternalRefunded,
	"CANCELED_BY_NOPAY": InternalFailed,
	"RETURNED":          InternalRefunded,
	"EXCHANGED":         InternalRefunded,
}

// ProjectStatus maps an external status string to the internal vocabulary,
// defaulting to pending on unknown input (§4.12).
func ProjectStatus(external string) InternalStatus {
	if s, ok := statusProjection[external]; ok {
		return s
	}
	return InternalPending
}

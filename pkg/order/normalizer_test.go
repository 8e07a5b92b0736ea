package order

import (
	"context"
	"errors"
	"testing"
)

type fakeMapper struct {
	productID   string
	providerSKU string
	err         error
}

func (m fakeMapper) Map(ctx context.Context, externalProductID string) (string, string, error) {
	return m.productID, m.providerSKU, m.err
}

func TestNormalizeMissingRequiredFields(t *testing.T) {
	_, err := Normalize(context.Background(), ExternalOrder{}, fakeMapper{})
	if !errors.Is(err, ErrMissingRequiredField) {
		t.Fatalf("expected ErrMissingRequiredField, got %v", err)
	}
}

func TestNormalizePhonePrecedenceSafeNumberOverTel(t *testing.T) {
	ext := ExternalOrder{
		ExternalOrderID: "ext_1",
		Orderer:         Orderer{Email: "a@example.com", SafeNumber: "050-safe", Tel: "010-tel"},
	}
	out, err := Normalize(context.Background(), ext, fakeMapper{productID: "p1", providerSKU: "sku1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.CustomerPhone != "050-safe" {
		t.Fatalf("expected safe_number precedence, got %q", out.CustomerPhone)
	}
}

func TestNormalizeFallsBackToTelWhenSafeNumberAbsent(t *testing.T) {
	ext := ExternalOrder{
		ExternalOrderID: "ext_2",
		Orderer:         Orderer{Email: "a@example.com", Tel: "010-tel"},
	}
	out, err := Normalize(context.Background(), ext, fakeMapper{productID: "p1", providerSKU: "sku1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.CustomerPhone != "010-tel" {
		t.Fatalf("expected tel fallback, got %q", out.CustomerPhone)
	}
}

func TestNormalizeDefaultsQuantityToOne(t *testing.T) {
	ext := ExternalOrder{ExternalOrderID: "ext_3", Orderer: Orderer{Email: "a@example.com"}}
	out, err := Normalize(context.Background(), ext, fakeMapper{productID: "p1", providerSKU: "sku1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Quantity != 1 {
		t.Fatalf("expected default quantity 1, got %d", out.Quantity)
	}
}

func TestNormalizeMapperFailureReturnsNotFound(t *testing.T) {
	ext := ExternalOrder{ExternalOrderID: "ext_4", Orderer: Orderer{Email: "a@example.com"}}
	_, err := Normalize(context.Background(), ext, fakeMapper{err: ErrProductNotFound})
	if !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestNormalizeBatchCollectsErrorsWithoutAborting(t *testing.T) {
	exts := []ExternalOrder{
		{ExternalOrderID: "ok1", Orderer: Orderer{Email: "a@example.com"}},
		{ExternalOrderID: "", Orderer: Orderer{}}, // missing required fields
		{ExternalOrderID: "ok2", Orderer: Orderer{Email: "b@example.com"}},
	}
	successes, errs := NormalizeBatch(context.Background(), exts, fakeMapper{productID: "p1", providerSKU: "sku1"})
	if len(successes) != 2 {
		t.Fatalf("expected 2 successes, got %d", len(successes))
	}
	if len(errs) != 1 {
		t.Fatalf("expected 1 batch error, got %d", len(errs))
	}
}

func TestEligibilityPredicates(t *testing.T) {
	if !IsEligibleForFulfillment("PAYED", false) {
		t.Fatalf("expected PAYED with no active claim to be eligible")
	}
	if IsEligibleForFulfillment("PAYED", true) {
		t.Fatalf("expected active claim to block eligibility")
	}
	if IsEligibleForFulfillment("CANCELED", false) {
		t.Fatalf("expected canceled order to be ineligible")
	}
	if IsEligibleForFulfillment("PAYMENT_WAITING", false) {
		t.Fatalf("expected unpaid order to be ineligible")
	}
}

func TestProjectStatusDefaultsToPendingOnUnknown(t *testing.T) {
	if got := ProjectStatus("SOME_UNKNOWN_STATUS"); got != InternalPending {
		t.Fatalf("expected pending default, got %s", got)
	}
	if got := ProjectStatus("DELIVERED"); got != InternalCompleted {
		t.Fatalf("expected completed, got %s", got)
	}
}

package fulfillment

import (
	"context"
	"testing"
	"time"

	"github.com/haneulsim/esimcore/pkg/cascade"
	"github.com/haneulsim/esimcore/pkg/order"
)

type stringKey string

func TestDetachedContextDropsCancellationButKeepsValues(t *testing.T) {
	parent, cancel := context.WithCancel(context.WithValue(context.Background(), stringKey("correlation_id"), "corr-123"))
	detached := detach(parent)

	cancel()

	select {
	case <-detached.Done():
		t.Fatalf("expected detached context to never be done, even after parent cancellation")
	default:
	}

	if err := detached.Err(); err != nil {
		t.Fatalf("expected nil error on detached context, got %v", err)
	}

	if got, _ := detached.Deadline(); !got.IsZero() {
		t.Fatalf("expected zero deadline on detached context")
	}

	if got := detached.Value(stringKey("correlation_id")); got != "corr-123" {
		t.Fatalf("expected detached context to forward parent values, got %v", got)
	}
}

func TestFulfillWithTimeoutReturnsResultWhenWithinBudget(t *testing.T) {
	st := &stubOrderStore{status: order.StatusPaymentReceived}
	fastAdapter := &slowStubAdapter{slug: "airalo", delay: 0}

	svc := &Service{
		Machine:   order.NewMachine(st.load, st.persist),
		Breaker:   newTestBreakerStore(),
		EmailPort: stubEmailPort{messageID: "msg"},
	}

	providers := []cascade.ProviderConfig{{Slug: "airalo", Priority: 10, Active: true, Adapter: fastAdapter}}
	result, sentinel := svc.FulfillWithTimeout(context.Background(), order.Order{ID: "ord_6", Status: order.StatusPaymentReceived}, providers, 200*time.Millisecond)

	if sentinel != nil {
		t.Fatalf("expected no timeout sentinel when adapter is fast, got %+v", sentinel)
	}
	if !result.Success || result.FinalState != order.StatusDelivered {
		t.Fatalf("expected successful delivered result, got %+v", result)
	}
}

package fulfillment

import (
	"context"
	"time"

	"github.com/haneulsim/esimcore/pkg/cascade"
	"github.com/haneulsim/esimcore/pkg/order"
)

// TimeoutSentinel is returned by FulfillWithTimeout when the deadline
// elapses before the fulfillment pipeline finishes (§4.10).
type TimeoutSentinel struct {
	OrderID       string
	CorrelationID string
	ElapsedMs     int64
	Message       string
}

// FulfillWithTimeout races Fulfill against budget, derived from the
// caller's own deadline (e.g. 25s inside a 30s webhook budget). On
// expiry it returns the timeout sentinel without cancelling the
// in-progress work — the underlying Fulfill goroutine is allowed to run
// to completion so no state transition is left half-written. A timed-out
// order is left in fulfillment_started for the reconciliation sweep to
// pick up (§4.10).
func (s *Service) FulfillWithTimeout(ctx context.Context, o order.Order, providers []cascade.ProviderConfig, budget time.Duration) (Result, *TimeoutSentinel) {
	start := time.Now()
	done := make(chan Result, 1)

	// A detached context: the fulfillment goroutine must not be cancelled
	// by the caller's deadline, only raced against it (§4.10, §5).
	bgCtx := detach(ctx)

	go func() {
		done <- s.Fulfill(bgCtx, o, providers)
	}()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case result := <-done:
		return result, nil
	case <-timer.C:
		return Result{}, &TimeoutSentinel{
			OrderID:       o.ID,
			CorrelationID: o.CorrelationID,
			ElapsedMs:     time.Since(start).Milliseconds(),
			Message:       "fulfillment deadline exceeded; order left in fulfillment_started for reconciliation",
		}
	}
}

// detachedContext carries a parent's values (correlation id, request-scoped
// fields) without inheriting its cancellation, so background persistence
// can finish after the caller's own deadline fires.
type detachedContext struct {
	parent context.Context
}

func (d detachedContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (d detachedContext) Done() <-chan struct{}       { return nil }
func (d detachedContext) Err() error                  { return nil }
func (d detachedContext) Value(key any) any           { return d.parent.Value(key) }

func detach(parent context.Context) context.Context {
	return detachedContext{parent: parent}
}

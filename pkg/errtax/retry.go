package errtax

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	baseDelay = 1 * time.Second
	capDelay  = 30 * time.Second
	jitterPct = 0.30
)

// Delay computes the backoff delay for 0-indexed attempt n:
// min(base*2^n, cap), then applies symmetric ±30% jitter.
func Delay(n int) time.Duration {
	exp := math.Pow(2, float64(n))
	d := time.Duration(float64(baseDelay) * exp)
	if d > capDelay || d <= 0 {
		d = capDelay
	}
	jitter := 1 + (rand.Float64()*2-1)*jitterPct
	jittered := time.Duration(math.Floor(float64(d) * jitter))
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}

// Attempt is one try of a retried operation, recorded for the caller's
// Fulfillment Attempt Record.
type Attempt struct {
	Index      int
	Err        error
	Classified Classified
}

// Result is what WithRetry returns: the last classified outcome plus every
// attempt made, win or lose.
type Result[T any] struct {
	Value    T
	Ok       bool
	Final    Classified
	Attempts []Attempt
}

// Op is a single try of the retried operation. It returns the value on
// success, or a Classified failure describing whether retrying makes sense.
type Op[T any] func(ctx context.Context, attempt int) (T, *Classified, error)

// WithRetry performs up to maxRetries+1 total attempts of op, sleeping
// between attempts per Delay (skipped after the final attempt), and
// aborting early on any non-retryable classified failure. It is built on
// backoff.Retry's constant-operation loop, supplying our own fixed-schedule
// BackOff so jitter and the cap match §4.1 exactly instead of the library's
// default exponential curve.
func WithRetry[T any](ctx context.Context, maxRetries int, op Op[T]) Result[T] {
	res := Result[T]{}
	totalAttempts := maxRetries + 1

	b := &fixedSchedule{max: totalAttempts}

	value, err := backoff.Retry(ctx, func() (T, error) {
		attempt := b.next
		v, classified, opErr := op(ctx, attempt)
		if classified == nil {
			if opErr != nil {
				c := FromError(opErr)
				classified = &c
			} else {
				res.Ok = true
				res.Value = v
				res.Attempts = append(res.Attempts, Attempt{Index: attempt, Err: nil})
				return v, nil
			}
		}

		res.Attempts = append(res.Attempts, Attempt{Index: attempt, Err: classified, Classified: *classified})
		res.Final = *classified

		if !classified.Retryable {
			return v, backoff.Permanent(*classified)
		}
		return v, *classified
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(totalAttempts)),
	)

	if err == nil {
		res.Ok = true
		res.Value = value
	}
	return res
}

// fixedSchedule implements backoff.BackOff with the exact §4.1 schedule:
// min(base*2^n, cap) ± 30% jitter, tracking the 0-indexed attempt number
// so WithRetry can report it on every Attempt record.
type fixedSchedule struct {
	next int
	max  int
}

func (f *fixedSchedule) NextBackOff() time.Duration {
	n := f.next
	f.next++
	if n >= f.max-1 {
		// Final attempt: no sleep needed, backoff.Retry won't call again.
		return 0
	}
	return Delay(n)
}

func (f *fixedSchedule) Reset() {
	f.next = 0
}

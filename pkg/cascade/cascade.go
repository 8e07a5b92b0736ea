// Package cascade implements the provider cascade engine (§4.6): priority
// ordering, circuit-breaker filtering, and strictly sequential cross-
// provider failover with per-provider retry.
package cascade

import (
	"context"
	"sort"

	"github.com/haneulsim/esimcore/pkg/breaker"
	"github.com/haneulsim/esimcore/pkg/channel"
	"github.com/haneulsim/esimcore/pkg/errtax"
)

// ProviderConfig is the subset of §3's Provider Config the cascade needs to
// order and gate candidates.
type ProviderConfig struct {
	Slug     string
	Priority int
	Active   bool
	Adapter  channel.Provider
	// MaxRetries is the retry budget handed to errtax.WithRetry per
	// provider (total attempts = MaxRetries + 1, per §4.1).
	MaxRetries int
}

// FailoverEvent records one cross-provider handoff (§4.6 step (f)).
type FailoverEvent struct {
	From         string
	To           string
	Reason       string
	AttemptIndex int
}

// Attempt mirrors the spec's Fulfillment Attempt Record (§3).
type Attempt struct {
	ProviderName string
	Success      bool
	ErrorType    string
	ErrorMessage string
	DurationMs   int64
	RetryCount   int
}

// Result is the outcome of running the cascade across a provider list.
type Result struct {
	Success            bool
	ProviderUsed       string
	Artifact           channel.ESIMArtifact
	AttemptedProviders []string
	FailureReasons     map[string]string
	FailoverEvents     []FailoverEvent
	Attempts           []Attempt
	Err                error
}

const allCircuitsOpenMessage = "All provider circuits are open"

// Run executes the cascade: filter inactive providers, sort by priority
// descending (slug tie-break), filter via the circuit breaker, then try
// each survivor strictly sequentially (§4.6). It never parallelizes
// providers, to preserve idempotency and avoid double-billing.
func Run(ctx context.Context, br *breaker.Store, providers []ProviderConfig, req channel.PurchaseRequest) Result {
	active := filterActive(providers)
	sortByPriority(active)

	candidates := filterOpenCircuits(ctx, br, active)
	if len(candidates) == 0 {
		return Result{
			Success:        false,
			FailureReasons: map[string]string{"_cascade": allCircuitsOpenMessage},
			Err:            errtax.ProviderError(allCircuitsOpenMessage, true),
		}
	}

	result := Result{FailureReasons: make(map[string]string)}

	for i, pc := range candidates {
		result.AttemptedProviders = append(result.AttemptedProviders, pc.Slug)

		purchaseResult, retryCount, classified, ok := attemptWithRetry(ctx, pc, req)
		if ok {
			br.RecordSuccess(ctx, pc.Slug)
			result.Success = true
			result.ProviderUsed = pc.Slug
			result.Artifact = purchaseResult.Artifact
			result.Attempts = append(result.Attempts, Attempt{
				ProviderName: pc.Slug,
				Success:      true,
				RetryCount:   retryCount,
			})
			return result
		}

		br.RecordFailure(ctx, pc.Slug)
		result.FailureReasons[pc.Slug] = classified.Error()
		result.Attempts = append(result.Attempts, Attempt{
			ProviderName: pc.Slug,
			Success:      false,
			ErrorType:    string(classified.Kind),
			ErrorMessage: classified.Error(),
			RetryCount:   retryCount,
		})

		if i+1 < len(candidates) {
			result.FailoverEvents = append(result.FailoverEvents, FailoverEvent{
				From:         pc.Slug,
				To:           candidates[i+1].Slug,
				Reason:       classified.Error(),
				AttemptIndex: i,
			})
		}
	}

	result.Success = false
	result.Err = errtax.ProviderError("all providers exhausted", false)
	return result
}

// attemptWithRetry retries pc's Purchase call under errtax.WithRetry and
// reports the retry count actually used (attempts beyond the first).
func attemptWithRetry(ctx context.Context, pc ProviderConfig, req channel.PurchaseRequest) (channel.PurchaseResult, int, errtax.Classified, bool) {
	op := func(ctx context.Context, attempt int) (channel.PurchaseResult, *errtax.Classified, error) {
		res := pc.Adapter.Purchase(ctx, req)
		switch res.Outcome {
		case channel.PurchaseOK:
			return res, nil, nil
		default:
			if classified, ok := res.Err.(errtax.Classified); ok {
				return res, &classified, nil
			}
			if res.Err != nil {
				c := errtax.FromError(res.Err)
				return res, &c, nil
			}
			c := errtax.ProviderError("purchase attempt failed", false)
			return res, &c, nil
		}
	}

	result := errtax.WithRetry(ctx, pc.MaxRetries, op)
	retryCount := len(result.Attempts) - 1
	if retryCount < 0 {
		retryCount = 0
	}
	return result.Value, retryCount, result.Final, result.Ok
}

func filterActive(providers []ProviderConfig) []ProviderConfig {
	out := make([]ProviderConfig, 0, len(providers))
	for _, p := range providers {
		if p.Active {
			out = append(out, p)
		}
	}
	return out
}

func sortByPriority(providers []ProviderConfig) {
	sort.SliceStable(providers, func(i, j int) bool {
		if providers[i].Priority != providers[j].Priority {
			return providers[i].Priority > providers[j].Priority
		}
		return providers[i].Slug < providers[j].Slug
	})
}

func filterOpenCircuits(ctx context.Context, br *breaker.Store, providers []ProviderConfig) []ProviderConfig {
	identities := make([]breaker.ProviderIdentity, len(providers))
	bySlug := make(map[string]ProviderConfig, len(providers))
	for i, p := range providers {
		identities[i] = slugIdentity(p.Slug)
		bySlug[p.Slug] = p
	}
	filtered := br.Filter(ctx, identities)
	out := make([]ProviderConfig, 0, len(filtered))
	for _, id := range filtered {
		out = append(out, bySlug[id.Slug()])
	}
	return out
}

type slugIdentity string

func (s slugIdentity) Slug() string { return string(s) }

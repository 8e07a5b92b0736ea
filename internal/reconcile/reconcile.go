// Package reconcile implements the periodic sweep that recovers orders
// stuck in fulfillment_started after a deadline-wrapped fulfillment
// attempt timed out (§4.10 Open Question (b)).
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/haneulsim/esimcore/pkg/cascade"
	"github.com/haneulsim/esimcore/pkg/fulfillment"
	"github.com/haneulsim/esimcore/pkg/order"
)

// Sweeper is a background worker that polls for orders left in
// fulfillment_started longer than StaleAfter and re-drives them through
// the Fulfillment Service.
type Sweeper struct {
	repo       *order.Repository
	service    *fulfillment.Service
	providers  func() []cascade.ProviderConfig
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
	budget     time.Duration
}

// New creates a Sweeper.
func New(repo *order.Repository, service *fulfillment.Service, providers func() []cascade.ProviderConfig, logger *slog.Logger, interval, staleAfter, budget time.Duration) *Sweeper {
	return &Sweeper{
		repo:       repo,
		service:    service,
		providers:  providers,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
		budget:     budget,
	}
}

// Run blocks, ticking every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("reconciliation sweeper started", "interval", s.interval, "stale_after", s.staleAfter)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconciliation sweeper stopped")
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.logger.Error("reconciliation sweep tick", "error", err)
			}
		}
	}
}

// tick finds every order stuck in fulfillment_started past StaleAfter and
// re-drives each one through the Fulfillment Service's deadline wrapper.
func (s *Sweeper) tick(ctx context.Context) error {
	stale, err := s.findStaleOrders(ctx)
	if err != nil {
		return err
	}

	for _, o := range stale {
		s.logger.Warn("reconciling stale order", "order_id", o.ID, "correlation_id", o.CorrelationID)

		result, sentinel := s.service.FulfillWithTimeout(ctx, o, s.providers(), s.budget)
		if sentinel != nil {
			s.logger.Warn("reconciliation attempt timed out again", "order_id", o.ID, "elapsed_ms", sentinel.ElapsedMs)
			continue
		}
		s.logger.Info("reconciliation attempt finished", "order_id", o.ID, "final_state", result.FinalState, "success", result.Success)
	}

	return nil
}

func (s *Sweeper) findStaleOrders(ctx context.Context) ([]order.Order, error) {
	cutoff := time.Now().Add(-s.staleAfter)
	return s.repo.ListByStatusUpdatedBefore(ctx, order.StatusFulfillmentStarted, cutoff)
}

// Package fulfillment implements the Fulfillment Service (§4.9) and the
// deadline wrapper around it (§4.10): the orchestration that carries a
// paid order through the provider cascade, the manual-fulfillment
// fallback, and the order state machine, under an end-to-end deadline.
package fulfillment

import (
	"context"
	"time"

	"github.com/haneulsim/esimcore/pkg/breaker"
	"github.com/haneulsim/esimcore/pkg/cascade"
	"github.com/haneulsim/esimcore/pkg/channel"
	"github.com/haneulsim/esimcore/pkg/manual"
	"github.com/haneulsim/esimcore/pkg/order"
)

// EmailPort is the injected side-effect port for delivery email dispatch
// (out of scope per spec.md §1: "the email/notification transports
// themselves").
type EmailPort interface {
	SendDeliveryEmail(ctx context.Context, o order.Order) (messageID string, err error)
}

// FailureNotifierPort alerts an operator when an order lands in
// provider_failed (distinct from the manual-fulfillment Discord
// notification, which only fires when Discord recovers the order into
// pending_manual_fulfillment instead).
type FailureNotifierPort interface {
	NotifyProviderFailed(ctx context.Context, o order.Order, reason string) error
}

// AutomationLogger records a fulfillment lifecycle event to the
// automation_logs collection (§6). Optional — a nil AutomationLogger on
// Service disables logging.
type AutomationLogger interface {
	LogEvent(orderID, correlationID, action string, detail map[string]any)
}

// Service is the Fulfillment Service (C9).
type Service struct {
	Machine         *order.Machine
	Breaker         *breaker.Store
	ManualNotifier  *manual.Notifier
	EmailPort       EmailPort
	FailureNotifier FailureNotifierPort
	AutomationLog   AutomationLogger
}

func (s *Service) logAutomation(orderID, correlationID, action string, detail map[string]any) {
	if s.AutomationLog == nil {
		return
	}
	s.AutomationLog.LogEvent(orderID, correlationID, action, detail)
}

// Result aggregates a completed (or failed) fulfillment attempt (§4.9).
type Result struct {
	FinalState        order.Status
	Success           bool
	ProviderUsed      string
	Artifact          channel.ESIMArtifact
	EmailSent         bool
	EmailMessageID    string
	Attempts          []cascade.Attempt
	TotalDurationMs   int64
	Err               error
}

// Fulfill runs the full C9 pipeline for a single order (§4.9).
func (s *Service) Fulfill(ctx context.Context, o order.Order, providers []cascade.ProviderConfig) Result {
	start := time.Now()
	result := Result{}

	if _, err := s.Machine.Transition(ctx, o.ID, order.StatusFulfillmentStarted, nil); err != nil {
		result.Err = err
		result.FinalState = o.Status
		return result
	}

	cascadeResult := cascade.Run(ctx, s.Breaker, providers, channel.PurchaseRequest{
		OrderID:       o.ID,
		CorrelationID: o.CorrelationID,
		ProductSKU:    o.ProviderSKU,
		CustomerEmail: o.CustomerEmail,
	})
	result.Attempts = cascadeResult.Attempts

	if cascadeResult.Success {
		return s.onCascadeSuccess(ctx, o, cascadeResult, &result, start)
	}
	return s.onCascadeExhaustion(ctx, o, cascadeResult, &result, start)
}

func (s *Service) onCascadeSuccess(ctx context.Context, o order.Order, cr cascade.Result, result *Result, start time.Time) Result {
	metadata := map[string]any{
		"qr_code_url":        cr.Artifact.QRCodeURL,
		"iccid":              cr.Artifact.ICCID,
		"activation_code":    cr.Artifact.ActivationCode,
		"provider_used":      cr.ProviderUsed,
		"provider_order_id":  cr.Artifact.ProviderOrderID,
	}

	state, err := s.Machine.Transition(ctx, o.ID, order.StatusProviderConfirmed, metadata)
	if err != nil {
		result.Err = err
		result.FinalState = state
		result.TotalDurationMs = time.Since(start).Milliseconds()
		return *result
	}

	result.Success = true
	result.ProviderUsed = cr.ProviderUsed
	result.Artifact = cr.Artifact

	messageID, emailErr := s.EmailPort.SendDeliveryEmail(ctx, o)
	if emailErr == nil {
		if _, err := s.Machine.Transition(ctx, o.ID, order.StatusEmailSent, map[string]any{
			"email_sent":       true,
			"email_message_id": messageID,
		}); err == nil {
			state, err = s.Machine.Transition(ctx, o.ID, order.StatusDelivered, nil)
			if err != nil {
				result.Err = err
				result.FinalState = state
				result.TotalDurationMs = time.Since(start).Milliseconds()
				return *result
			}
		}
		result.EmailSent = true
		result.EmailMessageID = messageID
	} else {
		// Email failure is reported but non-fatal: the order still reaches
		// delivered (§4.9 step 2).
		state, err = s.Machine.Transition(ctx, o.ID, order.StatusDelivered, map[string]any{
			"email_send_error": emailErr.Error(),
		})
		if err != nil {
			result.Err = err
			result.FinalState = state
			result.TotalDurationMs = time.Since(start).Milliseconds()
			return *result
		}
	}

	result.FinalState = order.StatusDelivered
	result.TotalDurationMs = time.Since(start).Milliseconds()
	s.logAutomation(o.ID, o.CorrelationID, "delivered", map[string]any{
		"provider_used": cr.ProviderUsed,
		"email_sent":    result.EmailSent,
	})
	return *result
}

func (s *Service) onCascadeExhaustion(ctx context.Context, o order.Order, cr cascade.Result, result *Result, start time.Time) Result {
	if s.ManualNotifier != nil && s.ManualNotifier.IsEnabled() {
		outcome := s.ManualNotifier.Notify(ctx, manual.Request{
			OrderID:                 o.ID,
			CorrelationID:           o.CorrelationID,
			CustomerEmail:           o.CustomerEmail,
			ProductName:             o.ProductID,
			AttemptedProviders:      cr.AttemptedProviders,
			AggregatedFailureReason: aggregateReasons(cr.FailureReasons),
		})

		result.Attempts = append(result.Attempts, cascade.Attempt{
			ProviderName: "manual",
			Success:      outcome.PendingManual,
		})

		if outcome.PendingManual {
			state, err := s.Machine.Transition(ctx, o.ID, order.StatusPendingManualFulfillment, map[string]any{
				"pending_manual_fulfillment":         true,
				"manual_fulfillment_notification_sent": outcome.NotificationSent,
			})
			result.FinalState = state
			result.Err = err
			result.TotalDurationMs = time.Since(start).Milliseconds()
			s.logAutomation(o.ID, o.CorrelationID, "pending_manual_fulfillment", map[string]any{
				"notification_sent": outcome.NotificationSent,
			})
			return *result
		}
	}

	state, err := s.Machine.Transition(ctx, o.ID, order.StatusProviderFailed, map[string]any{
		"error_message": aggregateReasons(cr.FailureReasons),
	})
	if err == nil && s.FailureNotifier != nil {
		_ = s.FailureNotifier.NotifyProviderFailed(ctx, o, aggregateReasons(cr.FailureReasons))
	}

	result.FinalState = state
	result.Success = false
	if err != nil {
		result.Err = err
	} else {
		result.Err = cr.Err
	}
	result.TotalDurationMs = time.Since(start).Milliseconds()
	s.logAutomation(o.ID, o.CorrelationID, "provider_failed", map[string]any{
		"reason": aggregateReasons(cr.FailureReasons),
	})
	return *result
}

func aggregateReasons(reasons map[string]string) string {
	if len(reasons) == 0 {
		return "all providers exhausted"
	}
	out := ""
	for slug, reason := range reasons {
		if out != "" {
			out += "; "
		}
		out += slug + ": " + reason
	}
	return out
}

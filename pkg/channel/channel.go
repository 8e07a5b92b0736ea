// Package channel defines the uniform adapter contract shared by eSIM
// supplier providers and inquiry channels (§4.3).
package channel

import (
	"context"
	"time"
)

// PurchaseOutcome is the closed set of results a Purchase call may return.
type PurchaseOutcome string

const (
	PurchaseOK           PurchaseOutcome = "ok"
	PurchaseFailure      PurchaseOutcome = "failure"
	PurchasePendingManual PurchaseOutcome = "pending_manual"
)

// PurchaseRequest carries everything a provider adapter needs to fulfill
// one order.
type PurchaseRequest struct {
	OrderID       string
	CorrelationID string
	ProductSKU    string
	CustomerEmail string
	Quantity      int
	Metadata      map[string]any
}

// ESIMArtifact is the common extractor output shape every provider adapter
// must produce on success (§4.4).
type ESIMArtifact struct {
	QRCodeURL       string
	ICCID           string
	ActivationCode  string
	ProviderOrderID string
}

// PurchaseResult is the result of a single provider's Purchase call.
type PurchaseResult struct {
	Outcome  PurchaseOutcome
	Artifact ESIMArtifact
	Err      error // non-nil iff Outcome == PurchaseFailure
}

// ExternalInquiry is one inquiry as reported by an inquiry channel, before
// normalization into the internal Inquiry type.
type ExternalInquiry struct {
	ExternalID   string
	Subject      string
	Content      string
	CustomerName string
	Email        string
	Phone        string
	CreatedAt    time.Time
}

// ExternalMessage is one message in an external conversation thread.
type ExternalMessage struct {
	ExternalID string
	Direction  string // "inbound" | "outbound"
	Content    string
	SentAt     time.Time
}

// FetchInquiriesOptions controls an inbound sync sweep.
type FetchInquiriesOptions struct {
	IncludeReplied bool
}

// ReplyResult is the outcome of delivering a reply through a channel.
type ReplyResult struct {
	DeliveryStatus  string // pending|sent|delivered|failed
	ExternalMessageID string
	Err             error
}

// Identity is the read-only self-description every adapter exposes.
type Identity interface {
	Slug() string
	DisplayName() string
	IsEnabled() bool
	HealthCheck(ctx context.Context) (healthy bool, diagnostic string)
}

// Provider is the capability set implemented by eSIM supplier adapters
// (esimcard, airalo, mobimatter, redteago, manual).
type Provider interface {
	Identity
	Purchase(ctx context.Context, req PurchaseRequest) PurchaseResult
}

// InquiryChannel is the capability set implemented by inquiry-handling
// adapters (smartstore, email, kakao, talktalk).
type InquiryChannel interface {
	Identity
	FetchInquiries(ctx context.Context, opts FetchInquiriesOptions) ([]ExternalInquiry, error)
	FetchMessages(ctx context.Context, externalID string) ([]ExternalMessage, error)
	SendReply(ctx context.Context, externalID, content string) ReplyResult
}

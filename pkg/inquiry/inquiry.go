// Package inquiry implements the Inquiry Service (§4.11): cross-channel
// sync of customer inquiries, agent reply dispatch, and the metrics/health
// roll-ups the admin surface exposes.
package inquiry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/haneulsim/esimcore/internal/store"
	"github.com/haneulsim/esimcore/pkg/channel"
)

// InquiriesCollection and MessagesCollection are the document-store
// collection names (§6).
const (
	InquiriesCollection = "inquiries"
	MessagesCollection  = "inquiry_messages"
)

// Status is the closed set of inquiry lifecycle states.
type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
)

// Priority is the closed set of inquiry priorities.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Inquiry is one customer inquiry thread, normalized from whichever
// channel it arrived on.
type Inquiry struct {
	ID              string
	Channel         string
	ExternalID      string
	Subject         string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	Status          Status
	Priority        Priority
	AssignedTo      string
	LinkedOrderID   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
}

// Message is one message in an inquiry's conversation thread.
type Message struct {
	ID             string
	InquiryID      string
	Direction      string // "inbound" | "outbound"
	Content        string
	AgentName      string
	DeliveryStatus string
	CreatedAt      time.Time
}

// Filter narrows a List call (§4.11).
type Filter struct {
	Channel  string
	Statuses []Status
	Priority Priority
	Assignee string
	Search   string // free-text over {subject, content, customer_name}
	Sort     string // "created" | "updated" | "priority"
	Desc     bool
	Limit    int
	Offset   int
}

// Page is a bounded, filtered slice of inquiries plus the total match count.
type Page struct {
	Inquiries []Inquiry
	Total     int
}

// SyncResult is the outcome of SyncFromAllChannels.
type SyncResult struct {
	Synced int
	Errors []ChannelSyncError
}

// ChannelSyncError records one adapter's failure during a sync sweep.
type ChannelSyncError struct {
	Channel string
	Err     error
}

// Metrics aggregates inquiry counts and response latency for the admin
// dashboard (§4.11).
type Metrics struct {
	TotalOpen             int
	TotalResolved         int
	AvgFirstResponseMins  int
	CountsByChannel       map[string]int
	CountsByStatus        map[Status]int
}

// ChannelStatus reports one adapter's configuration/health for the
// channel-health roll-up endpoint.
type ChannelStatus struct {
	Channel string
	Enabled bool
	Healthy bool
	Error   string
}

var (
	// ErrNotFound is returned when an inquiry lookup misses.
	ErrNotFound = errors.New("inquiry: not found")
	// ErrUnknownChannel is returned when SendReply targets an unregistered
	// channel slug.
	ErrUnknownChannel = errors.New("inquiry: channel not registered")
)

// Service is the Inquiry Service (C11).
type Service struct {
	inquiries store.Collection
	messages  store.Collection
	channels  *channel.InquiryChannelRegistry
}

// NewService creates a Service backed by the given collections and
// registered inquiry channel adapters.
func NewService(inquiries, messages store.Collection, channels *channel.InquiryChannelRegistry) *Service {
	return &Service{inquiries: inquiries, messages: messages, channels: channels}
}

// List filters, sorts, and paginates inquiries (§4.11).
func (s *Service) List(ctx context.Context, f Filter) (Page, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	page, err := s.inquiries.List(ctx, store.ListOptions{
		Filter: buildFilterQuery(f),
		Limit:  limit,
		Offset: f.Offset,
	})
	if err != nil {
		return Page{}, fmt.Errorf("listing inquiries: %w", err)
	}

	out := make([]Inquiry, 0, len(page.Records))
	for _, rec := range page.Records {
		out = append(out, decodeInquiry(rec))
	}
	sortInquiries(out, f.Sort, f.Desc)

	return Page{Inquiries: out, Total: page.Total}, nil
}

func buildFilterQuery(f Filter) store.Query {
	var q store.Query
	has := false

	add := func(next store.Query) {
		if !has {
			q = next
			has = true
			return
		}
		q = store.And(q, next)
	}

	if f.Channel != "" {
		add(store.Eq("channel", f.Channel))
	}
	if len(f.Statuses) == 1 {
		add(store.Eq("status", string(f.Statuses[0])))
	} else if len(f.Statuses) > 1 {
		var statusQ store.Query
		for i, st := range f.Statuses {
			eq := store.Eq("status", string(st))
			if i == 0 {
				statusQ = eq
			} else {
				statusQ = store.Or(statusQ, eq)
			}
		}
		add(statusQ)
	}
	if f.Priority != "" {
		add(store.Eq("priority", string(f.Priority)))
	}
	if f.Assignee != "" {
		add(store.Eq("assigned_to", f.Assignee))
	}
	if f.Search != "" {
		search := store.Or(
			store.Contains("subject", f.Search),
			store.Or(store.Contains("content", f.Search), store.Contains("customer_name", f.Search)),
		)
		add(search)
	}

	return q
}

func sortInquiries(items []Inquiry, field string, desc bool) {
	less := func(i, j int) bool {
		switch field {
		case "updated":
			return items[i].UpdatedAt.Before(items[j].UpdatedAt)
		case "priority":
			return priorityRank(items[i].Priority) < priorityRank(items[j].Priority)
		default: // "created"
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
	}
	if desc {
		orig := less
		less = func(i, j int) bool { return orig(j, i) }
	}
	sort.SliceStable(items, less)
}

func priorityRank(p Priority) int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}

// Get fetches a single inquiry by id.
func (s *Service) Get(ctx context.Context, id string) (Inquiry, error) {
	rec, err := s.inquiries.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Inquiry{}, ErrNotFound
		}
		return Inquiry{}, err
	}
	return decodeInquiry(rec), nil
}

// GetByExternal fetches an inquiry by (channel, external_id).
func (s *Service) GetByExternal(ctx context.Context, chanSlug, externalID string) (Inquiry, error) {
	rec, err := s.inquiries.FindOne(ctx, store.And(
		store.Eq("channel", chanSlug),
		store.Eq("external_id", externalID),
	))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Inquiry{}, ErrNotFound
		}
		return Inquiry{}, err
	}
	return decodeInquiry(rec), nil
}

// Create inserts a new inquiry from an externally-sourced record, seeded
// with an inbound message mirroring the initial content (§4.11).
func (s *Service) Create(ctx context.Context, chanSlug string, ext channel.ExternalInquiry) (Inquiry, error) {
	now := time.Now().UTC()
	rec := store.Record{
		"channel":        chanSlug,
		"external_id":    ext.ExternalID,
		"subject":        ext.Subject,
		"customer_name":  ext.CustomerName,
		"customer_email": ext.Email,
		"customer_phone": ext.Phone,
		"status":         string(StatusNew),
		"priority":       string(PriorityNormal),
		"created_at":     now.Format(time.RFC3339Nano),
		"updated_at":     now.Format(time.RFC3339Nano),
	}

	created, err := s.inquiries.Create(ctx, rec)
	if err != nil {
		return Inquiry{}, fmt.Errorf("creating inquiry: %w", err)
	}
	inq := decodeInquiry(created)

	if _, err := s.messages.Create(ctx, store.Record{
		"inquiry_id": inq.ID,
		"direction":  "inbound",
		"content":    ext.Content,
		"created_at": now.Format(time.RFC3339Nano),
	}); err != nil {
		return inq, fmt.Errorf("creating seed message: %w", err)
	}

	return inq, nil
}

// UpdatePatch carries the mutable fields Update accepts (§4.11).
type UpdatePatch struct {
	Status        *Status
	Priority      *Priority
	AssignedTo    *string
	LinkedOrderID *string
}

// Update applies patch to an inquiry. Setting Status=resolved stamps
// resolved_at.
func (s *Service) Update(ctx context.Context, id string, patch UpdatePatch) (Inquiry, error) {
	update := store.Record{"updated_at": time.Now().UTC().Format(time.RFC3339Nano)}
	if patch.Status != nil {
		update["status"] = string(*patch.Status)
		if *patch.Status == StatusResolved {
			update["resolved_at"] = time.Now().UTC().Format(time.RFC3339Nano)
		}
	}
	if patch.Priority != nil {
		update["priority"] = string(*patch.Priority)
	}
	if patch.AssignedTo != nil {
		update["assigned_to"] = *patch.AssignedTo
	}
	if patch.LinkedOrderID != nil {
		update["linked_order_id"] = *patch.LinkedOrderID
	}

	rec, err := s.inquiries.Update(ctx, id, update)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Inquiry{}, ErrNotFound
		}
		return Inquiry{}, err
	}
	return decodeInquiry(rec), nil
}

// GetMessages returns an inquiry's conversation, ordered ascending by
// created time.
func (s *Service) GetMessages(ctx context.Context, inquiryID string) ([]Message, error) {
	page, err := s.messages.List(ctx, store.ListOptions{
		Filter: store.Eq("inquiry_id", inquiryID),
		Sort:   []store.SortField{{Field: "created_at"}},
	})
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	out := make([]Message, 0, len(page.Records))
	for _, rec := range page.Records {
		out = append(out, decodeMessage(rec))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SendReply dispatches a reply through the inquiry's channel adapter,
// records the outbound message, transitions the inquiry to in_progress,
// and stamps first_response_at iff unset (§4.11).
func (s *Service) SendReply(ctx context.Context, id, content, agentName string) (Message, error) {
	inq, err := s.Get(ctx, id)
	if err != nil {
		return Message{}, err
	}

	adapter, err := s.channels.Get(inq.Channel)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownChannel, inq.Channel)
	}

	result := adapter.SendReply(ctx, inq.ExternalID, content)

	now := time.Now().UTC()
	msgRec, err := s.messages.Create(ctx, store.Record{
		"inquiry_id":      id,
		"direction":       "outbound",
		"content":         content,
		"agent_name":      agentName,
		"delivery_status": result.DeliveryStatus,
		"created_at":      now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return Message{}, fmt.Errorf("recording reply message: %w", err)
	}

	update := store.Record{
		"status":     string(StatusInProgress),
		"updated_at": now.Format(time.RFC3339Nano),
	}
	if inq.FirstResponseAt == nil {
		update["first_response_at"] = now.Format(time.RFC3339Nano)
	}
	if _, err := s.inquiries.Update(ctx, id, update); err != nil {
		return decodeMessage(msgRec), fmt.Errorf("updating inquiry after reply: %w", err)
	}

	if result.Err != nil {
		return decodeMessage(msgRec), result.Err
	}
	return decodeMessage(msgRec), nil
}

// SyncFromAllChannels pulls unread inquiries from every enabled adapter
// and upserts them by (channel, external_id) (§4.11).
func (s *Service) SyncFromAllChannels(ctx context.Context) SyncResult {
	result := SyncResult{}

	for _, adapter := range s.channels.All() {
		if !adapter.IsEnabled() {
			continue
		}

		externals, err := adapter.FetchInquiries(ctx, channel.FetchInquiriesOptions{IncludeReplied: false})
		if err != nil {
			result.Errors = append(result.Errors, ChannelSyncError{Channel: adapter.Slug(), Err: err})
			continue
		}

		for _, ext := range externals {
			if _, err := s.GetByExternal(ctx, adapter.Slug(), ext.ExternalID); err == nil {
				continue // already synced
			} else if !errors.Is(err, ErrNotFound) {
				result.Errors = append(result.Errors, ChannelSyncError{Channel: adapter.Slug(), Err: err})
				continue
			}

			if _, err := s.Create(ctx, adapter.Slug(), ext); err != nil {
				result.Errors = append(result.Errors, ChannelSyncError{Channel: adapter.Slug(), Err: err})
				continue
			}
			result.Synced++
		}
	}

	return result
}

// Metrics aggregates open/resolved totals, average first-response
// latency, and per-channel/status counts (§4.11).
func (s *Service) Metrics(ctx context.Context) (Metrics, error) {
	page, err := s.inquiries.List(ctx, store.ListOptions{})
	if err != nil {
		return Metrics{}, fmt.Errorf("listing inquiries for metrics: %w", err)
	}

	m := Metrics{
		CountsByChannel: make(map[string]int),
		CountsByStatus:  make(map[Status]int),
	}

	var responseMinsTotal, responseCount int
	for _, rec := range page.Records {
		inq := decodeInquiry(rec)
		m.CountsByChannel[inq.Channel]++
		m.CountsByStatus[inq.Status]++

		switch inq.Status {
		case StatusResolved:
			m.TotalResolved++
		default:
			m.TotalOpen++
		}

		if inq.FirstResponseAt != nil {
			responseMinsTotal += int(inq.FirstResponseAt.Sub(inq.CreatedAt).Minutes())
			responseCount++
		}
	}

	if responseCount > 0 {
		m.AvgFirstResponseMins = roundDiv(responseMinsTotal, responseCount)
	}

	return m, nil
}

func roundDiv(a, b int) int {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}

// ChannelHealth reports each registered adapter's enabled/health status
// (§4.11).
func (s *Service) ChannelHealth(ctx context.Context) []ChannelStatus {
	adapters := s.channels.All()
	out := make([]ChannelStatus, 0, len(adapters))
	for _, adapter := range adapters {
		status := ChannelStatus{Channel: adapter.Slug(), Enabled: adapter.IsEnabled()}
		if status.Enabled {
			healthy, diagnostic := adapter.HealthCheck(ctx)
			status.Healthy = healthy
			if !healthy {
				status.Error = diagnostic
			}
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

func decodeInquiry(rec store.Record) Inquiry {
	inq := Inquiry{
		ID:            asString(rec["id"]),
		Channel:       asString(rec["channel"]),
		ExternalID:    asString(rec["external_id"]),
		Subject:       asString(rec["subject"]),
		CustomerName:  asString(rec["customer_name"]),
		CustomerEmail: asString(rec["customer_email"]),
		CustomerPhone: asString(rec["customer_phone"]),
		Status:        Status(asString(rec["status"])),
		Priority:      Priority(asString(rec["priority"])),
		AssignedTo:    asString(rec["assigned_to"]),
		LinkedOrderID: asString(rec["linked_order_id"]),
		CreatedAt:     asTime(rec["created_at"]),
		UpdatedAt:     asTime(rec["updated_at"]),
	}
	if v := asString(rec["first_response_at"]); v != "" {
		t := asTime(rec["first_response_at"])
		inq.FirstResponseAt = &t
	}
	if v := asString(rec["resolved_at"]); v != "" {
		t := asTime(rec["resolved_at"])
		inq.ResolvedAt = &t
	}
	return inq
}

func decodeMessage(rec store.Record) Message {
	return Message{
		ID:             asString(rec["id"]),
		InquiryID:      asString(rec["inquiry_id"]),
		Direction:      asString(rec["direction"]),
		Content:        asString(rec["content"]),
		AgentName:      asString(rec["agent_name"]),
		DeliveryStatus: asString(rec["delivery_status"]),
		CreatedAt:      asTime(rec["created_at"]),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asTime(v any) time.Time {
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

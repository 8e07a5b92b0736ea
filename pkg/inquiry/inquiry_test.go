package inquiry

import (
	"context"
	"errors"
	"testing"

	"github.com/haneulsim/esimcore/internal/store"
	"github.com/haneulsim/esimcore/pkg/channel"
)

type stubChannel struct {
	slug      string
	enabled   bool
	healthy   bool
	inquiries []channel.ExternalInquiry
	fetchErr  error
	replies   []string
	replyErr  error
}

func (c *stubChannel) Slug() string        { return c.slug }
func (c *stubChannel) DisplayName() string { return c.slug }
func (c *stubChannel) IsEnabled() bool     { return c.enabled }
func (c *stubChannel) HealthCheck(ctx context.Context) (bool, string) {
	if c.healthy {
		return true, ""
	}
	return false, "unreachable"
}
func (c *stubChannel) FetchInquiries(ctx context.Context, opts channel.FetchInquiriesOptions) ([]channel.ExternalInquiry, error) {
	return c.inquiries, c.fetchErr
}
func (c *stubChannel) FetchMessages(ctx context.Context, externalID string) ([]channel.ExternalMessage, error) {
	return nil, nil
}
func (c *stubChannel) SendReply(ctx context.Context, externalID, content string) channel.ReplyResult {
	c.replies = append(c.replies, content)
	if c.replyErr != nil {
		return channel.ReplyResult{DeliveryStatus: "failed", Err: c.replyErr}
	}
	return channel.ReplyResult{DeliveryStatus: "sent", ExternalMessageID: "ext-msg-1"}
}

func newTestService() (*Service, *channel.InquiryChannelRegistry) {
	mem := store.NewMemoryStore()
	registry := channel.NewInquiryChannelRegistry()
	svc := NewService(mem.Collection(InquiriesCollection), mem.Collection(MessagesCollection), registry)
	return svc, registry
}

func TestCreateSeedsInboundMessage(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	inq, err := svc.Create(ctx, "smartstore", channel.ExternalInquiry{
		ExternalID:   "ext-1",
		Subject:      "eSIM not activating",
		Content:      "my esim won't activate",
		CustomerName: "Jane Doe",
		Email:        "jane@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inq.Status != StatusNew || inq.Priority != PriorityNormal {
		t.Fatalf("expected new/normal defaults, got %+v", inq)
	}

	msgs, err := svc.GetMessages(ctx, inq.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Direction != "inbound" || msgs[0].Content != "my esim won't activate" {
		t.Fatalf("expected single inbound seed message, got %+v", msgs)
	}
}

func TestUpdateToResolvedStampsResolvedAt(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	inq, _ := svc.Create(ctx, "smartstore", channel.ExternalInquiry{ExternalID: "ext-2", Content: "hi"})

	resolved := StatusResolved
	updated, err := svc.Update(ctx, inq.ID, UpdatePatch{Status: &resolved})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusResolved || updated.ResolvedAt == nil {
		t.Fatalf("expected resolved status with resolved_at stamped, got %+v", updated)
	}
}

func TestSendReplyTransitionsToInProgressAndStampsFirstResponse(t *testing.T) {
	svc, registry := newTestService()
	ctx := context.Background()
	stub := &stubChannel{slug: "smartstore", enabled: true}
	registry.Register(stub)

	inq, _ := svc.Create(ctx, "smartstore", channel.ExternalInquiry{ExternalID: "ext-3", Content: "hi"})

	msg, err := svc.SendReply(ctx, inq.ID, "we're looking into it", "agent-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.DeliveryStatus != "sent" || msg.Direction != "outbound" {
		t.Fatalf("expected sent outbound message, got %+v", msg)
	}

	updated, err := svc.Get(ctx, inq.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", updated.Status)
	}
	if updated.FirstResponseAt == nil {
		t.Fatalf("expected first_response_at to be stamped")
	}
}

func TestSendReplyUnknownChannelReturnsError(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	inq, _ := svc.Create(ctx, "unregistered", channel.ExternalInquiry{ExternalID: "ext-4", Content: "hi"})

	_, err := svc.SendReply(ctx, inq.ID, "reply", "agent-1")
	if !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestSyncFromAllChannelsUpsertsNewInquiriesOnly(t *testing.T) {
	svc, registry := newTestService()
	ctx := context.Background()
	stub := &stubChannel{
		slug:    "smartstore",
		enabled: true,
		inquiries: []channel.ExternalInquiry{
			{ExternalID: "ext-5", Content: "first"},
			{ExternalID: "ext-6", Content: "second"},
		},
	}
	registry.Register(stub)

	result := svc.SyncFromAllChannels(ctx)
	if result.Synced != 2 || len(result.Errors) != 0 {
		t.Fatalf("expected 2 synced, 0 errors, got %+v", result)
	}

	// second sweep with the same external ids should not duplicate
	result2 := svc.SyncFromAllChannels(ctx)
	if result2.Synced != 0 {
		t.Fatalf("expected 0 newly synced on repeat sweep, got %d", result2.Synced)
	}
}

func TestSyncFromAllChannelsSkipsDisabledAdapters(t *testing.T) {
	svc, registry := newTestService()
	ctx := context.Background()
	registry.Register(&stubChannel{slug: "kakao", enabled: false, inquiries: []channel.ExternalInquiry{{ExternalID: "x"}}})

	result := svc.SyncFromAllChannels(ctx)
	if result.Synced != 0 {
		t.Fatalf("expected disabled adapter to be skipped, got synced=%d", result.Synced)
	}
}

func TestMetricsAggregatesCountsAndAverageFirstResponse(t *testing.T) {
	svc, registry := newTestService()
	ctx := context.Background()
	stub := &stubChannel{slug: "smartstore", enabled: true}
	registry.Register(stub)

	a, _ := svc.Create(ctx, "smartstore", channel.ExternalInquiry{ExternalID: "ext-7", Content: "hi"})
	_, _ = svc.Create(ctx, "smartstore", channel.ExternalInquiry{ExternalID: "ext-8", Content: "hi"})

	if _, err := svc.SendReply(ctx, a.ID, "reply", "agent-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m, err := svc.Metrics(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.TotalOpen != 2 || m.TotalResolved != 0 {
		t.Fatalf("expected 2 open 0 resolved, got %+v", m)
	}
	if m.CountsByChannel["smartstore"] != 2 {
		t.Fatalf("expected 2 counted for smartstore channel, got %+v", m.CountsByChannel)
	}
	// The one reply was sent immediately after creation, so the average
	// first response rounds to 0 minutes.
	if m.AvgFirstResponseMins != 0 {
		t.Fatalf("expected average first response of 0 minutes, got %d", m.AvgFirstResponseMins)
	}
}

func TestChannelHealthReportsEnabledAndHealthy(t *testing.T) {
	svc, registry := newTestService()
	registry.Register(&stubChannel{slug: "kakao", enabled: true, healthy: true})
	registry.Register(&stubChannel{slug: "talktalk", enabled: false})

	statuses := svc.ChannelHealth(context.Background())
	if len(statuses) != 2 {
		t.Fatalf("expected 2 channel statuses, got %d", len(statuses))
	}
	byChannel := map[string]ChannelStatus{}
	for _, st := range statuses {
		byChannel[st.Channel] = st
	}
	if !byChannel["kakao"].Enabled || !byChannel["kakao"].Healthy {
		t.Fatalf("expected kakao enabled+healthy, got %+v", byChannel["kakao"])
	}
	if byChannel["talktalk"].Enabled {
		t.Fatalf("expected talktalk disabled")
	}
}

func TestListFiltersByStatusSet(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a, _ := svc.Create(ctx, "smartstore", channel.ExternalInquiry{ExternalID: "ext-9", Content: "hi"})
	_, _ = svc.Create(ctx, "smartstore", channel.ExternalInquiry{ExternalID: "ext-10", Content: "hi"})

	resolved := StatusResolved
	if _, err := svc.Update(ctx, a.ID, UpdatePatch{Status: &resolved}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page, err := svc.List(ctx, Filter{Statuses: []Status{StatusNew, StatusResolved}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Inquiries) != 2 {
		t.Fatalf("expected both statuses matched, got %d", len(page.Inquiries))
	}

	page, err = svc.List(ctx, Filter{Statuses: []Status{StatusResolved}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Inquiries) != 1 || page.Inquiries[0].ID != a.ID {
		t.Fatalf("expected only resolved inquiry matched, got %+v", page.Inquiries)
	}
}

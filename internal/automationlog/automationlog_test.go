package automationlog

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/haneulsim/esimcore/internal/store"
)

func TestLog_DropsWhenFull(t *testing.T) {
	w := NewWriter(nil, slog.Default())
	// Don't start the background goroutine — nothing drains the channel.

	for i := 0; i < bufferSize; i++ {
		w.Log(Entry{Action: "test", OrderID: "ord-1"})
	}

	// The next log should be dropped (non-blocking).
	w.Log(Entry{Action: "dropped", OrderID: "ord-2"})

	if len(w.entries) != bufferSize {
		t.Errorf("buffer size = %d, want %d", len(w.entries), bufferSize)
	}
}

func TestStartFlushesEntriesOnClose(t *testing.T) {
	mem := store.NewMemoryStore()
	coll := mem.Collection(CollectionName)
	w := NewWriter(coll, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	w.Log(Entry{OrderID: "ord-1", CorrelationID: "corr-1", Action: "fulfillment_started"})
	w.Log(Entry{OrderID: "ord-1", CorrelationID: "corr-1", Action: "provider_confirmed"})

	w.Close()

	page, err := coll.List(context.Background(), store.ListOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Records) != 2 {
		t.Fatalf("expected 2 flushed entries, got %d", len(page.Records))
	}
}

func TestStartFlushesOnTicker(t *testing.T) {
	mem := store.NewMemoryStore()
	coll := mem.Collection(CollectionName)
	w := NewWriter(coll, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	w.Log(Entry{OrderID: "ord-2", Action: "manual_fulfillment"})

	deadline := time.Now().Add(flushInterval + 2*time.Second)
	for time.Now().Before(deadline) {
		page, err := coll.List(context.Background(), store.ListOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(page.Records) == 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("entry was not flushed by the ticker in time")
}

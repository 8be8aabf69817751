package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/louisbranch/chronicler/internal/storage"
	"github.com/louisbranch/chronicler/internal/storage/memory"
)

func TestEmitter_PersistsEvents(t *testing.T) {
	store := memory.NewStore()
	now := time.Date(2026, 8, 1, 23, 0, 0, 0, time.UTC)
	emitter := NewEmitter(store).WithClock(func() time.Time { return now })
	ctx := context.Background()

	emitter.RecordBatchPrepared(ctx, BatchPrepared{
		SessionID:  "session-1",
		BatchID:    "batch-001",
		Status:     "ready",
		DeltaCount: 3,
	})
	emitter.RecordSearchDrift(ctx, SearchDrift{
		SessionID: "session-1",
		BatchID:   "batch-001",
		JobID:     "job-1",
		Reason:    "version_mismatch",
	})

	events, err := store.ListTelemetryEvents(ctx, 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}

	// Newest first: the drift event leads.
	if events[0].Kind != KindSearchDrift {
		t.Fatalf("kind = %q, want %q", events[0].Kind, KindSearchDrift)
	}
	if !events[0].Timestamp.Equal(now) {
		t.Fatalf("timestamp = %v, want %v", events[0].Timestamp, now)
	}

	var prepared BatchPrepared
	if err := json.Unmarshal(events[1].Payload, &prepared); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if prepared.DeltaCount != 3 || prepared.Status != "ready" {
		t.Fatalf("payload = %+v", prepared)
	}
}

func TestEmitter_NilStoreIsNoop(t *testing.T) {
	emitter := NewEmitter(nil)
	// Must not panic.
	emitter.RecordBatchPublished(context.Background(), BatchPublished{SessionID: "session-1"})
}

func TestNopRecorder_ImplementsRecorder(t *testing.T) {
	var _ Recorder = NopRecorder{}
	var _ Recorder = (*Emitter)(nil)

	var store storage.TelemetryStore = memory.NewStore()
	var _ Recorder = NewEmitter(store)
}

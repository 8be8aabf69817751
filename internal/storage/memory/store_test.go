package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/chronicler/internal/publish/cadence"
	"github.com/louisbranch/chronicler/internal/storage"
)

func TestScheduleRoundTrip(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	schedule := cadence.Schedule{
		SessionID: "session-1",
		ClosedAt:  time.Date(2026, 8, 1, 22, 0, 0, 0, time.UTC),
		Batches: []cadence.Batch{
			{BatchID: "batch-001", Status: cadence.BatchStatusScheduled},
		},
	}
	if err := store.PutSchedule(ctx, schedule); err != nil {
		t.Fatalf("put schedule: %v", err)
	}

	got, err := store.GetSchedule(ctx, "session-1")
	if err != nil {
		t.Fatalf("get schedule: %v", err)
	}
	if got.SessionID != "session-1" || len(got.Batches) != 1 {
		t.Fatalf("schedule = %+v", got)
	}

	// Mutating the returned copy must not touch the stored record.
	got.Batches[0].Status = cadence.BatchStatusPublished
	again, err := store.GetSchedule(ctx, "session-1")
	if err != nil {
		t.Fatalf("re-get schedule: %v", err)
	}
	if again.Batches[0].Status != cadence.BatchStatusScheduled {
		t.Fatalf("stored schedule mutated: %v", again.Batches[0].Status)
	}
}

func TestGetSchedule_NotFound(t *testing.T) {
	store := NewStore()
	_, err := store.GetSchedule(context.Background(), "session-missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRetryJobs_FilteredBySession(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, sessionID := range []string{"session-1", "session-2", "session-1"} {
		err := store.AppendRetryJob(ctx, storage.RetryJobRecord{
			RetryID:   "retry-" + sessionID,
			SessionID: sessionID,
		})
		if err != nil {
			t.Fatalf("append retry job: %v", err)
		}
	}

	jobs, err := store.ListRetryJobs(ctx, "session-1")
	if err != nil {
		t.Fatalf("list retry jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
}

func TestTelemetryEvents_NewestFirstWithLimit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	for _, kind := range []string{"first", "second", "third"} {
		if err := store.AppendTelemetryEvent(ctx, storage.TelemetryEvent{Kind: kind}); err != nil {
			t.Fatalf("append telemetry: %v", err)
		}
	}

	events, err := store.ListTelemetryEvents(ctx, 2)
	if err != nil {
		t.Fatalf("list telemetry: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Kind != "third" || events[1].Kind != "second" {
		t.Fatalf("order = %q, %q", events[0].Kind, events[1].Kind)
	}
}

package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/louisbranch/chronicler/internal/storage"
)

// Emitter persists telemetry events through a storage.TelemetryStore. It is
// a no-op when the store is nil, and storage failures are logged rather than
// propagated so telemetry can never fail a pipeline run.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a telemetry emitter over a store.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// WithClock overrides the emitter clock, for deterministic tests.
func (e *Emitter) WithClock(clock func() time.Time) *Emitter {
	e.clock = clock
	return e
}

func (e *Emitter) emit(ctx context.Context, kind, sessionID, batchID string, payload any) {
	if e == nil || e.store == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("telemetry: marshal %s event: %v", kind, err)
		return
	}
	now := time.Now
	if e.clock != nil {
		now = e.clock
	}
	event := storage.TelemetryEvent{
		Timestamp: now().UTC(),
		Kind:      kind,
		SessionID: sessionID,
		BatchID:   batchID,
		Payload:   body,
	}
	if err := e.store.AppendTelemetryEvent(ctx, event); err != nil {
		log.Printf("telemetry: append %s event: %v", kind, err)
	}
}

// RecordBatchPrepared persists a batch_prepared event.
func (e *Emitter) RecordBatchPrepared(ctx context.Context, event BatchPrepared) {
	e.emit(ctx, KindBatchPrepared, event.SessionID, event.BatchID, event)
}

// RecordBatchPublished persists a batch_published event.
func (e *Emitter) RecordBatchPublished(ctx context.Context, event BatchPublished) {
	e.emit(ctx, KindBatchPublished, event.SessionID, event.BatchID, event)
}

// RecordSearchSyncPlanned persists a search_sync_planned event.
func (e *Emitter) RecordSearchSyncPlanned(ctx context.Context, event SearchSyncPlanned) {
	e.emit(ctx, KindSearchSyncPlanned, event.SessionID, event.BatchID, event)
}

// RecordSearchDrift persists a search_drift event.
func (e *Emitter) RecordSearchDrift(ctx context.Context, event SearchDrift) {
	e.emit(ctx, KindSearchDrift, event.SessionID, event.BatchID, event)
}

// RecordSearchRetryQueued persists a search_retry_queued event.
func (e *Emitter) RecordSearchRetryQueued(ctx context.Context, event SearchRetryQueued) {
	e.emit(ctx, KindSearchRetryQueued, event.SessionID, event.BatchID, event)
}

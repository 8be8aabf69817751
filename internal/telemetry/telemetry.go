// Package telemetry records operational events emitted by the publishing
// pipeline. Recording is fire-and-forget: no stage consumes a return value
// or changes control flow based on telemetry.
package telemetry

import (
	"context"
	"time"
)

// Event kinds persisted by the emitter.
const (
	KindBatchPrepared     = "batch_prepared"
	KindBatchPublished    = "batch_published"
	KindSearchSyncPlanned = "search_sync_planned"
	KindSearchDrift       = "search_drift"
	KindSearchRetryQueued = "search_retry_queued"
)

// BatchPrepared reports a prepareBatch outcome.
type BatchPrepared struct {
	SessionID  string `json:"sessionId"`
	BatchID    string `json:"batchId"`
	Status     string `json:"status"`
	DeltaCount int    `json:"deltaCount"`
}

// BatchPublished reports a markBatchPublished outcome.
type BatchPublished struct {
	SessionID string `json:"sessionId"`
	BatchID   string `json:"batchId"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latencyMs"`
	Drifts    int    `json:"drifts"`
}

// SearchSyncPlanned reports an indexing plan.
type SearchSyncPlanned struct {
	SessionID string `json:"sessionId"`
	BatchID   string `json:"batchId"`
	JobCount  int    `json:"jobCount"`
}

// SearchDrift reports one drifted indexing result.
type SearchDrift struct {
	SessionID  string `json:"sessionId,omitempty"`
	BatchID    string `json:"batchId,omitempty"`
	JobID      string `json:"jobId"`
	Index      string `json:"index"`
	DocumentID string `json:"documentId"`
	Reason     string `json:"reason"`
}

// SearchRetryQueued reports one scheduled retry job.
type SearchRetryQueued struct {
	SessionID string    `json:"sessionId"`
	BatchID   string    `json:"batchId"`
	JobID     string    `json:"jobId"`
	Attempt   int       `json:"attempt"`
	RetryAt   time.Time `json:"retryAt"`
}

// Recorder receives pipeline telemetry callbacks.
type Recorder interface {
	RecordBatchPrepared(ctx context.Context, event BatchPrepared)
	RecordBatchPublished(ctx context.Context, event BatchPublished)
	RecordSearchSyncPlanned(ctx context.Context, event SearchSyncPlanned)
	RecordSearchDrift(ctx context.Context, event SearchDrift)
	RecordSearchRetryQueued(ctx context.Context, event SearchRetryQueued)
}

// NopRecorder discards all telemetry. It is the default collaborator.
type NopRecorder struct{}

func (NopRecorder) RecordBatchPrepared(context.Context, BatchPrepared)         {}
func (NopRecorder) RecordBatchPublished(context.Context, BatchPublished)       {}
func (NopRecorder) RecordSearchSyncPlanned(context.Context, SearchSyncPlanned) {}
func (NopRecorder) RecordSearchDrift(context.Context, SearchDrift)             {}
func (NopRecorder) RecordSearchRetryQueued(context.Context, SearchRetryQueued) {}

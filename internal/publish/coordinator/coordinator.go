// Package coordinator is the publishing pipeline's entry point. It wires the
// cadence state machine, bundle composer, moderation gate, search sync
// planner, and retry queue behind two operations: PrepareBatch and
// MarkBatchPublished.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	platformerrors "github.com/louisbranch/chronicler/internal/platform/errors"
	"github.com/louisbranch/chronicler/internal/platform/id"
	"github.com/louisbranch/chronicler/internal/publish/cadence"
	"github.com/louisbranch/chronicler/internal/publish/compose"
	"github.com/louisbranch/chronicler/internal/searchsync"
	"github.com/louisbranch/chronicler/internal/storage"
	"github.com/louisbranch/chronicler/internal/telemetry"
	"github.com/louisbranch/chronicler/internal/worldelta"
)

const tracerName = "chronicler/publish/coordinator"

// Deps are the coordinator's collaborators. Schedules is required; nil
// optional collaborators fall back to defaults (in-process composer, planner,
// retry queue, no-op recorder, no durable retry rows).
type Deps struct {
	Schedules storage.ScheduleStore
	RetryJobs storage.RetryJobStore
	Composer  *compose.Composer
	Planner   *searchsync.Planner
	Retries   *searchsync.RetryQueue
	Recorder  telemetry.Recorder
}

// Coordinator orchestrates one session's publishing lifecycle.
type Coordinator struct {
	schedules   storage.ScheduleStore
	retryJobs   storage.RetryJobStore
	composer    *compose.Composer
	planner     *searchsync.Planner
	retries     *searchsync.RetryQueue
	recorder    telemetry.Recorder
	clock       func() time.Time
	idGenerator func() (string, error)
	tracer      trace.Tracer
	fastDelay   time.Duration
	digestDelay time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the coordinator's clock, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithIDGenerator overrides batch and record ID generation.
func WithIDGenerator(generator func() (string, error)) Option {
	return func(c *Coordinator) {
		c.idGenerator = generator
	}
}

// WithCadence overrides the fast and digest batch delays used when planning
// a new session schedule.
func WithCadence(fast, digest time.Duration) Option {
	return func(c *Coordinator) {
		c.fastDelay = fast
		c.digestDelay = digest
	}
}

// New creates a coordinator.
func New(deps Deps, opts ...Option) (*Coordinator, error) {
	if deps.Schedules == nil {
		return nil, fmt.Errorf("schedule store is required")
	}
	if deps.Recorder == nil {
		deps.Recorder = telemetry.NopRecorder{}
	}
	coordinator := &Coordinator{
		schedules:   deps.Schedules,
		retryJobs:   deps.RetryJobs,
		composer:    deps.Composer,
		planner:     deps.Planner,
		retries:     deps.Retries,
		recorder:    deps.Recorder,
		clock:       time.Now,
		idGenerator: id.NewID,
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(coordinator)
	}
	if coordinator.composer == nil {
		coordinator.composer = compose.NewComposer(compose.WithIDGenerator(coordinator.idGenerator))
	}
	if coordinator.planner == nil {
		coordinator.planner = searchsync.NewPlanner(deps.Recorder, searchsync.WithPlannerIDGenerator(coordinator.idGenerator))
	}
	if coordinator.retries == nil {
		coordinator.retries = searchsync.NewRetryQueue(deps.Recorder, searchsync.WithRetryClock(coordinator.clock))
	}
	return coordinator, nil
}

// EnsureSession returns the session's publishing schedule, planning one on
// first sight. Re-invocation returns the stored schedule unchanged.
func (c *Coordinator) EnsureSession(ctx context.Context, sessionID string, closedAt time.Time) (cadence.Schedule, error) {
	schedule, err := c.schedules.GetSchedule(ctx, sessionID)
	if err == nil {
		return schedule, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return cadence.Schedule{}, fmt.Errorf("load schedule for session %s: %w", sessionID, err)
	}

	schedule, err = cadence.PlanForSession(cadence.PlanInput{
		SessionID:   sessionID,
		ClosedAt:    closedAt,
		FastDelay:   c.fastDelay,
		DigestDelay: c.digestDelay,
		IDGenerator: c.idGenerator,
	})
	if err != nil {
		return cadence.Schedule{}, err
	}
	if err := c.schedules.PutSchedule(ctx, schedule); err != nil {
		return cadence.Schedule{}, fmt.Errorf("store schedule for session %s: %w", sessionID, err)
	}
	return schedule, nil
}

// ModerationQueue reflects the moderation gate's state after a prepare call.
type ModerationQueue struct {
	PendingCount int    `json:"pendingCount"`
	DecisionID   string `json:"decisionId,omitempty"`
	ApprovedBy   string `json:"approvedBy,omitempty"`
}

// PrepareBatchInput parameterizes one prepare call.
type PrepareBatchInput struct {
	SessionID            string
	SessionClosedAt      time.Time
	BatchID              string
	Deltas               []worldelta.Delta
	ModerationDecisionID string
	ApprovedBy           string
	// Republish allows composing a batch that already produced artifacts,
	// appending new revisions.
	Republish bool
}

// PrepareBatchResult is the outcome of one prepare call. Publishing is nil
// while the batch is gated behind moderation.
type PrepareBatchResult struct {
	Status          cadence.BatchStatus `json:"status"`
	Schedule        cadence.Schedule    `json:"schedule"`
	Publishing      *compose.Result     `json:"publishing"`
	SearchPlan      searchsync.Plan     `json:"searchPlan"`
	Moderation      worldelta.Rollup    `json:"moderation"`
	ModerationQueue ModerationQueue     `json:"moderationQueue"`
}

// PrepareBatch resolves the target batch, applies the moderation gate, and
// on a clear gate composes artifacts and plans search indexing. Deltas that
// require moderation block composition until a moderation decision ID is
// supplied.
func (c *Coordinator) PrepareBatch(ctx context.Context, input PrepareBatchInput) (PrepareBatchResult, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.prepare_batch", trace.WithAttributes(
		attribute.String("session.id", input.SessionID),
		attribute.String("batch.id", input.BatchID),
	))
	defer span.End()

	schedule, err := c.EnsureSession(ctx, input.SessionID, input.SessionClosedAt)
	if err != nil {
		return PrepareBatchResult{}, err
	}
	batch, err := schedule.Batch(input.BatchID)
	if err != nil {
		return PrepareBatchResult{}, err
	}
	span.SetAttributes(attribute.String("batch.resolved_id", batch.BatchID))

	switch batch.Status {
	case cadence.BatchStatusReady, cadence.BatchStatusPublished, cadence.BatchStatusRetryPending:
		if !input.Republish {
			return PrepareBatchResult{}, platformerrors.WithMetadata(
				platformerrors.CodePublishBatchAlreadyPrepared,
				fmt.Sprintf("batch %s already composed artifacts; pass republish to compose again", batch.BatchID),
				map[string]string{
					"session_id": input.SessionID,
					"batch_id":   batch.BatchID,
					"status":     string(batch.Status),
				},
			)
		}
	}

	moderation := worldelta.Summarize(input.Deltas)
	ref := searchsync.Ref{SessionID: input.SessionID, BatchID: batch.BatchID}

	if moderation.RequiresModeration && input.ModerationDecisionID == "" {
		if err := batch.TransitionTo(cadence.BatchStatusAwaitingModeration); err != nil {
			return PrepareBatchResult{}, err
		}
		batch.DeltaCount = len(input.Deltas)
		if err := c.schedules.PutSchedule(ctx, schedule); err != nil {
			return PrepareBatchResult{}, fmt.Errorf("store schedule for session %s: %w", input.SessionID, err)
		}

		pending := 0
		for _, delta := range input.Deltas {
			if delta.Safety.RequiresModeration {
				pending++
			}
		}
		c.recorder.RecordBatchPrepared(ctx, telemetry.BatchPrepared{
			SessionID:  input.SessionID,
			BatchID:    batch.BatchID,
			Status:     string(cadence.BatchStatusAwaitingModeration),
			DeltaCount: len(input.Deltas),
		})
		return PrepareBatchResult{
			Status:          cadence.BatchStatusAwaitingModeration,
			Schedule:        schedule.Clone(),
			Publishing:      nil,
			SearchPlan:      searchsync.BlockedPlan(input.SessionID, batch.BatchID),
			Moderation:      moderation,
			ModerationQueue: ModerationQueue{PendingCount: pending},
		}, nil
	}

	// Move the batch to ready before composing so an illegal transition
	// never strands appended composer revisions.
	if err := batch.TransitionTo(cadence.BatchStatusReady); err != nil {
		return PrepareBatchResult{}, err
	}
	publishing, err := c.composer.Compose(compose.Input{
		SessionID: input.SessionID,
		BatchID:   batch.BatchID,
		PublishAt: batch.RunAt,
		Deltas:    input.Deltas,
	})
	if err != nil {
		return PrepareBatchResult{}, fmt.Errorf("compose batch %s: %w", batch.BatchID, err)
	}
	batch.DeltaCount = len(input.Deltas)
	if err := c.schedules.PutSchedule(ctx, schedule); err != nil {
		return PrepareBatchResult{}, fmt.Errorf("store schedule for session %s: %w", input.SessionID, err)
	}

	plan, err := c.planner.Plan(ctx, publishing, ref)
	if err != nil {
		return PrepareBatchResult{}, err
	}
	c.recorder.RecordBatchPrepared(ctx, telemetry.BatchPrepared{
		SessionID:  input.SessionID,
		BatchID:    batch.BatchID,
		Status:     string(cadence.BatchStatusReady),
		DeltaCount: len(input.Deltas),
	})
	return PrepareBatchResult{
		Status:     cadence.BatchStatusReady,
		Schedule:   schedule.Clone(),
		Publishing: &publishing,
		SearchPlan: plan,
		Moderation: moderation,
		ModerationQueue: ModerationQueue{
			DecisionID: input.ModerationDecisionID,
			ApprovedBy: input.ApprovedBy,
		},
	}, nil
}

// MarkBatchPublishedInput parameterizes one publish confirmation.
type MarkBatchPublishedInput struct {
	SessionID     string
	BatchID       string
	SearchResults []searchsync.Result
	// PublishedAt defaults to the coordinator clock when zero.
	PublishedAt time.Time
	// Attempt is the retry attempt number for drifted jobs; defaults to 1.
	Attempt int
	// DeltaCount overrides the batch's recorded delta count when positive.
	DeltaCount int
}

// MarkBatchPublishedResult is the outcome of one publish confirmation.
type MarkBatchPublishedResult struct {
	Schedule     cadence.Schedule        `json:"schedule"`
	Status       cadence.BatchStatus     `json:"status"`
	LatencyMs    int64                   `json:"latencyMs"`
	Drifts       []searchsync.Drift      `json:"drifts"`
	RetryJobs    []searchsync.RetryJob   `json:"retryJobs"`
	RetrySummary searchsync.QueueSummary `json:"retrySummary"`
}

// MarkBatchPublished records a publish outcome: it evaluates the reported
// search results for drift, queues a retry per drifted document, and settles
// the batch as published or retry_pending.
func (c *Coordinator) MarkBatchPublished(ctx context.Context, input MarkBatchPublishedInput) (MarkBatchPublishedResult, error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.mark_batch_published", trace.WithAttributes(
		attribute.String("session.id", input.SessionID),
		attribute.String("batch.id", input.BatchID),
	))
	defer span.End()

	if strings.TrimSpace(input.SessionID) == "" {
		return MarkBatchPublishedResult{}, platformerrors.New(platformerrors.CodePublishSessionRequired, "session id is required")
	}
	schedule, err := c.schedules.GetSchedule(ctx, input.SessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return MarkBatchPublishedResult{}, platformerrors.WithMetadata(
				platformerrors.CodePublishUnknownSession,
				fmt.Sprintf("session %s has no publishing schedule", input.SessionID),
				map[string]string{"session_id": input.SessionID},
			)
		}
		return MarkBatchPublishedResult{}, fmt.Errorf("load schedule for session %s: %w", input.SessionID, err)
	}
	batch, err := schedule.Batch(input.BatchID)
	if err != nil {
		return MarkBatchPublishedResult{}, err
	}

	publishedAt := input.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = c.clock()
	}
	latencyMs := publishedAt.Sub(batch.RunAt).Milliseconds()
	if latencyMs < 0 {
		latencyMs = 0
	}

	ref := searchsync.Ref{SessionID: input.SessionID, BatchID: batch.BatchID}
	drifts := c.planner.Evaluate(ctx, ref, input.SearchResults)

	attempt := input.Attempt
	if attempt < 1 {
		attempt = 1
	}
	retryJobs := make([]searchsync.RetryJob, 0, len(drifts))
	for _, drift := range drifts {
		job, err := c.retries.Enqueue(ctx, searchsync.EnqueueInput{
			Drift:   drift,
			Ref:     ref,
			Attempt: attempt,
		})
		if err != nil {
			return MarkBatchPublishedResult{}, fmt.Errorf("queue retry for job %s: %w", drift.JobID, err)
		}
		retryJobs = append(retryJobs, job)
		if err := c.persistRetryJob(ctx, ref, job); err != nil {
			return MarkBatchPublishedResult{}, err
		}
	}

	summary := c.retries.Summarize()
	nextStatus := cadence.BatchStatusPublished
	if summary.PendingCount > 0 {
		nextStatus = cadence.BatchStatusRetryPending
	}
	if err := batch.TransitionTo(nextStatus); err != nil {
		return MarkBatchPublishedResult{}, err
	}
	if input.DeltaCount > 0 {
		batch.DeltaCount = input.DeltaCount
	}
	if err := c.schedules.PutSchedule(ctx, schedule); err != nil {
		return MarkBatchPublishedResult{}, fmt.Errorf("store schedule for session %s: %w", input.SessionID, err)
	}

	c.recorder.RecordBatchPublished(ctx, telemetry.BatchPublished{
		SessionID: input.SessionID,
		BatchID:   batch.BatchID,
		Status:    string(nextStatus),
		LatencyMs: latencyMs,
		Drifts:    len(drifts),
	})
	return MarkBatchPublishedResult{
		Schedule:     schedule.Clone(),
		Status:       nextStatus,
		LatencyMs:    latencyMs,
		Drifts:       drifts,
		RetryJobs:    retryJobs,
		RetrySummary: summary,
	}, nil
}

// RetrySummary exposes the shared retry queue's current state.
func (c *Coordinator) RetrySummary() searchsync.QueueSummary {
	return c.retries.Summarize()
}

// DrainRetries removes and returns all pending retry jobs for re-planning.
func (c *Coordinator) DrainRetries() []searchsync.RetryJob {
	return c.retries.Drain()
}

func (c *Coordinator) persistRetryJob(ctx context.Context, ref searchsync.Ref, job searchsync.RetryJob) error {
	if c.retryJobs == nil {
		return nil
	}
	retryID, err := c.idGenerator()
	if err != nil {
		return fmt.Errorf("generate retry record id: %w", err)
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal retry job %s: %w", job.JobID, err)
	}
	record := storage.RetryJobRecord{
		RetryID:    retryID,
		SessionID:  ref.SessionID,
		BatchID:    ref.BatchID,
		JobID:      job.JobID,
		Index:      job.Index,
		DocumentID: job.DocumentID,
		Attempt:    job.Attempt,
		RetryAt:    job.RetryAt,
		Reason:     job.Reason,
		Payload:    payload,
		CreatedAt:  c.clock(),
	}
	if err := c.retryJobs.AppendRetryJob(ctx, record); err != nil {
		return fmt.Errorf("store retry job %s: %w", job.JobID, err)
	}
	return nil
}

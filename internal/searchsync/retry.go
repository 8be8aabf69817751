package searchsync

import (
	"context"
	"sync"
	"time"

	platformerrors "github.com/louisbranch/chronicler/internal/platform/errors"
	"github.com/louisbranch/chronicler/internal/telemetry"
)

// Retry queue defaults.
const (
	DefaultMaxAttempts   = 3
	DefaultBaseRetryWait = 5 * time.Minute
)

// Queue statuses.
const (
	QueueStatusPending = "pending"
	QueueStatusClear   = "clear"
)

// RetryJob is one scheduled re-index attempt.
type RetryJob struct {
	JobID      string    `json:"jobId"`
	Index      string    `json:"index"`
	DocumentID string    `json:"documentId"`
	Reason     string    `json:"reason"`
	Attempt    int       `json:"attempt"`
	RetryAt    time.Time `json:"retryAt"`
}

// QueueSummary is a point-in-time view of pending retry work.
type QueueSummary struct {
	PendingCount int        `json:"pendingCount"`
	Status       string     `json:"status"`
	NextRetryAt  *time.Time `json:"nextRetryAt,omitempty"`
	Jobs         []RetryJob `json:"jobs"`
}

// EnqueueInput schedules a retry for one drifted result.
type EnqueueInput struct {
	Drift   Drift
	Ref     Ref
	Attempt int
}

// RetryQueue holds drifted indexing jobs awaiting another attempt. Delays
// double per attempt from a fixed base. Safe for concurrent use.
type RetryQueue struct {
	mu          sync.Mutex
	jobs        []RetryJob
	recorder    telemetry.Recorder
	clock       func() time.Time
	baseDelay   time.Duration
	maxAttempts int
}

// RetryOption configures a RetryQueue.
type RetryOption func(*RetryQueue)

// WithRetryClock overrides the queue's clock, for deterministic tests.
func WithRetryClock(clock func() time.Time) RetryOption {
	return func(q *RetryQueue) {
		q.clock = clock
	}
}

// WithBaseDelay overrides the first-attempt delay.
func WithBaseDelay(delay time.Duration) RetryOption {
	return func(q *RetryQueue) {
		if delay > 0 {
			q.baseDelay = delay
		}
	}
}

// WithMaxAttempts overrides the attempt ceiling.
func WithMaxAttempts(max int) RetryOption {
	return func(q *RetryQueue) {
		if max > 0 {
			q.maxAttempts = max
		}
	}
}

// NewRetryQueue creates an empty queue. A nil recorder discards telemetry.
func NewRetryQueue(recorder telemetry.Recorder, opts ...RetryOption) *RetryQueue {
	if recorder == nil {
		recorder = telemetry.NopRecorder{}
	}
	queue := &RetryQueue{
		recorder:    recorder,
		clock:       time.Now,
		baseDelay:   DefaultBaseRetryWait,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(queue)
	}
	return queue
}

// Enqueue schedules a retry for a drifted job. The attempt number is
// clamped to [1, maxAttempts] and the delay doubles per prior attempt.
func (q *RetryQueue) Enqueue(ctx context.Context, input EnqueueInput) (RetryJob, error) {
	if input.Drift.JobID == "" {
		return RetryJob{}, platformerrors.New(platformerrors.CodeSearchRetryJobRequired, "drift job id is required")
	}

	attempt := input.Attempt
	if attempt < 1 {
		attempt = 1
	}
	if attempt > q.maxAttempts {
		attempt = q.maxAttempts
	}

	delay := q.baseDelay * (1 << (attempt - 1))
	job := RetryJob{
		JobID:      input.Drift.JobID,
		Index:      input.Drift.Index,
		DocumentID: input.Drift.DocumentID,
		Reason:     input.Drift.Reason,
		Attempt:    attempt,
		RetryAt:    q.clock().Add(delay),
	}

	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	q.recorder.RecordSearchRetryQueued(ctx, telemetry.SearchRetryQueued{
		SessionID: input.Ref.SessionID,
		BatchID:   input.Ref.BatchID,
		JobID:     job.JobID,
		Attempt:   job.Attempt,
		RetryAt:   job.RetryAt,
	})
	return job, nil
}

// Pending returns a copy of the queued jobs in enqueue order.
func (q *RetryQueue) Pending() []RetryJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := make([]RetryJob, len(q.jobs))
	copy(jobs, q.jobs)
	return jobs
}

// Summarize reports the queue state without mutating it. NextRetryAt is
// the earliest scheduled retry across pending jobs.
func (q *RetryQueue) Summarize() QueueSummary {
	q.mu.Lock()
	defer q.mu.Unlock()

	summary := QueueSummary{
		PendingCount: len(q.jobs),
		Status:       QueueStatusClear,
		Jobs:         make([]RetryJob, len(q.jobs)),
	}
	copy(summary.Jobs, q.jobs)

	if len(q.jobs) == 0 {
		return summary
	}
	summary.Status = QueueStatusPending
	next := q.jobs[0].RetryAt
	for _, job := range q.jobs[1:] {
		if job.RetryAt.Before(next) {
			next = job.RetryAt
		}
	}
	summary.NextRetryAt = &next
	return summary
}

// Drain removes and returns all queued jobs atomically.
func (q *RetryQueue) Drain() []RetryJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := q.jobs
	q.jobs = nil
	if jobs == nil {
		jobs = []RetryJob{}
	}
	return jobs
}

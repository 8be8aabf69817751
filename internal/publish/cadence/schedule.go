// Package cadence owns per-session publishing schedules and the batch status
// state machine.
package cadence

import (
	"fmt"
	"strings"
	"time"

	platformerrors "github.com/louisbranch/chronicler/internal/platform/errors"
)

// BatchStatus describes the lifecycle state of a publishing batch.
type BatchStatus string

const (
	// BatchStatusScheduled is the initial state of a planned batch.
	BatchStatusScheduled BatchStatus = "scheduled"
	// BatchStatusAwaitingModeration blocks the batch behind the moderation gate.
	BatchStatusAwaitingModeration BatchStatus = "awaiting_moderation"
	// BatchStatusReady means artifacts are composed and awaiting publish.
	BatchStatusReady BatchStatus = "ready"
	// BatchStatusPublished is a terminal success state.
	BatchStatusPublished BatchStatus = "published"
	// BatchStatusRetryPending means the publish left drifted search documents.
	BatchStatusRetryPending BatchStatus = "retry_pending"
)

// legalTransitions maps each status to the statuses it may move to. A status
// may always re-enter itself (idempotent writes).
var legalTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusScheduled:          {BatchStatusAwaitingModeration, BatchStatusReady},
	BatchStatusAwaitingModeration: {BatchStatusAwaitingModeration, BatchStatusReady},
	BatchStatusReady:              {BatchStatusPublished, BatchStatusRetryPending},
	// retry_pending returns to published once an external drain confirms
	// resolution; it re-enters ready when the batch is recomposed for an
	// explicit republish.
	BatchStatusRetryPending: {BatchStatusPublished, BatchStatusReady, BatchStatusRetryPending},
	// published re-enters ready only via explicit republish.
	BatchStatusPublished: {BatchStatusReady},
}

// Batch is a scheduled unit of publishing work for a session. Batches are
// created by planning and never deleted, only transitioned.
type Batch struct {
	BatchID    string      `json:"batchId"`
	RunAt      time.Time   `json:"runAt"`
	Status     BatchStatus `json:"status"`
	DeltaCount int         `json:"deltaCount"`
	Notes      string      `json:"notes,omitempty"`
}

// TransitionTo moves the batch to the next status, enforcing the state
// machine.
func (b *Batch) TransitionTo(next BatchStatus) error {
	if b.Status == next {
		return nil
	}
	for _, allowed := range legalTransitions[b.Status] {
		if allowed == next {
			b.Status = next
			return nil
		}
	}
	return platformerrors.WithMetadata(
		platformerrors.CodePublishInvalidTransition,
		fmt.Sprintf("batch %s cannot move from %s to %s", b.BatchID, b.Status, next),
		map[string]string{
			"batch_id": b.BatchID,
			"from":     string(b.Status),
			"to":       string(next),
		},
	)
}

// Schedule is the per-session publishing plan. Exactly one schedule exists
// per session.
type Schedule struct {
	SessionID string    `json:"sessionId"`
	ClosedAt  time.Time `json:"closedAt"`
	Batches   []Batch   `json:"batches"`
}

// Clone returns a deep copy of the schedule.
func (s Schedule) Clone() Schedule {
	out := s
	if s.Batches != nil {
		out.Batches = make([]Batch, len(s.Batches))
		copy(out.Batches, s.Batches)
	}
	return out
}

// Batch resolves a batch by ID. An empty batchID defaults to the first
// batch.
func (s *Schedule) Batch(batchID string) (*Batch, error) {
	if len(s.Batches) == 0 {
		return nil, platformerrors.WithMetadata(
			platformerrors.CodePublishNoBatches,
			fmt.Sprintf("session %s has no planned batches", s.SessionID),
			map[string]string{"session_id": s.SessionID},
		)
	}
	if strings.TrimSpace(batchID) == "" {
		return &s.Batches[0], nil
	}
	for i := range s.Batches {
		if s.Batches[i].BatchID == batchID {
			return &s.Batches[i], nil
		}
	}
	return nil, platformerrors.WithMetadata(
		platformerrors.CodePublishBatchMissing,
		fmt.Sprintf("batch %s is not planned for session %s", batchID, s.SessionID),
		map[string]string{"session_id": s.SessionID, "batch_id": batchID},
	)
}

// Planner defaults. The fast batch publishes shortly after the session
// closes; the digest batch rolls the day's approved lore into the daily
// feed.
const (
	DefaultFastDelay   = 30 * time.Minute
	DefaultDigestDelay = 24 * time.Hour
)

// PlanInput parameterizes schedule planning for one closed session.
type PlanInput struct {
	SessionID   string
	ClosedAt    time.Time
	FastDelay   time.Duration
	DigestDelay time.Duration
	IDGenerator func() (string, error)
}

// PlanForSession creates the publishing schedule for a freshly closed
// session: a fast batch and a daily digest batch, both scheduled.
func PlanForSession(input PlanInput) (Schedule, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return Schedule{}, platformerrors.New(platformerrors.CodePublishSessionRequired, "session id is required")
	}
	if input.ClosedAt.IsZero() {
		return Schedule{}, platformerrors.New(platformerrors.CodePublishInvalidTimestamp, "session closed timestamp is required")
	}
	if input.IDGenerator == nil {
		return Schedule{}, fmt.Errorf("id generator is required")
	}
	fastDelay := input.FastDelay
	if fastDelay <= 0 {
		fastDelay = DefaultFastDelay
	}
	digestDelay := input.DigestDelay
	if digestDelay <= 0 {
		digestDelay = DefaultDigestDelay
	}

	closedAt := input.ClosedAt.UTC()
	fastID, err := input.IDGenerator()
	if err != nil {
		return Schedule{}, fmt.Errorf("generate batch id: %w", err)
	}
	digestID, err := input.IDGenerator()
	if err != nil {
		return Schedule{}, fmt.Errorf("generate batch id: %w", err)
	}

	return Schedule{
		SessionID: sessionID,
		ClosedAt:  closedAt,
		Batches: []Batch{
			{
				BatchID: fastID,
				RunAt:   closedAt.Add(fastDelay),
				Status:  BatchStatusScheduled,
				Notes:   "post-session publish",
			},
			{
				BatchID: digestID,
				RunAt:   closedAt.Add(digestDelay),
				Status:  BatchStatusScheduled,
				Notes:   "daily digest",
			},
		},
	}, nil
}

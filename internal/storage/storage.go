// Package storage defines the persistence interfaces for the publishing
// pipeline.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/chronicler/internal/publish/cadence"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ScheduleStore persists per-session publishing schedules.
type ScheduleStore interface {
	PutSchedule(ctx context.Context, schedule cadence.Schedule) error
	GetSchedule(ctx context.Context, sessionID string) (cadence.Schedule, error)
}

// RetryJobRecord is one durable search-retry job row.
type RetryJobRecord struct {
	RetryID    string
	SessionID  string
	BatchID    string
	JobID      string
	Index      string
	DocumentID string
	Attempt    int
	RetryAt    time.Time
	Reason     string
	Payload    []byte
	CreatedAt  time.Time
}

// RetryJobStore persists scheduled search-retry jobs.
type RetryJobStore interface {
	AppendRetryJob(ctx context.Context, record RetryJobRecord) error
	ListRetryJobs(ctx context.Context, sessionID string) ([]RetryJobRecord, error)
}

// TelemetryEvent is one durable pipeline telemetry record.
type TelemetryEvent struct {
	Timestamp time.Time
	Kind      string
	SessionID string
	BatchID   string
	Payload   []byte
}

// TelemetryStore persists pipeline telemetry events.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, event TelemetryEvent) error
	ListTelemetryEvents(ctx context.Context, limit int) ([]TelemetryEvent, error)
}

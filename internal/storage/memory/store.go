// Package memory provides the in-memory store used by tests and single-run
// pipeline invocations.
package memory

import (
	"context"
	"sync"

	"github.com/louisbranch/chronicler/internal/publish/cadence"
	"github.com/louisbranch/chronicler/internal/storage"
)

// Store is an in-memory implementation of the pipeline stores. It is safe
// for concurrent use.
type Store struct {
	mu        sync.Mutex
	schedules map[string]cadence.Schedule
	retries   []storage.RetryJobRecord
	telemetry []storage.TelemetryEvent
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		schedules: make(map[string]cadence.Schedule),
	}
}

// PutSchedule persists a schedule keyed by session ID.
func (s *Store) PutSchedule(ctx context.Context, schedule cadence.Schedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[schedule.SessionID] = schedule.Clone()
	return nil
}

// GetSchedule fetches a schedule by session ID.
func (s *Store) GetSchedule(ctx context.Context, sessionID string) (cadence.Schedule, error) {
	if err := ctx.Err(); err != nil {
		return cadence.Schedule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	schedule, ok := s.schedules[sessionID]
	if !ok {
		return cadence.Schedule{}, storage.ErrNotFound
	}
	return schedule.Clone(), nil
}

// AppendRetryJob records a durable retry job row.
func (s *Store) AppendRetryJob(ctx context.Context, record storage.RetryJobRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retries = append(s.retries, record)
	return nil
}

// ListRetryJobs returns retry jobs for a session in insertion order.
func (s *Store) ListRetryJobs(ctx context.Context, sessionID string) ([]storage.RetryJobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.RetryJobRecord
	for _, record := range s.retries {
		if record.SessionID == sessionID {
			out = append(out, record)
		}
	}
	return out, nil
}

// AppendTelemetryEvent records a telemetry event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.telemetry = append(s.telemetry, event)
	return nil
}

// ListTelemetryEvents returns up to limit newest-first telemetry events. A
// non-positive limit returns everything.
func (s *Store) ListTelemetryEvents(ctx context.Context, limit int) ([]storage.TelemetryEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.TelemetryEvent, 0, len(s.telemetry))
	for i := len(s.telemetry) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, s.telemetry[i])
	}
	return out, nil
}

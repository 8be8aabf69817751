// Package sqlite provides SQLite-backed publishing persistence for the
// offline driver, so pipeline state survives across invocations.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	sqlitemigrate "github.com/louisbranch/chronicler/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/chronicler/internal/publish/cadence"
	"github.com/louisbranch/chronicler/internal/storage"
	"github.com/louisbranch/chronicler/internal/storage/sqlite/migrations"
)

// Store provides SQLite-backed schedule, retry-job, and telemetry
// persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a publishing SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutSchedule upserts a session's publishing schedule as a JSON document.
func (s *Store) PutSchedule(ctx context.Context, schedule cadence.Schedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID := strings.TrimSpace(schedule.SessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	document, err := json.Marshal(schedule)
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO publishing_schedules (session_id, closed_at, document, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (session_id) DO UPDATE SET
	closed_at = excluded.closed_at,
	document = excluded.document,
	updated_at = excluded.updated_at
`,
		sessionID,
		schedule.ClosedAt.UTC().UnixMilli(),
		string(document),
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put schedule: %w", err)
	}
	return nil
}

// GetSchedule loads a session's publishing schedule.
func (s *Store) GetSchedule(ctx context.Context, sessionID string) (cadence.Schedule, error) {
	if err := ctx.Err(); err != nil {
		return cadence.Schedule{}, err
	}
	if s == nil || s.sqlDB == nil {
		return cadence.Schedule{}, fmt.Errorf("storage is not configured")
	}

	var document string
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT document FROM publishing_schedules WHERE session_id = ?",
		strings.TrimSpace(sessionID),
	)
	if err := row.Scan(&document); err != nil {
		if err == sql.ErrNoRows {
			return cadence.Schedule{}, storage.ErrNotFound
		}
		return cadence.Schedule{}, fmt.Errorf("get schedule: %w", err)
	}

	var schedule cadence.Schedule
	if err := json.Unmarshal([]byte(document), &schedule); err != nil {
		return cadence.Schedule{}, fmt.Errorf("unmarshal schedule: %w", err)
	}
	return schedule, nil
}

// AppendRetryJob persists one scheduled search-retry job.
func (s *Store) AppendRetryJob(ctx context.Context, record storage.RetryJobRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(record.RetryID) == "" {
		return fmt.Errorf("retry id is required")
	}
	if strings.TrimSpace(record.JobID) == "" {
		return fmt.Errorf("job id is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO search_retry_jobs (
	retry_id,
	session_id,
	batch_id,
	job_id,
	search_index,
	document_id,
	attempt,
	retry_at,
	reason,
	payload,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		record.RetryID,
		record.SessionID,
		record.BatchID,
		record.JobID,
		record.Index,
		record.DocumentID,
		record.Attempt,
		record.RetryAt.UTC().UnixMilli(),
		record.Reason,
		record.Payload,
		record.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append retry job: %w", err)
	}
	return nil
}

// ListRetryJobs lists a session's retry jobs in insertion order.
func (s *Store) ListRetryJobs(ctx context.Context, sessionID string) ([]storage.RetryJobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	retry_id,
	session_id,
	batch_id,
	job_id,
	search_index,
	document_id,
	attempt,
	retry_at,
	reason,
	payload,
	created_at
FROM search_retry_jobs
WHERE session_id = ?
ORDER BY id ASC
`, strings.TrimSpace(sessionID))
	if err != nil {
		return nil, fmt.Errorf("list retry jobs: %w", err)
	}
	defer rows.Close()

	var records []storage.RetryJobRecord
	for rows.Next() {
		var record storage.RetryJobRecord
		var retryAt, createdAt int64
		if err := rows.Scan(
			&record.RetryID,
			&record.SessionID,
			&record.BatchID,
			&record.JobID,
			&record.Index,
			&record.DocumentID,
			&record.Attempt,
			&retryAt,
			&record.Reason,
			&record.Payload,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan retry job: %w", err)
		}
		record.RetryAt = time.UnixMilli(retryAt).UTC()
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retry jobs: %w", err)
	}
	return records, nil
}

// AppendTelemetryEvent persists one pipeline telemetry event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, event storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(event.Kind) == "" {
		return fmt.Errorf("event kind is required")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO telemetry_events (timestamp, kind, session_id, batch_id, payload)
VALUES (?, ?, ?, ?, ?)
`,
		event.Timestamp.UTC().UnixMilli(),
		event.Kind,
		event.SessionID,
		event.BatchID,
		event.Payload,
	)
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}

// ListTelemetryEvents lists newest-first telemetry events.
func (s *Store) ListTelemetryEvents(ctx context.Context, limit int) ([]storage.TelemetryEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT timestamp, kind, session_id, batch_id, payload
FROM telemetry_events
ORDER BY timestamp DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list telemetry events: %w", err)
	}
	defer rows.Close()

	events := make([]storage.TelemetryEvent, 0, limit)
	for rows.Next() {
		var event storage.TelemetryEvent
		var timestamp int64
		if err := rows.Scan(
			&timestamp,
			&event.Kind,
			&event.SessionID,
			&event.BatchID,
			&event.Payload,
		); err != nil {
			return nil, fmt.Errorf("scan telemetry event: %w", err)
		}
		event.Timestamp = time.UnixMilli(timestamp).UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate telemetry events: %w", err)
	}
	return events, nil
}

var _ storage.ScheduleStore = (*Store)(nil)
var _ storage.RetryJobStore = (*Store)(nil)
var _ storage.TelemetryStore = (*Store)(nil)

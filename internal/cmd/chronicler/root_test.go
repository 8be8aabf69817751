package chronicler

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/chronicler/internal/publish/cadence"
	"github.com/louisbranch/chronicler/internal/qa"
	"github.com/louisbranch/chronicler/internal/storage"
	"github.com/louisbranch/chronicler/internal/storage/sqlite"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeSessionFile(t *testing.T, dir, sessionID, text string) {
	t.Helper()
	data := []byte(`{
  "sessionId": "` + sessionID + `",
  "closedAt": "2026-03-14T20:00:00Z",
  "transcript": [
    {"sceneId": "scene-1", "turnId": "turn-1", "speaker": "gm", "text": "` + text + `"}
  ]
}`)
	if err := os.WriteFile(filepath.Join(dir, sessionID+".json"), data, 0o644); err != nil {
		t.Fatalf("write session file: %v", err)
	}
}

func TestRunCommand_MemoryBackend(t *testing.T) {
	dir := t.TempDir()
	writeSessionFile(t, dir, "session-1", "The Ashen Compact seized Saltmere.")

	out, err := execute(t, "run", "--dir", dir)
	if err != nil {
		t.Fatalf("run error = %v (output %q)", err, out)
	}
	if !strings.Contains(out, "Processed 1 sessions") {
		t.Fatalf("run output = %q, want processed count", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "session-1-offline-qa.json")); err != nil {
		t.Fatalf("report file missing: %v", err)
	}
}

func TestRunCommand_SQLiteBackend(t *testing.T) {
	dir := t.TempDir()
	writeSessionFile(t, dir, "session-1", "The Ashen Compact seized Saltmere.")
	dbPath := filepath.Join(t.TempDir(), "chronicler.db")

	if _, err := execute(t, "run", "--dir", dir, "--db", dbPath); err != nil {
		t.Fatalf("run error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database missing: %v", err)
	}
}

func TestRollupCommand(t *testing.T) {
	dir := t.TempDir()
	reports := []qa.Report{
		{SessionID: "session-1", Status: qa.StatusOK, Mentions: 2, Deltas: 1},
		{SessionID: "session-2", Status: qa.StatusAwaitingModeration, Mentions: 1, Deltas: 1},
	}
	for _, report := range reports {
		data, err := json.Marshal(report)
		if err != nil {
			t.Fatalf("marshal report: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, report.SessionID+"-offline-qa.json"), data, 0o644); err != nil {
			t.Fatalf("write report: %v", err)
		}
	}

	out, err := execute(t, "rollup", "--dir", dir)
	if err != nil {
		t.Fatalf("rollup error = %v", err)
	}
	var aggregate qa.Aggregate
	if err := json.Unmarshal([]byte(out), &aggregate); err != nil {
		t.Fatalf("parse rollup output %q: %v", out, err)
	}
	if aggregate.TotalSessions != 2 {
		t.Errorf("aggregate.TotalSessions = %d, want 2", aggregate.TotalSessions)
	}
	if aggregate.TotalMentions != 3 {
		t.Errorf("aggregate.TotalMentions = %d, want 3", aggregate.TotalMentions)
	}
}

func TestRollupCommand_EmptyDir(t *testing.T) {
	if _, err := execute(t, "rollup", "--dir", t.TempDir()); err == nil {
		t.Fatal("rollup error = nil, want no-reports error")
	}
}

func TestCatalogValidateCommand(t *testing.T) {
	dir := t.TempDir()
	lexicon := []byte(`entities:
  - id: faction-test
    type: faction
    canonical_name: Test Faction
`)
	lexiconPath := filepath.Join(dir, "lexicon.yaml")
	if err := os.WriteFile(lexiconPath, lexicon, 0o644); err != nil {
		t.Fatalf("write lexicon: %v", err)
	}

	out, err := execute(t, "catalog", "validate", "--lexicon", lexiconPath)
	if err != nil {
		t.Fatalf("catalog validate error = %v", err)
	}
	if !strings.Contains(out, "1 entities") {
		t.Fatalf("catalog validate output = %q, want entity count", out)
	}

	if _, err := execute(t, "catalog", "validate"); err == nil {
		t.Fatal("catalog validate without flags error = nil, want error")
	}
}

func TestStatusCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "chronicler.db")
	store, err := sqlite.Open(dbPath)
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)
	err = store.PutSchedule(ctx, cadence.Schedule{
		SessionID: "session-1",
		ClosedAt:  now,
		Batches: []cadence.Batch{
			{BatchID: "batch-001", Status: cadence.BatchStatusRetryPending, RunAt: now.Add(24 * time.Hour), DeltaCount: 2},
		},
	})
	if err != nil {
		t.Fatalf("PutSchedule() error = %v", err)
	}
	err = store.AppendRetryJob(ctx, storage.RetryJobRecord{
		RetryID:    "retry-1",
		SessionID:  "session-1",
		BatchID:    "batch-001",
		JobID:      "job-1",
		Index:      "lore_bundles",
		DocumentID: "lore-faction-ashen-compact",
		Attempt:    1,
		RetryAt:    now.Add(5 * time.Minute),
		Reason:     "failed",
		CreatedAt:  now,
	})
	if err != nil {
		t.Fatalf("AppendRetryJob() error = %v", err)
	}
	err = store.AppendTelemetryEvent(ctx, storage.TelemetryEvent{
		Timestamp: now,
		Kind:      "batch_published",
		SessionID: "session-1",
		BatchID:   "batch-001",
	})
	if err != nil {
		t.Fatalf("AppendTelemetryEvent() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	out, err := execute(t, "status", "--db", dbPath, "--session", "session-1")
	if err != nil {
		t.Fatalf("status error = %v (output %q)", err, out)
	}
	if !strings.Contains(out, "batch batch-001: retry_pending") {
		t.Errorf("status output = %q, want batch status line", out)
	}
	if !strings.Contains(out, "Retry jobs: 1") || !strings.Contains(out, "lore_bundles/lore-faction-ashen-compact") {
		t.Errorf("status output = %q, want retry job listing", out)
	}
	if !strings.Contains(out, "Telemetry events: 1") || !strings.Contains(out, "batch_published") {
		t.Errorf("status output = %q, want telemetry listing", out)
	}
}

func TestStatusCommand_RequiresDatabase(t *testing.T) {
	t.Setenv("CHRONICLER_DB_PATH", "")
	if _, err := execute(t, "status"); err == nil {
		t.Fatal("status error = nil, want missing-database error")
	}
}

func TestCatalogValidateCommand_InvalidCatalog(t *testing.T) {
	dir := t.TempDir()
	bad := []byte(`entities:
  - id: thing-1
    type: artifact
    canonical_name: Thing
`)
	path := filepath.Join(dir, "lexicon.yaml")
	if err := os.WriteFile(path, bad, 0o644); err != nil {
		t.Fatalf("write lexicon: %v", err)
	}
	if _, err := execute(t, "catalog", "validate", "--lexicon", path); err == nil {
		t.Fatal("catalog validate error = nil, want invalid-catalog error")
	}
}

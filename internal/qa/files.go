package qa

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// RollupFileName is the aggregate report written alongside per-session
// reports. Its name matches the offline-qa skip pattern so re-runs ignore
// it.
const RollupFileName = "offline-qa-rollup.json"

// reportSuffix names per-session report files.
const reportSuffix = "-offline-qa.json"

// IsSessionFile reports whether a directory entry looks like a session
// input: a JSON file that is not a summary, transcript export, or a
// previous QA report.
func IsSessionFile(name string) bool {
	if !strings.HasSuffix(name, ".json") {
		return false
	}
	if strings.HasSuffix(name, "-summary.json") {
		return false
	}
	if strings.HasSuffix(name, "-transcript.json") {
		return false
	}
	if strings.Contains(name, "offline-qa") {
		return false
	}
	return true
}

// RunDirectory runs the pipeline over every session file in dir, writing a
// `<sessionId>-offline-qa.json` report per session and, when more than one
// session is processed, an aggregate rollup file. A session that fails to
// parse or run produces an error report and the batch continues.
func (r *Runner) RunDirectory(ctx context.Context, dir string) ([]Report, Aggregate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, Aggregate{}, fmt.Errorf("read session dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !IsSessionFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var reports []Report
	for _, name := range names {
		report := r.runFile(ctx, filepath.Join(dir, name))
		reports = append(reports, report)
		if err := writeJSON(filepath.Join(dir, reportFileName(report.SessionID, name)), report); err != nil {
			return nil, Aggregate{}, err
		}
	}

	aggregate := Rollup(reports)
	if len(reports) > 1 {
		if err := writeJSON(filepath.Join(dir, RollupFileName), aggregate); err != nil {
			return nil, Aggregate{}, err
		}
	}
	return reports, aggregate, nil
}

func (r *Runner) runFile(ctx context.Context, path string) Report {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{Status: StatusError, Message: err.Error()}
	}
	var input SessionInput
	if err := json.Unmarshal(data, &input); err != nil {
		return Report{Status: StatusError, Message: fmt.Sprintf("parse %s: %v", filepath.Base(path), err)}
	}
	return r.RunSession(ctx, input)
}

// reportFileName keys the report on the session ID, falling back to the
// input file name when a parse failure left the ID unknown.
func reportFileName(sessionID, inputName string) string {
	if sessionID == "" {
		return strings.TrimSuffix(inputName, ".json") + reportSuffix
	}
	return sessionID + reportSuffix
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

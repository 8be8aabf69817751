// Package searchsync plans search-index work for composed artifacts and
// reconciles reported indexing outcomes, queuing drifted documents for
// retry.
package searchsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/louisbranch/chronicler/internal/platform/id"
	"github.com/louisbranch/chronicler/internal/publish/compose"
	"github.com/louisbranch/chronicler/internal/telemetry"
)

// Search index names.
const (
	IndexLoreBundles = "lore_bundles"
	IndexNewsCards   = "news_cards"
)

// Document types carried on jobs.
const (
	DocTypeLoreBundle = "lore_bundle"
	DocTypeNewsCard   = "news_card"
)

// Plan statuses.
const (
	PlanStatusPlanned = "planned"
	// PlanStatusBlocked marks a plan withheld behind the moderation gate.
	PlanStatusBlocked = "blocked"
)

// Result statuses reported by the external indexer.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// DriftReasonVersionMismatch marks a successful write that landed at the
// wrong version.
const DriftReasonVersionMismatch = "version_mismatch"

// Job is one planned indexing operation.
type Job struct {
	JobID           string          `json:"jobId"`
	Index           string          `json:"index"`
	DocumentID      string          `json:"documentId"`
	Type            string          `json:"type"`
	Body            json.RawMessage `json:"body"`
	ExpectedVersion int             `json:"expectedVersion"`
}

// Plan is the indexing work for one batch.
type Plan struct {
	SessionID string `json:"sessionId"`
	BatchID   string `json:"batchId"`
	Status    string `json:"status"`
	Jobs      []Job  `json:"jobs"`
}

// BlockedPlan returns the empty plan used while a batch is gated behind
// moderation.
func BlockedPlan(sessionID, batchID string) Plan {
	return Plan{SessionID: sessionID, BatchID: batchID, Status: PlanStatusBlocked, Jobs: []Job{}}
}

// Result is one indexing outcome reported by the external search engine.
type Result struct {
	JobID           string `json:"jobId"`
	Index           string `json:"index"`
	DocumentID      string `json:"documentId"`
	Status          string `json:"status"`
	ExpectedVersion int    `json:"expectedVersion"`
	ActualVersion   int    `json:"actualVersion"`
}

// Drift is a Result annotated with the reason it diverged from the plan.
type Drift struct {
	Result
	Reason string `json:"reason"`
}

// Ref locates the batch a plan or evaluation belongs to.
type Ref struct {
	SessionID string
	BatchID   string
}

// Planner builds indexing jobs from composed artifacts and evaluates
// reported results for drift.
type Planner struct {
	recorder    telemetry.Recorder
	idGenerator func() (string, error)
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithPlannerIDGenerator overrides job ID generation, for deterministic
// tests.
func WithPlannerIDGenerator(generator func() (string, error)) PlannerOption {
	return func(p *Planner) {
		p.idGenerator = generator
	}
}

// NewPlanner creates a planner. A nil recorder discards telemetry.
func NewPlanner(recorder telemetry.Recorder, opts ...PlannerOption) *Planner {
	if recorder == nil {
		recorder = telemetry.NopRecorder{}
	}
	planner := &Planner{
		recorder:    recorder,
		idGenerator: id.NewID,
	}
	for _, opt := range opts {
		opt(planner)
	}
	return planner
}

// Plan builds one job per lore bundle and one per news card. Bundle jobs
// expect the bundle's revision count as the document version; cards are not
// revisioned and always expect version 1.
func (p *Planner) Plan(ctx context.Context, publishing compose.Result, ref Ref) (Plan, error) {
	plan := Plan{
		SessionID: ref.SessionID,
		BatchID:   ref.BatchID,
		Status:    PlanStatusPlanned,
		Jobs:      []Job{},
	}

	for _, bundle := range publishing.Bundles {
		body, err := json.Marshal(bundle)
		if err != nil {
			return Plan{}, fmt.Errorf("marshal lore bundle %s: %w", bundle.BundleID, err)
		}
		jobID, err := p.idGenerator()
		if err != nil {
			return Plan{}, fmt.Errorf("generate job id: %w", err)
		}
		plan.Jobs = append(plan.Jobs, Job{
			JobID:           jobID,
			Index:           IndexLoreBundles,
			DocumentID:      bundle.BundleID,
			Type:            DocTypeLoreBundle,
			Body:            body,
			ExpectedVersion: len(bundle.Revisions),
		})
	}

	for _, card := range publishing.Cards {
		body, err := json.Marshal(card)
		if err != nil {
			return Plan{}, fmt.Errorf("marshal news card %s: %w", card.CardID, err)
		}
		jobID, err := p.idGenerator()
		if err != nil {
			return Plan{}, fmt.Errorf("generate job id: %w", err)
		}
		plan.Jobs = append(plan.Jobs, Job{
			JobID:           jobID,
			Index:           IndexNewsCards,
			DocumentID:      card.CardID,
			Type:            DocTypeNewsCard,
			Body:            body,
			ExpectedVersion: 1,
		})
	}

	p.recorder.RecordSearchSyncPlanned(ctx, telemetry.SearchSyncPlanned{
		SessionID: ref.SessionID,
		BatchID:   ref.BatchID,
		JobCount:  len(plan.Jobs),
	})
	return plan, nil
}

// Evaluate inspects reported indexing results. Any non-success status
// drifts with the status verbatim as its reason; a success that landed at
// the wrong version drifts as a version mismatch.
func (p *Planner) Evaluate(ctx context.Context, ref Ref, results []Result) []Drift {
	var drifts []Drift
	for _, result := range results {
		var reason string
		switch {
		case result.Status != StatusSuccess:
			reason = result.Status
		case result.ExpectedVersion != result.ActualVersion:
			reason = DriftReasonVersionMismatch
		default:
			continue
		}

		drift := Drift{Result: result, Reason: reason}
		p.recorder.RecordSearchDrift(ctx, telemetry.SearchDrift{
			SessionID:  ref.SessionID,
			BatchID:    ref.BatchID,
			JobID:      result.JobID,
			Index:      result.Index,
			DocumentID: result.DocumentID,
			Reason:     reason,
		})
		drifts = append(drifts, drift)
	}
	return drifts
}

// Package qa runs the full publishing pipeline over recorded session files
// and writes per-session reports plus an aggregate rollup, for offline
// checks of a campaign's transcript corpus.
package qa

import (
	"context"
	"errors"
	"log"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/louisbranch/chronicler/internal/canon"
	"github.com/louisbranch/chronicler/internal/extract"
	platformerrors "github.com/louisbranch/chronicler/internal/platform/errors"
	"github.com/louisbranch/chronicler/internal/publish/cadence"
	"github.com/louisbranch/chronicler/internal/publish/coordinator"
	"github.com/louisbranch/chronicler/internal/storage/memory"
	"github.com/louisbranch/chronicler/internal/worldelta"
)

// Report statuses.
const (
	StatusOK                 = "ok"
	StatusAwaitingModeration = "awaiting_moderation"
	StatusError              = "error"
)

// SessionInput is one recorded session file.
type SessionInput struct {
	SessionID            string                    `json:"sessionId"`
	ClosedAt             time.Time                 `json:"closedAt"`
	Transcript           []extract.TranscriptEntry `json:"transcript"`
	ModerationDecisionID string                    `json:"moderationDecisionId,omitempty"`
	ApprovedBy           string                    `json:"approvedBy,omitempty"`
}

// Report is the per-session pipeline outcome.
type Report struct {
	SessionID   string           `json:"sessionId"`
	Status      string           `json:"status"`
	Message     string           `json:"message,omitempty"`
	Code        string           `json:"code,omitempty"`
	GRPCCode    string           `json:"grpcCode,omitempty"`
	Mentions    int              `json:"mentions"`
	Deltas      int              `json:"deltas"`
	Alerts      int              `json:"alerts"`
	Moderation  worldelta.Rollup `json:"moderation"`
	BatchID     string           `json:"batchId,omitempty"`
	BatchStatus string           `json:"batchStatus,omitempty"`
	SearchJobs  int              `json:"searchJobs"`
}

// Aggregate rolls per-session reports into corpus-level counts.
type Aggregate struct {
	TotalSessions                    int `json:"totalSessions"`
	TotalMentions                    int `json:"totalMentions"`
	TotalDeltas                      int `json:"totalDeltas"`
	SessionsWithModeration           int `json:"sessionsWithModeration"`
	SessionsWithCapabilityViolations int `json:"sessionsWithCapabilityViolations"`
	SessionsWithConflicts            int `json:"sessionsWithConflicts"`
	SessionsWithLowConfidence        int `json:"sessionsWithLowConfidence"`
}

// Deps are the runner's collaborators. Nil fields fall back to the embedded
// catalogs, an empty canon state, and an in-memory coordinator.
type Deps struct {
	Lexicon      *canon.Lexicon
	Capabilities *canon.CapabilityRegistry
	State        canon.State
	Coordinator  *coordinator.Coordinator
}

// Runner drives the pipeline for one or more recorded sessions.
type Runner struct {
	lexicon       *canon.Lexicon
	capabilities  *canon.CapabilityRegistry
	state         canon.State
	coordinator   *coordinator.Coordinator
	minConfidence float64
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMinConfidence overrides the extraction confidence floor.
func WithMinConfidence(min float64) RunnerOption {
	return func(r *Runner) {
		r.minConfidence = min
	}
}

// NewRunner creates a pipeline runner.
func NewRunner(deps Deps, opts ...RunnerOption) (*Runner, error) {
	if deps.Lexicon == nil {
		deps.Lexicon = canon.DefaultLexicon()
	}
	if deps.Capabilities == nil {
		deps.Capabilities = canon.DefaultCapabilityRegistry()
	}
	if deps.Coordinator == nil {
		coord, err := coordinator.New(coordinator.Deps{Schedules: memory.NewStore()})
		if err != nil {
			return nil, err
		}
		deps.Coordinator = coord
	}
	runner := &Runner{
		lexicon:       deps.Lexicon,
		capabilities:  deps.Capabilities,
		state:         deps.State,
		coordinator:   deps.Coordinator,
		minConfidence: extract.DefaultMinConfidence,
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner, nil
}

// alertCounter counts moderation alerts; the offline runner has no alert
// bus to forward them to.
type alertCounter struct {
	count int
}

func (a *alertCounter) PublishAlert(context.Context, worldelta.Delta) error {
	a.count++
	return nil
}

// RunSession runs extraction, delta computation, and batch preparation for
// one session. Pipeline failures never escape: they are folded into an
// error report so a batch run can continue.
func (r *Runner) RunSession(ctx context.Context, input SessionInput) Report {
	report, err := r.runSession(ctx, input)
	if err != nil {
		code := platformerrors.CodeOf(err)
		grpcCode := codes.Internal
		var domainErr *platformerrors.Error
		if errors.As(err, &domainErr) {
			grpcCode = status.Convert(domainErr.ToGRPCStatus()).Code()
		}
		log.Printf("session %s pipeline failed (%s, grpc %s): %v", input.SessionID, code, grpcCode, err)
		return Report{
			SessionID: input.SessionID,
			Status:    StatusError,
			Message:   err.Error(),
			Code:      string(code),
			GRPCCode:  grpcCode.String(),
		}
	}
	return report
}

func (r *Runner) runSession(ctx context.Context, input SessionInput) (Report, error) {
	extractor := extract.New(r.lexicon, r.capabilities, extract.WithMinConfidence(r.minConfidence))
	extracted, err := extractor.Extract(extract.Input{
		SessionID:  input.SessionID,
		Transcript: input.Transcript,
	})
	if err != nil {
		return Report{}, err
	}

	alerts := &alertCounter{}
	queue := worldelta.NewQueue(r.state, r.capabilities, alerts)
	deltas, err := queue.Process(ctx, extracted.Mentions)
	if err != nil {
		return Report{}, err
	}

	prepared, err := r.coordinator.PrepareBatch(ctx, coordinator.PrepareBatchInput{
		SessionID:            input.SessionID,
		SessionClosedAt:      input.ClosedAt,
		Deltas:               deltas,
		ModerationDecisionID: input.ModerationDecisionID,
		ApprovedBy:           input.ApprovedBy,
	})
	if err != nil {
		return Report{}, err
	}

	reportStatus := StatusOK
	if prepared.Status == cadence.BatchStatusAwaitingModeration {
		reportStatus = StatusAwaitingModeration
	}
	batchID := ""
	if len(prepared.Schedule.Batches) > 0 {
		batchID = prepared.Schedule.Batches[0].BatchID
	}
	return Report{
		SessionID:   input.SessionID,
		Status:      reportStatus,
		Mentions:    len(extracted.Mentions),
		Deltas:      len(deltas),
		Alerts:      alerts.count,
		Moderation:  prepared.Moderation,
		BatchID:     batchID,
		BatchStatus: string(prepared.Status),
		SearchJobs:  len(prepared.SearchPlan.Jobs),
	}, nil
}

// Rollup aggregates per-session reports. Error reports count toward the
// session total only.
func Rollup(reports []Report) Aggregate {
	aggregate := Aggregate{TotalSessions: len(reports)}
	for _, report := range reports {
		aggregate.TotalMentions += report.Mentions
		aggregate.TotalDeltas += report.Deltas
		if report.Moderation.RequiresModeration {
			aggregate.SessionsWithModeration++
		}
		if report.Moderation.CapabilityViolations > 0 {
			aggregate.SessionsWithCapabilityViolations++
		}
		if report.Moderation.ConflictDetections > 0 {
			aggregate.SessionsWithConflicts++
		}
		if report.Moderation.LowConfidenceFindings > 0 {
			aggregate.SessionsWithLowConfidence++
		}
	}
	return aggregate
}

package worldelta

import (
	"context"
	"fmt"

	"github.com/louisbranch/chronicler/internal/canon"
	"github.com/louisbranch/chronicler/internal/extract"
	"github.com/louisbranch/chronicler/internal/platform/id"
)

// DefaultLowConfidenceThreshold is the confidence below which a delta is
// routed to moderation.
const DefaultLowConfidenceThreshold = 0.7

// AlertPublisher receives moderation-required deltas as they are detected.
// The real implementation forwards to an admin alert bus.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, delta Delta) error
}

// Queue computes deltas from mentions against a canonical world snapshot.
type Queue struct {
	state        canon.State
	capabilities *canon.CapabilityRegistry
	publisher    AlertPublisher

	lowConfidence float64
	idGenerator   func() (string, error)
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithLowConfidenceThreshold overrides the moderation confidence cutoff.
func WithLowConfidenceThreshold(threshold float64) QueueOption {
	return func(q *Queue) {
		q.lowConfidence = threshold
	}
}

// WithIDGenerator overrides delta ID generation, for deterministic tests.
func WithIDGenerator(generator func() (string, error)) QueueOption {
	return func(q *Queue) {
		q.idGenerator = generator
	}
}

// NewQueue builds a delta queue over a canonical snapshot. The snapshot is
// cloned; the queue never mutates the caller's state. A nil registry falls
// back to the embedded capability catalog.
func NewQueue(state canon.State, capabilities *canon.CapabilityRegistry, publisher AlertPublisher, opts ...QueueOption) *Queue {
	if capabilities == nil {
		capabilities = canon.DefaultCapabilityRegistry()
	}
	queue := &Queue{
		state:         state.Clone(),
		capabilities:  capabilities,
		publisher:     publisher,
		lowConfidence: DefaultLowConfidenceThreshold,
		idGenerator:   id.NewID,
	}
	for _, opt := range opts {
		opt(queue)
	}
	return queue
}

// Process turns mentions into an ordered delta list, one per actionable
// mention. Every delta that requires moderation is published to the alert
// publisher exactly once before Process returns.
func (q *Queue) Process(ctx context.Context, mentions []extract.Mention) ([]Delta, error) {
	var deltas []Delta
	for _, mention := range mentions {
		if mention.Proposed == nil && len(mention.CapabilityRefs) == 0 {
			continue
		}

		delta, err := q.computeDelta(mention)
		if err != nil {
			return nil, err
		}

		if delta.Safety.RequiresModeration && q.publisher != nil {
			if err := q.publisher.PublishAlert(ctx, delta.Clone()); err != nil {
				return nil, fmt.Errorf("publish moderation alert for %s: %w", delta.EntityID, err)
			}
		}
		deltas = append(deltas, delta)
	}
	return deltas, nil
}

func (q *Queue) computeDelta(mention extract.Mention) (Delta, error) {
	deltaID, err := q.idGenerator()
	if err != nil {
		return Delta{}, fmt.Errorf("generate delta id: %w", err)
	}

	before := q.state[mention.EntityID].Clone()
	if before.Type == "" {
		before.Type = mention.EntityType
	}

	delta := Delta{
		DeltaID:       deltaID,
		EntityID:      mention.EntityID,
		EntityType:    mention.EntityType,
		CanonicalName: mention.CanonicalName,
		Proposed:      mention.Proposed.Clone(),
		Before:        before,
		After:         applyProposed(before, mention.Proposed),
		MentionID:     mention.MentionID,
		Confidence:    mention.Confidence,
	}

	if len(mention.CapabilityRefs) > 0 {
		delta.CapabilityRefs = make([]canon.CapabilityRef, len(mention.CapabilityRefs))
		copy(delta.CapabilityRefs, mention.CapabilityRefs)
		for _, ref := range mention.CapabilityRefs {
			if err := q.capabilities.Validate(ref); err != nil {
				return Delta{}, err
			}
		}
	}

	var reasons []string
	if mention.Confidence < q.lowConfidence {
		reasons = append(reasons, ReasonLowConfidence)
	}
	if conflicts := q.detectConflicts(mention); len(conflicts) > 0 {
		reasons = append(reasons, ReasonConflictDetected)
		delta.Safety.Conflicts = conflicts
	}
	if len(mention.CapabilityRefs) > 0 {
		reasons = append(reasons, ReasonCapabilityViolation)
	}

	delta.Safety.Reasons = reasons
	delta.Safety.RequiresModeration = len(reasons) > 0
	return delta, nil
}

// detectConflicts flags proposed control gains over regions already held by
// a different faction.
func (q *Queue) detectConflicts(mention extract.Mention) []Conflict {
	if mention.Proposed == nil || mention.Proposed.Control == nil {
		return nil
	}
	var conflicts []Conflict
	for _, regionID := range mention.Proposed.Control.Add {
		owner, ok := q.state.ControllerOf(regionID)
		if !ok || owner == mention.EntityID {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Type:         ConflictTypeControlCollision,
			Target:       regionID,
			CurrentOwner: owner,
		})
	}
	return conflicts
}

// applyProposed computes the after snapshot by applying the proposal to a
// copy of the before snapshot. Canon state itself is never mutated here;
// the world-state store applies approved deltas between runs.
func applyProposed(before canon.Snapshot, proposed *extract.ProposedChanges) canon.Snapshot {
	after := before.Clone()
	if proposed == nil {
		return after
	}
	if proposed.Control != nil {
		after.Control = unionControl(after.Control, proposed.Control.Add)
		after.Control = subtractControl(after.Control, proposed.Control.Remove)
	}
	if proposed.Status != "" {
		after.Status = proposed.Status
	}
	return after
}

func unionControl(current, add []string) []string {
	seen := make(map[string]bool, len(current))
	out := make([]string, 0, len(current)+len(add))
	for _, region := range current {
		if !seen[region] {
			seen[region] = true
			out = append(out, region)
		}
	}
	for _, region := range add {
		if !seen[region] {
			seen[region] = true
			out = append(out, region)
		}
	}
	return out
}

func subtractControl(current, remove []string) []string {
	if len(remove) == 0 {
		return current
	}
	drop := make(map[string]bool, len(remove))
	for _, region := range remove {
		drop[region] = true
	}
	out := current[:0]
	for _, region := range current {
		if !drop[region] {
			out = append(out, region)
		}
	}
	return out
}

// Package worldelta turns transcript mentions into world-state deltas,
// detecting conflicts against the canonical snapshot and flagging cases that
// need moderation.
package worldelta

import (
	"github.com/louisbranch/chronicler/internal/canon"
	"github.com/louisbranch/chronicler/internal/extract"
)

// Moderation reasons attached to a delta's safety metadata.
const (
	ReasonLowConfidence       = "low_confidence"
	ReasonConflictDetected    = "conflict_detected"
	ReasonCapabilityViolation = "capability_violation"
)

// ConflictTypeControlCollision marks a proposed control gain over a region
// already held by a different faction.
const ConflictTypeControlCollision = "control_collision"

// Conflict records a collision between a proposed change and canon state.
type Conflict struct {
	Type         string `json:"type"`
	Target       string `json:"target"`
	CurrentOwner string `json:"currentOwner"`
}

// Safety carries the moderation metadata for one delta.
type Safety struct {
	RequiresModeration bool       `json:"requiresModeration"`
	Reasons            []string   `json:"reasons"`
	Conflicts          []Conflict `json:"conflicts,omitempty"`
}

// Delta is a proposed change to canonical world state derived from one
// mention, with before/after snapshots and safety metadata.
type Delta struct {
	DeltaID        string                   `json:"deltaId"`
	EntityID       string                   `json:"entityId"`
	EntityType     canon.EntityType         `json:"entityType"`
	CanonicalName  string                   `json:"canonicalName"`
	Proposed       *extract.ProposedChanges `json:"proposedChanges,omitempty"`
	Before         canon.Snapshot           `json:"before"`
	After          canon.Snapshot           `json:"after"`
	CapabilityRefs []canon.CapabilityRef    `json:"capabilityRefs,omitempty"`
	Safety         Safety                   `json:"safety"`
	MentionID      string                   `json:"mentionId,omitempty"`
	Confidence     float64                  `json:"confidence"`
}

// Clone returns a deep copy of the delta.
func (d Delta) Clone() Delta {
	out := d
	out.Proposed = d.Proposed.Clone()
	out.Before = d.Before.Clone()
	out.After = d.After.Clone()
	if d.CapabilityRefs != nil {
		out.CapabilityRefs = make([]canon.CapabilityRef, len(d.CapabilityRefs))
		copy(out.CapabilityRefs, d.CapabilityRefs)
	}
	if d.Safety.Reasons != nil {
		out.Safety.Reasons = make([]string, len(d.Safety.Reasons))
		copy(out.Safety.Reasons, d.Safety.Reasons)
	}
	if d.Safety.Conflicts != nil {
		out.Safety.Conflicts = make([]Conflict, len(d.Safety.Conflicts))
		copy(out.Safety.Conflicts, d.Safety.Conflicts)
	}
	return out
}

package worldelta

import (
	"context"
	"fmt"
	"testing"

	"github.com/louisbranch/chronicler/internal/canon"
	"github.com/louisbranch/chronicler/internal/extract"
	platformerrors "github.com/louisbranch/chronicler/internal/platform/errors"
)

type fakePublisher struct {
	alerts []Delta
	err    error
}

func (p *fakePublisher) PublishAlert(_ context.Context, delta Delta) error {
	if p.err != nil {
		return p.err
	}
	p.alerts = append(p.alerts, delta)
	return nil
}

func sequentialIDs() func() (string, error) {
	next := 0
	return func() (string, error) {
		next++
		return fmt.Sprintf("delta-%03d", next), nil
	}
}

func testRegistry() *canon.CapabilityRegistry {
	return canon.NewCapabilityRegistry([]canon.Capability{
		{ID: "cap-necromancy", Label: "necromancy", Severity: canon.SeverityFlagged},
	})
}

func factionMention(confidence float64, add ...string) extract.Mention {
	return extract.Mention{
		MentionID:     "m-1",
		EntityID:      "faction-ashen-compact",
		EntityType:    canon.EntityTypeFaction,
		CanonicalName: "The Ashen Compact",
		Confidence:    confidence,
		Proposed: &extract.ProposedChanges{
			Control: &extract.ControlChange{Add: add},
		},
	}
}

func TestProcess_CleanControlGain(t *testing.T) {
	state := canon.State{
		"region-saltmere": {Type: canon.EntityTypeRegion, Status: "stable"},
	}
	publisher := &fakePublisher{}
	queue := NewQueue(state, testRegistry(), publisher, WithIDGenerator(sequentialIDs()))

	deltas, err := queue.Process(context.Background(), []extract.Mention{
		factionMention(0.95, "region-saltmere"),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(deltas) != 1 {
		t.Fatalf("deltas = %d, want 1", len(deltas))
	}

	delta := deltas[0]
	if delta.Safety.RequiresModeration {
		t.Fatalf("unexpected moderation: %+v", delta.Safety)
	}
	if len(delta.After.Control) != 1 || delta.After.Control[0] != "region-saltmere" {
		t.Fatalf("after.control = %v, want [region-saltmere]", delta.After.Control)
	}
	if len(delta.Before.Control) != 0 {
		t.Fatalf("before.control = %v, want empty", delta.Before.Control)
	}
	if len(publisher.alerts) != 0 {
		t.Fatalf("alerts = %d, want 0", len(publisher.alerts))
	}
}

func TestProcess_ControlCollisionConflict(t *testing.T) {
	state := canon.State{
		"region-saltmere": {
			Type:               canon.EntityTypeRegion,
			Status:             "stable",
			ControllingFaction: "faction-veiled-chorus",
		},
	}
	publisher := &fakePublisher{}
	queue := NewQueue(state, testRegistry(), publisher, WithIDGenerator(sequentialIDs()))

	deltas, err := queue.Process(context.Background(), []extract.Mention{
		factionMention(0.95, "region-saltmere"),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	delta := deltas[0]
	if !delta.Safety.RequiresModeration {
		t.Fatal("expected moderation for control collision")
	}
	if len(delta.Safety.Conflicts) != 1 {
		t.Fatalf("conflicts = %d, want 1", len(delta.Safety.Conflicts))
	}
	conflict := delta.Safety.Conflicts[0]
	if conflict.Type != ConflictTypeControlCollision {
		t.Fatalf("conflict type = %q, want %q", conflict.Type, ConflictTypeControlCollision)
	}
	if conflict.Target != "region-saltmere" || conflict.CurrentOwner != "faction-veiled-chorus" {
		t.Fatalf("conflict = %+v", conflict)
	}
	if got := delta.Safety.Reasons; len(got) != 1 || got[0] != ReasonConflictDetected {
		t.Fatalf("reasons = %v, want [conflict_detected]", got)
	}
	if len(publisher.alerts) != 1 {
		t.Fatalf("alerts = %d, want exactly 1", len(publisher.alerts))
	}
}

func TestProcess_OwnRegionIsNotAConflict(t *testing.T) {
	state := canon.State{
		"region-saltmere": {
			Type:               canon.EntityTypeRegion,
			ControllingFaction: "faction-ashen-compact",
		},
	}
	queue := NewQueue(state, testRegistry(), &fakePublisher{}, WithIDGenerator(sequentialIDs()))

	deltas, err := queue.Process(context.Background(), []extract.Mention{
		factionMention(0.95, "region-saltmere"),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if deltas[0].Safety.RequiresModeration {
		t.Fatalf("re-asserting held control should not need moderation: %+v", deltas[0].Safety)
	}
}

func TestProcess_LowConfidenceReason(t *testing.T) {
	publisher := &fakePublisher{}
	queue := NewQueue(canon.State{}, testRegistry(), publisher, WithIDGenerator(sequentialIDs()))

	deltas, err := queue.Process(context.Background(), []extract.Mention{
		factionMention(0.55, "region-saltmere"),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := deltas[0].Safety.Reasons; len(got) != 1 || got[0] != ReasonLowConfidence {
		t.Fatalf("reasons = %v, want [low_confidence]", got)
	}
	if len(publisher.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(publisher.alerts))
	}
}

func TestProcess_ConfigurableThreshold(t *testing.T) {
	queue := NewQueue(canon.State{}, testRegistry(), &fakePublisher{},
		WithIDGenerator(sequentialIDs()), WithLowConfidenceThreshold(0.5))

	deltas, err := queue.Process(context.Background(), []extract.Mention{
		factionMention(0.55, "region-saltmere"),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if deltas[0].Safety.RequiresModeration {
		t.Fatalf("0.55 above a 0.5 threshold should not need moderation: %+v", deltas[0].Safety)
	}
}

func TestProcess_CapabilityViolation(t *testing.T) {
	publisher := &fakePublisher{}
	queue := NewQueue(canon.State{}, testRegistry(), publisher, WithIDGenerator(sequentialIDs()))

	mention := extract.Mention{
		EntityID:      "faction-ashen-compact",
		EntityType:    canon.EntityTypeFaction,
		CanonicalName: "The Ashen Compact",
		Confidence:    0.95,
		CapabilityRefs: []canon.CapabilityRef{
			{CapabilityID: "cap-necromancy", Label: "necromancy", Severity: canon.SeverityFlagged},
		},
	}
	deltas, err := queue.Process(context.Background(), []extract.Mention{mention})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := deltas[0].Safety.Reasons; len(got) != 1 || got[0] != ReasonCapabilityViolation {
		t.Fatalf("reasons = %v, want [capability_violation]", got)
	}
	if len(publisher.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(publisher.alerts))
	}
}

func TestProcess_UnknownCapabilityReferenceFails(t *testing.T) {
	queue := NewQueue(canon.State{}, testRegistry(), &fakePublisher{}, WithIDGenerator(sequentialIDs()))

	mention := extract.Mention{
		EntityID:   "faction-ashen-compact",
		EntityType: canon.EntityTypeFaction,
		Confidence: 0.95,
		CapabilityRefs: []canon.CapabilityRef{
			{CapabilityID: "cap-not-cataloged", Label: "mystery"},
		},
	}
	_, err := queue.Process(context.Background(), []extract.Mention{mention})
	if platformerrors.CodeOf(err) != platformerrors.CodeCanonUnknownCapability {
		t.Fatalf("error code = %q, want %q", platformerrors.CodeOf(err), platformerrors.CodeCanonUnknownCapability)
	}
}

func TestProcess_SkipsNonActionableMentions(t *testing.T) {
	queue := NewQueue(canon.State{}, testRegistry(), &fakePublisher{}, WithIDGenerator(sequentialIDs()))

	mention := extract.Mention{
		EntityID:   "faction-ashen-compact",
		EntityType: canon.EntityTypeFaction,
		Confidence: 0.95,
	}
	deltas, err := queue.Process(context.Background(), []extract.Mention{mention})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(deltas) != 0 {
		t.Fatalf("deltas = %d, want 0", len(deltas))
	}
}

func TestProcess_RegionStatusChange(t *testing.T) {
	state := canon.State{
		"region-saltmere": {Type: canon.EntityTypeRegion, Status: "stable", ControllingFaction: "faction-ashen-compact"},
	}
	queue := NewQueue(state, testRegistry(), &fakePublisher{}, WithIDGenerator(sequentialIDs()))

	mention := extract.Mention{
		EntityID:      "region-saltmere",
		EntityType:    canon.EntityTypeRegion,
		CanonicalName: "Saltmere",
		Confidence:    0.95,
		Proposed:      &extract.ProposedChanges{Status: "threatened"},
	}
	deltas, err := queue.Process(context.Background(), []extract.Mention{mention})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	delta := deltas[0]
	if delta.Before.Status != "stable" {
		t.Fatalf("before.status = %q, want stable", delta.Before.Status)
	}
	if delta.After.Status != "threatened" {
		t.Fatalf("after.status = %q, want threatened", delta.After.Status)
	}
	if delta.After.ControllingFaction != "faction-ashen-compact" {
		t.Fatalf("after.controllingFaction = %q, want faction-ashen-compact", delta.After.ControllingFaction)
	}
}

func TestProcess_DoesNotMutateCallerState(t *testing.T) {
	state := canon.State{
		"faction-ashen-compact": {Type: canon.EntityTypeFaction, Control: []string{"region-cindervale"}},
	}
	queue := NewQueue(state, testRegistry(), &fakePublisher{}, WithIDGenerator(sequentialIDs()))

	_, err := queue.Process(context.Background(), []extract.Mention{
		factionMention(0.95, "region-saltmere"),
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if got := state["faction-ashen-compact"].Control; len(got) != 1 || got[0] != "region-cindervale" {
		t.Fatalf("caller state mutated: %v", got)
	}
}

func TestProcess_PublishErrorPropagates(t *testing.T) {
	publisher := &fakePublisher{err: fmt.Errorf("alert bus down")}
	queue := NewQueue(canon.State{}, testRegistry(), publisher, WithIDGenerator(sequentialIDs()))

	_, err := queue.Process(context.Background(), []extract.Mention{
		factionMention(0.2, "region-saltmere"),
	})
	if err == nil {
		t.Fatal("expected publish error to propagate")
	}
}

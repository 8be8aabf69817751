package worldelta

import (
	"reflect"
	"testing"
)

func deltaWithReasons(reasons ...string) Delta {
	return Delta{
		Safety: Safety{
			RequiresModeration: len(reasons) > 0,
			Reasons:            reasons,
		},
	}
}

func TestSummarize_EmptyInput(t *testing.T) {
	rollup := Summarize(nil)
	if rollup.RequiresModeration {
		t.Fatal("empty input should not require moderation")
	}
	if len(rollup.Reasons) != 0 {
		t.Fatalf("reasons = %v, want empty", rollup.Reasons)
	}
	if rollup.CapabilityViolations != 0 || rollup.ConflictDetections != 0 || rollup.LowConfidenceFindings != 0 {
		t.Fatalf("counters = %+v, want zeroes", rollup)
	}
}

func TestSummarize_SortedDedupedReasons(t *testing.T) {
	rollup := Summarize([]Delta{
		deltaWithReasons(ReasonLowConfidence, ReasonCapabilityViolation),
		deltaWithReasons(ReasonConflictDetected),
		deltaWithReasons(ReasonLowConfidence),
		deltaWithReasons(),
	})

	if !rollup.RequiresModeration {
		t.Fatal("expected moderation")
	}
	want := []string{ReasonCapabilityViolation, ReasonConflictDetected, ReasonLowConfidence}
	if !reflect.DeepEqual(rollup.Reasons, want) {
		t.Fatalf("reasons = %v, want %v", rollup.Reasons, want)
	}
	if rollup.CapabilityViolations != 1 {
		t.Fatalf("capability violations = %d, want 1", rollup.CapabilityViolations)
	}
	if rollup.ConflictDetections != 1 {
		t.Fatalf("conflict detections = %d, want 1", rollup.ConflictDetections)
	}
	if rollup.LowConfidenceFindings != 2 {
		t.Fatalf("low confidence findings = %d, want 2", rollup.LowConfidenceFindings)
	}
}

func TestSummarize_NoModerationWhenCleanDeltas(t *testing.T) {
	rollup := Summarize([]Delta{deltaWithReasons(), deltaWithReasons()})
	if rollup.RequiresModeration {
		t.Fatal("clean deltas should not require moderation")
	}
}

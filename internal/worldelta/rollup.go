package worldelta

import "sort"

// Rollup summarizes the moderation posture of a delta list.
type Rollup struct {
	RequiresModeration    bool     `json:"requiresModeration"`
	Reasons               []string `json:"reasons"`
	CapabilityViolations  int      `json:"capabilityViolations"`
	ConflictDetections    int      `json:"conflictDetections"`
	LowConfidenceFindings int      `json:"lowConfidenceFindings"`
}

// Summarize reduces a delta list to a moderation rollup. It is a pure
// function: reasons are the sorted, deduplicated union across deltas, and
// each counter counts deltas carrying the matching reason.
func Summarize(deltas []Delta) Rollup {
	rollup := Rollup{Reasons: []string{}}
	seen := make(map[string]bool)
	for _, delta := range deltas {
		if delta.Safety.RequiresModeration {
			rollup.RequiresModeration = true
		}
		for _, reason := range delta.Safety.Reasons {
			if !seen[reason] {
				seen[reason] = true
				rollup.Reasons = append(rollup.Reasons, reason)
			}
			switch reason {
			case ReasonCapabilityViolation:
				rollup.CapabilityViolations++
			case ReasonConflictDetected:
				rollup.ConflictDetections++
			case ReasonLowConfidence:
				rollup.LowConfidenceFindings++
			}
		}
	}
	sort.Strings(rollup.Reasons)
	return rollup
}

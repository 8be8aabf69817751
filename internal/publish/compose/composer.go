// Package compose turns approved world deltas into publishable artifacts:
// lore bundles for the world codex and news cards for the in-world feed.
package compose

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/chronicler/internal/canon"
	"github.com/louisbranch/chronicler/internal/platform/id"
	"github.com/louisbranch/chronicler/internal/worldelta"
)

// Card urgency tags.
const (
	UrgencyNormal = "normal"
	UrgencyUrgent = "urgent"
)

// Card expiry offsets from the publish time.
const (
	normalCardTTL = 72 * time.Hour
	urgentCardTTL = 24 * time.Hour
)

// Revision is one composition of an entity's lore bundle. The revision count
// is the bundle's published version.
type Revision struct {
	Version    int       `json:"version"`
	ComposedAt time.Time `json:"composedAt"`
	BatchID    string    `json:"batchId"`
}

// Provenance ties an artifact back to the session work that produced it.
type Provenance struct {
	SessionID string   `json:"sessionId"`
	BatchID   string   `json:"batchId"`
	DeltaIDs  []string `json:"deltaIds"`
}

// LoreBundle is the read-optimized codex artifact for one entity.
type LoreBundle struct {
	BundleID        string     `json:"bundleId"`
	EntityID        string     `json:"entityId"`
	SummaryMarkdown string     `json:"summaryMarkdown"`
	PublishAt       time.Time  `json:"publishAt"`
	SafetyTags      []string   `json:"safetyTags,omitempty"`
	Provenance      Provenance `json:"provenance"`
	Revisions       []Revision `json:"revisions"`
}

// NewsCard is a short-lived feed artifact for externally notable changes.
type NewsCard struct {
	CardID     string    `json:"cardId"`
	Headline   string    `json:"headline"`
	Lead       string    `json:"lead"`
	PublishAt  time.Time `json:"publishAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Urgency    string    `json:"urgency"`
	SafetyTags []string  `json:"safetyTags,omitempty"`
}

// Result is one batch's composed artifacts.
type Result struct {
	SessionID  string       `json:"sessionId"`
	BatchID    string       `json:"batchId"`
	ComposedAt time.Time    `json:"composedAt"`
	Bundles    []LoreBundle `json:"bundles"`
	Cards      []NewsCard   `json:"cards"`
}

// Input parameterizes one composition.
type Input struct {
	SessionID string
	BatchID   string
	PublishAt time.Time
	Deltas    []worldelta.Delta
}

// Composer builds artifacts from approved deltas. It tracks per-entity
// revision history across invocations, so composing the same batch twice
// appends duplicate revisions; the coordinator guards against that.
type Composer struct {
	idGenerator func() (string, error)
	revisions   map[string][]Revision
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithIDGenerator overrides artifact ID generation, for deterministic tests.
func WithIDGenerator(generator func() (string, error)) ComposerOption {
	return func(c *Composer) {
		c.idGenerator = generator
	}
}

// NewComposer creates an artifact composer.
func NewComposer(opts ...ComposerOption) *Composer {
	composer := &Composer{
		idGenerator: id.NewID,
		revisions:   make(map[string][]Revision),
	}
	for _, opt := range opts {
		opt(composer)
	}
	return composer
}

// RevisionCount returns the number of composed revisions for an entity.
func (c *Composer) RevisionCount(entityID string) int {
	return len(c.revisions[entityID])
}

// Compose builds one lore bundle per entity with at least one approved delta
// and news cards for externally notable deltas. Output is deterministic for
// a given delta list and publish time, apart from generated IDs and the
// growing revision history.
func (c *Composer) Compose(input Input) (Result, error) {
	result := Result{
		SessionID:  input.SessionID,
		BatchID:    input.BatchID,
		ComposedAt: input.PublishAt.UTC(),
	}

	// Group deltas per entity, preserving first-seen entity order.
	var entityOrder []string
	byEntity := make(map[string][]worldelta.Delta)
	for _, delta := range input.Deltas {
		if _, ok := byEntity[delta.EntityID]; !ok {
			entityOrder = append(entityOrder, delta.EntityID)
		}
		byEntity[delta.EntityID] = append(byEntity[delta.EntityID], delta)
	}

	for _, entityID := range entityOrder {
		bundle, err := c.composeBundle(input, entityID, byEntity[entityID])
		if err != nil {
			return Result{}, err
		}
		result.Bundles = append(result.Bundles, bundle)
	}

	for _, delta := range input.Deltas {
		card, notable, err := c.composeCard(input, delta)
		if err != nil {
			return Result{}, err
		}
		if notable {
			result.Cards = append(result.Cards, card)
		}
	}

	return result, nil
}

func (c *Composer) composeBundle(input Input, entityID string, deltas []worldelta.Delta) (LoreBundle, error) {
	bundleID, err := c.idGenerator()
	if err != nil {
		return LoreBundle{}, fmt.Errorf("generate bundle id: %w", err)
	}

	revision := Revision{
		Version:    len(c.revisions[entityID]) + 1,
		ComposedAt: input.PublishAt.UTC(),
		BatchID:    input.BatchID,
	}
	c.revisions[entityID] = append(c.revisions[entityID], revision)

	history := make([]Revision, len(c.revisions[entityID]))
	copy(history, c.revisions[entityID])

	deltaIDs := make([]string, 0, len(deltas))
	var lines []string
	tags := make(map[string]bool)
	name := deltas[0].CanonicalName
	for _, delta := range deltas {
		deltaIDs = append(deltaIDs, delta.DeltaID)
		lines = append(lines, describeDelta(delta)...)
		for _, reason := range delta.Safety.Reasons {
			tags[reason] = true
		}
	}

	var summary strings.Builder
	fmt.Fprintf(&summary, "## %s\n\n", name)
	for _, line := range lines {
		fmt.Fprintf(&summary, "- %s\n", line)
	}

	return LoreBundle{
		BundleID:        bundleID,
		EntityID:        entityID,
		SummaryMarkdown: summary.String(),
		PublishAt:       input.PublishAt.UTC(),
		SafetyTags:      sortedTags(tags),
		Provenance: Provenance{
			SessionID: input.SessionID,
			BatchID:   input.BatchID,
			DeltaIDs:  deltaIDs,
		},
		Revisions: history,
	}, nil
}

// composeCard decides whether a delta is externally notable and, if so,
// builds its news card. Conflicts and capability hits are notable;
// prohibited capabilities publish as urgent with a short expiry.
func (c *Composer) composeCard(input Input, delta worldelta.Delta) (NewsCard, bool, error) {
	var headline, lead string
	urgency := UrgencyNormal

	switch {
	case len(delta.Safety.Conflicts) > 0:
		conflict := delta.Safety.Conflicts[0]
		headline = fmt.Sprintf("Contested claim over %s", conflict.Target)
		lead = fmt.Sprintf("%s moves on territory held by %s.", delta.CanonicalName, conflict.CurrentOwner)
	case len(delta.CapabilityRefs) > 0:
		ref := delta.CapabilityRefs[0]
		headline = fmt.Sprintf("%s linked to %s", delta.CanonicalName, ref.Label)
		lead = fmt.Sprintf("Reports place %s behind the use of %s.", delta.CanonicalName, ref.Label)
		if ref.Severity == canon.SeverityProhibited {
			urgency = UrgencyUrgent
		}
	default:
		return NewsCard{}, false, nil
	}

	cardID, err := c.idGenerator()
	if err != nil {
		return NewsCard{}, false, fmt.Errorf("generate card id: %w", err)
	}

	ttl := normalCardTTL
	if urgency == UrgencyUrgent {
		ttl = urgentCardTTL
	}
	publishAt := input.PublishAt.UTC()

	tags := make(map[string]bool)
	for _, reason := range delta.Safety.Reasons {
		tags[reason] = true
	}

	return NewsCard{
		CardID:     cardID,
		Headline:   headline,
		Lead:       lead,
		PublishAt:  publishAt,
		ExpiresAt:  publishAt.Add(ttl),
		Urgency:    urgency,
		SafetyTags: sortedTags(tags),
	}, true, nil
}

// describeDelta renders one delta as human-readable summary lines.
func describeDelta(delta worldelta.Delta) []string {
	var lines []string
	if delta.Proposed != nil && delta.Proposed.Control != nil {
		for _, region := range delta.Proposed.Control.Add {
			lines = append(lines, fmt.Sprintf("%s took control of %s.", delta.CanonicalName, region))
		}
		for _, region := range delta.Proposed.Control.Remove {
			lines = append(lines, fmt.Sprintf("%s lost control of %s.", delta.CanonicalName, region))
		}
	}
	if delta.Proposed != nil && delta.Proposed.Status != "" {
		lines = append(lines, fmt.Sprintf("%s is now %s.", delta.CanonicalName, delta.Proposed.Status))
	}
	for _, ref := range delta.CapabilityRefs {
		lines = append(lines, fmt.Sprintf("%s was connected to %s.", delta.CanonicalName, ref.Label))
	}
	if len(lines) == 0 {
		lines = append(lines, fmt.Sprintf("%s was recorded in the session chronicle.", delta.CanonicalName))
	}
	return lines
}

func sortedTags(tags map[string]bool) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for tag := range tags {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

// Package canon holds the catalog of known world entities, the registry of
// flagged capabilities, and the canonical world-state snapshot that delta
// computation diffs against.
package canon

import (
	"strings"

	platformerrors "github.com/louisbranch/chronicler/internal/platform/errors"
)

// EntityType describes the kind of a cataloged world entity.
type EntityType string

const (
	// EntityTypeFaction is an organized group that can control regions.
	EntityTypeFaction EntityType = "faction"
	// EntityTypeRegion is a named area of the world map.
	EntityTypeRegion EntityType = "region"
)

// Entry is one cataloged entity with its canonical name and aliases.
type Entry struct {
	ID            string     `yaml:"id" json:"id"`
	Type          EntityType `yaml:"type" json:"type"`
	CanonicalName string     `yaml:"canonical_name" json:"canonicalName"`
	Aliases       []string   `yaml:"aliases" json:"aliases,omitempty"`
}

// Names returns the canonical name followed by all aliases.
func (e Entry) Names() []string {
	names := make([]string, 0, len(e.Aliases)+1)
	names = append(names, e.CanonicalName)
	names = append(names, e.Aliases...)
	return names
}

// Lexicon is a static catalog of known entities.
type Lexicon struct {
	entries []Entry
	byID    map[string]Entry
}

// NewLexicon builds a lexicon from catalog entries. Entry order is preserved.
func NewLexicon(entries []Entry) *Lexicon {
	lex := &Lexicon{
		entries: make([]Entry, len(entries)),
		byID:    make(map[string]Entry, len(entries)),
	}
	copy(lex.entries, entries)
	for _, entry := range entries {
		lex.byID[entry.ID] = entry
	}
	return lex
}

// Entries returns the catalog entries in insertion order.
func (l *Lexicon) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Entry looks up a catalog entry by entity ID.
func (l *Lexicon) Entry(entityID string) (Entry, bool) {
	entry, ok := l.byID[entityID]
	return entry, ok
}

// Regions returns the region entries in insertion order.
func (l *Lexicon) Regions() []Entry {
	var out []Entry
	for _, entry := range l.entries {
		if entry.Type == EntityTypeRegion {
			out = append(out, entry)
		}
	}
	return out
}

// Len returns the number of cataloged entities.
func (l *Lexicon) Len() int {
	return len(l.entries)
}

// Severity grades a cataloged capability.
type Severity string

const (
	// SeverityFlagged marks a capability that requires moderator review.
	SeverityFlagged Severity = "flagged"
	// SeverityProhibited marks a capability that is disallowed outright.
	SeverityProhibited Severity = "prohibited"
)

// Capability is one cataloged prohibited or flagged capability.
type Capability struct {
	ID        string   `yaml:"id" json:"id"`
	Label     string   `yaml:"label" json:"label"`
	Severity  Severity `yaml:"severity" json:"severity"`
	Rationale string   `yaml:"rationale" json:"rationale,omitempty"`
}

// CapabilityRef is a reference to a cataloged capability detected in
// transcript text.
type CapabilityRef struct {
	CapabilityID string   `json:"capabilityId"`
	Label        string   `json:"label"`
	Severity     Severity `json:"severity"`
}

// CapabilityRegistry is a constructor-injected catalog of capabilities.
// Tests substitute catalogs without touching global state.
type CapabilityRegistry struct {
	entries []Capability
	byID    map[string]Capability
}

// NewCapabilityRegistry builds a registry from catalog entries.
func NewCapabilityRegistry(entries []Capability) *CapabilityRegistry {
	reg := &CapabilityRegistry{
		entries: make([]Capability, len(entries)),
		byID:    make(map[string]Capability, len(entries)),
	}
	copy(reg.entries, entries)
	for _, entry := range entries {
		reg.byID[entry.ID] = entry
	}
	return reg
}

// Entries returns the cataloged capabilities in insertion order.
func (r *CapabilityRegistry) Entries() []Capability {
	out := make([]Capability, len(r.entries))
	copy(out, r.entries)
	return out
}

// Capability looks up a cataloged capability by ID.
func (r *CapabilityRegistry) Capability(id string) (Capability, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// Validate checks a detected capability reference against the catalog. An
// unknown ID or a severity that disagrees with the catalog indicates a
// data-integrity problem in upstream extraction and is returned as a typed
// error.
func (r *CapabilityRegistry) Validate(ref CapabilityRef) error {
	cataloged, ok := r.byID[ref.CapabilityID]
	if !ok {
		return platformerrors.WithMetadata(
			platformerrors.CodeCanonUnknownCapability,
			"capability reference is not cataloged",
			map[string]string{"capability_id": ref.CapabilityID},
		)
	}
	if ref.Severity != "" && ref.Severity != cataloged.Severity {
		return platformerrors.WithMetadata(
			platformerrors.CodeCanonCapabilitySeverityMismatch,
			"capability reference severity disagrees with catalog",
			map[string]string{
				"capability_id":      ref.CapabilityID,
				"reference_severity": string(ref.Severity),
				"cataloged_severity": string(cataloged.Severity),
			},
		)
	}
	return nil
}

// Snapshot is the current canonical facts for one entity.
type Snapshot struct {
	Type EntityType `json:"type"`
	// Control lists region IDs held by a faction.
	Control []string `json:"control,omitempty"`
	// Status is the current region condition (stable, threatened, devastated).
	Status string `json:"status,omitempty"`
	// ControllingFaction is the faction ID holding a region, if any.
	ControllingFaction string `json:"controllingFaction,omitempty"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Control != nil {
		out.Control = make([]string, len(s.Control))
		copy(out.Control, s.Control)
	}
	return out
}

// State maps entity IDs to their current canonical facts. It is a read-only
// input to delta computation for a given run.
type State map[string]Snapshot

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for id, snapshot := range s {
		out[id] = snapshot.Clone()
	}
	return out
}

// ControllerOf returns the faction currently holding regionID, if recorded.
func (s State) ControllerOf(regionID string) (string, bool) {
	snapshot, ok := s[regionID]
	if !ok {
		return "", false
	}
	owner := strings.TrimSpace(snapshot.ControllingFaction)
	if owner == "" {
		return "", false
	}
	return owner, true
}

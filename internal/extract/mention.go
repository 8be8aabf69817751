// Package extract scans game session transcripts for mentions of cataloged
// world entities and proposes world changes for the publishing pipeline.
package extract

import (
	"github.com/louisbranch/chronicler/internal/canon"
)

// MatchType describes how a mention matched its lexicon entry.
type MatchType string

const (
	// MatchCanonical is a word-boundary match on the canonical name.
	MatchCanonical MatchType = "canonical"
	// MatchAlias is a word-boundary match on a cataloged alias.
	MatchAlias MatchType = "alias"
	// MatchFuzzy is a bare substring match used only when no canonical or
	// alias match exists for the entity in the sentence.
	MatchFuzzy MatchType = "fuzzy"
)

// Match records which catalog name matched and how.
type Match struct {
	Type  MatchType `json:"type"`
	Value string    `json:"value"`
}

// Source locates a mention inside the session transcript.
type Source struct {
	SessionID     string `json:"sessionId"`
	SceneID       string `json:"sceneId"`
	TurnID        string `json:"turnId"`
	Speaker       string `json:"speaker"`
	SentenceIndex int    `json:"sentenceIndex"`
}

// SentenceContext carries the neighboring sentences for moderator review.
type SentenceContext struct {
	Previous string `json:"previous,omitempty"`
	Next     string `json:"next,omitempty"`
}

// ControlChange lists regions a faction gained or lost in a sentence.
type ControlChange struct {
	Add    []string `json:"add,omitempty"`
	Remove []string `json:"remove,omitempty"`
}

// ProposedChanges is the world change a mention suggests. Factions propose
// control changes; regions propose a status.
type ProposedChanges struct {
	Control *ControlChange `json:"control,omitempty"`
	Status  string         `json:"status,omitempty"`
}

// Clone returns a deep copy of the proposed changes.
func (p *ProposedChanges) Clone() *ProposedChanges {
	if p == nil {
		return nil
	}
	out := &ProposedChanges{Status: p.Status}
	if p.Control != nil {
		out.Control = &ControlChange{}
		if p.Control.Add != nil {
			out.Control.Add = make([]string, len(p.Control.Add))
			copy(out.Control.Add, p.Control.Add)
		}
		if p.Control.Remove != nil {
			out.Control.Remove = make([]string, len(p.Control.Remove))
			copy(out.Control.Remove, p.Control.Remove)
		}
	}
	return out
}

// Mention is a single detected reference to a known entity within one
// transcript sentence.
type Mention struct {
	MentionID      string                `json:"mentionId"`
	EntityID       string                `json:"entityId"`
	EntityType     canon.EntityType      `json:"entityType"`
	CanonicalName  string                `json:"canonicalName"`
	Match          Match                 `json:"match"`
	Confidence     float64               `json:"confidence"`
	Sentence       string                `json:"sentence"`
	Source         Source                `json:"source"`
	Proposed       *ProposedChanges      `json:"proposedChanges,omitempty"`
	CapabilityRefs []canon.CapabilityRef `json:"capabilityRefs,omitempty"`
	Context        SentenceContext       `json:"context"`
}

// TranscriptEntry is one turn of the session transcript, as produced by the
// narrative engine.
type TranscriptEntry struct {
	SceneID string `json:"sceneId"`
	TurnID  string `json:"turnId"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

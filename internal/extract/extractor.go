package extract

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/louisbranch/chronicler/internal/canon"
	platformerrors "github.com/louisbranch/chronicler/internal/platform/errors"
	"github.com/louisbranch/chronicler/internal/platform/id"
)

const (
	confidenceCanonical = 0.95
	confidenceAlias     = 0.85
	confidenceFuzzy     = 0.55
	confidenceDefault   = 0.5

	uncertaintyPenalty = 0.3
	confidenceCeiling  = 0.99

	// DefaultMinConfidence is the cutoff below which mentions are discarded.
	DefaultMinConfidence = 0.4
)

// uncertaintyTokens lower mention confidence when present in a sentence.
var uncertaintyTokens = []string{
	"rumor",
	"rumour",
	"unconfirmed",
	"allegedly",
	"supposedly",
	"some say",
	"hearsay",
}

// gainKeywords signal a faction taking control of a region.
var gainKeywords = []string{
	"seized",
	"secured",
	"claimed",
	"captured",
	"took control of",
	"stabilized",
	"liberated",
}

// lossKeywords signal a faction losing control of a region.
var lossKeywords = []string{
	"lost",
	"ceded",
	"abandoned",
	"retreated from",
}

// statusPatterns drive region status detection; the first matching group
// wins, so ordering is significant.
var statusPatterns = []struct {
	status   string
	keywords []string
}{
	{status: "threatened", keywords: []string{"threatened", "under siege", "under attack", "besieged", "at risk"}},
	{status: "devastated", keywords: []string{"devastated", "razed", "ruined", "destroyed", "in ashes"}},
	{status: "stable", keywords: []string{"stable", "at peace", "recovering", "calm again"}},
}

var foldCaser = cases.Fold()

func fold(s string) string {
	return foldCaser.String(s)
}

// namePattern is a precompiled word-boundary matcher for one catalog name.
type namePattern struct {
	name    string
	pattern *regexp.Regexp
}

func compileName(name string) namePattern {
	return namePattern{
		name:    name,
		pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`),
	}
}

// entityMatcher holds precompiled matchers for one lexicon entry.
type entityMatcher struct {
	entry     canon.Entry
	canonical namePattern
	aliases   []namePattern
	folded    []string
}

// Extractor scans transcript text against a lexicon and capability catalog.
type Extractor struct {
	lexicon       *canon.Lexicon
	capabilities  *canon.CapabilityRegistry
	minConfidence float64
	idGenerator   func() (string, error)

	matchers []entityMatcher
	regions  []entityMatcher
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMinConfidence overrides the mention confidence cutoff.
func WithMinConfidence(min float64) Option {
	return func(e *Extractor) {
		e.minConfidence = min
	}
}

// WithIDGenerator overrides mention ID generation, for deterministic tests.
func WithIDGenerator(generator func() (string, error)) Option {
	return func(e *Extractor) {
		e.idGenerator = generator
	}
}

// New builds an extractor over the given catalogs. A nil lexicon or registry
// falls back to the embedded defaults.
func New(lexicon *canon.Lexicon, capabilities *canon.CapabilityRegistry, opts ...Option) *Extractor {
	if lexicon == nil {
		lexicon = canon.DefaultLexicon()
	}
	if capabilities == nil {
		capabilities = canon.DefaultCapabilityRegistry()
	}
	extractor := &Extractor{
		lexicon:       lexicon,
		capabilities:  capabilities,
		minConfidence: DefaultMinConfidence,
		idGenerator:   id.NewID,
	}
	for _, opt := range opts {
		opt(extractor)
	}

	for _, entry := range lexicon.Entries() {
		matcher := entityMatcher{
			entry:     entry,
			canonical: compileName(entry.CanonicalName),
		}
		for _, alias := range entry.Aliases {
			matcher.aliases = append(matcher.aliases, compileName(alias))
		}
		for _, name := range entry.Names() {
			matcher.folded = append(matcher.folded, fold(name))
		}
		extractor.matchers = append(extractor.matchers, matcher)
		if entry.Type == canon.EntityTypeRegion {
			extractor.regions = append(extractor.regions, matcher)
		}
	}
	return extractor
}

// Input is one transcript extraction request.
type Input struct {
	SessionID  string
	Transcript []TranscriptEntry
}

// Result carries the deduplicated mentions and the lexicon they were matched
// against, so downstream stages diff against the same catalog.
type Result struct {
	Mentions []Mention
	Lexicon  *canon.Lexicon
}

// Extract scans the transcript and returns actionable, deduplicated
// mentions. At most one mention per entity per sentence per turn survives;
// the highest-confidence variant wins.
func (e *Extractor) Extract(input Input) (Result, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return Result{}, platformerrors.New(platformerrors.CodeExtractSessionRequired, "session id is required")
	}

	type dedupKey struct {
		entityID      string
		sceneID       string
		turnID        string
		sentenceIndex int
	}
	indexByKey := make(map[dedupKey]int)
	var mentions []Mention

	for _, entry := range input.Transcript {
		if strings.TrimSpace(entry.Text) == "" {
			continue
		}
		sentences := splitSentences(entry.Text)
		for sentenceIndex, sentence := range sentences {
			foldedSentence := fold(sentence)
			uncertain := containsAny(foldedSentence, uncertaintyTokens)

			for _, matcher := range e.matchers {
				match, ok := e.matchSentence(matcher, sentence, foldedSentence)
				if !ok {
					continue
				}

				confidence := confidenceFor(match.Type)
				if uncertain {
					confidence -= uncertaintyPenalty
				}
				confidence = clampConfidence(confidence)
				if confidence < e.minConfidence {
					continue
				}

				proposed := e.proposeChanges(matcher.entry, foldedSentence)
				refs := e.capabilityRefs(foldedSentence)
				// Mentions with neither a proposed change nor a capability
				// reference are not actionable.
				if proposed == nil && len(refs) == 0 {
					continue
				}

				mentionID, err := e.idGenerator()
				if err != nil {
					return Result{}, fmt.Errorf("generate mention id: %w", err)
				}
				mention := Mention{
					MentionID:     mentionID,
					EntityID:      matcher.entry.ID,
					EntityType:    matcher.entry.Type,
					CanonicalName: matcher.entry.CanonicalName,
					Match:         match,
					Confidence:    confidence,
					Sentence:      sentence,
					Source: Source{
						SessionID:     sessionID,
						SceneID:       entry.SceneID,
						TurnID:        entry.TurnID,
						Speaker:       entry.Speaker,
						SentenceIndex: sentenceIndex,
					},
					Proposed:       proposed,
					CapabilityRefs: refs,
					Context:        sentenceContext(sentences, sentenceIndex),
				}

				key := dedupKey{
					entityID:      matcher.entry.ID,
					sceneID:       entry.SceneID,
					turnID:        entry.TurnID,
					sentenceIndex: sentenceIndex,
				}
				if existing, ok := indexByKey[key]; ok {
					if mention.Confidence > mentions[existing].Confidence {
						mentions[existing] = mention
					}
					continue
				}
				indexByKey[key] = len(mentions)
				mentions = append(mentions, mention)
			}
		}
	}

	return Result{Mentions: mentions, Lexicon: e.lexicon}, nil
}

// matchSentence resolves the best match for one entity in one sentence:
// canonical name first, then aliases, then a fuzzy substring fallback.
func (e *Extractor) matchSentence(matcher entityMatcher, sentence, foldedSentence string) (Match, bool) {
	if matcher.canonical.pattern.MatchString(sentence) {
		return Match{Type: MatchCanonical, Value: matcher.canonical.name}, true
	}
	for _, alias := range matcher.aliases {
		if alias.pattern.MatchString(sentence) {
			return Match{Type: MatchAlias, Value: alias.name}, true
		}
	}
	for i, folded := range matcher.folded {
		if strings.Contains(foldedSentence, folded) {
			names := matcher.entry.Names()
			return Match{Type: MatchFuzzy, Value: names[i]}, true
		}
	}
	return Match{}, false
}

// proposeChanges derives a world change from the sentence, if any.
func (e *Extractor) proposeChanges(entry canon.Entry, foldedSentence string) *ProposedChanges {
	switch entry.Type {
	case canon.EntityTypeFaction:
		return e.proposeControlChange(foldedSentence)
	case canon.EntityTypeRegion:
		for _, pattern := range statusPatterns {
			if containsAny(foldedSentence, pattern.keywords) {
				return &ProposedChanges{Status: pattern.status}
			}
		}
	}
	return nil
}

// proposeControlChange scans for region names near gain or loss keywords. A
// sentence with both or neither keyword category yields no claim.
func (e *Extractor) proposeControlChange(foldedSentence string) *ProposedChanges {
	gain := containsAny(foldedSentence, gainKeywords)
	loss := containsAny(foldedSentence, lossKeywords)
	if gain == loss {
		return nil
	}

	var regions []string
	for _, region := range e.regions {
		for _, folded := range region.folded {
			if strings.Contains(foldedSentence, folded) {
				regions = append(regions, region.entry.ID)
				break
			}
		}
	}
	if len(regions) == 0 {
		return nil
	}

	change := &ControlChange{}
	if gain {
		change.Add = regions
	} else {
		change.Remove = regions
	}
	return &ProposedChanges{Control: change}
}

// capabilityRefs records every cataloged capability whose label appears in
// the sentence.
func (e *Extractor) capabilityRefs(foldedSentence string) []canon.CapabilityRef {
	var refs []canon.CapabilityRef
	for _, capability := range e.capabilities.Entries() {
		if strings.Contains(foldedSentence, fold(capability.Label)) {
			refs = append(refs, canon.CapabilityRef{
				CapabilityID: capability.ID,
				Label:        capability.Label,
				Severity:     capability.Severity,
			})
		}
	}
	return refs
}

func confidenceFor(matchType MatchType) float64 {
	switch matchType {
	case MatchCanonical:
		return confidenceCanonical
	case MatchAlias:
		return confidenceAlias
	case MatchFuzzy:
		return confidenceFuzzy
	default:
		return confidenceDefault
	}
}

func clampConfidence(confidence float64) float64 {
	if confidence < 0 {
		return 0
	}
	if confidence > confidenceCeiling {
		return confidenceCeiling
	}
	return confidence
}

func containsAny(folded string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(folded, keyword) {
			return true
		}
	}
	return false
}

func sentenceContext(sentences []string, index int) SentenceContext {
	var ctx SentenceContext
	if index > 0 {
		ctx.Previous = sentences[index-1]
	}
	if index+1 < len(sentences) {
		ctx.Next = sentences[index+1]
	}
	return ctx
}

// splitSentences breaks transcript text on sentence-ending punctuation.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if sentence := strings.TrimSpace(current.String()); sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
		}
	}
	if sentence := strings.TrimSpace(current.String()); sentence != "" {
		sentences = append(sentences, sentence)
	}
	return sentences
}

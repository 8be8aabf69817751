package canon

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	platformerrors "github.com/louisbranch/chronicler/internal/platform/errors"
)

//go:embed catalog/lexicon.yaml
var defaultLexiconYAML []byte

//go:embed catalog/capabilities.yaml
var defaultCapabilitiesYAML []byte

type lexiconFile struct {
	Entities []Entry `yaml:"entities"`
}

type capabilityFile struct {
	Capabilities []Capability `yaml:"capabilities"`
}

// DefaultLexicon returns the lexicon shipped with the binary.
func DefaultLexicon() *Lexicon {
	lex, err := parseLexicon(defaultLexiconYAML)
	if err != nil {
		// The embedded catalog is validated by tests; a parse failure here
		// is a build defect.
		panic(fmt.Sprintf("embedded lexicon catalog: %v", err))
	}
	return lex
}

// DefaultCapabilityRegistry returns the capability catalog shipped with the
// binary.
func DefaultCapabilityRegistry() *CapabilityRegistry {
	reg, err := parseCapabilities(defaultCapabilitiesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded capability catalog: %v", err))
	}
	return reg
}

// LoadLexicon reads and validates a lexicon catalog from a YAML file.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon catalog: %w", err)
	}
	return parseLexicon(data)
}

// LoadCapabilityRegistry reads and validates a capability catalog from a
// YAML file.
func LoadCapabilityRegistry(path string) (*CapabilityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read capability catalog: %w", err)
	}
	return parseCapabilities(data)
}

func parseLexicon(data []byte) (*Lexicon, error) {
	var file lexiconFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, platformerrors.Wrap(platformerrors.CodeCanonCatalogInvalid, "unmarshal lexicon catalog", err)
	}
	seen := make(map[string]bool, len(file.Entities))
	for i, entry := range file.Entities {
		if strings.TrimSpace(entry.ID) == "" {
			return nil, catalogError(fmt.Sprintf("entity %d has no id", i))
		}
		if seen[entry.ID] {
			return nil, catalogError(fmt.Sprintf("entity id %q is duplicated", entry.ID))
		}
		seen[entry.ID] = true
		if entry.Type != EntityTypeFaction && entry.Type != EntityTypeRegion {
			return nil, catalogError(fmt.Sprintf("entity %q has unknown type %q", entry.ID, entry.Type))
		}
		if strings.TrimSpace(entry.CanonicalName) == "" {
			return nil, catalogError(fmt.Sprintf("entity %q has no canonical name", entry.ID))
		}
	}
	return NewLexicon(file.Entities), nil
}

func parseCapabilities(data []byte) (*CapabilityRegistry, error) {
	var file capabilityFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, platformerrors.Wrap(platformerrors.CodeCanonCatalogInvalid, "unmarshal capability catalog", err)
	}
	seen := make(map[string]bool, len(file.Capabilities))
	for i, capability := range file.Capabilities {
		if strings.TrimSpace(capability.ID) == "" {
			return nil, catalogError(fmt.Sprintf("capability %d has no id", i))
		}
		if seen[capability.ID] {
			return nil, catalogError(fmt.Sprintf("capability id %q is duplicated", capability.ID))
		}
		seen[capability.ID] = true
		if strings.TrimSpace(capability.Label) == "" {
			return nil, catalogError(fmt.Sprintf("capability %q has no label", capability.ID))
		}
		if capability.Severity != SeverityFlagged && capability.Severity != SeverityProhibited {
			return nil, catalogError(fmt.Sprintf("capability %q has unknown severity %q", capability.ID, capability.Severity))
		}
	}
	return NewCapabilityRegistry(file.Capabilities), nil
}

func catalogError(message string) error {
	return platformerrors.New(platformerrors.CodeCanonCatalogInvalid, message)
}

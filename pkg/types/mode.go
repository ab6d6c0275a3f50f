package types

import (
	"fmt"
	"strings"
)

// SearchMode selects the retrieval branches used by a search
type SearchMode string

const (
	ModeText     SearchMode = "text"
	ModeSemantic SearchMode = "semantic"
	ModeHybrid   SearchMode = "hybrid"
)

// ParseSearchMode parses a mode string. An empty string yields ModeHybrid.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeHybrid:
		return ModeHybrid, nil
	case ModeText:
		return ModeText, nil
	case ModeSemantic:
		return ModeSemantic, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// UsesSemantic reports whether the vector branch runs in this mode
func (m SearchMode) UsesSemantic() bool {
	return m == ModeSemantic || m == ModeHybrid
}

// UsesLexical reports whether the full-text branch runs in this mode
func (m SearchMode) UsesLexical() bool {
	return m == ModeText || m == ModeHybrid
}

// MatchedField identifies which part of a message matched a query
type MatchedField string

const (
	MatchedContent       MatchedField = "content"
	MatchedTranscription MatchedField = "transcription"
	MatchedDescription   MatchedField = "description"
)

// SearchableFields lists the indexed message fields in priority order
var SearchableFields = []MatchedField{MatchedContent, MatchedTranscription, MatchedDescription}

// Validate checks that the field is one of the indexed fields
func (f MatchedField) Validate() error {
	switch f {
	case MatchedContent, MatchedTranscription, MatchedDescription:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidField, f)
	}
}

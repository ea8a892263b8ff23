package model

import (
	"fmt"
	"sort"
)

// CitationSpan identifies one detected citation as a half-open character
// range [Start, End) into the source text it was detected in.
type CitationSpan struct {
	Text       string       `json:"text"`                 // The citation text itself
	Start      int          `json:"start"`                // Offset of first character
	End        int          `json:"end"`                  // Offset one past last character
	Kind       CitationKind `json:"kind"`                 // Citation classification from the detector
	Confidence float64      `json:"confidence,omitempty"` // Detector confidence (0.0 to 1.0)
}

// CitationKind classifies the shape of a detected citation
type CitationKind string

const (
	KindJournal CitationKind = "journal" // Author (Year) Journal style
	KindDOI     CitationKind = "doi"     // Contains a DOI
	KindArxiv   CitationKind = "arxiv"   // Contains an arXiv identifier
	KindISBN    CitationKind = "isbn"    // Contains an ISBN
	KindURL     CitationKind = "url"     // Bare URL citation
	KindGeneric CitationKind = "generic" // Anything else the detector flagged
)

// Validate checks that the span is a well-formed range into text of the
// given length.
func (s CitationSpan) Validate(textLen int) error {
	if s.Start < 0 || s.Start >= s.End || s.End > textLen {
		return fmt.Errorf("span [%d,%d) out of range for text length %d", s.Start, s.End, textLen)
	}
	return nil
}

// SortSpans returns a copy of spans ordered by ascending Start. Span
// identifiers are always assigned in this order, independent of how the
// detector or caller ordered the input.
func SortSpans(spans []CitationSpan) []CitationSpan {
	sorted := make([]CitationSpan, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})
	return sorted
}

// ValidateSpans checks every span against the source text. It does not
// check for overlap; overlap is a render-time invariant.
func ValidateSpans(sourceText string, spans []CitationSpan) error {
	for i, span := range spans {
		if err := span.Validate(len(sourceText)); err != nil {
			return fmt.Errorf("span %d: %w", i, err)
		}
	}
	return nil
}

// Package highlight re-attaches verification outcomes to exact character
// spans in the original text. Annotate builds a structured, ordered
// annotation list; Render splices wrapper markup into the text. The two
// are deliberately separate so splicing correctness never depends on any
// presentation concern.
package highlight

import (
	"errors"
	"fmt"
	"strings"

	"github.com/citewatch/citewatch/internal/model"
)

var (
	// ErrOverlappingSpans signals two spans sharing characters. Splicing
	// overlapping spans would corrupt the output, so this is detected up
	// front and refused.
	ErrOverlappingSpans = errors.New("overlapping citation spans")

	// ErrSpanOutOfRange signals a span outside the source text
	ErrSpanOutOfRange = errors.New("citation span out of range")

	// ErrResultCountMismatch signals outcomes that cannot be matched to
	// any submitted span. The offset pair is a hard contract between
	// detector and verifier; a mismatch means one side normalized
	// differently and guessing would attach verdicts to the wrong text.
	ErrResultCountMismatch = errors.New("verification results do not match citation spans")
)

// StatusClass is the presentation class derived from an outcome
type StatusClass string

const (
	ClassVerified     StatusClass = "citation-verified"
	ClassNotFound     StatusClass = "citation-not-found"
	ClassContradicted StatusClass = "citation-contradicted"
	ClassError        StatusClass = "citation-error"
	// ClassPending marks spans whose verification has not finished.
	// Pending is distinct from ClassError: "still checking" and "check
	// failed" must never look the same.
	ClassPending StatusClass = "citation-pending"
)

// Annotation binds one span to its stable identifier and current
// verification display state. Outcome is nil while the span is pending.
type Annotation struct {
	SpanID      int
	StatusClass StatusClass
	Span        model.CitationSpan
	Outcome     *model.VerificationOutcome
}

// Annotate correlates spans with outcomes and assigns stable identifiers
// 1..N by ascending Start. Outcomes are matched to spans by exact
// (Start, End) equality; spans with no matching outcome yet are marked
// pending. The returned annotations are ordered by identifier.
func Annotate(sourceText string, spans []model.CitationSpan, outcomes []model.VerificationOutcome) ([]Annotation, error) {
	sorted := model.SortSpans(spans)

	for i, span := range sorted {
		if err := span.Validate(len(sourceText)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSpanOutOfRange, err)
		}
		if i > 0 && span.Start < sorted[i-1].End {
			return nil, fmt.Errorf("%w: [%d,%d) and [%d,%d)",
				ErrOverlappingSpans, sorted[i-1].Start, sorted[i-1].End, span.Start, span.End)
		}
	}

	type key struct{ start, end int }
	matched := make(map[key]*model.VerificationOutcome, len(outcomes))
	for i := range outcomes {
		matched[key{outcomes[i].Span.Start, outcomes[i].Span.End}] = &outcomes[i]
	}

	anns := make([]Annotation, len(sorted))
	used := 0
	for i, span := range sorted {
		outcome := matched[key{span.Start, span.End}]
		if outcome != nil {
			used++
		}
		anns[i] = Annotation{
			SpanID:      i + 1,
			StatusClass: statusClass(outcome),
			Span:        span,
			Outcome:     outcome,
		}
	}

	if used < len(matched) {
		return nil, fmt.Errorf("%w: %d outcomes for %d spans, %d unmatched",
			ErrResultCountMismatch, len(matched), len(sorted), len(matched)-used)
	}
	return anns, nil
}

func statusClass(outcome *model.VerificationOutcome) StatusClass {
	if outcome == nil {
		return ClassPending
	}
	switch outcome.Status {
	case model.StatusVerified:
		return ClassVerified
	case model.StatusNotFound, model.StatusPartial:
		return ClassNotFound
	case model.StatusContradicted:
		return ClassContradicted
	default:
		return ClassError
	}
}

// Render splices a wrapper around every annotated span. Identifiers were
// assigned ascending by Start, but the splice runs DESCENDING by Start:
// each insertion changes the string length, and editing from the highest
// offset down is what keeps every remaining span's coordinates valid.
// The span text itself is inserted verbatim, so stripping the wrappers
// recovers the original text exactly.
func Render(sourceText string, anns []Annotation) (string, error) {
	for i := 1; i < len(anns); i++ {
		if anns[i].Span.Start < anns[i-1].Span.End {
			return "", ErrOverlappingSpans
		}
		if err := anns[i].Span.Validate(len(sourceText)); err != nil {
			return "", fmt.Errorf("%w: %v", ErrSpanOutOfRange, err)
		}
	}
	if len(anns) > 0 {
		if err := anns[0].Span.Validate(len(sourceText)); err != nil {
			return "", fmt.Errorf("%w: %v", ErrSpanOutOfRange, err)
		}
	}

	rendered := sourceText
	for i := len(anns) - 1; i >= 0; i-- {
		ann := anns[i]
		wrapped := openTag(ann) + rendered[ann.Span.Start:ann.Span.End] + closeTag
		rendered = rendered[:ann.Span.Start] + wrapped + rendered[ann.Span.End:]
	}
	return rendered, nil
}

const closeTag = "</cw-cite>"

func openTag(ann Annotation) string {
	return fmt.Sprintf(`<cw-cite id="citation-%d" class="%s">`, ann.SpanID, ann.StatusClass)
}

// Strip removes every wrapper Render inserted, recovering the original
// text. Used for the render/strip round-trip invariant.
func Strip(rendered string) string {
	out := rendered
	for {
		start := strings.Index(out, "<cw-cite ")
		if start < 0 {
			break
		}
		end := strings.Index(out[start:], ">")
		if end < 0 {
			break
		}
		out = out[:start] + out[start+end+1:]
	}
	return strings.ReplaceAll(out, closeTag, "")
}

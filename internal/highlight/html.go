package highlight

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/citewatch/citewatch/internal/model"
)

// snippetPolicy sanitizes evidence snippets, which arrive from scraped
// pages and search backends and must be treated as hostile.
var snippetPolicy = bluemonday.StrictPolicy()

// HTMLRenderer turns annotations into a displayable document: the source
// text with highlighted citation spans plus a detail panel per citation.
// All payloads are escaped or sanitized here, never in the splicer.
type HTMLRenderer struct{}

// RenderText produces the highlighted message body. Text outside and
// inside spans is HTML-escaped; the wrapper carries the stable identifier
// and status class for styling and anchor targets.
func (HTMLRenderer) RenderText(sourceText string, anns []Annotation) (string, error) {
	var sb strings.Builder
	sb.WriteString(`<div class="message-with-citations">`)

	cursor := 0
	for _, ann := range anns {
		if ann.Span.Start < cursor {
			return "", ErrOverlappingSpans
		}
		if err := ann.Span.Validate(len(sourceText)); err != nil {
			return "", fmt.Errorf("%w: %v", ErrSpanOutOfRange, err)
		}
		sb.WriteString(html.EscapeString(sourceText[cursor:ann.Span.Start]))
		fmt.Fprintf(&sb,
			`<span class="citation-highlight %s" id="citation-%d" data-citation-id="citation-%d">%s</span>`,
			ann.StatusClass, ann.SpanID, ann.SpanID,
			html.EscapeString(sourceText[ann.Span.Start:ann.Span.End]))
		cursor = ann.Span.End
	}
	sb.WriteString(html.EscapeString(sourceText[cursor:]))
	sb.WriteString(`</div>`)
	return sb.String(), nil
}

// RenderPanel produces the per-citation detail panel
func (HTMLRenderer) RenderPanel(anns []Annotation) string {
	if len(anns) == 0 {
		return `<div class="fact-check-empty"><p>No citations detected in this message.</p></div>`
	}

	var sb strings.Builder
	sb.WriteString(`<div class="fact-check-panel">`)
	for _, ann := range anns {
		renderComment(&sb, ann)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

func renderComment(sb *strings.Builder, ann Annotation) {
	display := ann.Span.Text
	if len(display) > 60 {
		display = display[:57] + "..."
	}

	fmt.Fprintf(sb, `<div class="citation-comment" data-citation-id="citation-%d">`, ann.SpanID)
	fmt.Fprintf(sb, `<div class="comment-citation-text">%s</div>`, html.EscapeString(display))
	fmt.Fprintf(sb, `<span class="status-badge %s">%s</span>`, ann.StatusClass, statusDisplay(ann.Outcome))

	if ann.Outcome != nil {
		fmt.Fprintf(sb, `<div class="comment-explanation">%s</div>`, html.EscapeString(ann.Outcome.Explanation))
		renderSources(sb, ann.Outcome.Sources)
		fmt.Fprintf(sb, `<div class="confidence-score">Confidence: %.0f%%</div>`, ann.Outcome.Confidence*100)
	}
	sb.WriteString(`</div>`)
}

func renderSources(sb *strings.Builder, sources []model.Source) {
	if len(sources) == 0 {
		sb.WriteString(`<div class="comment-sources"><div class="sources-title">No sources found</div></div>`)
		return
	}

	sb.WriteString(`<div class="comment-sources"><div class="sources-title">Sources Found:</div>`)
	for i, source := range sources {
		if i >= 3 {
			break
		}
		title := source.Title
		if len(title) > 50 {
			title = title[:50]
		}
		fmt.Fprintf(sb,
			`<div class="source-item"><a href="%s" target="_blank" rel="noopener noreferrer">%s</a>`,
			html.EscapeString(source.URL), html.EscapeString(title))
		if source.Snippet != "" {
			fmt.Fprintf(sb, `<div class="source-snippet">%s</div>`, snippetPolicy.Sanitize(source.Snippet))
		}
		sb.WriteString(`</div>`)
	}
	sb.WriteString(`</div>`)
}

func statusDisplay(outcome *model.VerificationOutcome) string {
	if outcome == nil {
		return "Checking..."
	}
	switch outcome.Status {
	case model.StatusVerified:
		return "Verified"
	case model.StatusNotFound:
		return "Not Found"
	case model.StatusContradicted:
		return "Contradicted"
	case model.StatusPartial:
		return "Partial"
	default:
		return "Error"
	}
}

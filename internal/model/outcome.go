package model

// VerificationStatus is the verdict produced for one citation
type VerificationStatus string

const (
	StatusVerified     VerificationStatus = "verified"     // Supported by at least one strong source
	StatusNotFound     VerificationStatus = "not_found"    // No supporting source located
	StatusContradicted VerificationStatus = "contradicted" // Sources dispute the citation
	StatusError        VerificationStatus = "error"        // Verification itself failed
	StatusPartial      VerificationStatus = "partial"      // Weak or incomplete support
)

// Source is one piece of external evidence considered during verification
type Source struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Snippet    string  `json:"snippet,omitempty"`
	Confidence float64 `json:"confidence,omitempty"` // Reliability estimate for this source (0.0 to 1.0)
}

// VerificationOutcome is the immutable verdict for one citation span.
// Created exactly once per span by a verification worker; the orchestrator
// records it but never mutates it.
type VerificationOutcome struct {
	Span        CitationSpan       `json:"citation"`
	Status      VerificationStatus `json:"status"`
	Explanation string             `json:"explanation"`
	Confidence  float64            `json:"confidence"`
	Sources     []Source           `json:"sources_found"`
	Queries     []string           `json:"search_queries_used,omitempty"` // Queries issued for this span
}

// ErrorOutcome builds an error-status outcome for a span. Worker failures
// are always converted into one of these rather than escalated, so one bad
// citation never sinks its siblings.
func ErrorOutcome(span CitationSpan, explanation string) VerificationOutcome {
	return VerificationOutcome{
		Span:        span,
		Status:      StatusError,
		Explanation: explanation,
		Confidence:  0.0,
		Sources:     []Source{},
	}
}

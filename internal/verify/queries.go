// Package verify resolves one citation span against external evidence.
// The Checker is an isolated failure domain: whatever goes wrong inside,
// the caller always receives a VerificationOutcome, never an error.
package verify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/citewatch/citewatch/internal/model"
)

var (
	yearPattern   = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	doiPattern    = regexp.MustCompile(`\b10\.\d{4,9}/[^\s"'<>]+`)
	arxivPattern  = regexp.MustCompile(`\b\d{4}\.\d{4,5}(v\d+)?\b`)
	isbnPattern   = regexp.MustCompile(`\b97[89][-\s]?(?:\d[-\s]?){9}\d\b|\b(?:\d[-\s]?){9}[\dXx]\b`)
	quotedPattern = regexp.MustCompile(`["“']([^"”']{8,})["”']`)
	// Leading "Smith", "Smith et al." or "Smith and Jones" before a year or comma
	authorPattern = regexp.MustCompile(`^([A-Z][a-zA-Z'\-]+(?:\s+(?:et\s+al\.?|and\s+[A-Z][a-zA-Z'\-]+))?)\s*[,(]`)
)

// components are the structured fields recoverable from raw citation text
type components struct {
	author  string
	year    string
	title   string
	journal string
	doi     string
	arxivID string
	isbn    string
}

// parseComponents extracts whatever structure the citation text offers.
// Detection of citations is upstream; this only decomposes text the
// detector already flagged.
func parseComponents(span model.CitationSpan) components {
	text := strings.TrimSpace(span.Text)
	c := components{
		year:    yearPattern.FindString(text),
		doi:     strings.TrimRight(doiPattern.FindString(text), ".,;"),
		arxivID: arxivPattern.FindString(text),
		isbn:    isbnPattern.FindString(text),
	}
	if m := authorPattern.FindStringSubmatch(text); m != nil {
		c.author = m[1]
	}
	if m := quotedPattern.FindStringSubmatch(text); m != nil {
		c.title = strings.TrimSpace(m[1])
	}
	// Journal-style citations often trail the venue after the year
	if span.Kind == model.KindJournal && c.year != "" {
		if idx := strings.Index(text, c.year); idx >= 0 {
			rest := strings.Trim(text[idx+len(c.year):], " ).,")
			if len(rest) > 3 && len(rest) < 80 {
				c.journal = rest
			}
		}
	}
	return c
}

// DeriveQueries builds search queries for one citation, most specific
// first. Capped at maxQueries; identifiers beat free text.
func DeriveQueries(span model.CitationSpan, maxQueries int) []string {
	if maxQueries <= 0 {
		maxQueries = 5
	}
	c := parseComponents(span)
	var queries []string

	if c.doi != "" {
		queries = append(queries, "doi:"+c.doi)
	}
	if c.arxivID != "" {
		queries = append(queries, "arxiv:"+c.arxivID)
	}
	if c.isbn != "" {
		queries = append(queries, "isbn "+c.isbn)
	}
	if c.title != "" {
		queries = append(queries, fmt.Sprintf("%q", c.title))
	}
	if c.author != "" && c.year != "" {
		q := c.author + " " + c.year
		if c.journal != "" {
			q += " " + c.journal
		}
		queries = append(queries, q)
	}

	// Always keep the raw text as a fallback query
	if len(queries) == 0 {
		text := span.Text
		if len(text) > 100 {
			text = text[:100]
		}
		queries = append(queries, text)
	}

	if len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	return queries
}

// Package search talks to the evidence backends: a SearXNG instance for
// general and academic queries, plus direct existence probes against
// identifier registries (doi.org, arxiv.org). Verification workers consume
// it through the Searcher interface.
package search

import (
	"context"

	"github.com/citewatch/citewatch/internal/model"
)

// Searcher is the narrow interface verification workers depend on
type Searcher interface {
	// Search runs a query and returns up to maxResults candidate sources
	Search(ctx context.Context, query string, maxResults int) ([]model.Source, error)

	// Probe attempts a direct, high-confidence validation of a span whose
	// kind carries a resolvable identifier (DOI, arXiv, URL). Returns
	// (nil, nil) when the span has nothing to probe.
	Probe(ctx context.Context, span model.CitationSpan) (*model.Source, error)
}

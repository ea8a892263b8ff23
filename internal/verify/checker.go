package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/citewatch/citewatch/internal/model"
	"github.com/citewatch/citewatch/internal/search"
)

// queriesPerCheck bounds how many derived queries are actually searched;
// the rest exist only for the outcome's audit trail.
const queriesPerCheck = 3

// resultsPerQuery is the number of top results kept from each query
const resultsPerQuery = 2

// maxSources caps the deduplicated evidence set handed to the judge
const maxSources = 5

// retrySleepFunc is the sleep function used between retries (injectable for tests)
var retrySleepFunc = time.Sleep

// Checker verifies one citation span against external evidence. It is
// pure with respect to orchestrator state: it receives a span and returns
// an outcome, and any internal failure is converted into an error-status
// outcome rather than surfaced.
type Checker struct {
	searcher   search.Searcher
	judge      Judge // always consulted
	llm        Judge // optional second opinion when the first is unsure
	timeout    time.Duration
	maxRetries int
	maxQueries int
}

// NewChecker creates a verification checker. llm may be nil.
func NewChecker(searcher search.Searcher, cfg model.VerifyConfig, llm Judge) *Checker {
	timeout := cfg.WorkerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Checker{
		searcher:   searcher,
		judge:      HeuristicJudge{},
		llm:        llm,
		timeout:    timeout,
		maxRetries: retries,
		maxQueries: cfg.MaxQueries,
	}
}

// Check verifies a single citation span. sourceContext is the full text
// the span was detected in. Check never panics and never returns an
// error: every failure mode becomes an outcome with status error.
func (c *Checker) Check(ctx context.Context, span model.CitationSpan, sourceContext string) (outcome model.VerificationOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = model.ErrorOutcome(span, fmt.Sprintf("internal error during verification: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	queries := DeriveQueries(span, c.maxQueries)
	sources, searchErr := c.gatherSources(ctx, span, queries)

	if err := ctx.Err(); err != nil && len(sources) == 0 {
		return c.contextOutcome(span, queries, err)
	}
	if searchErr != nil && len(sources) == 0 {
		o := model.ErrorOutcome(span, fmt.Sprintf("evidence search failed: %v", searchErr))
		o.Queries = queries
		return o
	}

	req := Request{Span: span, SourceContext: sourceContext, Sources: sources}
	verdict, err := c.judge.Judge(ctx, req)
	if err != nil {
		o := model.ErrorOutcome(span, fmt.Sprintf("judgment failed: %v", err))
		o.Queries = queries
		o.Sources = sources
		return o
	}

	// Consult the LLM only when the cheap judge is unsure; its failure
	// leaves the heuristic verdict in place.
	if c.llm != nil && verdict.Confidence <= 0.7 {
		if llmVerdict, err := c.llm.Judge(ctx, req); err == nil {
			verdict = llmVerdict
		}
	}

	return model.VerificationOutcome{
		Span:        span,
		Status:      verdict.Status,
		Explanation: verdict.Explanation,
		Confidence:  verdict.Confidence,
		Sources:     sources,
		Queries:     queries,
	}
}

// gatherSources probes identifiers first, then searches the derived
// queries, deduplicating by URL. Individual query failures are tolerated;
// the last error is returned only as context for the zero-sources case.
func (c *Checker) gatherSources(ctx context.Context, span model.CitationSpan, queries []string) ([]model.Source, error) {
	var sources []model.Source
	seen := make(map[string]bool)

	if probed, err := c.searcher.Probe(ctx, span); err == nil && probed != nil {
		sources = append(sources, *probed)
		seen[probed.URL] = true
	}

	var lastErr error
	for i, query := range queries {
		if i >= queriesPerCheck {
			break
		}
		if ctx.Err() != nil {
			break
		}
		results, err := c.searchWithRetry(ctx, query)
		if err != nil {
			lastErr = err
			continue
		}
		for j, s := range results {
			if j >= resultsPerQuery {
				break
			}
			if s.URL == "" || seen[s.URL] {
				continue
			}
			seen[s.URL] = true
			sources = append(sources, s)
		}
	}

	if len(sources) > maxSources {
		sources = sources[:maxSources]
	}
	return sources, lastErr
}

// searchWithRetry retries transient failures with exponential backoff
func (c *Checker) searchWithRetry(ctx context.Context, query string) ([]model.Source, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		results, err := c.searcher.Search(ctx, query, maxSources)
		if err == nil {
			return results, nil
		}
		lastErr = err
		if !isRetryableError(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt < c.maxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			retrySleepFunc(backoff)
		}
	}
	return nil, lastErr
}

// isRetryableError checks error strings for transient network failures
func isRetryableError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "status 429") ||
		strings.Contains(s, "status 5")
}

func (c *Checker) contextOutcome(span model.CitationSpan, queries []string, err error) model.VerificationOutcome {
	msg := "verification cancelled"
	if err == context.DeadlineExceeded {
		msg = fmt.Sprintf("verification timed out after %v", c.timeout)
	}
	o := model.ErrorOutcome(span, msg)
	o.Queries = queries
	return o
}

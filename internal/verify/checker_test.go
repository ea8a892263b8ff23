package verify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/citewatch/citewatch/internal/model"
)

// fakeSearcher scripts search and probe behavior per test
type fakeSearcher struct {
	search  func(ctx context.Context, query string, maxResults int) ([]model.Source, error)
	probe   func(ctx context.Context, span model.CitationSpan) (*model.Source, error)
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string, maxResults int) ([]model.Source, error) {
	f.queries = append(f.queries, query)
	if f.search == nil {
		return nil, nil
	}
	return f.search(ctx, query, maxResults)
}

func (f *fakeSearcher) Probe(ctx context.Context, span model.CitationSpan) (*model.Source, error) {
	if f.probe == nil {
		return nil, nil
	}
	return f.probe(ctx, span)
}

// fakeJudge returns a fixed verdict or error
type fakeJudge struct {
	verdict Verdict
	err     error
	calls   int
}

func (f *fakeJudge) Judge(_ context.Context, _ Request) (Verdict, error) {
	f.calls++
	return f.verdict, f.err
}

func noSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := retrySleepFunc
	retrySleepFunc = func(d time.Duration) { slept = append(slept, d) }
	t.Cleanup(func() { retrySleepFunc = orig })
	return &slept
}

func testSpan() model.CitationSpan {
	return model.CitationSpan{Text: "Smith (2020)", Start: 0, End: 12, Kind: model.KindJournal}
}

func testVerifyConfig() model.VerifyConfig {
	return model.VerifyConfig{WorkerTimeout: 5 * time.Second, MaxRetries: 3, MaxQueries: 5}
}

func TestCheckNoSources(t *testing.T) {
	noSleep(t)
	c := NewChecker(&fakeSearcher{}, testVerifyConfig(), nil)

	outcome := c.Check(context.Background(), testSpan(), "Smith (2020) claims X.")
	if outcome.Status != model.StatusNotFound {
		t.Errorf("expected not_found with no sources, got %s", outcome.Status)
	}
	if outcome.Confidence != 0.8 {
		t.Errorf("expected confidence 0.8, got %v", outcome.Confidence)
	}
	if len(outcome.Queries) == 0 {
		t.Error("outcome should record the queries it tried")
	}
}

func TestCheckProbeHitIsDirectValidation(t *testing.T) {
	noSleep(t)
	searcher := &fakeSearcher{
		probe: func(_ context.Context, _ model.CitationSpan) (*model.Source, error) {
			return &model.Source{Title: "Resolved: doi", URL: "https://doi.org/10.1/x", Confidence: 0.95}, nil
		},
	}
	c := NewChecker(searcher, testVerifyConfig(), nil)

	span := model.CitationSpan{Text: "doi:10.1/x", Start: 0, End: 10, Kind: model.KindDOI}
	outcome := c.Check(context.Background(), span, "")
	if outcome.Status != model.StatusVerified {
		t.Errorf("expected verified from direct probe, got %s", outcome.Status)
	}
	if outcome.Confidence != 0.95 {
		t.Errorf("expected probe confidence to carry through, got %v", outcome.Confidence)
	}
}

func TestCheckRetriesTransientFailures(t *testing.T) {
	slept := noSleep(t)
	attempts := 0
	searcher := &fakeSearcher{
		search: func(_ context.Context, _ string, _ int) ([]model.Source, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("connection refused")
			}
			return []model.Source{{Title: "Smith 2020 paper", URL: "https://x.org/1", Snippet: "smith 2020", Confidence: 0.8}}, nil
		},
	}
	cfg := testVerifyConfig()
	cfg.MaxQueries = 1
	c := NewChecker(searcher, cfg, nil)

	outcome := c.Check(context.Background(), testSpan(), "")
	if outcome.Status == model.StatusError {
		t.Fatalf("transient failures should be retried, got error: %s", outcome.Explanation)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	// Exponential backoff: 1s then 2s
	if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != 2*time.Second {
		t.Errorf("unexpected backoff schedule: %v", *slept)
	}
}

func TestCheckNonRetryableFailsFast(t *testing.T) {
	slept := noSleep(t)
	attempts := 0
	searcher := &fakeSearcher{
		search: func(_ context.Context, _ string, _ int) ([]model.Source, error) {
			attempts++
			return nil, errors.New("status 400 bad request")
		},
	}
	cfg := testVerifyConfig()
	cfg.MaxQueries = 1
	c := NewChecker(searcher, cfg, nil)

	outcome := c.Check(context.Background(), testSpan(), "")
	if outcome.Status != model.StatusError {
		t.Errorf("expected error outcome, got %s", outcome.Status)
	}
	if !strings.Contains(outcome.Explanation, "evidence search failed") {
		t.Errorf("unexpected explanation: %s", outcome.Explanation)
	}
	if attempts != 1 {
		t.Errorf("non-retryable error should not be retried, got %d attempts", attempts)
	}
	if len(*slept) != 0 {
		t.Errorf("no backoff expected, slept %v", *slept)
	}
}

func TestCheckConsultsLLMWhenUnsure(t *testing.T) {
	noSleep(t)
	llm := &fakeJudge{verdict: Verdict{
		Status:      model.StatusContradicted,
		Confidence:  0.85,
		Explanation: "The source contradicts the citation.",
	}}
	// A weak match leaves the heuristic at not_found 0.6, under the bar
	searcher := &fakeSearcher{
		search: func(_ context.Context, _ string, _ int) ([]model.Source, error) {
			return []model.Source{{Title: "Unrelated result", URL: "https://x.org/1", Snippet: "nothing useful", Confidence: 0.5}}, nil
		},
	}
	c := NewChecker(searcher, testVerifyConfig(), llm)

	outcome := c.Check(context.Background(), testSpan(), "Smith (2020) claims X.")
	if llm.calls != 1 {
		t.Fatalf("expected one LLM consultation, got %d", llm.calls)
	}
	if outcome.Status != model.StatusContradicted {
		t.Errorf("LLM verdict should replace the unsure heuristic, got %s", outcome.Status)
	}
}

func TestCheckLLMFailureKeepsHeuristicVerdict(t *testing.T) {
	noSleep(t)
	llm := &fakeJudge{err: errors.New("llm unavailable")}
	searcher := &fakeSearcher{
		search: func(_ context.Context, _ string, _ int) ([]model.Source, error) {
			return []model.Source{{Title: "Unrelated result", URL: "https://x.org/1", Snippet: "nothing useful", Confidence: 0.5}}, nil
		},
	}
	c := NewChecker(searcher, testVerifyConfig(), llm)

	outcome := c.Check(context.Background(), testSpan(), "")
	if llm.calls != 1 {
		t.Fatalf("expected one LLM consultation, got %d", llm.calls)
	}
	if outcome.Status != model.StatusNotFound {
		t.Errorf("LLM failure should leave the heuristic verdict, got %s", outcome.Status)
	}
}

func TestCheckSkipsLLMWhenConfident(t *testing.T) {
	noSleep(t)
	llm := &fakeJudge{verdict: Verdict{Status: model.StatusNotFound}}
	searcher := &fakeSearcher{
		probe: func(_ context.Context, _ model.CitationSpan) (*model.Source, error) {
			return &model.Source{Title: "Resolved", URL: "https://doi.org/10.1/x", Confidence: 0.95}, nil
		},
	}
	c := NewChecker(searcher, testVerifyConfig(), llm)

	outcome := c.Check(context.Background(), testSpan(), "")
	if outcome.Status != model.StatusVerified {
		t.Fatalf("expected verified, got %s", outcome.Status)
	}
	if llm.calls != 0 {
		t.Errorf("confident verdicts should not consult the LLM, got %d calls", llm.calls)
	}
}

func TestCheckRecoversPanics(t *testing.T) {
	noSleep(t)
	searcher := &fakeSearcher{
		search: func(_ context.Context, _ string, _ int) ([]model.Source, error) {
			panic("searcher blew up")
		},
	}
	c := NewChecker(searcher, testVerifyConfig(), nil)

	outcome := c.Check(context.Background(), testSpan(), "")
	if outcome.Status != model.StatusError {
		t.Errorf("panic must become an error outcome, got %s", outcome.Status)
	}
	if !strings.Contains(outcome.Explanation, "internal error") {
		t.Errorf("unexpected explanation: %s", outcome.Explanation)
	}
}

func TestCheckDeduplicatesSources(t *testing.T) {
	noSleep(t)
	searcher := &fakeSearcher{
		search: func(_ context.Context, _ string, _ int) ([]model.Source, error) {
			return []model.Source{
				{Title: "Same", URL: "https://x.org/1", Confidence: 0.6},
				{Title: "Same again", URL: "https://x.org/1", Confidence: 0.6},
			}, nil
		},
	}
	c := NewChecker(searcher, testVerifyConfig(), nil)

	span := model.CitationSpan{Text: `Smith (2020) "A Study of Things"`, Start: 0, End: 32, Kind: model.KindJournal}
	outcome := c.Check(context.Background(), span, "")
	if len(outcome.Sources) != 1 {
		t.Errorf("expected deduplicated sources, got %d", len(outcome.Sources))
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err       string
		retryable bool
	}{
		{"dial tcp: connection refused", true},
		{"read: connection reset by peer", true},
		{"context deadline exceeded (Client.Timeout)", true},
		{"search returned status 429", true},
		{"search returned status 503", true},
		{"search returned status 404", false},
		{"invalid character in JSON", false},
	}
	for _, tt := range tests {
		if got := isRetryableError(errors.New(tt.err)); got != tt.retryable {
			t.Errorf("isRetryableError(%q) = %v, want %v", tt.err, got, tt.retryable)
		}
	}
}

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/citewatch/citewatch/internal/cache"
	"github.com/citewatch/citewatch/internal/model"
	"github.com/citewatch/citewatch/internal/usage"
)

// academicEngines are the SearXNG engines queried for citation evidence
const academicEngines = "google,google_scholar,arxiv,pubmed,crossref,doaj"

var (
	doiPattern   = regexp.MustCompile(`\b10\.\d{4,9}/[^\s"'<>]+`)
	arxivPattern = regexp.MustCompile(`\b(\d{4}\.\d{4,5})(v\d+)?\b`)
	urlPattern   = regexp.MustCompile(`https?://[^\s\)\]"'<>]+`)
)

// Client queries a SearXNG instance and identifier registries for evidence.
// Responses are cached by query and all outbound traffic is rate-limited
// per target domain.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	limiter    *domainLimiter
	cache      cache.Cache
	cacheTTL   time.Duration
	tracker    *usage.Tracker
	scraper    *Scraper // nil when evidence scraping is disabled
}

// NewClient creates a search client from configuration. tracker may be nil.
func NewClient(cfg *model.Config, tracker *usage.Tracker) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.Search.BaseURL, "/"),
		httpClient: newHTTPClient(cfg.HTTP),
		userAgent:  cfg.HTTP.UserAgent,
		maxBytes:   cfg.HTTP.MaxBodyBytes,
		limiter:    newDomainLimiter(cfg.Search.RequestsPerSecond, cfg.Search.Burst),
		cacheTTL:   cfg.Search.CacheTTL,
		tracker:    tracker,
	}
	if cfg.Search.CacheEnabled {
		c.cache = cache.NewMemoryCache(cfg.Search.CacheTTL, 10*time.Minute)
	}
	if cfg.Search.ScrapeEvidence {
		c.scraper = NewScraper(cfg.HTTP, tracker)
	}
	return c
}

// searxngResponse mirrors the JSON shape of SearXNG's /search endpoint
type searxngResponse struct {
	Results []searxngResult `json:"results"`
}

type searxngResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Engine  string  `json:"engine"`
	Score   float64 `json:"score"`
}

// Search runs a query against SearXNG with academic engines enabled
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]model.Source, error) {
	if maxResults <= 0 {
		maxResults = 5
	}

	cacheKey := cache.Key(query)
	if c.cache != nil {
		if data, found := c.cache.Get(cacheKey); found {
			var sources []model.Source
			if err := json.Unmarshal(data, &sources); err == nil {
				return capSources(sources, maxResults), nil
			}
		}
	}

	start := time.Now()
	sources, err := c.doSearch(ctx, query, maxResults)
	c.record(usage.ProviderSearXNG, "search", start, err == nil)
	if err != nil {
		return nil, err
	}

	if c.scraper != nil {
		sources = c.scraper.FillSnippets(ctx, sources)
	}

	if c.cache != nil {
		if data, err := json.Marshal(sources); err == nil {
			_ = c.cache.Set(cacheKey, data, c.cacheTTL)
		}
	}
	return sources, nil
}

func (c *Client) doSearch(ctx context.Context, query string, maxResults int) ([]model.Source, error) {
	endpoint := c.baseURL + "/search"
	if err := c.limiter.wait(ctx, endpoint); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("engines", academicEngines)
	params.Set("language", "en")
	params.Set("safesearch", "0")
	params.Set("pageno", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed with status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var parsed searxngResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	sources := make([]model.Source, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.URL == "" {
			continue
		}
		snippet := r.Content
		if len(snippet) > 1000 {
			snippet = snippet[:1000] + "..."
		}
		sources = append(sources, model.Source{
			Title:      strings.TrimSpace(r.Title),
			URL:        r.URL,
			Snippet:    snippet,
			Confidence: resultConfidence(r),
		})
	}
	return capSources(sources, maxResults), nil
}

// resultConfidence estimates source reliability from the engine that
// produced it and the hosting domain. Academic registries score highest.
func resultConfidence(r searxngResult) float64 {
	confidence := 0.5

	switch r.Engine {
	case "google_scholar", "crossref", "pubmed", "arxiv", "doaj":
		confidence = 0.8
	case "google":
		confidence = 0.6
	}

	host := ""
	if parsed, err := url.Parse(r.URL); err == nil {
		host = strings.ToLower(parsed.Host)
	}
	for _, domain := range []string{"doi.org", "arxiv.org", "pubmed.ncbi.nlm.nih.gov", "nature.com", "sciencedirect.com", "link.springer.com", "ieee.org", "acm.org"} {
		if strings.HasSuffix(host, domain) {
			confidence += 0.1
			break
		}
	}

	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}

// Probe directly resolves identifier-bearing citations. A DOI that
// resolves at doi.org or an arXiv ID with an abstract page is strong,
// direct evidence that needs no search round-trip.
func (c *Client) Probe(ctx context.Context, span model.CitationSpan) (*model.Source, error) {
	var probeURL, label string

	switch span.Kind {
	case model.KindDOI:
		doi := doiPattern.FindString(span.Text)
		if doi == "" {
			return nil, nil
		}
		probeURL = "https://doi.org/" + strings.TrimRight(doi, ".,;")
		label = "DOI " + doi
	case model.KindArxiv:
		m := arxivPattern.FindString(span.Text)
		if m == "" {
			return nil, nil
		}
		probeURL = "https://arxiv.org/abs/" + m
		label = "arXiv " + m
	case model.KindURL:
		u := urlPattern.FindString(span.Text)
		if u == "" {
			return nil, nil
		}
		probeURL = strings.TrimRight(u, ".,;")
		label = probeURL
	default:
		return nil, nil
	}

	if err := c.limiter.wait(ctx, probeURL); err != nil {
		return nil, err
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create probe request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	c.record(usage.ProviderDirect, "probe", start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", probeURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return &model.Source{
			Title:      "Resolved: " + label,
			URL:        probeURL,
			Confidence: 0.95,
		}, nil
	}
	return nil, nil
}

func (c *Client) record(provider usage.Provider, endpoint string, start time.Time, success bool) {
	if c.tracker == nil {
		return
	}
	c.tracker.Record(usage.Call{
		Provider: provider,
		Endpoint: endpoint,
		Duration: time.Since(start),
		Success:  success,
	})
}

func capSources(sources []model.Source, n int) []model.Source {
	if len(sources) > n {
		return sources[:n]
	}
	return sources
}

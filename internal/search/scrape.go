package search

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/citewatch/citewatch/internal/model"
	"github.com/citewatch/citewatch/internal/usage"
)

// Scraper fetches evidence pages to fill in snippets the search backend
// left empty. Fetches honor robots.txt and are capped in size.
type Scraper struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *robotsGate
	tracker    *usage.Tracker
}

// NewScraper creates an evidence page scraper. tracker may be nil.
func NewScraper(cfg model.HTTPConfig, tracker *usage.Tracker) *Scraper {
	return &Scraper{
		httpClient: newHTTPClient(cfg),
		userAgent:  cfg.UserAgent,
		maxBytes:   cfg.MaxBodyBytes,
		robots:     newRobotsGate(cfg.UserAgent, clientTimeout(cfg)),
		tracker:    tracker,
	}
}

// FillSnippets fetches pages for sources missing a snippet. Failures leave
// the source untouched; a source without a snippet is still a source.
func (s *Scraper) FillSnippets(ctx context.Context, sources []model.Source) []model.Source {
	for i, src := range sources {
		if src.Snippet != "" || src.URL == "" {
			continue
		}
		if title, text, err := s.fetchPage(ctx, src.URL); err == nil {
			if sources[i].Title == "" {
				sources[i].Title = title
			}
			sources[i].Snippet = text
		}
	}
	return sources
}

func (s *Scraper) fetchPage(ctx context.Context, rawURL string) (title, text string, err error) {
	if !s.robots.allowed(ctx, rawURL) {
		return "", "", errDisallowed
	}

	start := time.Now()
	defer func() {
		if s.tracker != nil {
			s.tracker.Record(usage.Call{
				Provider: usage.ProviderScrape,
				Endpoint: "page",
				Duration: time.Since(start),
				Success:  err == nil,
			})
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", errBadStatus
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return "", "", err
	}

	title, text = extractTitleAndText(doc)
	if len(text) > 1000 {
		text = text[:1000] + "..."
	}
	return title, text, nil
}

var (
	errDisallowed = &scrapeError{"disallowed by robots.txt"}
	errBadStatus  = &scrapeError{"unexpected status"}
)

type scrapeError struct{ msg string }

func (e *scrapeError) Error() string { return e.msg }

// extractTitleAndText walks the parsed document collecting the <title> and
// paragraph text, skipping script and style subtrees.
func extractTitleAndText(doc *html.Node) (string, string) {
	var title string
	var parts []string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			case "title":
				if title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "p":
				parts = append(parts, collectText(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return title, strings.TrimSpace(strings.Join(parts, " "))
}

func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

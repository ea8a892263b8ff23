package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsGate checks robots.txt before the scraper touches an evidence page.
// Parsed robots data is cached per host for the life of the process.
type robotsGate struct {
	cache      map[string]*robotstxt.RobotsData
	mu         sync.RWMutex
	httpClient *http.Client
	userAgent  string
}

func newRobotsGate(userAgent string, timeout time.Duration) *robotsGate {
	return &robotsGate{
		cache:      make(map[string]*robotstxt.RobotsData),
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// allowed reports whether rawURL may be fetched. Unreachable or unparseable
// robots.txt defaults to allowed.
func (g *robotsGate) allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	data, err := g.robotsData(ctx, parsed)
	if err != nil {
		return true
	}
	return data.TestAgent(parsed.Path, g.userAgent)
}

func (g *robotsGate) robotsData(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	g.mu.RLock()
	data, exists := g.cache[target.Host]
	g.mu.RUnlock()
	if exists {
		return data, nil
	}

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", target.Scheme, target.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		data, _ := robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)
		g.store(target.Host, data)
		return data, nil
	}

	data, err = robotstxt.FromResponse(resp)
	if err != nil {
		return nil, err
	}
	g.store(target.Host, data)
	return data, nil
}

func (g *robotsGate) store(host string, data *robotstxt.RobotsData) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cache[host] = data
}

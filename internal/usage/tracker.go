// Package usage tracks outbound API calls (search backend, LLM judge) so
// operators can see what verification actually costs. Counters are
// in-memory only and reset with the process.
package usage

import (
	"sort"
	"sync"
	"time"
)

// Provider identifies an upstream API
type Provider string

const (
	ProviderSearXNG Provider = "searxng"
	ProviderDirect  Provider = "direct" // DOI/arXiv existence probes
	ProviderScrape  Provider = "scrape"
	ProviderLLM     Provider = "llm"
)

// Call is one recorded API invocation
type Call struct {
	Provider Provider
	Endpoint string
	Duration time.Duration
	Success  bool
}

// ProviderStats aggregates calls for one provider
type ProviderStats struct {
	Provider        Provider `json:"provider"`
	TotalCalls      int      `json:"total_calls"`
	SuccessfulCalls int      `json:"successful_calls"`
	FailedCalls     int      `json:"failed_calls"`
	AvgDurationMS   float64  `json:"average_duration_ms"`
	SuccessRate     float64  `json:"success_rate"`
}

// EndpointStats aggregates calls for one endpoint
type EndpointStats struct {
	Endpoint      string  `json:"endpoint"`
	Calls         int     `json:"calls"`
	AvgDurationMS float64 `json:"average_duration_ms"`
	SuccessRate   float64 `json:"success_rate"`
}

// Summary is the full usage picture
type Summary struct {
	TotalCalls      int             `json:"total_calls"`
	SuccessfulCalls int             `json:"successful_calls"`
	SuccessRate     float64         `json:"success_rate"`
	AvgDurationMS   float64         `json:"avg_duration_ms"`
	Providers       []ProviderStats `json:"provider_breakdown"`
	TopEndpoints    []EndpointStats `json:"top_endpoints"`
}

type bucket struct {
	calls    int
	success  int
	duration time.Duration
}

// Tracker accumulates call statistics. Safe for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	providers map[Provider]*bucket
	endpoints map[string]*bucket
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		providers: make(map[Provider]*bucket),
		endpoints: make(map[string]*bucket),
	}
}

// Record adds one call to the tracker
func (t *Tracker) Record(c Call) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.providers[c.Provider]
	if !ok {
		p = &bucket{}
		t.providers[c.Provider] = p
	}
	p.add(c)

	key := string(c.Provider) + ":" + c.Endpoint
	e, ok := t.endpoints[key]
	if !ok {
		e = &bucket{}
		t.endpoints[key] = e
	}
	e.add(c)
}

func (b *bucket) add(c Call) {
	b.calls++
	if c.Success {
		b.success++
	}
	b.duration += c.Duration
}

func (b *bucket) avgMS() float64 {
	if b.calls == 0 {
		return 0
	}
	return float64(b.duration.Milliseconds()) / float64(b.calls)
}

func (b *bucket) rate() float64 {
	if b.calls == 0 {
		return 0
	}
	return float64(b.success) / float64(b.calls)
}

// Stats returns an aggregated summary snapshot
func (t *Tracker) Stats() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	var s Summary
	var totalDuration time.Duration
	for provider, b := range t.providers {
		s.TotalCalls += b.calls
		s.SuccessfulCalls += b.success
		totalDuration += b.duration
		s.Providers = append(s.Providers, ProviderStats{
			Provider:        provider,
			TotalCalls:      b.calls,
			SuccessfulCalls: b.success,
			FailedCalls:     b.calls - b.success,
			AvgDurationMS:   b.avgMS(),
			SuccessRate:     b.rate(),
		})
	}
	sort.Slice(s.Providers, func(i, j int) bool {
		return s.Providers[i].TotalCalls > s.Providers[j].TotalCalls
	})

	for key, b := range t.endpoints {
		s.TopEndpoints = append(s.TopEndpoints, EndpointStats{
			Endpoint:      key,
			Calls:         b.calls,
			AvgDurationMS: b.avgMS(),
			SuccessRate:   b.rate(),
		})
	}
	sort.Slice(s.TopEndpoints, func(i, j int) bool {
		return s.TopEndpoints[i].Calls > s.TopEndpoints[j].Calls
	})
	if len(s.TopEndpoints) > 5 {
		s.TopEndpoints = s.TopEndpoints[:5]
	}

	if s.TotalCalls > 0 {
		s.SuccessRate = float64(s.SuccessfulCalls) / float64(s.TotalCalls)
		s.AvgDurationMS = float64(totalDuration.Milliseconds()) / float64(s.TotalCalls)
	}
	return s
}

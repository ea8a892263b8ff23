package model

import "time"

// Config is the complete citewatch configuration
type Config struct {
	HTTP   HTTPConfig   `yaml:"http" json:"http"`
	Search SearchConfig `yaml:"search" json:"search"`
	Verify VerifyConfig `yaml:"verify" json:"verify"`
	Task   TaskConfig   `yaml:"task" json:"task"`
	Poll   PollConfig   `yaml:"poll" json:"poll"`
	Server ServerConfig `yaml:"server" json:"server"`
	LLM    LLMConfig    `yaml:"llm" json:"llm"`
}

// HTTPConfig controls outbound HTTP behavior
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent    string        `yaml:"user_agent" json:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
	HTTPProxy    string        `yaml:"http_proxy" json:"http_proxy,omitempty"`
	HTTPSProxy   string        `yaml:"https_proxy" json:"https_proxy,omitempty"`
	NoProxy      string        `yaml:"no_proxy" json:"no_proxy,omitempty"`
}

// SearchConfig controls the evidence/search backend
type SearchConfig struct {
	BaseURL           string        `yaml:"base_url" json:"base_url"` // SearXNG instance URL
	MaxResults        int           `yaml:"max_results" json:"max_results"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int           `yaml:"burst" json:"burst"`
	CacheEnabled      bool          `yaml:"cache_enabled" json:"cache_enabled"`
	CacheTTL          time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
	ScrapeEvidence    bool          `yaml:"scrape_evidence" json:"scrape_evidence"` // Fetch evidence pages to fill missing snippets
}

// VerifyConfig controls per-citation verification workers
type VerifyConfig struct {
	WorkerTimeout time.Duration `yaml:"worker_timeout" json:"worker_timeout"` // Time allowed for one span's verification
	MaxRetries    int           `yaml:"max_retries" json:"max_retries"`       // Retries against transient search failures
	MaxQueries    int           `yaml:"max_queries" json:"max_queries"`       // Queries derived per citation
}

// TaskConfig controls the task orchestrator
type TaskConfig struct {
	MaxWorkers int           `yaml:"max_workers" json:"max_workers"` // Concurrent verifications per task (K)
	Deadline   time.Duration `yaml:"deadline" json:"deadline"`       // Task-level deadline
	Retention  time.Duration `yaml:"retention" json:"retention"`     // How long terminal tasks stay queryable
}

// PollConfig controls the client-side status poller
type PollConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
	MaxWait  time.Duration `yaml:"max_wait" json:"max_wait"` // Wall-clock bound before the poller gives up
}

// ServerConfig controls the HTTP API
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// LLMConfig controls the optional LLM judge
type LLMConfig struct {
	Provider  string `yaml:"provider" json:"provider"` // "openai" or "" (disabled)
	Model     string `yaml:"model" json:"model"`
	APIKey    string `yaml:"-" json:"-"`
	BaseURL   string `yaml:"base_url" json:"base_url,omitempty"` // OpenAI-compatible endpoints (Ollama, OpenRouter)
	Timeout   int    `yaml:"timeout" json:"timeout"`             // seconds
	MaxTokens int    `yaml:"max_tokens" json:"max_tokens"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:      10 * time.Second,
			UserAgent:    "Citewatch/0.1 (+https://github.com/citewatch/citewatch)",
			MaxBodyBytes: 2_000_000,
		},
		Search: SearchConfig{
			BaseURL:           "http://localhost:8080",
			MaxResults:        5,
			RequestsPerSecond: 2,
			Burst:             5,
			CacheEnabled:      true,
			CacheTTL:          15 * time.Minute,
			ScrapeEvidence:    false,
		},
		Verify: VerifyConfig{
			WorkerTimeout: 30 * time.Second,
			MaxRetries:    3,
			MaxQueries:    5,
		},
		Task: TaskConfig{
			MaxWorkers: 5,
			Deadline:   45 * time.Second,
			Retention:  time.Hour,
		},
		Poll: PollConfig{
			Interval: 2 * time.Second,
			MaxWait:  60 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
		LLM: LLMConfig{
			Provider:  "",
			Timeout:   30,
			MaxTokens: 512,
		},
	}
}

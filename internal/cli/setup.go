package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/citewatch/citewatch/internal/model"
	"github.com/citewatch/citewatch/internal/search"
	"github.com/citewatch/citewatch/internal/task"
	"github.com/citewatch/citewatch/internal/usage"
	"github.com/citewatch/citewatch/internal/verify"
)

// loadConfig layers viper settings over the defaults. Only keys the
// config file or environment actually set override the defaults.
func loadConfig() *model.Config {
	cfg := model.DefaultConfig()

	if v := viper.GetString("search.base_url"); v != "" {
		cfg.Search.BaseURL = v
	}
	if v := viper.GetInt("search.max_results"); v > 0 {
		cfg.Search.MaxResults = v
	}
	if v := viper.GetFloat64("search.requests_per_second"); v > 0 {
		cfg.Search.RequestsPerSecond = v
	}
	if viper.IsSet("search.cache_enabled") {
		cfg.Search.CacheEnabled = viper.GetBool("search.cache_enabled")
	}
	if viper.IsSet("search.scrape_evidence") {
		cfg.Search.ScrapeEvidence = viper.GetBool("search.scrape_evidence")
	}
	if v := viper.GetDuration("search.cache_ttl"); v > 0 {
		cfg.Search.CacheTTL = v
	}

	if v := viper.GetDuration("http.timeout"); v > 0 {
		cfg.HTTP.Timeout = v
	}
	if v := viper.GetString("http.user_agent"); v != "" {
		cfg.HTTP.UserAgent = v
	}
	if v := viper.GetInt64("http.max_body_bytes"); v > 0 {
		cfg.HTTP.MaxBodyBytes = v
	}

	if v := viper.GetDuration("verify.worker_timeout"); v > 0 {
		cfg.Verify.WorkerTimeout = v
	}
	if v := viper.GetInt("verify.max_retries"); v > 0 {
		cfg.Verify.MaxRetries = v
	}
	if v := viper.GetInt("verify.max_queries"); v > 0 {
		cfg.Verify.MaxQueries = v
	}

	if v := viper.GetInt("task.max_workers"); v > 0 {
		cfg.Task.MaxWorkers = v
	}
	if v := viper.GetDuration("task.deadline"); v > 0 {
		cfg.Task.Deadline = v
	}
	if v := viper.GetDuration("task.retention"); v > 0 {
		cfg.Task.Retention = v
	}

	if v := viper.GetDuration("poll.interval"); v > 0 {
		cfg.Poll.Interval = v
	}
	if v := viper.GetDuration("poll.max_wait"); v > 0 {
		cfg.Poll.MaxWait = v
	}

	if v := viper.GetString("server.addr"); v != "" {
		cfg.Server.Addr = v
	}

	if v := viper.GetString("llm.provider"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := viper.GetString("llm.model"); v != "" {
		cfg.LLM.Model = v
	}
	if v := viper.GetString("llm.base_url"); v != "" {
		cfg.LLM.BaseURL = v
	}
	cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")

	return cfg
}

// buildRegistry assembles the full verification stack from config:
// search client, judges, checker, task registry.
func buildRegistry(cfg *model.Config, tracker *usage.Tracker) (*task.Registry, error) {
	searcher := search.NewClient(cfg, tracker)

	var llm verify.Judge
	if cfg.LLM.Provider != "" {
		judge, err := verify.NewLLMJudge(cfg.LLM, tracker)
		if err != nil {
			return nil, fmt.Errorf("llm judge: %w", err)
		}
		llm = judge
	}

	checker := verify.NewChecker(searcher, cfg.Verify, llm)
	return task.NewRegistry(checker, cfg.Task), nil
}

// progressBar renders a simple fixed-width bar for verbose output
func progressBar(progress float64) string {
	const width = 20
	filled := int(progress * width)
	if filled > width {
		filled = width
	}
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "="
		} else {
			bar += " "
		}
	}
	return fmt.Sprintf("[%s] %3.0f%%", bar, progress*100)
}

// waitHint formats a duration for user-facing messages
func waitHint(d time.Duration) string {
	return d.Round(time.Second).String()
}

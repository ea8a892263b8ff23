package verify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/citewatch/citewatch/internal/model"
	"github.com/citewatch/citewatch/internal/usage"
)

// LLMJudge asks an OpenAI-compatible model to weigh the citation against
// the gathered sources. The Checker only consults it when the heuristic
// judge is unsure, and treats any error as "stick with the heuristic".
type LLMJudge struct {
	client    *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	tracker   *usage.Tracker
}

// NewLLMJudge creates an LLM judge from configuration. Returns an error
// when no API key is configured. tracker may be nil.
func NewLLMJudge(cfg model.LLMConfig, tracker *usage.Tracker) (*LLMJudge, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("LLM judge requires an API key or base URL")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	m := cfg.Model
	if m == "" {
		m = openai.GPT4oMini
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 512
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &LLMJudge{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     m,
		maxTokens: maxTokens,
		timeout:   timeout,
		tracker:   tracker,
	}, nil
}

// Judge implements the Judge interface
func (j *LLMJudge) Judge(ctx context.Context, req Request) (verdict Verdict, err error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if j.tracker != nil {
			j.tracker.Record(usage.Call{
				Provider: usage.ProviderLLM,
				Endpoint: "judge",
				Duration: time.Since(start),
				Success:  err == nil,
			})
		}
	}()

	resp, err := j.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: j.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You verify academic citations against search results. Answer with exactly three lines:\nstatus: one of verified, not_found, contradicted, partial\nconfidence: a number between 0.0 and 1.0\nexplanation: one short sentence",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildJudgePrompt(req),
			},
		},
		MaxTokens:   j.maxTokens,
		Temperature: 0.1, // Low temperature for consistent verdicts
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("LLM judge: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Verdict{}, fmt.Errorf("LLM judge: empty response")
	}

	verdict, err = parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return Verdict{}, err
	}
	return verdict, nil
}

func buildJudgePrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Citation to verify: %s\n", req.Span.Text)
	if excerpt := contextExcerpt(req.SourceContext, req.Span); excerpt != "" {
		fmt.Fprintf(&sb, "It appears in this text: %s\n", excerpt)
	}
	sb.WriteString("\nSearch results:\n")
	if len(req.Sources) == 0 {
		sb.WriteString("(none)\n")
	}
	for i, s := range req.Sources {
		if i >= 3 {
			break
		}
		snippet := s.Snippet
		if len(snippet) > 500 {
			snippet = snippet[:500]
		}
		fmt.Fprintf(&sb, "Source %d: %s\nURL: %s\nContent: %s\n\n", i+1, s.Title, s.URL, snippet)
	}
	sb.WriteString("Do these results support or contradict the citation?")
	return sb.String()
}

// contextExcerpt returns a window of source text around the span so the
// model sees what claim the citation backs.
func contextExcerpt(sourceContext string, span model.CitationSpan) string {
	if sourceContext == "" || span.End > len(sourceContext) {
		return ""
	}
	start := span.Start - 120
	if start < 0 {
		start = 0
	}
	end := span.End + 120
	if end > len(sourceContext) {
		end = len(sourceContext)
	}
	return sourceContext[start:end]
}

// parseVerdict reads the three-line status/confidence/explanation answer
func parseVerdict(text string) (Verdict, error) {
	v := Verdict{Status: model.StatusError, Confidence: 0.5}
	found := false

	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "status":
			switch model.VerificationStatus(strings.ToLower(value)) {
			case model.StatusVerified, model.StatusNotFound, model.StatusContradicted, model.StatusPartial:
				v.Status = model.VerificationStatus(strings.ToLower(value))
				found = true
			}
		case "confidence":
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				if f < 0 {
					f = 0
				}
				if f > 1 {
					f = 1
				}
				v.Confidence = f
			}
		case "explanation":
			v.Explanation = value
		}
	}

	if !found {
		return Verdict{}, fmt.Errorf("LLM judge: unparseable verdict: %q", text)
	}
	return v, nil
}

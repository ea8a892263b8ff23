package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/citewatch/citewatch/internal/model"
)

// Verdict is the judgment a strategy renders for one citation
type Verdict struct {
	Status      model.VerificationStatus
	Confidence  float64
	Explanation string
}

// Request is the evidence bundle a judge rules on
type Request struct {
	Span          model.CitationSpan
	SourceContext string // Text surrounding the citation in the original message
	Sources       []model.Source
}

// Judge maps a citation plus gathered sources to a verdict. The mapping is
// deliberately pluggable; the Checker decides when to consult which judge.
type Judge interface {
	Judge(ctx context.Context, req Request) (Verdict, error)
}

// HeuristicJudge scores sources against the citation's recoverable
// components. It never errs and needs no network.
type HeuristicJudge struct{}

// Judge implements the Judge interface
func (HeuristicJudge) Judge(_ context.Context, req Request) (Verdict, error) {
	if len(req.Sources) == 0 {
		return Verdict{
			Status:      model.StatusNotFound,
			Confidence:  0.8,
			Explanation: "No sources found to verify this citation.",
		}, nil
	}

	// A probe or registry hit with very high confidence is direct evidence
	for _, s := range req.Sources {
		if s.Confidence > 0.9 {
			return Verdict{
				Status:      model.StatusVerified,
				Confidence:  s.Confidence,
				Explanation: "Direct validation: " + displayTitle(s),
			}, nil
		}
	}

	comp := parseComponents(req.Span)
	var best model.Source
	var bestScore float64
	for _, s := range req.Sources {
		if score := matchScore(comp, s); score > bestScore {
			bestScore = score
			best = s
		}
	}

	switch {
	case bestScore > 0.7:
		confidence := bestScore + 0.1
		if confidence > 0.9 {
			confidence = 0.9
		}
		return Verdict{
			Status:      model.StatusVerified,
			Confidence:  confidence,
			Explanation: fmt.Sprintf("Matched source: %s (score: %.2f)", displayTitle(best), bestScore),
		}, nil
	case bestScore > 0.4:
		return Verdict{
			Status:      model.StatusPartial,
			Confidence:  bestScore,
			Explanation: fmt.Sprintf("Partial match with: %s (score: %.2f)", displayTitle(best), bestScore),
		}, nil
	default:
		return Verdict{
			Status:      model.StatusNotFound,
			Confidence:  0.6,
			Explanation: "No strong matches found in search results.",
		}, nil
	}
}

// matchScore rates how well one source supports the citation. Title overlap
// carries the most weight, then author, year, venue. The raw score is
// scaled by the source's own reliability and normalized to [0,1].
func matchScore(comp components, source model.Source) float64 {
	var score, maxScore float64
	content := strings.ToLower(source.Title + " " + source.Snippet)

	if comp.title != "" {
		maxScore += 0.4
		sourceTitle := strings.ToLower(source.Title)
		citationTitle := strings.ToLower(comp.title)
		switch {
		case sourceTitle == citationTitle:
			score += 0.4
		case strings.Contains(sourceTitle, citationTitle) || strings.Contains(citationTitle, sourceTitle):
			score += 0.25
		default:
			if overlap := wordOverlap(citationTitle, sourceTitle); overlap > 0 {
				score += overlap * 0.4
				if score > 0.3 {
					score = 0.3
				}
			}
		}
	}

	if comp.author != "" {
		maxScore += 0.3
		author := strings.ToLower(strings.TrimSuffix(comp.author, " et al."))
		if strings.Contains(content, author) {
			score += 0.3
		}
	}

	if comp.year != "" {
		maxScore += 0.2
		if strings.Contains(content, comp.year) {
			score += 0.2
		}
	}

	if comp.journal != "" {
		maxScore += 0.1
		if strings.Contains(content, strings.ToLower(comp.journal)) {
			score += 0.1
		}
	}

	if maxScore == 0 {
		return 0
	}

	reliability := source.Confidence
	if reliability == 0 {
		reliability = 0.5
	}
	score *= 0.5 + reliability*0.5

	return score / maxScore
}

// wordOverlap returns the fraction of a's words that also appear in b
func wordOverlap(a, b string) float64 {
	aWords := strings.Fields(a)
	if len(aWords) == 0 {
		return 0
	}
	bSet := make(map[string]bool)
	for _, w := range strings.Fields(b) {
		bSet[w] = true
	}
	matched := 0
	for _, w := range aWords {
		if bSet[w] {
			matched++
		}
	}
	return float64(matched) / float64(len(aWords))
}

func displayTitle(s model.Source) string {
	if s.Title != "" {
		return s.Title
	}
	return s.URL
}

// Package summarizer is an extractive answer generator. It needs no network
// and serves as the offline domain.Generator.
package summarizer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"webrag/internal/domain"
	"webrag/internal/textutil"
)

var (
	sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	sourceLabel     = regexp.MustCompile(`(?m)^Source \d+:\s*$`)
)

// FrequencySummarizer ranks sentences by word frequency (stopwords filtered),
// boosted by overlap with the question when one is given.
type FrequencySummarizer struct {
	maxSentences int
}

// NewFrequencySummarizer creates a summarizer returning at most maxSentences
// sentences (5 when non-positive).
func NewFrequencySummarizer(maxSentences int) *FrequencySummarizer {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	return &FrequencySummarizer{maxSentences: maxSentences}
}

// Generate implements domain.Generator by extracting the sentences of the
// context block most related to query.
func (s *FrequencySummarizer) Generate(ctx context.Context, query, contextBlock string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := sourceLabel.ReplaceAllString(contextBlock, "")
	return s.rank(text, query, s.maxSentences), nil
}

// Summarize returns a short summary of text.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = s.maxSentences
	}
	return s.rank(text, "", maxSentences), nil
}

func (s *FrequencySummarizer) rank(text, query string, maxSentences int) string {
	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}
	tokens := make([][]string, len(sentences))
	freq := map[string]float64{}
	for i, sent := range sentences {
		tokens[i] = textutil.Tokenize(sent)
		for _, tok := range tokens[i] {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	asked := map[string]struct{}{}
	for _, tok := range textutil.Tokenize(query) {
		asked[tok] = struct{}{}
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i := range sentences {
		score := 0.0
		for _, tok := range tokens[i] {
			score += freq[tok]
			if _, ok := asked[tok]; ok {
				score += 1
			}
		}
		// normalize by sentence length to avoid bias
		if l := float64(len(tokens[i])); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}
	// keep original order among selected
	selected := make([]int, maxSentences)
	for i := 0; i < maxSentences; i++ {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, 0, len(selected))
	for _, idx := range selected {
		out = append(out, strings.TrimSpace(sentences[idx]))
	}
	return strings.Join(out, " ")
}

var _ domain.Generator = (*FrequencySummarizer)(nil)

package chunker

import (
	"regexp"
	"strings"

	"webrag/internal/domain"
)

// SentenceChunker groups whole sentences into passages, repeating the last
// overlapSentences sentences of one passage at the start of the next.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

// NewSentenceChunker validates the sentence counts with the same rule as the
// character window: the overlap must leave room for progress.
func NewSentenceChunker(sentencesPerChunk, overlapSentences int) (*SentenceChunker, error) {
	if sentencesPerChunk <= 0 {
		return nil, domain.InvalidInput("sentences_per_chunk", "must be positive, got %d", sentencesPerChunk)
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		return nil, domain.InvalidInput("overlap_sentences", "must be in [0, %d), got %d", sentencesPerChunk, overlapSentences)
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}, nil
}

// Chunk implements domain.Chunker. Text without sentence punctuation is kept
// whole; empty text yields one empty passage like the window policy.
func (c *SentenceChunker) Chunk(text string) ([]string, error) {
	spans := c.splitter.FindAllStringIndex(text, -1)
	if len(spans) == 0 {
		return []string{strings.TrimSpace(text)}, nil
	}
	sentences := make([]string, 0, len(spans)+1)
	for _, sp := range spans {
		sentences = append(sentences, strings.TrimSpace(text[sp[0]:sp[1]]))
	}
	// trailing text after the last terminator is still content
	if tail := strings.TrimSpace(text[spans[len(spans)-1][1]:]); tail != "" {
		sentences = append(sentences, tail)
	}

	var chunks []string
	for i := 0; i < len(sentences); {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks, nil
}

var _ domain.Chunker = (*SentenceChunker)(nil)

// Package chunker splits document text into ordered, overlapping passages.
package chunker

import "webrag/internal/domain"

// DefaultChunkSize is the default number of characters per passage.
const DefaultChunkSize = 1000

// DefaultOverlap is the default number of characters shared by neighbouring passages.
const DefaultOverlap = 200

// Split cuts text into windows of chunkSize characters whose starts advance by
// chunkSize-overlap, stopping at the first window that reaches the end of the
// text. The last window is truncated, never padded. Text no longer than
// chunkSize, including empty text, comes back as a single element.
//
// Lengths are counted in Unicode code points so a window never splits a
// multi-byte sequence.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	if err := Validate(chunkSize, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	n := len(runes)
	if n <= chunkSize {
		return []string{text}, nil
	}

	step := chunkSize - overlap
	chunks := make([]string, 0, Count(n, chunkSize, overlap))
	for start := 0; ; start += step {
		end := start + chunkSize
		if end > n {
			end = n
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return chunks, nil
}

// Count returns how many windows Split produces for a text of n characters.
// Parameters are assumed valid.
func Count(n, chunkSize, overlap int) int {
	if n <= chunkSize {
		return 1
	}
	step := chunkSize - overlap
	// windows after the first, each adding step characters of coverage
	rest := n - chunkSize
	return 1 + (rest+step-1)/step
}

// Validate rejects parameters for which the window would not advance.
func Validate(chunkSize, overlap int) error {
	if chunkSize <= 0 {
		return domain.InvalidInput("chunk_size", "must be positive, got %d", chunkSize)
	}
	if overlap < 0 {
		return domain.InvalidInput("overlap", "must not be negative, got %d", overlap)
	}
	if overlap >= chunkSize {
		return domain.InvalidInput("overlap", "must be smaller than chunk_size (%d), got %d", chunkSize, overlap)
	}
	return nil
}

// Window is a domain.Chunker applying the fixed size/overlap policy.
type Window struct {
	chunkSize int
	overlap   int
}

// Option configures a Window.
type Option func(*Window)

// WithChunkSize sets the window length in characters.
func WithChunkSize(size int) Option {
	return func(w *Window) { w.chunkSize = size }
}

// WithOverlap sets how many characters neighbouring windows share.
func WithOverlap(overlap int) Option {
	return func(w *Window) { w.overlap = overlap }
}

// New builds a Window chunker. Invalid parameters are rejected here rather
// than on first use.
func New(opts ...Option) (*Window, error) {
	w := &Window{chunkSize: DefaultChunkSize, overlap: DefaultOverlap}
	for _, opt := range opts {
		opt(w)
	}
	if err := Validate(w.chunkSize, w.overlap); err != nil {
		return nil, err
	}
	return w, nil
}

// Chunk implements domain.Chunker.
func (w *Window) Chunk(text string) ([]string, error) {
	return Split(text, w.chunkSize, w.overlap)
}

// ChunkSize returns the configured window length.
func (w *Window) ChunkSize() int { return w.chunkSize }

// Overlap returns the configured overlap.
func (w *Window) Overlap() int { return w.overlap }

var _ domain.Chunker = (*Window)(nil)

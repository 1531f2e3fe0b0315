package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidInput is returned when size or overlap cannot produce a valid window.
var ErrInvalidInput = errors.New("invalid chunk parameters")

// boundaryRatio is how far into a window a sentence break must lie to be used as a cut point.
const boundaryRatio = 0.7

// Chunk is one segment of the source text.
type Chunk struct {
	Text  string // Trimmed segment text, never empty
	Index int    // Position in the output sequence (0, 1, 2...)
	Total int    // Number of chunks produced for the text
	Start int    // Rune offset of the window start in the source text
	End   int    // Rune offset of the window end (exclusive)
}

// Split cuts text into overlapping windows of at most size runes.
// A window that does not reach the end of the text is shortened to the
// nearest sentence terminator found in its last 30%.
func Split(text string, size, overlap int) ([]Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidInput, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidInput, size, overlap)
	}

	if strings.TrimSpace(text) == "" {
		return []Chunk{}, nil
	}

	runes := []rune(text)
	n := len(runes)

	var chunks []Chunk
	start := 0
	for start < n {
		end := min(start+size, n)
		if end < n {
			end = sentenceBoundary(runes, start, end, size)
		}

		segment := strings.TrimFunc(string(runes[start:end]), unicode.IsSpace)
		if segment != "" {
			chunks = append(chunks, Chunk{
				Text:  segment,
				Index: len(chunks),
				Start: start,
				End:   end,
			})
		}

		if end >= n {
			break
		}

		next := max(end-overlap, 0)
		if next <= start {
			next = start + 1
		}
		start = next
	}

	// Total is only known once the whole text has been walked.
	for i := range chunks {
		chunks[i].Total = len(chunks)
	}

	return chunks, nil
}

// sentenceBoundary searches backward from end for a cut point just past a
// sentence terminator. It returns end unchanged when none qualifies.
func sentenceBoundary(runes []rune, start, end, size int) int {
	minLen := float64(size) * boundaryRatio
	for i := end; i > start; i-- {
		if float64(i-start) <= minLen {
			break
		}
		if isTerminator(runes[i-1]) {
			return i
		}
		if i-2 >= start && runes[i-1] == '\n' && runes[i-2] == '\n' {
			return i
		}
	}
	return end
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// Splitter applies a fixed size and overlap to many texts.
type Splitter struct {
	size    int
	overlap int
}

// Option configures a Splitter.
type Option func(*Splitter)

// DefaultSize and DefaultOverlap are used when no options are given.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// WithSize sets the window length in runes.
func WithSize(size int) Option {
	return func(s *Splitter) {
		s.size = size
	}
}

// WithOverlap sets how many runes consecutive windows share.
func WithOverlap(overlap int) Option {
	return func(s *Splitter) {
		s.overlap = overlap
	}
}

// NewSplitter validates the options up front so Split never fails on parameters.
func NewSplitter(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		size:    DefaultSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := Split("", s.size, s.overlap); err != nil {
		return nil, err
	}
	return s, nil
}

// Split chunks text with the splitter's parameters.
func (s *Splitter) Split(text string) []Chunk {
	chunks, _ := Split(text, s.size, s.overlap)
	return chunks
}

// Size returns the configured window length.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the configured overlap.
func (s *Splitter) Overlap() int { return s.overlap }

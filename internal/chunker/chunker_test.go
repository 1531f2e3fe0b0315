package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode"
)

// TestSplit_SentenceBoundaries tests that windows end after a terminator when one is close to the edge.
func TestSplit_SentenceBoundaries(t *testing.T) {
	chunks, err := Split("Hello world. This is a test.", 15, 5)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if len(chunks) < 2 {
		t.Fatalf("Expected at least 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "Hello world." {
		t.Errorf("Chunk 0: expected %q, got %q", "Hello world.", chunks[0].Text)
	}
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(last.Text, "test.") {
		t.Errorf("Last chunk should end the text, got %q", last.Text)
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("Chunk %d: expected index %d, got %d", i, i, c.Index)
		}
		if c.Total != len(chunks) {
			t.Errorf("Chunk %d: expected total %d, got %d", i, len(chunks), c.Total)
		}
	}
}

// TestSplit_EmptyInput tests that blank text yields no chunks and no error.
func TestSplit_EmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t "} {
		chunks, err := Split(text, 10, 2)
		if err != nil {
			t.Errorf("Split(%q) returned error: %v", text, err)
		}
		if len(chunks) != 0 {
			t.Errorf("Split(%q): expected 0 chunks, got %d", text, len(chunks))
		}
	}
}

// TestSplit_InvalidParameters tests the size and overlap constraints.
func TestSplit_InvalidParameters(t *testing.T) {
	cases := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -5, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap exceeds size", 10, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Split("some text", tc.size, tc.overlap)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

// TestSplit_Coverage tests that consecutive windows leave no gap and no chunk is blank.
func TestSplit_Coverage(t *testing.T) {
	texts := []string{
		"The quick brown fox jumps over the lazy dog. It was not amused! Was the fox sorry? No.",
		"第一句话。第二句话！第三句话？最后一句没有标点",
		"Paragraph one has words\n\nParagraph two follows here\n\nAnd a third one closes it out",
		strings.Repeat("abcdefghij", 37),
		"   leading and trailing whitespace around a sentence.   ",
	}
	params := [][2]int{{15, 5}, {7, 0}, {30, 29}, {100, 10}, {1, 0}}

	for _, text := range texts {
		runes := []rune(text)
		for _, p := range params {
			chunks, err := Split(text, p[0], p[1])
			if err != nil {
				t.Fatalf("Split failed: %v", err)
			}
			if len(chunks) == 0 {
				t.Fatalf("Expected chunks for %q", text)
			}

			covered := 0
			for _, c := range chunks {
				if strings.TrimSpace(c.Text) == "" {
					t.Errorf("Blank chunk %d for size=%d overlap=%d", c.Index, p[0], p[1])
				}
				if c.End-c.Start > p[0] {
					t.Errorf("Chunk %d longer than window: %d > %d", c.Index, c.End-c.Start, p[0])
				}
				if !strings.Contains(string(runes[c.Start:c.End]), c.Text) {
					t.Errorf("Chunk %d text not inside its window", c.Index)
				}
				// Any runes skipped between windows must be whitespace.
				if c.Start > covered {
					gap := string(runes[covered:c.Start])
					if strings.TrimFunc(gap, unicode.IsSpace) != "" {
						t.Errorf("Gap %q not covered (size=%d overlap=%d)", gap, p[0], p[1])
					}
				}
				covered = max(covered, c.End)
			}
			if tail := string(runes[covered:]); strings.TrimSpace(tail) != "" {
				t.Errorf("Tail %q not covered (size=%d overlap=%d)", tail, p[0], p[1])
			}
		}
	}
}

// TestSplit_DoubleNewline tests that a paragraph break counts as a boundary.
func TestSplit_DoubleNewline(t *testing.T) {
	text := "abcdefgh\n\nijklmnopqrstuvwxyz"
	chunks, err := Split(text, 12, 0)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if chunks[0].Text != "abcdefgh" {
		t.Errorf("Expected cut at paragraph break, got %q", chunks[0].Text)
	}
	if chunks[0].End != 10 {
		t.Errorf("Expected window end 10, got %d", chunks[0].End)
	}
}

// TestSplit_EarlyTerminatorIgnored tests that terminators inside the first 70% of a window are not used.
func TestSplit_EarlyTerminatorIgnored(t *testing.T) {
	text := "Hi. abcdefghijklmnopqrstuvwxyz"
	chunks, err := Split(text, 10, 0)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if chunks[0].End != 10 {
		t.Errorf("Expected raw window end 10, got %d", chunks[0].End)
	}
}

// TestSplit_Progress tests termination when overlap almost equals size.
func TestSplit_Progress(t *testing.T) {
	text := strings.Repeat("word. ", 50)
	chunks, err := Split(text, 6, 5)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	prev := -1
	for _, c := range chunks {
		if c.Start <= prev {
			t.Fatalf("Window start did not advance: %d after %d", c.Start, prev)
		}
		prev = c.Start
	}
}

// TestNewSplitter tests option handling and validation.
func TestNewSplitter(t *testing.T) {
	s, err := NewSplitter()
	if err != nil {
		t.Fatalf("NewSplitter failed: %v", err)
	}
	if s.Size() != DefaultSize || s.Overlap() != DefaultOverlap {
		t.Errorf("Unexpected defaults: size=%d overlap=%d", s.Size(), s.Overlap())
	}

	s, err = NewSplitter(WithSize(15), WithOverlap(5))
	if err != nil {
		t.Fatalf("NewSplitter failed: %v", err)
	}
	if got := s.Split("Hello world. This is a test."); len(got) < 2 {
		t.Errorf("Expected at least 2 chunks, got %d", len(got))
	}

	if _, err := NewSplitter(WithSize(10), WithOverlap(10)); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

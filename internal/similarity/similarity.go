// Package similarity ranks stored chunks against a query vector by cosine similarity.
//
// Ranking is an exact linear scan over every candidate. There is no index to
// maintain, and results are identical for identical inputs.
package similarity

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/bull/docsearch/internal/storage"
)

// Score returns the cosine similarity of a and b, clamped to [-1, 1].
// Vectors of different length, or with zero norm, score 0.
func Score(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	s := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case math.IsNaN(s):
		return 0
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}

// Result is a chunk and its similarity to the query.
type Result struct {
	Chunk *storage.Chunk
	Score float64
}

// Rank scores every candidate against query and returns at most limit results
// scoring at least threshold, best first. Equal scores are ordered by chunk ID.
// Candidates without an embedding or with a different dimension are skipped.
func Rank(query []float32, candidates []*storage.Chunk, limit int, threshold float64) []Result {
	if limit <= 0 {
		return []Result{}
	}

	results := make([]Result, 0, min(len(candidates), limit))
	for _, c := range candidates {
		if c == nil || len(c.Embedding) == 0 || len(c.Embedding) != len(query) {
			continue
		}
		score := Score(query, c.Embedding)
		if score < threshold {
			continue
		}
		results = append(results, Result{Chunk: c, Score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Embedder produces the query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) []float32
}

// ChunkSource supplies the candidates for a scan.
type ChunkSource interface {
	AllChunks(ctx context.Context) ([]*storage.Chunk, error)
}

// Engine embeds query text and ranks every stored chunk against it.
type Engine struct {
	embedder Embedder
	source   ChunkSource
	logger   *slog.Logger
}

// NewEngine creates an engine over source.
func NewEngine(embedder Embedder, source ChunkSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{embedder: embedder, source: source, logger: logger}
}

// Search returns the chunks most similar to query. No matches is an empty slice, not an error.
func (e *Engine) Search(ctx context.Context, query string, limit int, threshold float64) ([]Result, error) {
	vector := e.embedder.Embed(ctx, query)

	candidates, err := e.source.AllChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	results := Rank(vector, candidates, limit, threshold)
	e.logger.Info("Vector search",
		"query", truncate(query, 50),
		"limit", limit,
		"threshold", threshold,
		"candidates", len(candidates),
		"results", len(results),
	)
	return results, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

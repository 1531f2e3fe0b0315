package embedding

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

const (
	// DefaultModel is the embedding model requested when none is configured.
	DefaultModel = "text-embedding-3-small"

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	// OpenAI supports up to 2048 texts per batch, but smaller batches reduce TPM pressure.
	DefaultBatchSize = 500

	// DefaultMaxInputTokens is the input limit of the OpenAI embedding models.
	DefaultMaxInputTokens = 8191

	probeText = "test"
)

// Truncator shortens text to a token budget.
type Truncator interface {
	Truncate(text string, maxTokens int) string
}

// OpenAIConfig configures an OpenAIBackend.
type OpenAIConfig struct {
	Model          string
	BatchSize      int
	MaxInputTokens int
	Truncator      Truncator // Optional; inputs are sent as-is when nil
}

// OpenAIBackend produces embeddings through the OpenAI embeddings endpoint.
// It batches requests and retries with exponential backoff on rate limit errors.
type OpenAIBackend struct {
	client    *Client
	batchSize int
	maxTokens int
	truncator Truncator

	mu    sync.RWMutex
	model string
}

var _ Backend = (*OpenAIBackend)(nil)

// NewOpenAIBackend creates a backend with the given client.
// Zero values in cfg fall back to DefaultModel, DefaultBatchSize and DefaultMaxInputTokens.
func NewOpenAIBackend(client *Client, cfg OpenAIConfig) *OpenAIBackend {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxInputTokens <= 0 {
		cfg.MaxInputTokens = DefaultMaxInputTokens
	}
	return &OpenAIBackend{
		client:    client,
		model:     cfg.Model,
		batchSize: cfg.BatchSize,
		maxTokens: cfg.MaxInputTokens,
		truncator: cfg.Truncator,
	}
}

// Name returns the model currently requested.
func (b *OpenAIBackend) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// Kind identifies the backend family in model info.
func (b *OpenAIBackend) Kind() string {
	return "openai"
}

// SetModel switches the model used by subsequent requests.
func (b *OpenAIBackend) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// Probe embeds a short text and reports the vector length the model produces.
func (b *OpenAIBackend) Probe(ctx context.Context) (int, error) {
	v, err := b.Encode(ctx, probeText)
	if err != nil {
		return 0, err
	}
	if len(v) == 0 {
		return 0, errors.New("probe returned an empty vector")
	}
	return len(v), nil
}

// Encode embeds a single text.
func (b *OpenAIBackend) Encode(ctx context.Context, text string) ([]float32, error) {
	vectors, err := b.embedBatchWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EncodeBatch embeds texts in batches of at most batchSize, preserving input order.
func (b *OpenAIBackend) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	all := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += b.batchSize {
		end := min(i+b.batchSize, len(texts))

		vectors, err := b.embedBatchWithRetry(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, vectors...)
	}

	return all, nil
}

// embedBatchWithRetry generates embeddings for a single batch with retry logic.
// Retries with exponential backoff on rate limit errors (HTTP 429).
// Other errors are treated as permanent and fail immediately.
func (b *OpenAIBackend) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := b.prepare(texts)
	model := b.Name()

	var embeddings [][]float32

	operation := func() error {
		resp, err := b.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: inputs,
			},
			Model: openai.EmbeddingModel(model),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) != len(inputs) {
			return backoff.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(resp.Data)))
		}

		// The API reports each vector's input position; do not rely on response order.
		data := resp.Data
		sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

		embeddings = make([][]float32, len(data))
		for i, d := range data {
			embeddings[i] = toFloat32(d.Embedding)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return embeddings, nil
}

func (b *OpenAIBackend) prepare(texts []string) []string {
	if b.truncator == nil {
		return texts
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = b.truncator.Truncate(t, b.maxTokens)
	}
	return out
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}

package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrBackendUnavailable marks a backend failure that was absorbed by the fallback generator.
// Provider methods never return it; it only appears in logs.
var ErrBackendUnavailable = errors.New("embedding backend unavailable")

// DefaultDimension matches the sentence-transformers MiniLM family.
const DefaultDimension = 384

// State is the provider's load state.
type State int32

const (
	StateUninitialized State = iota
	StateLoaded
	StateFallback
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateFallback:
		return "fallback"
	default:
		return "uninitialized"
	}
}

// Config configures a Provider.
type Config struct {
	// Dimension is the vector length used until a backend probe says otherwise.
	Dimension int
	// Disabled forces fallback mode even when a backend is available.
	Disabled bool
}

// ModelInfo describes the provider's current model.
type ModelInfo struct {
	ModelName   string `json:"model_name"`
	Dimension   int    `json:"dimension"`
	ModelLoaded bool   `json:"model_loaded"`
	ModelType   string `json:"model_type"`
	State       string `json:"state"`
}

// Provider turns text into fixed-length vectors.
// The backend is loaded lazily on first use, at most once until Reload is called.
// Without a usable backend every non-blank text maps to a deterministic unit vector.
type Provider struct {
	backend  Backend
	disabled bool
	logger   *slog.Logger

	once      atomic.Pointer[sync.Once]
	reloadMu  sync.Mutex
	state     atomic.Int32
	dimension atomic.Int64
}

// NewProvider creates a provider. backend may be nil, which means fallback mode.
func NewProvider(backend Backend, cfg Config, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	p := &Provider{
		backend:  backend,
		disabled: cfg.Disabled,
		logger:   logger,
	}
	p.once.Store(new(sync.Once))
	p.dimension.Store(int64(cfg.Dimension))
	return p
}

// State returns the current load state without triggering a load.
func (p *Provider) State() State {
	return State(p.state.Load())
}

// Dimension returns the vector length currently produced.
func (p *Provider) Dimension() int {
	return int(p.dimension.Load())
}

// Embed returns the vector for text. It never fails: backend errors degrade to the fallback vector.
func (p *Provider) Embed(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		return zeroVector(p.Dimension())
	}

	if p.ensureLoaded(ctx) != StateLoaded {
		return fallbackVector(text, p.Dimension())
	}
	return p.embedLoaded(ctx, text)
}

// EmbedBatch returns one vector per text, in order.
// With a loaded backend the non-blank texts go out in one batch call; if that call fails,
// each text is retried on its own so one bad item never costs the whole batch.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	vectors := make([][]float32, len(texts))
	if len(texts) == 0 {
		return vectors
	}

	pending := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			vectors[i] = zeroVector(p.Dimension())
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return vectors
	}

	if p.ensureLoaded(ctx) != StateLoaded {
		for _, i := range pending {
			vectors[i] = fallbackVector(texts[i], p.Dimension())
		}
		return vectors
	}

	batch := make([]string, len(pending))
	for j, i := range pending {
		batch[j] = texts[i]
	}

	encoded, err := withFallback(ctx, func(ctx context.Context) ([][]float32, error) {
		out, err := p.backend.EncodeBatch(ctx, batch)
		if err == nil && len(out) != len(batch) {
			err = fmt.Errorf("expected %d vectors, got %d", len(batch), len(out))
		}
		return out, err
	})
	if err != nil {
		p.logger.Warn("Batch embedding failed, embedding items individually",
			"count", len(batch), "error", err)
		for _, i := range pending {
			vectors[i] = p.embedLoaded(ctx, texts[i])
		}
		return vectors
	}

	dim := p.Dimension()
	for j, i := range pending {
		if len(encoded[j]) != dim {
			p.logger.Warn("Backend returned wrong vector length, using fallback",
				"expected", dim, "got", len(encoded[j]))
			vectors[i] = fallbackVector(texts[i], dim)
			continue
		}
		vectors[i] = encoded[j]
	}
	return vectors
}

// Reload discards the previous load decision and tries the backend again.
// A non-empty model switches backends that support it before probing.
func (p *Provider) Reload(ctx context.Context, model string) State {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()

	if model != "" {
		if s, ok := p.backend.(modelSwitcher); ok {
			s.SetModel(model)
		} else {
			p.logger.Warn("Backend cannot switch model, reloading current one", "model", model)
		}
	}

	p.logger.Info("Reloading embedding model")
	p.once.Store(new(sync.Once))
	return p.ensureLoaded(ctx)
}

// Info reports the model the provider uses. It triggers the lazy load.
func (p *Provider) Info(ctx context.Context) ModelInfo {
	state := p.ensureLoaded(ctx)
	info := ModelInfo{
		ModelName:   "placeholder",
		Dimension:   p.Dimension(),
		ModelLoaded: state == StateLoaded,
		ModelType:   "placeholder",
		State:       state.String(),
	}
	if p.backend != nil {
		info.ModelName = p.backend.Name()
	}
	if state == StateLoaded {
		info.ModelType = "backend"
		if k, ok := p.backend.(kinded); ok {
			info.ModelType = k.Kind()
		}
	}
	return info
}

func (p *Provider) ensureLoaded(ctx context.Context) State {
	p.once.Load().Do(func() { p.load(ctx) })
	return p.State()
}

func (p *Provider) load(ctx context.Context) {
	switch {
	case p.disabled:
		p.logger.Info("Embedding model disabled by configuration, using fallback vectors")
		p.state.Store(int32(StateFallback))
		return
	case p.backend == nil:
		p.logger.Info("No embedding backend configured, using fallback vectors")
		p.state.Store(int32(StateFallback))
		return
	}

	p.logger.Info("Loading embedding model", "model", p.backend.Name())
	dim, err := p.backend.Probe(ctx)
	if err != nil {
		p.logger.Warn("Embedding model unavailable, using fallback vectors",
			"model", p.backend.Name(), "error", fmt.Errorf("%w: %w", ErrBackendUnavailable, err))
		p.state.Store(int32(StateFallback))
		return
	}

	if configured := p.Dimension(); dim != configured {
		p.logger.Warn("Embedding dimension corrected to match model",
			"configured", configured, "actual", dim)
		p.dimension.Store(int64(dim))
	}
	p.state.Store(int32(StateLoaded))
	p.logger.Info("Embedding model loaded", "model", p.backend.Name(), "dimension", dim)
}

// embedLoaded asks the backend for one vector and falls back on any failure.
func (p *Provider) embedLoaded(ctx context.Context, text string) []float32 {
	dim := p.Dimension()
	v, err := withFallback(ctx, func(ctx context.Context) ([]float32, error) {
		out, err := p.backend.Encode(ctx, text)
		if err == nil && len(out) != dim {
			err = fmt.Errorf("expected %d dimensions, got %d", dim, len(out))
		}
		return out, err
	})
	if err != nil {
		p.logger.Warn("Embedding failed, using fallback vector", "error", err)
		return fallbackVector(text, dim)
	}
	return v
}

// withFallback runs call, retries it once on failure, and reports
// ErrBackendUnavailable when both attempts fail so the caller can fall back.
func withFallback[T any](ctx context.Context, call func(context.Context) (T, error)) (T, error) {
	v, err := call(ctx)
	if err == nil {
		return v, nil
	}
	if ctx.Err() == nil {
		if v, err = call(ctx); err == nil {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
}

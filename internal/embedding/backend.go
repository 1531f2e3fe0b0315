package embedding

import "context"

// Backend is a real embedding model. Implementations must be safe for concurrent use.
type Backend interface {
	// Name is the model identifier reported in model info.
	Name() string
	// Probe reports the vector length the model produces.
	Probe(ctx context.Context) (int, error)
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// modelSwitcher is implemented by backends that can change model on reload.
type modelSwitcher interface {
	SetModel(model string)
}

// kinded is implemented by backends that report a family name for model info.
type kinded interface {
	Kind() string
}

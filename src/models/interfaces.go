package models

import (
	"context"
)

// Backend is one concrete execution path for a single task type.
type Backend interface {
	Name() string
	Infer(ctx context.Context, req *InferenceRequest) (*InferenceResult, error)
	Close() error
}

// Dispatcher runs a request through the tier cascade.
type Dispatcher interface {
	Infer(ctx context.Context, req *InferenceRequest) (*InferenceResult, error)
}

// EmbeddingCacheStore caches single-text embeddings per model.
type EmbeddingCacheStore interface {
	GetMany(ctx context.Context, model string, texts []string) ([][]float32, error)
	SetMany(ctx context.Context, model string, texts []string, vectors [][]float32) error
	Close() error
}

// BackendStatusProvider reports the registry contents.
type BackendStatusProvider interface {
	Statuses() []BackendStatus
}

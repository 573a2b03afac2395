package search

import (
	"context"

	"github.com/kailas-cloud/tabledex/internal/backend"
	"github.com/kailas-cloud/tabledex/internal/embedding"
)

// Connection is the slice of the connection manager this service consumes.
type Connection interface {
	ListTables(ctx context.Context) ([]string, error)
	Handle(ctx context.Context) (backend.Handle, error)
}

// Embedder turns query text into vectors and answers model metadata.
type Embedder interface {
	Generate(ctx context.Context, text, modelID string) ([]float32, error)
	Dimension(ctx context.Context, modelID string) (int, error)
	AvailableModels() map[string]embedding.Info
}

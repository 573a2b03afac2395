package tableops

import (
	"context"

	"github.com/kailas-cloud/tabledex/internal/backend"
)

// Connection is the slice of the connection manager this service consumes.
type Connection interface {
	ListTables(ctx context.Context) ([]string, error)
	Handle(ctx context.Context) (backend.Handle, error)
}

// Embedder generates embedding vectors for table augmentation.
type Embedder interface {
	GenerateBatch(ctx context.Context, texts []string, modelID string) ([][]float32, error)
}

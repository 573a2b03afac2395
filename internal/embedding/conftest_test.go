package embedding

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

// mockModel implements Model for tests.
type mockModel struct {
	encodeFn  func(ctx context.Context, texts []string) ([][]float32, error)
	dimension int
	encodes   int
}

func (m *mockModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	m.encodes++
	if m.encodeFn != nil {
		return m.encodeFn(ctx, texts)
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.1, 0.2, 0.3}
	}
	return vectors, nil
}

func (m *mockModel) Dimension() int { return m.dimension }

// mockLoader implements Loader for tests.
type mockLoader struct {
	loadFn func(ctx context.Context, modelID string) (Model, error)
	loads  int
}

func (m *mockLoader) Load(ctx context.Context, modelID string) (Model, error) {
	m.loads++
	if m.loadFn != nil {
		return m.loadFn(ctx, modelID)
	}
	return &mockModel{dimension: 3}, nil
}

func newTestService(t *testing.T, loader *mockLoader) *Service {
	t.Helper()
	return NewService(loader, 8, nil, zap.NewNop())
}

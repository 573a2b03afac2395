package search

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tabledex/internal/backend"
	"github.com/kailas-cloud/tabledex/internal/dataset"
	"github.com/kailas-cloud/tabledex/internal/embedding"
)

type mockConn struct {
	tables      map[string]*mockTable
	handleErr   error
	handleCalls int
}

func newMockConn() *mockConn {
	return &mockConn{tables: map[string]*mockTable{}}
}

func (c *mockConn) ListTables(_ context.Context) ([]string, error) {
	if c.handleErr != nil {
		return nil, c.handleErr
	}
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *mockConn) Handle(_ context.Context) (backend.Handle, error) {
	c.handleCalls++
	if c.handleErr != nil {
		return nil, c.handleErr
	}
	return &mockHandle{conn: c}, nil
}

type mockHandle struct {
	conn *mockConn
}

func (h *mockHandle) TableNames(ctx context.Context) ([]string, error) {
	return h.conn.ListTables(ctx)
}

func (h *mockHandle) CreateTable(_ context.Context, _ string, _ *dataset.Dataset) (backend.Table, error) {
	return nil, fmt.Errorf("not implemented")
}

func (h *mockHandle) OpenTable(_ context.Context, name string) (backend.Table, error) {
	tbl, ok := h.conn.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %q not found", name)
	}
	return tbl, nil
}

func (h *mockHandle) DropTable(_ context.Context, _ string) error { return nil }
func (h *mockHandle) Close()                                      {}

type mockTable struct {
	fields   []backend.Field
	searchFn func(ctx context.Context, vector []float32, vectorColumn string, limit int) (*dataset.Dataset, error)
	searches int
}

func (t *mockTable) Schema(_ context.Context) ([]backend.Field, error) {
	return t.fields, nil
}

func (t *mockTable) Scan(_ context.Context, _, _ int) (*dataset.Dataset, error) {
	return nil, fmt.Errorf("not implemented")
}

func (t *mockTable) CountRows(_ context.Context) (int, error) { return 0, nil }

func (t *mockTable) Search(ctx context.Context, vector []float32, vectorColumn string, limit int) (*dataset.Dataset, error) {
	t.searches++
	if t.searchFn != nil {
		return t.searchFn(ctx, vector, vectorColumn, limit)
	}
	return dataset.New(nil), nil
}

type mockEmbedder struct {
	generateFn  func(ctx context.Context, text, modelID string) ([]float32, error)
	dimensionFn func(ctx context.Context, modelID string) (int, error)
	generates   int
}

func (m *mockEmbedder) Generate(ctx context.Context, text, modelID string) ([]float32, error) {
	m.generates++
	if m.generateFn != nil {
		return m.generateFn(ctx, text, modelID)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) Dimension(ctx context.Context, modelID string) (int, error) {
	if m.dimensionFn != nil {
		return m.dimensionFn(ctx, modelID)
	}
	return 3, nil
}

func (m *mockEmbedder) AvailableModels() map[string]embedding.Info {
	return map[string]embedding.Info{
		"all-MiniLM-L6-v2": {Dimension: 384, Description: "Fast and efficient general-purpose model"},
	}
}

func newTestService(t *testing.T) (*Service, *mockConn, *mockEmbedder) {
	t.Helper()
	conn := newMockConn()
	embedder := &mockEmbedder{}
	return New(conn, embedder, zap.NewNop()), conn, embedder
}

func searchResults(rows ...[]any) *dataset.Dataset {
	d := dataset.New([]string{"id", "text", backend.DistanceColumn})
	for _, row := range rows {
		if err := d.Append(row); err != nil {
			panic(err)
		}
	}
	return d
}

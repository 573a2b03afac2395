package chi

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tabledex/internal/backend"
	"github.com/kailas-cloud/tabledex/internal/dataset"
	"github.com/kailas-cloud/tabledex/internal/embedding"
	searchuc "github.com/kailas-cloud/tabledex/internal/usecase/search"
	"github.com/kailas-cloud/tabledex/internal/usecase/tableops"
)

// memConn is an in-memory Connection + Pinger backing the HTTP tests.
type memConn struct {
	tables map[string]*dataset.Dataset
	alive  bool
}

func newMemConn() *memConn {
	return &memConn{tables: map[string]*dataset.Dataset{}, alive: true}
}

func (c *memConn) EnsureConnection(_ context.Context) bool { return c.alive }

func (c *memConn) ListTables(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (c *memConn) Handle(_ context.Context) (backend.Handle, error) {
	return (*memHandle)(c), nil
}

type memHandle memConn

func (h *memHandle) TableNames(ctx context.Context) ([]string, error) {
	return (*memConn)(h).ListTables(ctx)
}

func (h *memHandle) CreateTable(_ context.Context, name string, data *dataset.Dataset) (backend.Table, error) {
	if _, ok := h.tables[name]; ok {
		return nil, fmt.Errorf("table %q already exists", name)
	}
	h.tables[name] = data
	return &memTable{handle: h, name: name}, nil
}

func (h *memHandle) OpenTable(_ context.Context, name string) (backend.Table, error) {
	if _, ok := h.tables[name]; !ok {
		return nil, fmt.Errorf("table %q not found", name)
	}
	return &memTable{handle: h, name: name}, nil
}

func (h *memHandle) DropTable(_ context.Context, name string) error {
	delete(h.tables, name)
	return nil
}

func (h *memHandle) Close() {}

type memTable struct {
	handle *memHandle
	name   string
}

func (t *memTable) data() *dataset.Dataset { return t.handle.tables[t.name] }

func (t *memTable) Schema(_ context.Context) ([]backend.Field, error) {
	d := t.data()
	fields := make([]backend.Field, 0, len(d.Columns()))
	for _, col := range d.Columns() {
		fields = append(fields, backend.Field{Name: col, Type: d.DeclaredType(col)})
	}
	return fields, nil
}

func (t *memTable) Scan(_ context.Context, limit, offset int) (*dataset.Dataset, error) {
	d := t.data()
	end := d.Len()
	if offset > end {
		offset = end
	}
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return d.Filter(func(i int) bool { return i >= offset && i < end }), nil
}

func (t *memTable) CountRows(_ context.Context) (int, error) { return t.data().Len(), nil }

func (t *memTable) Search(_ context.Context, _ []float32, _ string, limit int) (*dataset.Dataset, error) {
	out := t.data().Filter(func(i int) bool { return i < limit })
	distances := make([]any, out.Len())
	for i := range distances {
		distances[i] = float64(i) * 0.25
	}
	if err := out.AddColumn(backend.DistanceColumn, distances); err != nil {
		return nil, err
	}
	return out, nil
}

// memEmbedder satisfies the tableops and search embedder contracts plus
// the health checker.
type memEmbedder struct {
	healthErr error
}

func (m *memEmbedder) Generate(_ context.Context, _, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *memEmbedder) GenerateBatch(_ context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func (m *memEmbedder) Dimension(_ context.Context, _ string) (int, error) { return 3, nil }

func (m *memEmbedder) AvailableModels() map[string]embedding.Info {
	return map[string]embedding.Info{"all-MiniLM-L6-v2": {Dimension: 384}}
}

func (m *memEmbedder) HealthCheck(_ context.Context) error { return m.healthErr }

func newTestServer(t *testing.T) (*httptest.Server, *memConn, *memEmbedder) {
	t.Helper()
	conn := newMemConn()
	emb := &memEmbedder{}
	logger := zap.NewNop()

	srv := NewServer(
		tableops.New(conn, emb, logger),
		searchuc.New(conn, emb, logger),
		conn,
		emb,
		logger,
	)

	r := chi.NewRouter()
	srv.Routes(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, conn, emb
}

func seedTable(conn *memConn, name string, columns []string, rows ...[]any) {
	d := dataset.New(columns)
	for _, row := range rows {
		if err := d.Append(row); err != nil {
			panic(err)
		}
	}
	conn.tables[name] = d
}

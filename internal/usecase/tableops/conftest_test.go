package tableops

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tabledex/internal/backend"
	"github.com/kailas-cloud/tabledex/internal/dataset"
)

// fakeStore is an in-memory backend handle holding datasets per table.
type fakeStore struct {
	tables map[string]*dataset.Dataset

	creates int
	drops   int
	scans   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: map[string]*dataset.Dataset{}}
}

func (s *fakeStore) TableNames(_ context.Context) ([]string, error) {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *fakeStore) CreateTable(_ context.Context, name string, data *dataset.Dataset) (backend.Table, error) {
	s.creates++
	if _, ok := s.tables[name]; ok {
		return nil, fmt.Errorf("table %q already exists", name)
	}
	s.tables[name] = data
	return &fakeTable{store: s, name: name}, nil
}

func (s *fakeStore) OpenTable(_ context.Context, name string) (backend.Table, error) {
	if _, ok := s.tables[name]; !ok {
		return nil, fmt.Errorf("table %q not found", name)
	}
	return &fakeTable{store: s, name: name}, nil
}

func (s *fakeStore) DropTable(_ context.Context, name string) error {
	s.drops++
	delete(s.tables, name)
	return nil
}

func (s *fakeStore) Close() {}

type fakeTable struct {
	store *fakeStore
	name  string
}

func (t *fakeTable) data() *dataset.Dataset { return t.store.tables[t.name] }

func (t *fakeTable) Schema(_ context.Context) ([]backend.Field, error) {
	d := t.data()
	fields := make([]backend.Field, 0, len(d.Columns()))
	for _, col := range d.Columns() {
		fields = append(fields, backend.Field{Name: col, Type: d.DeclaredType(col)})
	}
	return fields, nil
}

func (t *fakeTable) Scan(_ context.Context, limit, offset int) (*dataset.Dataset, error) {
	t.store.scans++
	d := t.data()
	end := d.Len()
	if offset > end {
		offset = end
	}
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return d.Filter(func(row int) bool {
		return row >= offset && row < end
	}), nil
}

func (t *fakeTable) CountRows(_ context.Context) (int, error) {
	return t.data().Len(), nil
}

func (t *fakeTable) Search(_ context.Context, _ []float32, _ string, limit int) (*dataset.Dataset, error) {
	d := t.data()
	out := d.Filter(func(i int) bool { return i < limit })
	distances := make([]any, out.Len())
	for i := range distances {
		distances[i] = float64(i) * 0.1
	}
	if err := out.AddColumn(backend.DistanceColumn, distances); err != nil {
		return nil, err
	}
	return out, nil
}

// mockConn satisfies Connection over a fakeStore, counting handle hands-out.
type mockConn struct {
	store       *fakeStore
	handleErr   error
	handleCalls int
}

func (c *mockConn) ListTables(ctx context.Context) ([]string, error) {
	if c.handleErr != nil {
		return nil, c.handleErr
	}
	return c.store.TableNames(ctx)
}

func (c *mockConn) Handle(_ context.Context) (backend.Handle, error) {
	c.handleCalls++
	if c.handleErr != nil {
		return nil, c.handleErr
	}
	return c.store, nil
}

type mockEmbedder struct {
	batchFn func(ctx context.Context, texts []string, modelID string) ([][]float32, error)
	batches int
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, texts []string, modelID string) ([][]float32, error) {
	m.batches++
	if m.batchFn != nil {
		return m.batchFn(ctx, texts, modelID)
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *mockConn, *mockEmbedder) {
	t.Helper()
	conn := &mockConn{store: newFakeStore()}
	embedder := &mockEmbedder{}
	return New(conn, embedder, zap.NewNop()), conn, embedder
}

// seedTable installs a dataset directly into the fake store.
func seedTable(conn *mockConn, name string, columns []string, rows ...[]any) {
	d := dataset.New(columns)
	for _, row := range rows {
		if err := d.Append(row); err != nil {
			panic(err)
		}
	}
	conn.store.tables[name] = d
}

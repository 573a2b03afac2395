package connection

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tabledex/internal/backend"
	"github.com/kailas-cloud/tabledex/internal/dataset"
)

// mockClient implements backend.Client for tests.
type mockClient struct {
	connectFn func(ctx context.Context, uri string) (backend.Handle, error)
	connects  int
}

func (m *mockClient) Connect(ctx context.Context, uri string) (backend.Handle, error) {
	m.connects++
	if m.connectFn != nil {
		return m.connectFn(ctx, uri)
	}
	return &mockHandle{}, nil
}

// mockHandle implements backend.Handle for tests.
type mockHandle struct {
	tableNamesFn func(ctx context.Context) ([]string, error)
	probes       int
	closed       bool
}

func (m *mockHandle) TableNames(ctx context.Context) ([]string, error) {
	m.probes++
	if m.tableNamesFn != nil {
		return m.tableNamesFn(ctx)
	}
	return nil, nil
}

func (m *mockHandle) CreateTable(_ context.Context, _ string, _ *dataset.Dataset) (backend.Table, error) {
	return nil, nil
}

func (m *mockHandle) OpenTable(_ context.Context, _ string) (backend.Table, error) {
	return nil, nil
}

func (m *mockHandle) DropTable(_ context.Context, _ string) error { return nil }

func (m *mockHandle) Close() { m.closed = true }

func newTestManager(t *testing.T, client *mockClient) *Manager {
	t.Helper()
	// Microsecond delays keep retry paths fast in tests.
	return New(client, RetryPolicy{MaxAttempts: 3, Delay: time.Microsecond}, zap.NewNop())
}

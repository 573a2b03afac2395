// Package connection owns the single backend connection handle: retry with
// backoff, liveness verification and automatic reconnection from a
// remembered URI.
package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tabledex/internal/backend"
	"github.com/kailas-cloud/tabledex/internal/envelope"
	"github.com/kailas-cloud/tabledex/internal/metrics"
)

var errNotConnected = errors.New("not connected to database")

// RetryPolicy configures backend operation retries. Delay grows linearly
// with the attempt number (delay, 2*delay, ...).
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy returns the stock policy: 3 attempts, 1s base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Second}
}

// Manager guards the shared backend handle. All operations serialize on
// its mutex: the layer models a single logical session.
type Manager struct {
	client backend.Client
	policy RetryPolicy
	logger *zap.Logger

	mu     sync.Mutex
	handle backend.Handle
	uri    string
}

// New creates a connection manager. The manager starts Disconnected; the
// first Connect establishes and remembers the URI.
func New(client backend.Client, policy RetryPolicy, logger *zap.Logger) *Manager {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if policy.Delay <= 0 {
		policy.Delay = DefaultRetryPolicy().Delay
	}
	return &Manager{client: client, policy: policy, logger: logger}
}

// Connect establishes a handle with retries. On final failure the manager
// resets to Disconnected and surfaces a ConnectionError carrying the
// backend's message.
func (m *Manager) Connect(ctx context.Context, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(ctx, uri)
}

func (m *Manager) connectLocked(ctx context.Context, uri string) error {
	m.logger.Info("connecting to backend", zap.String("uri", uri))

	var handle backend.Handle
	err := m.withRetry(ctx, "connect", func(ctx context.Context) error {
		h, err := m.client.Connect(ctx, uri)
		if err != nil {
			return err
		}
		handle = h
		return nil
	})
	if err != nil {
		m.logger.Error("failed to connect to backend", zap.String("uri", uri), zap.Error(err))
		m.resetLocked()
		return envelope.Connectionf("failed to connect to database: %s", err)
	}

	if m.handle != nil {
		m.handle.Close()
	}
	m.handle = handle
	m.uri = uri
	return nil
}

// EnsureConnection verifies liveness with a table-listing probe and, after
// a probe failure, attempts one reconnect from the remembered URI. Returns
// true only if a live connection results.
func (m *Manager) EnsureConnection(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked(ctx)
}

func (m *Manager) ensureLocked(ctx context.Context) bool {
	if m.handle != nil {
		if _, err := m.handle.TableNames(ctx); err == nil {
			return true
		}
		m.logger.Warn("connection probe failed, dropping handle", zap.String("uri", m.uri))
		m.handle.Close()
		m.handle = nil
	}

	if m.uri == "" {
		return false
	}
	return m.connectLocked(ctx, m.uri) == nil
}

// ListTables lists all tables, retried under the backoff policy.
func (m *Manager) ListTables(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var names []string
	err := m.withRetry(ctx, "list_tables", func(ctx context.Context) error {
		if !m.ensureLocked(ctx) {
			return errNotConnected
		}
		n, err := m.handle.TableNames(ctx)
		if err != nil {
			return err
		}
		names = n
		return nil
	})
	if err != nil {
		if errors.Is(err, errNotConnected) {
			return nil, envelope.Connectionf("not connected to database")
		}
		return nil, envelope.TableOpf("failed to list tables: %s", err)
	}
	return names, nil
}

// Handle verifies the connection and returns the live handle. Callers must
// not cache it beyond a single operation.
func (m *Manager) Handle(ctx context.Context) (backend.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.ensureLocked(ctx) {
		return nil, envelope.Connectionf("not connected to database")
	}
	return m.handle, nil
}

// Connected reports whether a handle is currently held. It does not probe.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle != nil
}

// URI returns the remembered backend URI, empty when never connected.
func (m *Manager) URI() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uri
}

// Close drops the handle and forgets the URI.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Manager) resetLocked() {
	if m.handle != nil {
		m.handle.Close()
	}
	m.handle = nil
	m.uri = ""
}

// withRetry runs op up to MaxAttempts times with linearly growing delay.
// The backoff aborts when ctx is cancelled.
func (m *Manager) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	attempt := 0
	backoff := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return m.policy.Delay * time.Duration(attempt), false
	})

	return retry.Do(ctx, retry.WithMaxRetries(uint64(m.policy.MaxAttempts-1), backoff),
		func(ctx context.Context) error {
			err := fn(ctx)
			if err == nil {
				return nil
			}
			if attempt < m.policy.MaxAttempts-1 {
				metrics.ConnectionRetriesTotal.WithLabelValues(op).Inc()
				m.logger.Warn("operation failed, will retry",
					zap.String("op", op),
					zap.Int("attempt", attempt+1),
					zap.Int("max_attempts", m.policy.MaxAttempts),
					zap.Error(err),
				)
			}
			return retry.RetryableError(err)
		})
}

package sdk

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tabledex/internal/backend/redis"
	"github.com/kailas-cloud/tabledex/internal/connection"
	"github.com/kailas-cloud/tabledex/internal/embedding"
	openaiLoader "github.com/kailas-cloud/tabledex/internal/transport/openai"
	searchuc "github.com/kailas-cloud/tabledex/internal/usecase/search"
	"github.com/kailas-cloud/tabledex/internal/usecase/tableops"
)

// Client is the tabledex SDK entry point.
type Client struct {
	manager  *connection.Manager
	embedder *embedding.Service
	tables   *tableops.Service
	search   *searchuc.Service
}

// New creates a Client and connects to the database. The provided context
// bounds the initial connect including its retries.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{logger: zap.NewNop()}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.uri == "" {
		return nil, errors.New("sdk: database uri required (use WithDatabase)")
	}

	manager := connection.New(redis.NewClient(cfg.logger), connection.RetryPolicy{
		MaxAttempts: cfg.maxRetries,
		Delay:       cfg.retryDelay,
	}, cfg.logger)

	if err := manager.Connect(ctx, cfg.uri); err != nil {
		return nil, err
	}

	loader := openaiLoader.NewLoader(&openaiLoader.Config{
		APIKey:  cfg.apiKey,
		BaseURL: cfg.baseURL,
		Logger:  cfg.logger,
	})
	embedder := embedding.NewService(loader, cfg.cacheCapacity, nil, cfg.logger)

	return &Client{
		manager:  manager,
		embedder: embedder,
		tables:   tableops.New(manager, embedder, cfg.logger),
		search:   searchuc.New(manager, embedder, cfg.logger),
	}, nil
}

// Tables exposes the table operations service.
func (c *Client) Tables() *tableops.Service { return c.tables }

// Search exposes the semantic search service.
func (c *Client) Search() *searchuc.Service { return c.search }

// Embeddings exposes the embedding service directly.
func (c *Client) Embeddings() *embedding.Service { return c.embedder }

// Connected reports whether the backend handle is currently held.
func (c *Client) Connected() bool { return c.manager.Connected() }

// Close drops the connection and forgets the remembered URI.
func (c *Client) Close() { c.manager.Close() }

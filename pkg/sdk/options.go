package sdk

import (
	"time"

	"go.uber.org/zap"
)

type clientConfig struct {
	uri           string
	maxRetries    int
	retryDelay    time.Duration
	apiKey        string
	baseURL       string
	cacheCapacity int
	logger        *zap.Logger
}

// Option configures the client.
type Option interface {
	apply(*clientConfig)
}

type optionFunc func(*clientConfig)

func (f optionFunc) apply(cfg *clientConfig) { f(cfg) }

// WithDatabase sets the backend URI (redis://host:port or host:port).
func WithDatabase(uri string) Option {
	return optionFunc(func(cfg *clientConfig) { cfg.uri = uri })
}

// WithRetryPolicy overrides the connection retry policy.
func WithRetryPolicy(maxRetries int, delay time.Duration) Option {
	return optionFunc(func(cfg *clientConfig) {
		cfg.maxRetries = maxRetries
		cfg.retryDelay = delay
	})
}

// WithEmbeddingProvider sets the OpenAI-compatible embedding endpoint.
// Without it the client works but embedding and text search operations
// fail with classified errors.
func WithEmbeddingProvider(apiKey, baseURL string) Option {
	return optionFunc(func(cfg *clientConfig) {
		cfg.apiKey = apiKey
		cfg.baseURL = baseURL
	})
}

// WithCacheCapacity bounds the embedding result cache.
func WithCacheCapacity(capacity int) Option {
	return optionFunc(func(cfg *clientConfig) { cfg.cacheCapacity = capacity })
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return optionFunc(func(cfg *clientConfig) { cfg.logger = logger })
}

// Package embedding manages embedding models and vector generation: a
// lazily populated model cache and a bounded LRU over (text, model)
// results.
package embedding

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tabledex/internal/cache"
	"github.com/kailas-cloud/tabledex/internal/envelope"
)

// DefaultCacheCapacity bounds the embedding-result cache.
const DefaultCacheCapacity = 1000

// Model encodes texts into fixed-length vectors.
type Model interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Loader loads a model instance by id.
type Loader interface {
	Load(ctx context.Context, modelID string) (Model, error)
}

// cacheKey is the exact (text, model) pair; no normalization.
type cacheKey struct {
	text    string
	modelID string
}

// Service generates embeddings with model caching and per-(text, model)
// result caching. Safe for concurrent use.
type Service struct {
	loader     Loader
	logger     *zap.Logger
	cacheTotal *prometheus.CounterVec

	mu     sync.Mutex
	models map[string]Model
	cache  *cache.LRU[cacheKey, []float32]
}

// NewService creates an embedding service. cacheTotal is a counter vec
// with label "result" ("hit"/"miss"); nil disables cache metrics.
func NewService(loader Loader, capacity int, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Service {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Service{
		loader:     loader,
		logger:     logger,
		cacheTotal: cacheTotal,
		models:     make(map[string]Model),
		cache:      cache.NewLRU[cacheKey, []float32](capacity),
	}
}

// AvailableModels returns the static model registry.
func (s *Service) AvailableModels() map[string]Info {
	return Models()
}

// Model returns a cached model instance, loading it on first use. A load
// failure is a ModelNotFoundError.
func (s *Service) Model(ctx context.Context, modelID string) (Model, error) {
	s.mu.Lock()
	if m, ok := s.models[modelID]; ok {
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	s.logger.Info("loading model", zap.String("model", modelID))
	m, err := s.loader.Load(ctx, modelID)
	if err != nil {
		return nil, envelope.ModelNotFoundf("failed to load model %q: %s", modelID, err)
	}

	s.mu.Lock()
	s.models[modelID] = m
	s.mu.Unlock()
	return m, nil
}

// Generate returns the embedding for one text, consulting the (text,
// model) cache first. Encode failures are EmbeddingErrors; only the model
// load step raises ModelNotFoundError.
func (s *Service) Generate(ctx context.Context, text, modelID string) ([]float32, error) {
	key := cacheKey{text: text, modelID: modelID}
	if vec, ok := s.cache.Get(key); ok {
		s.incCache("hit")
		return vec, nil
	}
	s.incCache("miss")

	model, err := s.Model(ctx, modelID)
	if err != nil {
		return nil, err
	}

	vectors, err := model.Encode(ctx, []string{text})
	if err != nil {
		return nil, envelope.Embeddingf("failed to generate embedding: %s", err)
	}
	if len(vectors) == 0 {
		return nil, envelope.Embeddingf("model %q returned no vectors", modelID)
	}

	s.cache.Put(key, vectors[0])
	return vectors[0], nil
}

// GenerateBatch encodes the full batch in a single model call, bypassing
// the result cache.
func (s *Service) GenerateBatch(ctx context.Context, texts []string, modelID string) ([][]float32, error) {
	model, err := s.Model(ctx, modelID)
	if err != nil {
		return nil, err
	}

	vectors, err := model.Encode(ctx, texts)
	if err != nil {
		return nil, envelope.Embeddingf("failed to generate batch embeddings: %s", err)
	}
	return vectors, nil
}

// Dimension returns the registry's declared dimension when the model is
// known, otherwise loads the model and asks it directly.
func (s *Service) Dimension(ctx context.Context, modelID string) (int, error) {
	if info, ok := Lookup(modelID); ok {
		return info.Dimension, nil
	}
	model, err := s.Model(ctx, modelID)
	if err != nil {
		return 0, err
	}
	return model.Dimension(), nil
}

// ClearCache drops both the model cache and the embedding cache.
func (s *Service) ClearCache() {
	s.mu.Lock()
	s.models = make(map[string]Model)
	s.mu.Unlock()
	s.cache.Clear()
}

func (s *Service) incCache(result string) {
	if s.cacheTotal != nil {
		s.cacheTotal.WithLabelValues(result).Inc()
	}
}

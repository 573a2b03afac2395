package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tabledex/internal/embedding"
	"github.com/kailas-cloud/tabledex/internal/metrics"
)

// Loader loads embedding models backed by an OpenAI-compatible API
// (e.g. Nebius). Each loaded model is a thin handle over the shared
// HTTP client bound to one model id.
type Loader struct {
	client *openai.Client
	user   string
	logger *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	User    string
	Logger  *zap.Logger
}

// NewLoader creates an OpenAI-compatible model loader.
func NewLoader(cfg *Config) *Loader {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Loader{
		client: openai.NewClientWithConfig(clientCfg),
		user:   cfg.User,
		logger: cfg.Logger,
	}
}

// Load implements embedding.Loader. For models absent from the local
// registry the dimension is learned by probing the API with a single
// input, which also verifies the model id is served at all.
func (l *Loader) Load(ctx context.Context, modelID string) (embedding.Model, error) {
	m := &apiModel{loader: l, id: modelID}

	if info, ok := embedding.Lookup(modelID); ok {
		m.dimension = info.Dimension
		return m, nil
	}

	probe, err := m.Encode(ctx, []string{"dimension probe"})
	if err != nil {
		return nil, fmt.Errorf("probe model %q: %w", modelID, err)
	}
	m.dimension = len(probe[0])

	l.logger.Info("learned model dimension from provider",
		zap.String("model", modelID),
		zap.Int("dimension", m.dimension))
	return m, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (l *Loader) HealthCheck(ctx context.Context) error {
	if _, err := l.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

type apiModel struct {
	loader    *Loader
	id        string
	dimension int
}

// Encode implements embedding.Model with transport-level metrics.
func (m *apiModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(m.id),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
		User:           m.loader.user,
	}

	start := time.Now()

	resp, err := m.loader.client.CreateEmbeddings(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(m.id, "error").Inc()
		return nil, parseAPIError(err)
	}

	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequestsTotal.WithLabelValues(m.id, "error").Inc()
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(m.id, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(m.id).Observe(duration.Seconds())

	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

func (m *apiModel) Dimension() int {
	return m.dimension
}

// parseAPIError extracts a human-readable error from the API response.
func parseAPIError(err error) error {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("embedding API error %d: %s", reqErr.HTTPStatusCode, detail)
		}
		return fmt.Errorf("embedding API error %d: %s", reqErr.HTTPStatusCode, string(reqErr.Body))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}

	return fmt.Errorf("embedding request failed: %w", err)
}

// extractDetail extracts the "detail" field from a JSON error body (Nebius error format).
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}

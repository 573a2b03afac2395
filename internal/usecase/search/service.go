// Package search implements the two-stage semantic search pipeline: query
// text is embedded, the vector is validated against the model's declared
// dimension, and only then dispatched as a nearest-neighbor query.
package search

import (
	"context"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tabledex/internal/backend"
	"github.com/kailas-cloud/tabledex/internal/dataset"
	"github.com/kailas-cloud/tabledex/internal/embedding"
	"github.com/kailas-cloud/tabledex/internal/envelope"
	"github.com/kailas-cloud/tabledex/internal/metrics"
	"github.com/kailas-cloud/tabledex/internal/usecase/tableops"
)

const defaultLimit = 10

// Service runs semantic search over the shared connection.
type Service struct {
	conn     Connection
	embedder Embedder
	logger   *zap.Logger
}

// New creates a semantic search service.
func New(conn Connection, embedder Embedder, logger *zap.Logger) *Service {
	return &Service{conn: conn, embedder: embedder, logger: logger}
}

// EmbeddingTable is one (table, vector column) pair eligible for search.
type EmbeddingTable struct {
	Table        string `json:"table"`
	VectorColumn string `json:"vector_column"`
}

// ProcessedResults is the presentation-ready form of a search result set.
type ProcessedResults struct {
	TotalResults int              `json:"total_results"`
	Columns      []string         `json:"columns"`
	Results      []map[string]any `json:"results"`
	Distances    []float64        `json:"distances"`
}

// GetEmbeddingTables scans every table schema and returns the pairs whose
// fields look like embedding columns. A table contributes one pair per
// qualifying field.
func (s *Service) GetEmbeddingTables(ctx context.Context) envelope.Envelope[[]EmbeddingTable] {
	return envelope.Wrap(s.logger, func() ([]EmbeddingTable, error) {
		names, err := s.conn.ListTables(ctx)
		if err != nil {
			return nil, err
		}
		handle, err := s.conn.Handle(ctx)
		if err != nil {
			return nil, err
		}

		var pairs []EmbeddingTable
		for _, name := range names {
			tbl, err := handle.OpenTable(ctx, name)
			if err != nil {
				return nil, envelope.TableOpf("failed to open table %s: %s", name, err)
			}
			fields, err := tbl.Schema(ctx)
			if err != nil {
				return nil, envelope.TableOpf("failed to get schema for table %s: %s", name, err)
			}
			for _, f := range fields {
				if f.IsVector() {
					pairs = append(pairs, EmbeddingTable{Table: name, VectorColumn: f.Name})
				}
			}
		}
		return pairs, nil
	})
}

// GetAvailableModels lists the embedding models the service can use.
func (s *Service) GetAvailableModels() envelope.Envelope[map[string]embedding.Info] {
	return envelope.Wrap(s.logger, func() (map[string]embedding.Info, error) {
		return s.embedder.AvailableModels(), nil
	})
}

// SearchByText embeds the query and searches. The generated vector must
// match the model's declared dimension; a mismatch never reaches the
// backend.
func (s *Service) SearchByText(ctx context.Context, table, queryText, vectorColumn, modelID string, limit int) envelope.Envelope[*dataset.Dataset] {
	return envelope.Wrap(s.logger, func() (*dataset.Dataset, error) {
		vector, err := s.embedder.Generate(ctx, queryText, modelID)
		if err != nil {
			metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		expected, err := s.embedder.Dimension(ctx, modelID)
		if err != nil {
			metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		if err := validateDimension(vector, expected); err != nil {
			metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		return s.search(ctx, table, vector, vectorColumn, limit)
	})
}

// SearchByVector searches with a pre-computed vector. The dimension gate
// applies only when expectedDim is positive.
func (s *Service) SearchByVector(ctx context.Context, table string, vector []float32, vectorColumn string, expectedDim, limit int) envelope.Envelope[*dataset.Dataset] {
	return envelope.Wrap(s.logger, func() (*dataset.Dataset, error) {
		if expectedDim > 0 {
			if err := validateDimension(vector, expectedDim); err != nil {
				metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
				return nil, err
			}
		}
		return s.search(ctx, table, vector, vectorColumn, limit)
	})
}

func (s *Service) search(ctx context.Context, table string, vector []float32, vectorColumn string, limit int) (*dataset.Dataset, error) {
	if err := tableops.ValidateTableName(table); err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	handle, err := s.conn.Handle(ctx)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	tbl, err := handle.OpenTable(ctx, table)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, envelope.TableOpf("failed to open table %s: %s", table, err)
	}

	results, err := tbl.Search(ctx, vector, vectorColumn, limit)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("error").Inc()
		return nil, envelope.TableOpf("search failed on table %s: %s", table, err)
	}

	metrics.SearchRequestsTotal.WithLabelValues("success").Inc()
	return results, nil
}

func validateDimension(vector []float32, expected int) error {
	if len(vector) != expected {
		return envelope.Validation("Invalid vector dimension", map[string]any{
			"expected": expected,
			"actual":   len(vector),
		})
	}
	return nil
}

// ProcessResults converts a raw result set into the presentation shape,
// dropping excluded columns. Distances come from the synthetic distance
// column when present, nil otherwise.
func (s *Service) ProcessResults(results *dataset.Dataset, excludeColumns []string) envelope.Envelope[ProcessedResults] {
	return envelope.Wrap(s.logger, func() (ProcessedResults, error) {
		display := results.Without(excludeColumns...)

		var distances []float64
		if raw, ok := results.Column(backend.DistanceColumn); ok {
			distances = make([]float64, len(raw))
			for i, v := range raw {
				if f, ok := v.(float64); ok {
					distances[i] = f
				}
			}
		}

		return ProcessedResults{
			TotalResults: results.Len(),
			Columns:      display.Columns(),
			Results:      display.Records(),
			Distances:    distances,
		}, nil
	})
}

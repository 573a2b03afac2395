// Package chi exposes the table and search services over HTTP. Every
// response body is a result envelope; the status code mirrors the error
// kind so plain HTTP clients can branch without parsing the body.
package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tabledex/internal/dataset"
	"github.com/kailas-cloud/tabledex/internal/envelope"
	logpkg "github.com/kailas-cloud/tabledex/internal/logger"
	searchuc "github.com/kailas-cloud/tabledex/internal/usecase/search"
	"github.com/kailas-cloud/tabledex/internal/usecase/tableops"
)

// maxUploadBytes bounds multipart table uploads.
const maxUploadBytes = 64 << 20

// Pinger verifies backend liveness for the health endpoint.
type Pinger interface {
	EnsureConnection(ctx context.Context) bool
}

// EmbedderChecker probes the embedding provider for the health endpoint.
type EmbedderChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server wires the usecase services into a chi router.
type Server struct {
	tables   *tableops.Service
	search   *searchuc.Service
	pinger   Pinger
	embedder EmbedderChecker
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(tables *tableops.Service, search *searchuc.Service, pinger Pinger, embedder EmbedderChecker, logger *zap.Logger) *Server {
	return &Server{tables: tables, search: search, pinger: pinger, embedder: embedder, logger: logger}
}

// Routes mounts all API endpoints on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/tables", s.handleListTables)
		r.Post("/tables", s.handleCreateTable)
		r.Post("/tables/sample", s.handleCreateSampleTable)
		r.Post("/tables/upload", s.handleUploadTable)
		r.Route("/tables/{name}", func(r chi.Router) {
			r.Get("/", s.handleTableData)
			r.Delete("/", s.handleDeleteTable)
			r.Get("/schema", s.handleTableSchema)
			r.Get("/columns", s.handleNonVectorColumns)
			r.Get("/data", s.handleTableDataPaginated)
			r.Get("/count", s.handleRowCount)
			r.Post("/rows/delete", s.handleDeleteRows)
			r.Post("/embeddings", s.handleCreateEmbeddings)
		})

		r.Get("/search/tables", s.handleEmbeddingTables)
		r.Get("/search/models", s.handleModels)
		r.Post("/search/text", s.handleSearchByText)
		r.Post("/search/vector", s.handleSearchByVector)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"database": "ok", "embedding": "ok"}
	healthy := true

	if !s.pinger.EnsureConnection(r.Context()) {
		s.logger.Warn("health probe: database unavailable")
		status["database"] = "unavailable"
		healthy = false
	}
	if s.embedder != nil {
		if err := s.embedder.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("health probe: embedding provider unavailable", zap.Error(err))
			status["embedding"] = err.Error()
			healthy = false
		}
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, s.tables.ListTables(r.Context()))
}

func (s *Server) handleTableData(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	limit := queryInt(r, "limit", 100)
	writeEnvelope(w, s.tables.GetTableData(r.Context(), name, limit))
}

func (s *Server) handleTableSchema(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, s.tables.GetTableSchema(r.Context(), chi.URLParam(r, "name")))
}

func (s *Server) handleNonVectorColumns(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, s.tables.GetNonVectorColumns(r.Context(), chi.URLParam(r, "name")))
}

func (s *Server) handleTableDataPaginated(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 50)
	writeEnvelope(w, s.tables.GetTableDataPaginated(r.Context(), name, page, pageSize))
}

func (s *Server) handleRowCount(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, s.tables.GetTableRowCount(r.Context(), chi.URLParam(r, "name")))
}

type createTableRequest struct {
	Name         string           `json:"name"`
	Records      []map[string]any `json:"records"`
	VectorColumn string           `json:"vector_column"`
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if !decodeBody(w, r, &req) {
		return
	}
	data, err := dataset.FromRecords(req.Records)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	writeEnvelope(w, s.tables.CreateTable(r.Context(), req.Name, data, req.VectorColumn))
}

type createSampleRequest struct {
	Name       string   `json:"name"`
	Columns    []string `json:"columns"`
	SampleSize int      `json:"sample_size"`
}

func (s *Server) handleCreateSampleTable(w http.ResponseWriter, r *http.Request) {
	var req createSampleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeEnvelope(w, s.tables.CreateSampleTable(r.Context(), req.Name, req.Columns, req.SampleSize))
}

func (s *Server) handleUploadTable(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeBadRequest(w, r, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, r, "missing file field")
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	vectorColumn := r.FormValue("vector_column")
	writeEnvelope(w, s.tables.CreateTableFromFile(r.Context(), name, file, header.Filename, vectorColumn))
}

func (s *Server) handleDeleteTable(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, s.tables.DeleteTable(r.Context(), chi.URLParam(r, "name")))
}

type deleteRowsRequest struct {
	Filter map[string]any `json:"filter"`
}

func (s *Server) handleDeleteRows(w http.ResponseWriter, r *http.Request) {
	var req deleteRowsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeEnvelope(w, s.tables.DeleteRows(r.Context(), chi.URLParam(r, "name"), req.Filter))
}

type createEmbeddingsRequest struct {
	Fields          []string `json:"fields"`
	EmbeddingColumn string   `json:"embedding_column"`
	Model           string   `json:"model"`
}

func (s *Server) handleCreateEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req createEmbeddingsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeEnvelope(w, s.tables.CreateEmbeddings(r.Context(), chi.URLParam(r, "name"), req.Fields, req.EmbeddingColumn, req.Model))
}

func (s *Server) handleEmbeddingTables(w http.ResponseWriter, r *http.Request) {
	writeEnvelope(w, s.search.GetEmbeddingTables(r.Context()))
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeEnvelope(w, s.search.GetAvailableModels())
}

type searchTextRequest struct {
	Table          string   `json:"table"`
	Query          string   `json:"query"`
	VectorColumn   string   `json:"vector_column"`
	Model          string   `json:"model"`
	Limit          int      `json:"limit"`
	ExcludeColumns []string `json:"exclude_columns"`
}

func (s *Server) handleSearchByText(w http.ResponseWriter, r *http.Request) {
	var req searchTextRequest
	if !decodeBody(w, r, &req) {
		return
	}

	env := s.search.SearchByText(r.Context(), req.Table, req.Query, req.VectorColumn, req.Model, req.Limit)
	if !env.Success {
		writeEnvelope(w, env)
		return
	}
	writeEnvelope(w, s.search.ProcessResults(env.Data, req.ExcludeColumns))
}

type searchVectorRequest struct {
	Table          string    `json:"table"`
	Vector         []float32 `json:"vector"`
	VectorColumn   string    `json:"vector_column"`
	ExpectedDim    int       `json:"expected_dim"`
	Limit          int       `json:"limit"`
	ExcludeColumns []string  `json:"exclude_columns"`
}

func (s *Server) handleSearchByVector(w http.ResponseWriter, r *http.Request) {
	var req searchVectorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	env := s.search.SearchByVector(r.Context(), req.Table, req.Vector, req.VectorColumn, req.ExpectedDim, req.Limit)
	if !env.Success {
		writeEnvelope(w, env)
		return
	}
	writeEnvelope(w, s.search.ProcessResults(env.Data, req.ExcludeColumns))
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeBadRequest(w, r, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeBadRequest rejects the request, logging the reason through the
// request-scoped logger so the line carries the request id.
func writeBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	logpkg.FromContext(r.Context()).Warn("rejected request",
		zap.String("path", r.URL.Path),
		zap.String("reason", msg),
	)
	writeErrorBody(w, http.StatusBadRequest, &envelope.ErrorBody{
		Type:    string(envelope.KindValidation),
		Message: msg,
	})
}

func writeErrorBody(w http.ResponseWriter, code int, body *envelope.ErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope.Envelope[struct{}]{Err: body})
}

// writeEnvelope serializes the envelope verbatim; the HTTP status mirrors
// the error kind.
func writeEnvelope[T any](w http.ResponseWriter, env envelope.Envelope[T]) {
	w.Header().Set("Content-Type", "application/json")
	if !env.Success {
		w.WriteHeader(statusOf(env.Err.Type))
	}
	_ = json.NewEncoder(w).Encode(env)
}

func statusOf(errType string) int {
	switch envelope.Kind(errType) {
	case envelope.KindValidation:
		return http.StatusBadRequest
	case envelope.KindModelNotFound:
		return http.StatusNotFound
	case envelope.KindConnection:
		return http.StatusServiceUnavailable
	case envelope.KindTableOp, envelope.KindEmbedding:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// Package tableops implements table lifecycle operations: create, replace,
// delete, paginated read and embedding augmentation. Every exported
// operation returns a fully-formed result envelope.
package tableops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/tabledex/internal/backend"
	"github.com/kailas-cloud/tabledex/internal/dataset"
	"github.com/kailas-cloud/tabledex/internal/envelope"
)

const (
	defaultSampleSize      = 5
	defaultPageSize        = 50
	defaultEmbeddingColumn = "embedding"
	defaultEmbeddingModel  = "all-MiniLM-L6-v2"
)

// Service handles table operations over the shared connection.
type Service struct {
	conn     Connection
	embedder Embedder
	logger   *zap.Logger
}

// New creates a table operations service. embedder may be nil; embedding
// augmentation then fails with a classified error.
func New(conn Connection, embedder Embedder, logger *zap.Logger) *Service {
	return &Service{conn: conn, embedder: embedder, logger: logger}
}

// TableData is the payload of a bounded table read.
type TableData struct {
	Data         *dataset.Dataset  `json:"data"`
	Schema       map[string]string `json:"schema"`
	RowCount     int               `json:"row_count"`
	TotalColumns int               `json:"total_columns"`
}

// FieldInfo describes one schema field for the presentation layer.
type FieldInfo struct {
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	IsVector bool   `json:"is_vector"`
}

// CreateResult reports a successful table creation.
type CreateResult struct {
	TableName   string            `json:"table_name"`
	RowCount    int               `json:"row_count"`
	ColumnCount int               `json:"column_count"`
	Schema      map[string]string `json:"schema"`
}

// DeleteTableResult reports a table drop.
type DeleteTableResult struct {
	TableName string `json:"table_name"`
}

// DeleteRowsResult reports a filtered row deletion.
type DeleteRowsResult struct {
	TableName     string `json:"table_name"`
	RowsDeleted   int    `json:"rows_deleted"`
	RemainingRows int    `json:"remaining_rows"`
	Warning       string `json:"warning,omitempty"`
}

// PaginatedData is one page of table rows with paging metadata.
type PaginatedData struct {
	Data        *dataset.Dataset `json:"data"`
	CurrentPage int              `json:"current_page"`
	PageSize    int              `json:"page_size"`
	TotalRows   int              `json:"total_rows"`
	TotalPages  int              `json:"total_pages"`
	HasNext     bool             `json:"has_next"`
	HasPrevious bool             `json:"has_previous"`
}

// EmbedResult reports an embedding augmentation.
type EmbedResult struct {
	TableName          string   `json:"table_name"`
	EmbeddingColumn    string   `json:"embedding_column"`
	NumEmbeddings      int      `json:"num_embeddings"`
	EmbeddingDimension int      `json:"embedding_dimension"`
	SourceFields       []string `json:"source_fields"`
}

// ListTables lists all tables.
func (s *Service) ListTables(ctx context.Context) envelope.Envelope[[]string] {
	return envelope.Wrap(s.logger, func() ([]string, error) {
		return s.conn.ListTables(ctx)
	})
}

// GetTableData reads up to limit rows plus schema metadata.
func (s *Service) GetTableData(ctx context.Context, name string, limit int) envelope.Envelope[TableData] {
	return envelope.Wrap(s.logger, func() (TableData, error) {
		if err := ValidateTableName(name); err != nil {
			return TableData{}, err
		}

		tbl, err := s.openTable(ctx, name)
		if err != nil {
			return TableData{}, err
		}

		data, err := tbl.Scan(ctx, limit, 0)
		if err != nil {
			return TableData{}, envelope.TableOpf("failed to query table %s: %s", name, err)
		}

		fields, err := tbl.Schema(ctx)
		if err != nil {
			return TableData{}, envelope.TableOpf("failed to get schema for table %s: %s", name, err)
		}
		schema := make(map[string]string, len(fields))
		for _, f := range fields {
			schema[f.Name] = f.Type
		}

		return TableData{
			Data:         data,
			Schema:       schema,
			RowCount:     data.Len(),
			TotalColumns: len(data.Columns()),
		}, nil
	})
}

// GetTableSchema returns per-field type, nullability and the vector flag.
func (s *Service) GetTableSchema(ctx context.Context, name string) envelope.Envelope[map[string]FieldInfo] {
	return envelope.Wrap(s.logger, func() (map[string]FieldInfo, error) {
		if err := ValidateTableName(name); err != nil {
			return nil, err
		}
		fields, err := s.tableFields(ctx, name)
		if err != nil {
			return nil, err
		}

		info := make(map[string]FieldInfo, len(fields))
		for _, f := range fields {
			info[f.Name] = FieldInfo{Type: f.Type, Nullable: f.Nullable, IsVector: f.IsVector()}
		}
		return info, nil
	})
}

// GetNonVectorColumns lists the filterable columns of a table, in schema
// order.
func (s *Service) GetNonVectorColumns(ctx context.Context, name string) envelope.Envelope[[]string] {
	return envelope.Wrap(s.logger, func() ([]string, error) {
		if err := ValidateTableName(name); err != nil {
			return nil, err
		}
		fields, err := s.tableFields(ctx, name)
		if err != nil {
			return nil, err
		}

		columns := make([]string, 0, len(fields))
		for _, f := range fields {
			if !f.IsVector() {
				columns = append(columns, f.Name)
			}
		}
		return columns, nil
	})
}

// CreateTable creates a new table from an in-memory dataset. vectorColumn,
// when given, must name an existing column.
func (s *Service) CreateTable(ctx context.Context, name string, data *dataset.Dataset, vectorColumn string) envelope.Envelope[CreateResult] {
	return envelope.Wrap(s.logger, func() (CreateResult, error) {
		return s.create(ctx, name, data, vectorColumn)
	})
}

// CreateTableFromFile creates a table from a raw CSV or Parquet source.
func (s *Service) CreateTableFromFile(ctx context.Context, name string, r io.Reader, filename, vectorColumn string) envelope.Envelope[CreateResult] {
	return envelope.Wrap(s.logger, func() (CreateResult, error) {
		if err := ValidateTableName(name); err != nil {
			return CreateResult{}, err
		}
		data, err := dataset.Load(r, filename)
		if err != nil {
			return CreateResult{}, err
		}
		return s.create(ctx, name, data, vectorColumn)
	})
}

// CreateSampleTable creates a table filled with deterministic sample rows.
// Column names steer the generated values: "id" counts from 1,
// embedding/vector columns get a fixed probe vector, numeric-looking names
// get multiples, everything else gets a labelled string.
func (s *Service) CreateSampleTable(ctx context.Context, name string, columns []string, sampleSize int) envelope.Envelope[CreateResult] {
	return envelope.Wrap(s.logger, func() (CreateResult, error) {
		if err := ValidateTableName(name); err != nil {
			return CreateResult{}, err
		}
		if sampleSize <= 0 {
			sampleSize = defaultSampleSize
		}

		data := dataset.New(columns)
		for i := 1; i <= sampleSize; i++ {
			row := make([]any, len(columns))
			for j, col := range columns {
				row[j] = sampleValue(col, i)
			}
			if err := data.Append(row); err != nil {
				return CreateResult{}, err
			}
		}
		return s.create(ctx, name, data, "")
	})
}

func sampleValue(column string, i int) any {
	lower := strings.ToLower(column)
	switch {
	case lower == "id":
		return int64(i)
	case strings.Contains(lower, "embedding") || strings.Contains(lower, "vector"):
		return []float32{0.1, 0.2, 0.3}
	case strings.Contains(lower, "int") || strings.Contains(lower, "num") || strings.Contains(lower, "count"):
		return int64(i * 10)
	case strings.Contains(lower, "float") || strings.Contains(lower, "decimal") || strings.Contains(lower, "price"):
		return float64(i) * 10.5
	default:
		return fmt.Sprintf("Sample %s %d", column, i)
	}
}

func (s *Service) create(ctx context.Context, name string, data *dataset.Dataset, vectorColumn string) (CreateResult, error) {
	if err := ValidateTableName(name); err != nil {
		return CreateResult{}, err
	}
	if vectorColumn != "" && !data.HasColumn(vectorColumn) {
		return CreateResult{}, envelope.Validation(
			fmt.Sprintf("Vector column '%s' not found in data", vectorColumn),
			map[string]any{"available_columns": data.Columns()},
		)
	}

	handle, err := s.conn.Handle(ctx)
	if err != nil {
		return CreateResult{}, err
	}
	if _, err := handle.CreateTable(ctx, name, data); err != nil {
		return CreateResult{}, envelope.TableOpf("failed to create table %s: %s", name, err)
	}

	schema := make(map[string]string, len(data.Columns()))
	for _, col := range data.Columns() {
		schema[col] = data.DeclaredType(col)
	}
	return CreateResult{
		TableName:   name,
		RowCount:    data.Len(),
		ColumnCount: len(data.Columns()),
		Schema:      schema,
	}, nil
}

// DeleteTable drops a table. Dropping a missing table is not an error.
func (s *Service) DeleteTable(ctx context.Context, name string) envelope.Envelope[DeleteTableResult] {
	return envelope.Wrap(s.logger, func() (DeleteTableResult, error) {
		if err := ValidateTableName(name); err != nil {
			return DeleteTableResult{}, err
		}
		handle, err := s.conn.Handle(ctx)
		if err != nil {
			return DeleteTableResult{}, err
		}
		if err := handle.DropTable(ctx, name); err != nil {
			return DeleteTableResult{}, envelope.TableOpf("failed to delete table %s: %s", name, err)
		}
		return DeleteTableResult{TableName: name}, nil
	})
}

// DeleteRows removes all rows matching the exact-match filter and replaces
// the table with the remainder. Vector columns are silently dropped from
// the filter. A filter matching nothing is a success with a warning.
func (s *Service) DeleteRows(ctx context.Context, name string, filter map[string]any) envelope.Envelope[DeleteRowsResult] {
	return envelope.Wrap(s.logger, func() (DeleteRowsResult, error) {
		if err := ValidateTableName(name); err != nil {
			return DeleteRowsResult{}, err
		}

		tbl, err := s.openTable(ctx, name)
		if err != nil {
			return DeleteRowsResult{}, err
		}
		data, err := tbl.Scan(ctx, 0, 0)
		if err != nil {
			return DeleteRowsResult{}, envelope.TableOpf("failed to read table %s: %s", name, err)
		}
		initial := data.Len()

		fields, err := tbl.Schema(ctx)
		if err != nil {
			return DeleteRowsResult{}, envelope.TableOpf("failed to get schema for table %s: %s", name, err)
		}
		vectorCols := make(map[string]struct{})
		for _, f := range fields {
			if f.IsVector() {
				vectorCols[f.Name] = struct{}{}
			}
		}

		effective := make(map[string]any, len(filter))
		for col, val := range filter {
			if _, skip := vectorCols[col]; !skip {
				effective[col] = val
			}
		}

		mask, err := matchRows(data, effective)
		if err != nil {
			return DeleteRowsResult{}, err
		}

		deleted := 0
		for _, m := range mask {
			if m {
				deleted++
			}
		}
		if deleted == 0 {
			return DeleteRowsResult{
				TableName:     name,
				RowsDeleted:   0,
				RemainingRows: initial,
				Warning:       "No rows matched the filter condition",
			}, nil
		}

		remaining := data.Filter(func(i int) bool { return !mask[i] })

		handle, err := s.conn.Handle(ctx)
		if err != nil {
			return DeleteRowsResult{}, err
		}
		if err := handle.DropTable(ctx, name); err != nil {
			return DeleteRowsResult{}, envelope.TableOpf("failed to replace table %s: %s", name, err)
		}
		if _, err := handle.CreateTable(ctx, name, remaining); err != nil {
			return DeleteRowsResult{}, envelope.TableOpf("failed to replace table %s: %s", name, err)
		}

		return DeleteRowsResult{
			TableName:     name,
			RowsDeleted:   deleted,
			RemainingRows: remaining.Len(),
		}, nil
	})
}

// matchRows builds the per-row match mask for an exact-match filter.
// Numeric columns compare as float64, everything else by string form.
func matchRows(data *dataset.Dataset, filter map[string]any) ([]bool, error) {
	mask := make([]bool, data.Len())
	for i := range mask {
		mask[i] = true
	}

	for col, want := range filter {
		if !data.HasColumn(col) {
			return nil, envelope.Validation(
				fmt.Sprintf("Column '%s' not found in table", col),
				map[string]any{"available_columns": data.Columns()},
			)
		}

		numeric := dataset.IsNumericType(data.DeclaredType(col))
		var wantFloat float64
		if numeric {
			f, ok := asFloat(want)
			if !ok {
				return nil, envelope.Validation(
					fmt.Sprintf("Error comparing column %s: value %v is not numeric", col, want), nil)
			}
			wantFloat = f
		}

		for i := 0; i < data.Len(); i++ {
			if !mask[i] {
				continue
			}
			cell, _ := data.Value(i, col)
			if numeric {
				got, ok := asFloat(cell)
				mask[i] = ok && got == wantFloat
			} else {
				mask[i] = fmt.Sprint(cell) == fmt.Sprint(want)
			}
		}
	}
	return mask, nil
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// GetTableDataPaginated reads one page of rows. Pages are 1-based.
func (s *Service) GetTableDataPaginated(ctx context.Context, name string, page, pageSize int) envelope.Envelope[PaginatedData] {
	return envelope.Wrap(s.logger, func() (PaginatedData, error) {
		if err := ValidateTableName(name); err != nil {
			return PaginatedData{}, err
		}
		if page < 1 {
			page = 1
		}
		if pageSize <= 0 {
			pageSize = defaultPageSize
		}

		tbl, err := s.openTable(ctx, name)
		if err != nil {
			return PaginatedData{}, err
		}

		offset := (page - 1) * pageSize
		data, err := tbl.Scan(ctx, pageSize, offset)
		if err != nil {
			return PaginatedData{}, envelope.TableOpf("failed to query table %s: %s", name, err)
		}
		total, err := tbl.CountRows(ctx)
		if err != nil {
			return PaginatedData{}, envelope.TableOpf("failed to count rows in table %s: %s", name, err)
		}

		return PaginatedData{
			Data:        data,
			CurrentPage: page,
			PageSize:    pageSize,
			TotalRows:   total,
			TotalPages:  (total + pageSize - 1) / pageSize,
			HasNext:     page*pageSize < total,
			HasPrevious: page > 1,
		}, nil
	})
}

// GetTableRowCount returns the total row count of a table.
func (s *Service) GetTableRowCount(ctx context.Context, name string) envelope.Envelope[int] {
	return envelope.Wrap(s.logger, func() (int, error) {
		if err := ValidateTableName(name); err != nil {
			return 0, err
		}
		tbl, err := s.openTable(ctx, name)
		if err != nil {
			return 0, err
		}
		total, err := tbl.CountRows(ctx)
		if err != nil {
			return 0, envelope.TableOpf("failed to count rows in table %s: %s", name, err)
		}
		return total, nil
	})
}

// CreateEmbeddings embeds the space-joined selected fields of every row and
// replaces the table with the vector column appended. The table is always
// rebuilt, never updated in place.
func (s *Service) CreateEmbeddings(ctx context.Context, name string, selectedFields []string, embeddingColumn, modelID string) envelope.Envelope[EmbedResult] {
	return envelope.Wrap(s.logger, func() (EmbedResult, error) {
		if s.embedder == nil {
			return EmbedResult{}, errors.New("embedding service not initialized")
		}
		if err := ValidateTableName(name); err != nil {
			return EmbedResult{}, err
		}
		if embeddingColumn == "" {
			embeddingColumn = defaultEmbeddingColumn
		}
		if modelID == "" {
			modelID = defaultEmbeddingModel
		}

		tbl, err := s.openTable(ctx, name)
		if err != nil {
			return EmbedResult{}, err
		}
		data, err := tbl.Scan(ctx, 0, 0)
		if err != nil {
			return EmbedResult{}, envelope.TableOpf("failed to read table %s: %s", name, err)
		}

		var missing []string
		for _, field := range selectedFields {
			if !data.HasColumn(field) {
				missing = append(missing, field)
			}
		}
		if len(missing) > 0 {
			return EmbedResult{}, envelope.Validation(
				"Some selected fields not found in table",
				map[string]any{"missing_fields": missing},
			)
		}

		texts := make([]string, data.Len())
		for i := 0; i < data.Len(); i++ {
			parts := make([]string, len(selectedFields))
			for j, field := range selectedFields {
				cell, _ := data.Value(i, field)
				parts[j] = fmt.Sprint(cell)
			}
			texts[i] = strings.Join(parts, " ")
		}

		vectors, err := s.embedder.GenerateBatch(ctx, texts, modelID)
		if err != nil {
			return EmbedResult{}, err
		}

		augmented := data.Without(embeddingColumn)
		values := make([]any, len(vectors))
		for i, vec := range vectors {
			values[i] = vec
		}
		if err := augmented.AddColumn(embeddingColumn, values); err != nil {
			return EmbedResult{}, err
		}

		handle, err := s.conn.Handle(ctx)
		if err != nil {
			return EmbedResult{}, err
		}
		if err := handle.DropTable(ctx, name); err != nil {
			return EmbedResult{}, envelope.TableOpf("failed to replace table %s: %s", name, err)
		}
		if _, err := handle.CreateTable(ctx, name, augmented); err != nil {
			return EmbedResult{}, envelope.TableOpf("failed to replace table %s: %s", name, err)
		}

		dimension := 0
		if len(vectors) > 0 {
			dimension = len(vectors[0])
		}
		return EmbedResult{
			TableName:          name,
			EmbeddingColumn:    embeddingColumn,
			NumEmbeddings:      len(vectors),
			EmbeddingDimension: dimension,
			SourceFields:       selectedFields,
		}, nil
	})
}

func (s *Service) openTable(ctx context.Context, name string) (backend.Table, error) {
	handle, err := s.conn.Handle(ctx)
	if err != nil {
		return nil, err
	}
	tbl, err := handle.OpenTable(ctx, name)
	if err != nil {
		return nil, envelope.TableOpf("failed to open table %s: %s", name, err)
	}
	return tbl, nil
}

func (s *Service) tableFields(ctx context.Context, name string) ([]backend.Field, error) {
	tbl, err := s.openTable(ctx, name)
	if err != nil {
		return nil, err
	}
	fields, err := tbl.Schema(ctx)
	if err != nil {
		return nil, envelope.TableOpf("failed to get schema for table %s: %s", name, err)
	}
	return fields, nil
}

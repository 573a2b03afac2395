// Package backend defines the client contract for the external
// vector-capable tabular store. The data-access layer consumes the store
// exclusively through these interfaces; drivers live in subpackages.
package backend

import (
	"context"
	"strings"

	"github.com/kailas-cloud/tabledex/internal/dataset"
)

// DistanceColumn is the synthetic column carrying the ANN distance in
// search results, ordered ascending.
const DistanceColumn = "_distance"

// Client establishes connections to a backend.
type Client interface {
	Connect(ctx context.Context, uri string) (Handle, error)
}

// Handle is a live connection to one backend database.
type Handle interface {
	// TableNames lists all tables. Doubles as the liveness probe.
	TableNames(ctx context.Context) ([]string, error)
	CreateTable(ctx context.Context, name string, data *dataset.Dataset) (Table, error)
	OpenTable(ctx context.Context, name string) (Table, error)
	DropTable(ctx context.Context, name string) error
	Close()
}

// Table is a reference to a named collection. Fetched per operation and
// never cached across calls; it must not outlive its Handle.
type Table interface {
	Schema(ctx context.Context) ([]Field, error)
	// Scan reads rows in insertion order. limit <= 0 means the full table.
	Scan(ctx context.Context, limit, offset int) (*dataset.Dataset, error)
	CountRows(ctx context.Context) (int, error)
	// Search runs an ANN query against vectorColumn and returns the top
	// rows with a DistanceColumn appended, ordered by ascending distance.
	Search(ctx context.Context, vector []float32, vectorColumn string, limit int) (*dataset.Dataset, error)
}

// Field describes one column of a table schema.
type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// IsVector reports whether the field looks like an embedding column: the
// name contains "embedding"/"vector" or the declared type is list/array
// like. A pure function of name and type, recomputed each call. Known
// false positive: a legitimate non-vector list column (tags, labels) also
// qualifies and is then excluded from filterable columns.
func (f Field) IsVector() bool {
	name := strings.ToLower(f.Name)
	if strings.Contains(name, "embedding") || strings.Contains(name, "vector") {
		return true
	}
	typ := strings.ToLower(f.Type)
	return strings.Contains(typ, "list") || strings.Contains(typ, "array")
}

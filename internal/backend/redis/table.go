package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/kailas-cloud/tabledex/internal/backend"
	"github.com/kailas-cloud/tabledex/internal/dataset"
)

// Table references one named table through its handle.
type Table struct {
	handle *Handle
	name   string
}

// Schema returns the stored field descriptors.
func (t *Table) Schema(ctx context.Context) ([]backend.Field, error) {
	meta, err := t.handle.hgetAll(ctx, metaKey(t.name))
	if err != nil {
		return nil, err
	}
	if len(meta) == 0 {
		return nil, fmt.Errorf("table %q not found", t.name)
	}
	return decodeMetaSchema(meta)
}

// CountRows returns the stored row count.
func (t *Table) CountRows(ctx context.Context) (int, error) {
	meta, err := t.handle.hgetAll(ctx, metaKey(t.name))
	if err != nil {
		return 0, err
	}
	if len(meta) == 0 {
		return 0, fmt.Errorf("table %q not found", t.name)
	}
	n, err := strconv.Atoi(meta[metaRowCount])
	if err != nil {
		return 0, fmt.Errorf("invalid row count: %w", err)
	}
	return n, nil
}

// Scan reads rows in insertion order. limit <= 0 reads the full table.
func (t *Table) Scan(ctx context.Context, limit, offset int) (*dataset.Dataset, error) {
	fields, err := t.Schema(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := t.handle.scanKeys(ctx, rowKey(t.name, "*"))
	if err != nil {
		return nil, err
	}
	// Zero-padded sequence keys: lexical order is insertion order.
	sort.Strings(keys)

	if offset > len(keys) {
		offset = len(keys)
	}
	keys = keys[offset:]
	if limit > 0 && limit < len(keys) {
		keys = keys[:limit]
	}

	hashes, err := t.handle.hgetAllMulti(ctx, keys)
	if err != nil {
		return nil, err
	}

	ds := dataset.New(fieldNames(fields))
	for _, m := range hashes {
		row, err := decodeRow(fields, m)
		if err != nil {
			return nil, err
		}
		if err := ds.Append(row); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// Search runs a KNN query via FT.SEARCH and returns the top rows with a
// "_distance" column appended, ordered by ascending cosine distance.
func (t *Table) Search(ctx context.Context, vector []float32, vectorColumn string, limit int) (*dataset.Dataset, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if limit <= 0 {
		limit = 10
	}

	fields, err := t.Schema(ctx)
	if err != nil {
		return nil, err
	}

	queryStr := fmt.Sprintf("*=>[KNN %d @%s $BLOB AS %s]", limit, vectorColumn, scoreField)
	args := []string{
		indexName(t.name), queryStr,
		"PARAMS", "2", "BLOB", string(vectorToBytes(vector)),
		"SORTBY", scoreField,
		"LIMIT", "0", strconv.Itoa(limit),
		"DIALECT", "2",
	}

	cmd := t.handle.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := t.handle.client.Do(ctx, cmd).ToArray()
	if err != nil {
		return nil, fmt.Errorf("FT.SEARCH: %w", err)
	}

	ds := dataset.New(append(fieldNames(fields), backend.DistanceColumn))
	if len(raw) == 0 {
		return ds, nil
	}

	// 2-stride: [total, key1, fields1, key2, fields2, ...]
	for i := 1; i+1 < len(raw); i += 2 {
		pairs, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}
		m := make(map[string]string, len(pairs)/2)
		for j := 0; j+1 < len(pairs); j += 2 {
			k, kerr := pairs[j].ToString()
			v, verr := pairs[j+1].ToString()
			if kerr != nil || verr != nil {
				continue
			}
			m[k] = v
		}

		distance := 0.0
		if s, ok := m[scoreField]; ok {
			if parsed, err := strconv.ParseFloat(s, 64); err == nil {
				distance = parsed
			}
			delete(m, scoreField)
		}

		row, err := decodeRow(fields, m)
		if err != nil {
			return nil, err
		}
		if err := ds.Append(append(row, distance)); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

const scoreField = "__vector_score"

func fieldNames(fields []backend.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

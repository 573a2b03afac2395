package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/kailas-cloud/tabledex/internal/envelope"
)

// SupportedFormats lists the file extensions the loader accepts.
var SupportedFormats = []string{".csv", ".parquet"}

// Load resolves a raw file source into a dataset, dispatching on the file
// extension. Unsupported formats are a ValidationError naming the supported
// ones.
func Load(r io.Reader, filename string) (*Dataset, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return LoadCSV(r)
	case ".parquet":
		return LoadParquet(r)
	default:
		return nil, envelope.Validation("unsupported file type", map[string]any{
			"filename":          filename,
			"supported_formats": SupportedFormats,
		})
	}
}

// LoadCSV parses a headered CSV stream. Column types are inferred per
// column: int64 if every value parses as an integer, double if every value
// parses as a float, bool likewise, otherwise string.
func LoadCSV(r io.Reader) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var raw [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		raw = append(raw, rec)
	}

	kinds := make([]string, len(header))
	for col := range header {
		kinds[col] = inferCSVType(raw, col)
	}

	ds := New(header)
	for _, rec := range raw {
		row := make([]any, len(header))
		for col := range header {
			row[col] = coerceCSVValue(rec[col], kinds[col])
		}
		if err := ds.Append(row); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// inferCSVType tracks each candidate type independently: a column is
// int64/double/bool only when every non-empty value parses as that type.
// Mixed columns fall back to string, never to a narrower type.
func inferCSVType(rows [][]string, col int) string {
	seen := false
	canInt, canFloat, canBool := true, true, true
	for _, rec := range rows {
		v := rec[col]
		if v == "" {
			continue
		}
		seen = true
		if canInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				canInt = false
			}
		}
		if canFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				canFloat = false
			}
		}
		if canBool {
			if _, err := strconv.ParseBool(v); err != nil {
				canBool = false
			}
		}
		if !canInt && !canFloat && !canBool {
			return TypeString
		}
	}
	switch {
	case !seen:
		return TypeString
	case canInt:
		return TypeInt64
	case canFloat:
		return TypeDouble
	case canBool:
		return TypeBool
	default:
		return TypeString
	}
}

func coerceCSVValue(v, kind string) any {
	if v == "" {
		return nil
	}
	switch kind {
	case TypeInt64:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case TypeDouble:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case TypeBool:
		b, _ := strconv.ParseBool(v)
		return b
	default:
		return v
	}
}

// LoadParquet reads an entire parquet stream into a dataset. Rows are
// decoded generically, so any flat schema (plus float-list columns for
// embeddings) round-trips.
func LoadParquet(r io.Reader) (*Dataset, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read parquet source: %w", err)
	}

	pr := parquet.NewGenericReader[map[string]any](bytes.NewReader(buf))
	defer pr.Close()

	batch := make([]map[string]any, 64)
	var records []map[string]any
	for {
		n, err := pr.Read(batch)
		for i := 0; i < n; i++ {
			records = append(records, batch[i])
			batch[i] = nil
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet rows: %w", err)
		}
	}

	return FromRecords(records)
}

// FromRecords builds a dataset from generic row maps with a stable
// (sorted) column order. Values are normalized onto the dataset cell
// types, so JSON-decoded rows work directly.
func FromRecords(records []map[string]any) (*Dataset, error) {
	colSet := map[string]struct{}{}
	for _, rec := range records {
		for k := range rec {
			colSet[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(colSet))
	for k := range colSet {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	ds := New(columns)
	for _, rec := range records {
		row := make([]any, len(columns))
		for i, col := range columns {
			row[i] = normalizeValue(rec[col])
		}
		if err := ds.Append(row); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// normalizeValue folds decoded parquet values onto the dataset cell types.
func normalizeValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case float32:
		return float64(x)
	case float64:
		return x
	case bool:
		return x
	case string:
		return x
	case []byte:
		return string(x)
	case []float32:
		return x
	case []float64:
		vec := make([]float32, len(x))
		for i, f := range x {
			vec[i] = float32(f)
		}
		return vec
	case []any:
		vec := make([]float32, len(x))
		for i, e := range x {
			switch f := e.(type) {
			case float32:
				vec[i] = f
			case float64:
				vec[i] = float32(f)
			case int64:
				vec[i] = float32(f)
			default:
				return fmt.Sprint(v)
			}
		}
		return vec
	default:
		return fmt.Sprint(v)
	}
}

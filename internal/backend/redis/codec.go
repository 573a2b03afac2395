package redis

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/kailas-cloud/tabledex/internal/backend"
	"github.com/kailas-cloud/tabledex/internal/dataset"
)

// Metadata hash fields.
const (
	metaSchema   = "schema_json"
	metaRowCount = "row_count"
)

// deriveSchema inspects a dataset and produces field descriptors. A column
// is nullable when any of its cells is nil.
func deriveSchema(data *dataset.Dataset) []backend.Field {
	cols := data.Columns()
	fields := make([]backend.Field, len(cols))
	for i, col := range cols {
		nullable := false
		for r := 0; r < data.Len(); r++ {
			if v, _ := data.Value(r, col); v == nil {
				nullable = true
				break
			}
		}
		fields[i] = backend.Field{
			Name:     col,
			Type:     data.DeclaredType(col),
			Nullable: nullable,
		}
	}
	return fields
}

func encodeMeta(fields []backend.Field, rowCount int) (map[string]string, error) {
	schemaJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return map[string]string{
		metaSchema:   string(schemaJSON),
		metaRowCount: strconv.Itoa(rowCount),
	}, nil
}

func decodeMetaSchema(meta map[string]string) ([]backend.Field, error) {
	var fields []backend.Field
	if err := json.Unmarshal([]byte(meta[metaSchema]), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return fields, nil
}

// encodeRow serializes dataset cells into hash fields. Vectors are stored
// as little-endian float32 bytes so the FT VECTOR index reads them
// directly; nil cells are omitted.
func encodeRow(columns []string, row []any) map[string]string {
	out := make(map[string]string, len(columns))
	for i, col := range columns {
		switch v := row[i].(type) {
		case nil:
			continue
		case int64:
			out[col] = strconv.FormatInt(v, 10)
		case float64:
			out[col] = strconv.FormatFloat(v, 'g', -1, 64)
		case bool:
			out[col] = strconv.FormatBool(v)
		case string:
			out[col] = v
		case []float32:
			out[col] = string(vectorToBytes(v))
		default:
			out[col] = fmt.Sprint(v)
		}
	}
	return out
}

// decodeRow parses hash fields back into dataset cells using the declared
// schema types. Missing fields decode to nil.
func decodeRow(fields []backend.Field, m map[string]string) ([]any, error) {
	row := make([]any, len(fields))
	for i, f := range fields {
		raw, ok := m[f.Name]
		if !ok {
			row[i] = nil
			continue
		}
		switch f.Type {
		case dataset.TypeInt64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", f.Name, err)
			}
			row[i] = n
		case dataset.TypeDouble:
			x, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", f.Name, err)
			}
			row[i] = x
		case dataset.TypeBool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", f.Name, err)
			}
			row[i] = b
		case dataset.TypeFloatList:
			vec, err := bytesToVector([]byte(raw))
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", f.Name, err)
			}
			row[i] = vec
		default:
			row[i] = raw
		}
	}
	return row, nil
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

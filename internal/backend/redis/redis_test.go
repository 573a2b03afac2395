package redis

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/redis/rueidis/mock"
	"go.uber.org/mock/gomock"

	"github.com/kailas-cloud/tabledex/internal/backend"
	"github.com/kailas-cloud/tabledex/internal/dataset"
)

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri      string
		wantAddr string
		wantDB   int
		wantErr  bool
	}{
		{"redis://localhost:6379", "localhost:6379", 0, false},
		{"redis://db.internal:6380/2", "db.internal:6380", 2, false},
		{"localhost:6379", "localhost:6379", 0, false},
		{"redis://host:6379/notanumber", "", 0, true},
		{"http://host:6379", "", 0, true},
	}
	for _, tc := range tests {
		addr, db, err := parseURI(tc.uri)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseURI(%q): expected error", tc.uri)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseURI(%q): %v", tc.uri, err)
			continue
		}
		if addr != tc.wantAddr || db != tc.wantDB {
			t.Errorf("parseURI(%q) = (%s, %d), want (%s, %d)", tc.uri, addr, db, tc.wantAddr, tc.wantDB)
		}
	}
}

func TestRowCodec_RoundTrip(t *testing.T) {
	fields := []backend.Field{
		{Name: "id", Type: dataset.TypeInt64},
		{Name: "price", Type: dataset.TypeDouble},
		{Name: "active", Type: dataset.TypeBool},
		{Name: "label", Type: dataset.TypeString},
		{Name: "embedding", Type: dataset.TypeFloatList},
	}
	row := []any{int64(7), 10.5, true, "first", []float32{0.1, 0.2, 0.3}}

	encoded := encodeRow([]string{"id", "price", "active", "label", "embedding"}, row)
	decoded, err := decodeRow(fields, encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded[0] != int64(7) || decoded[1] != 10.5 || decoded[2] != true || decoded[3] != "first" {
		t.Errorf("scalar mismatch: %v", decoded)
	}
	vec, ok := decoded[4].([]float32)
	if !ok || len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("vector mismatch: %v", decoded[4])
	}
}

func TestRowCodec_NilCells(t *testing.T) {
	fields := []backend.Field{
		{Name: "id", Type: dataset.TypeInt64},
		{Name: "note", Type: dataset.TypeString, Nullable: true},
	}
	encoded := encodeRow([]string{"id", "note"}, []any{int64(1), nil})
	if _, ok := encoded["note"]; ok {
		t.Error("nil cell should be omitted")
	}
	decoded, err := decodeRow(fields, encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded[1] != nil {
		t.Errorf("expected nil, got %v", decoded[1])
	}
}

func TestDeriveSchema(t *testing.T) {
	ds := dataset.New([]string{"id", "note", "embedding"})
	_ = ds.Append([]any{int64(1), nil, []float32{0.1}})
	_ = ds.Append([]any{int64(2), "x", []float32{0.2}})

	fields := deriveSchema(ds)
	if fields[0].Type != dataset.TypeInt64 || fields[0].Nullable {
		t.Errorf("id field wrong: %+v", fields[0])
	}
	if fields[1].Type != dataset.TypeString || !fields[1].Nullable {
		t.Errorf("note field wrong: %+v", fields[1])
	}
	if !fields[2].IsVector() {
		t.Errorf("embedding field should be a vector: %+v", fields[2])
	}
}

func TestTableNames(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN" && slices.Contains(cmd, "tabledex:meta:*")
		})).
		Return(mock.Result(mock.RedisArray(
			mock.RedisInt64(0),
			mock.RedisArray(
				mock.RedisString("tabledex:meta:zeta"),
				mock.RedisString("tabledex:meta:alpha"),
			),
		)))

	h := NewHandleForTest(c)
	names, err := h.TableNames(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("unexpected names: %v", names)
	}
}

func TestKeyNamespaces_Disjoint(t *testing.T) {
	// Row keys of awkwardly named tables must never match the meta scan.
	for _, name := range []string{"table", "meta", "row"} {
		rk := rowKey(name, seqString(0))
		if strings.HasPrefix(rk, metaKey("")) {
			t.Errorf("row key %q collides with meta namespace %q", rk, metaKey(""))
		}
	}
	if !strings.HasPrefix(metaKey("users"), metaKey("")) {
		t.Error("meta key missing its own namespace prefix")
	}
}

func TestTableNames_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.MatchFn(func(cmd []string) bool {
			return cmd[0] == "SCAN"
		})).
		Return(mock.ErrorResult(context.DeadlineExceeded))

	h := NewHandleForTest(c)
	if _, err := h.TableNames(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestPing(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("PING")).
		Return(mock.Result(mock.RedisString("PONG")))

	h := NewHandleForTest(c)
	if err := h.ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOpenTable_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	c := mock.NewClient(ctrl)

	c.EXPECT().
		Do(gomock.Any(), mock.Match("EXISTS", "tabledex:meta:ghost")).
		Return(mock.Result(mock.RedisInt64(0)))

	h := NewHandleForTest(c)
	if _, err := h.OpenTable(context.Background(), "ghost"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestVectorBytes_RoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.75}
	out, err := bytesToVector(vectorToBytes(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: %f != %f", i, in[i], out[i])
		}
	}

	if _, err := bytesToVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated data")
	}
}

// Package redis implements the backend client contract on Redis 8+ via
// rueidis. Tables are stored as one metadata hash plus one hash per row,
// with an FT HNSW index over embedding columns for ANN search.
package redis

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/kailas-cloud/tabledex/internal/backend"
	"github.com/kailas-cloud/tabledex/internal/dataset"
)

const keyPrefix = "tabledex:"

// Compile-time checks against the backend contract.
var (
	_ backend.Client = (*Client)(nil)
	_ backend.Handle = (*Handle)(nil)
	_ backend.Table  = (*Table)(nil)
)

// Client creates Redis-backed handles.
type Client struct {
	logger *zap.Logger
}

// NewClient creates a Redis backend client.
func NewClient(logger *zap.Logger) *Client {
	return &Client{logger: logger}
}

// Connect parses a redis:// URI, dials the server and verifies liveness
// with PING. The returned handle owns the underlying connection.
func (c *Client) Connect(ctx context.Context, uri string) (backend.Handle, error) {
	addr, db, err := parseURI(uri)
	if err != nil {
		return nil, err
	}

	cl, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		SelectDB:     db,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	h := &Handle{client: cl, logger: c.logger}
	if err := h.ping(ctx); err != nil {
		cl.Close()
		return nil, err
	}
	return h, nil
}

// parseURI accepts redis://host:port[/db] or a bare host:port.
func parseURI(uri string) (addr string, db int, err error) {
	if !strings.Contains(uri, "://") {
		return uri, 0, nil
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", 0, fmt.Errorf("parse uri %q: %w", uri, err)
	}
	if u.Scheme != "redis" {
		return "", 0, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if path := strings.TrimPrefix(u.Path, "/"); path != "" {
		db, err = strconv.Atoi(path)
		if err != nil {
			return "", 0, fmt.Errorf("invalid db selector %q: %w", path, err)
		}
	}
	return u.Host, db, nil
}

// Handle is a live Redis connection.
type Handle struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewHandleForTest wraps a (mock) rueidis client for driver tests.
func NewHandleForTest(client rueidis.Client) *Handle {
	return &Handle{client: client, logger: zap.NewNop()}
}

func (h *Handle) ping(ctx context.Context) error {
	cmd := h.client.B().Ping().Build()
	if err := h.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// TableNames lists all tables by scanning metadata keys.
func (h *Handle) TableNames(ctx context.Context) ([]string, error) {
	keys, err := h.scanKeys(ctx, metaKey("*"))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, metaKey("")))
	}
	sort.Strings(names)
	return names, nil
}

// CreateTable materializes a dataset: metadata hash, one hash per row and,
// when embedding columns are present, an FT HNSW index over them.
func (h *Handle) CreateTable(ctx context.Context, name string, data *dataset.Dataset) (backend.Table, error) {
	exists, err := h.exists(ctx, metaKey(name))
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("table %q already exists", name)
	}

	fields := deriveSchema(data)
	meta, err := encodeMeta(fields, data.Len())
	if err != nil {
		return nil, err
	}
	if err := h.hset(ctx, metaKey(name), meta); err != nil {
		return nil, err
	}

	if err := h.writeRows(ctx, name, data, 0); err != nil {
		_ = h.del(ctx, metaKey(name))
		return nil, err
	}

	if err := h.createVectorIndex(ctx, name, fields, data); err != nil {
		h.logger.Warn("failed to create vector index",
			zap.String("table", name), zap.Error(err))
	}

	return &Table{handle: h, name: name}, nil
}

// OpenTable returns a reference to an existing table.
func (h *Handle) OpenTable(ctx context.Context, name string) (backend.Table, error) {
	exists, err := h.exists(ctx, metaKey(name))
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("table %q not found", name)
	}
	return &Table{handle: h, name: name}, nil
}

// DropTable removes metadata, rows and the FT index. Dropping a missing
// table is not an error.
func (h *Handle) DropTable(ctx context.Context, name string) error {
	rowKeys, err := h.scanKeys(ctx, rowKey(name, "*"))
	if err != nil {
		return err
	}
	for _, k := range rowKeys {
		if err := h.del(ctx, k); err != nil {
			return err
		}
	}
	if err := h.del(ctx, metaKey(name)); err != nil {
		return err
	}

	cmd := h.client.B().Arbitrary("FT.DROPINDEX").Args(indexName(name)).Build()
	if err := h.client.Do(ctx, cmd).Error(); err != nil && !isRedisErr(err, "unknown index name") {
		return fmt.Errorf("FT.DROPINDEX: %w", err)
	}
	return nil
}

// Close shuts down the connection.
func (h *Handle) Close() {
	h.client.Close()
}

// --- low-level helpers ---

func (h *Handle) exists(ctx context.Context, key string) (bool, error) {
	cmd := h.client.B().Exists().Key(key).Build()
	n, err := h.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		return false, fmt.Errorf("EXISTS: %w", err)
	}
	return n > 0, nil
}

func (h *Handle) del(ctx context.Context, key string) error {
	cmd := h.client.B().Del().Key(key).Build()
	if err := h.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("DEL: %w", err)
	}
	return nil
}

func (h *Handle) hset(ctx context.Context, key string, fields map[string]string) error {
	cmd := h.client.B().Hset().Key(key).FieldValue()
	for k, v := range fields {
		cmd = cmd.FieldValue(k, v)
	}
	if err := h.client.Do(ctx, cmd.Build()).Error(); err != nil {
		return fmt.Errorf("HSET: %w", err)
	}
	return nil
}

func (h *Handle) hgetAll(ctx context.Context, key string) (map[string]string, error) {
	cmd := h.client.B().Hgetall().Key(key).Build()
	m, err := h.client.Do(ctx, cmd).AsStrMap()
	if err != nil {
		return nil, fmt.Errorf("HGETALL: %w", err)
	}
	return m, nil
}

func (h *Handle) hgetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = h.client.B().Hgetall().Key(key).Build()
	}
	results := h.client.DoMulti(ctx, cmds...)
	out := make([]map[string]string, len(results))
	for i, res := range results {
		m, err := res.AsStrMap()
		if err != nil {
			return nil, fmt.Errorf("HGETALL %s: %w", keys[i], err)
		}
		out[i] = m
	}
	return out, nil
}

func (h *Handle) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	cursor := uint64(0)
	for {
		cmd := h.client.B().Scan().Cursor(cursor).Match(pattern).Count(512).Build()
		entry, err := h.client.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("SCAN: %w", err)
		}
		keys = append(keys, entry.Elements...)
		cursor = entry.Cursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// writeRows stores dataset rows as hashes keyed by a zero-padded sequence
// number, so lexical key order is insertion order.
func (h *Handle) writeRows(ctx context.Context, name string, data *dataset.Dataset, startSeq int) error {
	if data.Len() == 0 {
		return nil
	}
	columns := data.Columns()
	cmds := make([]rueidis.Completed, 0, data.Len())
	for i := 0; i < data.Len(); i++ {
		encoded := encodeRow(columns, data.Row(i))
		cmd := h.client.B().Hset().Key(rowKey(name, seqString(startSeq+i))).FieldValue()
		for k, v := range encoded {
			cmd = cmd.FieldValue(k, v)
		}
		cmds = append(cmds, cmd.Build())
	}
	results := h.client.DoMulti(ctx, cmds...)
	for _, res := range results {
		if err := res.Error(); err != nil {
			return fmt.Errorf("HSET row: %w", err)
		}
	}
	return nil
}

// createVectorIndex issues FT.CREATE with a VECTOR HNSW field per embedding
// column. Skipped when the dataset carries no usable vectors.
func (h *Handle) createVectorIndex(ctx context.Context, name string, fields []backend.Field, data *dataset.Dataset) error {
	args := []string{indexName(name), "ON", "HASH", "PREFIX", "1", rowKey(name, ""), "SCHEMA"}
	vectors := 0
	for _, f := range fields {
		if f.Type != dataset.TypeFloatList {
			continue
		}
		dim := vectorDimension(data, f.Name)
		if dim == 0 {
			continue
		}
		args = append(args, f.Name, "VECTOR", "HNSW", "6",
			"TYPE", "FLOAT32",
			"DIM", strconv.Itoa(dim),
			"DISTANCE_METRIC", "COSINE",
		)
		vectors++
	}
	if vectors == 0 {
		return nil
	}

	cmd := h.client.B().Arbitrary("FT.CREATE").Args(args...).Build()
	if err := h.client.Do(ctx, cmd).Error(); err != nil && !isRedisErr(err, "index already exists") {
		return fmt.Errorf("FT.CREATE: %w", err)
	}
	return nil
}

func vectorDimension(data *dataset.Dataset, column string) int {
	for i := 0; i < data.Len(); i++ {
		if v, ok := data.Value(i, column); ok {
			if vec, ok := v.([]float32); ok {
				return len(vec)
			}
		}
	}
	return 0
}

func isRedisErr(err error, substr string) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), substr)
}

// Key patterns: tabledex:meta:{name}, tabledex:row:{name}:{seq},
// tabledex:{name}:idx. Meta and row keys live in disjoint namespaces so
// the meta scan can never pick up row keys, whatever the table is named.

func metaKey(name string) string {
	return keyPrefix + "meta:" + name
}

func rowKey(name, seq string) string {
	return fmt.Sprintf("%srow:%s:%s", keyPrefix, name, seq)
}

func indexName(name string) string {
	return fmt.Sprintf("%s%s:idx", keyPrefix, name)
}

func seqString(seq int) string {
	return fmt.Sprintf("%012d", seq)
}

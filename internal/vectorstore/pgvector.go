package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/dealbrain/dealbrain/internal/document"
	"github.com/dealbrain/dealbrain/internal/log"
)

// PgxQuerier is the subset of pgxpool.Pool the store uses. Defined here so
// tests can substitute a mock connection.
type PgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pgvector stores chunks in a Postgres table with a pgvector embedding
// column. Similarity ranking and metadata filtering happen in SQL, so the
// index scales past process memory. Save and Load are no-ops: Postgres is
// the durable copy.
type Pgvector struct {
	db       PgxQuerier
	embedder Embedder
	logger   log.Logger
	pool     *pgxpool.Pool
}

// allMetadataCap bounds the unfiltered metadata scan.
const allMetadataCap = 10000

// NewPgvector connects to Postgres and returns a pgvector-backed store.
// The chunks table must already exist; run migrations first.
func NewPgvector(ctx context.Context, embedder Embedder, logger log.Logger, dsn string) (*Pgvector, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pgvector backend requires a database DSN")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pgvector{db: pool, embedder: embedder, logger: logger, pool: pool}, nil
}

// NewPgvectorWithQuerier wires the store onto an existing querier. Used in
// tests and anywhere pool lifecycle is managed externally.
func NewPgvectorWithQuerier(db PgxQuerier, embedder Embedder, logger log.Logger) *Pgvector {
	return &Pgvector{db: db, embedder: embedder, logger: logger}
}

// Close releases the connection pool, if this store owns one.
func (p *Pgvector) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Count reports the number of stored chunks.
func (p *Pgvector) Count(ctx context.Context) (int, error) {
	var count int
	if err := p.db.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return count, nil
}

// AddChunks embeds and upserts chunks keyed by vector ID.
func (p *Pgvector) AddChunks(ctx context.Context, chunks []document.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	for i, c := range chunks {
		metaJSON, err := json.Marshal(c.ToMap())
		if err != nil {
			return 0, fmt.Errorf("marshal metadata for %s: %w", c.VectorID(), err)
		}
		vec := pgvector.NewVector(vectors[i])

		_, err = p.db.Exec(ctx, `
			INSERT INTO chunks (id, content, embedding, metadata)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				metadata = EXCLUDED.metadata`,
			c.VectorID(), c.Content, vec, metaJSON)
		if err != nil {
			return 0, fmt.Errorf("upsert chunk %s: %w", c.VectorID(), err)
		}
	}

	p.logger.Debug("chunks upserted", "count", len(chunks))
	return len(chunks), nil
}

// Search embeds the query and ranks stored chunks by inner product in SQL.
// Filters are pushed down as JSONB conditions.
func (p *Pgvector) Search(ctx context.Context, q SearchQuery) (*SearchResponse, error) {
	total, err := p.Count(ctx)
	if err != nil {
		return nil, err
	}

	resp := &SearchResponse{Query: q.Query, TotalSearched: total}
	if total == 0 {
		return resp, nil
	}

	queryVec, err := p.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	where, args := buildFilterSQL(q.Filters, 2)
	args = append([]any{pgvector.NewVector(queryVec)}, args...)
	args = append(args, q.TopK)

	// <#> is negative inner product; negate so higher means closer.
	sql := fmt.Sprintf(`
		SELECT content, -(embedding <#> $1) AS score, metadata
		FROM chunks
		%s
		ORDER BY embedding <#> $1
		LIMIT $%d`, where, len(args))

	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			content  string
			score    float64
			metaJSON []byte
		)
		if err := rows.Scan(&content, &score, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		var meta map[string]any
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		resp.Results = append(resp.Results, SearchResult{Content: content, Score: score, Metadata: meta})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}

	return resp, nil
}

// listValuedKeys are metadata fields stored as JSON arrays. Filters on
// these keys match by membership in the stored array, not equality.
var listValuedKeys = map[string]bool{
	"tags": true,
}

// buildFilterSQL renders filters as a WHERE clause. Scalars compare the
// text form of the JSONB value; a list filter value matches any member.
// For array-valued stored fields the condition tests array membership.
func buildFilterSQL(filters map[string]any, startArg int) (string, []any) {
	if len(filters) == 0 {
		return "", nil
	}

	conds := make([]string, 0, len(filters))
	args := make([]any, 0, len(filters))
	n := startArg
	for key, want := range filters {
		k := sanitizeKey(key)
		switch w := want.(type) {
		case []any:
			members := make([]string, len(w))
			for i, m := range w {
				members[i] = stringify(m)
			}
			if listValuedKeys[k] {
				conds = append(conds, fmt.Sprintf("metadata->'%s' ?| $%d", k, n))
			} else {
				conds = append(conds, fmt.Sprintf("metadata->>'%s' = ANY($%d)", k, n))
			}
			args = append(args, members)
		case []string:
			if listValuedKeys[k] {
				conds = append(conds, fmt.Sprintf("metadata->'%s' ?| $%d", k, n))
			} else {
				conds = append(conds, fmt.Sprintf("metadata->>'%s' = ANY($%d)", k, n))
			}
			args = append(args, w)
		default:
			if listValuedKeys[k] {
				conds = append(conds, fmt.Sprintf("metadata->'%s' @> to_jsonb($%d::text)", k, n))
			} else {
				conds = append(conds, fmt.Sprintf("metadata->>'%s' = $%d", k, n))
			}
			args = append(args, stringify(w))
		}
		n++
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

// sanitizeKey strips characters that could break out of the quoted JSONB
// key. Filter keys come from config and CLI flags, not raw user text, but
// the key is interpolated into SQL so it is restricted anyway.
func sanitizeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AllMetadata returns stored chunk metadata, capped at 10000 rows.
func (p *Pgvector) AllMetadata(ctx context.Context) ([]map[string]any, error) {
	rows, err := p.db.Query(ctx, `SELECT metadata FROM chunks LIMIT $1`, allMetadataCap)
	if err != nil {
		return nil, fmt.Errorf("list metadata: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var metaJSON []byte
		if err := rows.Scan(&metaJSON); err != nil {
			return nil, fmt.Errorf("scan metadata row: %w", err)
		}
		var meta map[string]any
		if err := json.Unmarshal(metaJSON, &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata rows: %w", err)
	}
	return out, nil
}

// Clear removes all stored chunks.
func (p *Pgvector) Clear(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	return nil
}

// Save is a no-op: Postgres persists on write.
func (p *Pgvector) Save(ctx context.Context) error { return nil }

// Load is a no-op: the table is always live.
func (p *Pgvector) Load(ctx context.Context) error { return nil }

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Protocol-Lattice/engram/src/engram/model"
	"github.com/Protocol-Lattice/engram/src/engram/token"
)

// PostgresStore implements Store using Postgres + pgvector.
type PostgresStore struct {
	DB *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and returns the store. Call
// Init to create the schema.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, model.E(model.KindStore, "postgres.connect", err)
	}
	return &PostgresStore{DB: db}, nil
}

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS engram_memories (
    id            TEXT PRIMARY KEY,
    content       TEXT NOT NULL,
    category      TEXT NOT NULL DEFAULT 'fact',
    source        TEXT NOT NULL DEFAULT '',
    surprise      DOUBLE PRECISION NOT NULL DEFAULT 0,
    importance    DOUBLE PRECISION NOT NULL DEFAULT 0,
    access_count  INTEGER NOT NULL DEFAULT 0,
    last_accessed TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL,
    embedding     vector,
    metadata      JSONB NOT NULL DEFAULT '{}'::jsonb,
    namespace     TEXT NOT NULL DEFAULT 'default',
    ttl           BIGINT NOT NULL DEFAULT 0,
    expires_at    TIMESTAMPTZ,
    version       INTEGER NOT NULL DEFAULT 1,
    history       JSONB NOT NULL DEFAULT '[]'::jsonb
);

CREATE INDEX IF NOT EXISTS engram_namespace_idx ON engram_memories (namespace);
CREATE INDEX IF NOT EXISTS engram_category_idx  ON engram_memories (namespace, category);
CREATE INDEX IF NOT EXISTS engram_created_idx   ON engram_memories (created_at);
`

// Init creates the pgvector extension and the memories table.
func (ps *PostgresStore) Init(ctx context.Context) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	if _, err := ps.DB.Exec(ctx, postgresSchema); err != nil {
		return model.E(model.KindStore, "postgres.init", err)
	}
	return nil
}

// Close releases the connection pool.
func (ps *PostgresStore) Close() error {
	if ps != nil && ps.DB != nil {
		ps.DB.Close()
	}
	return nil
}

func pgVector(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func parsePGVector(text *string) []float32 {
	if text == nil {
		return nil
	}
	trimmed := strings.Trim(*text, "[]")
	if strings.TrimSpace(trimmed) == "" {
		return nil
	}
	parts := strings.Split(trimmed, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			continue
		}
		vec = append(vec, float32(f))
	}
	return vec
}

const pgColumns = `id, content, category, source, surprise, importance,
	access_count, last_accessed, created_at, embedding::text, metadata, namespace,
	ttl, expires_at, version, history`

type pgScanner interface{ Scan(...any) error }

func scanPGRecord(row pgScanner) (model.MemoryRecord, error) {
	var (
		rec                   model.MemoryRecord
		lastAccessed, expires *time.Time
		embedding             *string
		metadata, history     []byte
	)
	if err := row.Scan(&rec.ID, &rec.Content, &rec.Category, &rec.Source,
		&rec.Surprise, &rec.Importance, &rec.AccessCount, &lastAccessed,
		&rec.CreatedAt, &embedding, &metadata, &rec.Namespace, &rec.TTL,
		&expires, &rec.Version, &history); err != nil {
		return model.MemoryRecord{}, err
	}
	if lastAccessed != nil {
		rec.LastAccessed = lastAccessed.UTC()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	if expires != nil {
		rec.ExpiresAt = expires.UTC()
	}
	rec.Embedding = parsePGVector(embedding)
	if len(metadata) > 0 && string(metadata) != "{}" {
		_ = json.Unmarshal(metadata, &rec.Metadata)
	}
	if len(history) > 0 && string(history) != "[]" {
		_ = json.Unmarshal(history, &rec.History)
	}
	return rec, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func (ps *PostgresStore) Get(ctx context.Context, id string) (model.MemoryRecord, error) {
	row := ps.DB.QueryRow(ctx, `SELECT `+pgColumns+` FROM engram_memories WHERE id = $1`, id)
	rec, err := scanPGRecord(row)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return model.MemoryRecord{}, ErrNotFound
		}
		return model.MemoryRecord{}, model.E(model.KindStore, "postgres.get", err)
	}
	return rec, nil
}

func (ps *PostgresStore) Put(ctx context.Context, rec model.MemoryRecord) error {
	metadata, _ := json.Marshal(rec.Metadata)
	if rec.Metadata == nil {
		metadata = []byte("{}")
	}
	history, _ := json.Marshal(rec.History)
	if rec.History == nil {
		history = []byte("[]")
	}
	_, err := ps.DB.Exec(ctx, `
		INSERT INTO engram_memories (id, content, category, source, surprise,
			importance, access_count, last_accessed, created_at, embedding,
			metadata, namespace, ttl, expires_at, version, history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector, $11::jsonb, $12, $13, $14, $15, $16::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content, category = EXCLUDED.category,
			source = EXCLUDED.source, surprise = EXCLUDED.surprise,
			importance = EXCLUDED.importance, access_count = EXCLUDED.access_count,
			last_accessed = EXCLUDED.last_accessed, embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata, ttl = EXCLUDED.ttl,
			expires_at = EXCLUDED.expires_at, version = EXCLUDED.version,
			history = EXCLUDED.history`,
		rec.ID, rec.Content, rec.Category, rec.Source, rec.Surprise,
		rec.Importance, rec.AccessCount, nullableTime(rec.LastAccessed),
		rec.CreatedAt.UTC(), pgVector(rec.Embedding), string(metadata),
		rec.Namespace, rec.TTL, nullableTime(rec.ExpiresAt), rec.Version, string(history))
	if err != nil {
		return model.E(model.KindStore, "postgres.put", err)
	}
	return nil
}

func (ps *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := ps.DB.Exec(ctx, `DELETE FROM engram_memories WHERE id = $1`, id); err != nil {
		return model.E(model.KindStore, "postgres.delete", err)
	}
	return nil
}

func (ps *PostgresStore) Has(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := ps.DB.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM engram_memories WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, model.E(model.KindStore, "postgres.has", err)
	}
	return exists, nil
}

func (ps *PostgresStore) List(ctx context.Context, f Filter) ([]model.MemoryRecord, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Namespace != "" {
		where = append(where, "namespace = "+arg(f.Namespace))
	}
	if len(f.Categories) > 0 {
		where = append(where, "category = ANY("+arg(f.Categories)+")")
	}
	if f.MinImportance > 0 {
		where = append(where, "importance >= "+arg(f.MinImportance))
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= "+arg(f.Since.UTC()))
	}
	if f.MaxAgeDays > 0 {
		cutoff := time.Now().UTC().Add(-time.Duration(f.MaxAgeDays * 24 * float64(time.Hour)))
		where = append(where, "created_at >= "+arg(cutoff))
	}
	if len(f.Metadata) > 0 {
		meta, _ := json.Marshal(f.Metadata)
		where = append(where, "metadata @> "+arg(string(meta))+"::jsonb")
	}

	query := `SELECT ` + pgColumns + ` FROM engram_memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + pgOrder(f.SortBy, f.SortOrder)
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := ps.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, model.E(model.KindStore, "postgres.list", err)
	}
	defer rows.Close()

	var out []model.MemoryRecord
	for rows.Next() {
		rec, err := scanPGRecord(rows)
		if err != nil {
			return nil, model.E(model.KindStore, "postgres.list", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, model.E(model.KindStore, "postgres.list", err)
	}
	return out, nil
}

func pgOrder(by SortBy, order SortOrder) string {
	col := "created_at"
	switch by {
	case SortByImportance:
		col = "importance"
	case SortByAccessed:
		col = "last_accessed"
	case SortBySurprise:
		col = "surprise"
	}
	dir := "DESC"
	if order == SortAsc {
		dir = "ASC"
	}
	return col + " " + dir + ", id ASC"
}

func (ps *PostgresStore) Search(ctx context.Context, query string, k int) ([]model.MemoryRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	tokens := token.Tokenize(query)
	if len(tokens) == 0 {
		tokens = []string{strings.TrimSpace(query)}
	}
	var (
		where []string
		args  []any
	)
	for _, t := range tokens {
		if t == "" {
			continue
		}
		args = append(args, "%"+t+"%")
		where = append(where, fmt.Sprintf("content ILIKE $%d", len(args)))
	}
	if len(where) == 0 {
		return nil, nil
	}
	args = append(args, k)
	rows, err := ps.DB.Query(ctx, `
		SELECT `+pgColumns+` FROM engram_memories
		WHERE `+strings.Join(where, " OR ")+`
		ORDER BY created_at DESC, id ASC
		LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, model.E(model.KindStore, "postgres.search", err)
	}
	defer rows.Close()

	var out []model.MemoryRecord
	for rows.Next() {
		rec, err := scanPGRecord(rows)
		if err != nil {
			return nil, model.E(model.KindStore, "postgres.search", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// VectorSearch ranks by pgvector cosine distance.
func (ps *PostgresStore) VectorSearch(ctx context.Context, embedding []float32, k int) ([]model.MemoryRecord, error) {
	if k <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	rows, err := ps.DB.Query(ctx, `
		SELECT `+pgColumns+` FROM engram_memories
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, pgVector(embedding), k)
	if err != nil {
		return nil, model.E(model.KindStore, "postgres.vectorsearch", err)
	}
	defer rows.Close()

	var out []model.MemoryRecord
	for rows.Next() {
		rec, err := scanPGRecord(rows)
		if err != nil {
			return nil, model.E(model.KindStore, "postgres.vectorsearch", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) PutMany(ctx context.Context, recs []model.MemoryRecord) error {
	for _, rec := range recs {
		if err := ps.Put(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (ps *PostgresStore) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := ps.DB.Exec(ctx, `DELETE FROM engram_memories WHERE id = ANY($1)`, ids); err != nil {
		return model.E(model.KindStore, "postgres.deletemany", err)
	}
	return nil
}

func (ps *PostgresStore) Count(ctx context.Context, namespace string) (int, error) {
	var (
		count int
		err   error
	)
	if namespace == "" {
		err = ps.DB.QueryRow(ctx, `SELECT COUNT(*) FROM engram_memories`).Scan(&count)
	} else {
		err = ps.DB.QueryRow(ctx,
			`SELECT COUNT(*) FROM engram_memories WHERE namespace = $1`, namespace).Scan(&count)
	}
	if err != nil {
		return 0, model.E(model.KindStore, "postgres.count", err)
	}
	return count, nil
}

func (ps *PostgresStore) Prune(ctx context.Context, before time.Time) (int, error) {
	tag, err := ps.DB.Exec(ctx,
		`DELETE FROM engram_memories WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, model.E(model.KindStore, "postgres.prune", err)
	}
	return int(tag.RowsAffected()), nil
}

func (ps *PostgresStore) Clear(ctx context.Context, namespace string) error {
	var err error
	if namespace == "" {
		_, err = ps.DB.Exec(ctx, `DELETE FROM engram_memories`)
	} else {
		_, err = ps.DB.Exec(ctx, `DELETE FROM engram_memories WHERE namespace = $1`, namespace)
	}
	if err != nil {
		return model.E(model.KindStore, "postgres.clear", err)
	}
	return nil
}

func (ps *PostgresStore) Dump(ctx context.Context) ([]model.MemoryRecord, error) {
	rows, err := ps.DB.Query(ctx,
		`SELECT `+pgColumns+` FROM engram_memories ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, model.E(model.KindStore, "postgres.dump", err)
	}
	defer rows.Close()
	var out []model.MemoryRecord
	for rows.Next() {
		rec, err := scanPGRecord(rows)
		if err != nil {
			return nil, model.E(model.KindStore, "postgres.dump", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

var (
	_ Store          = (*PostgresStore)(nil)
	_ VectorSearcher = (*PostgresStore)(nil)
	_ Lifecycle      = (*PostgresStore)(nil)
)

package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Protocol-Lattice/engram/src/engram/model"
	"github.com/Protocol-Lattice/engram/src/engram/similarity"
	"github.com/Protocol-Lattice/engram/src/engram/token"
)

// SQLiteStore implements Store over an embedded SQLite database.
// Vectors are stored as little-endian float32 BLOBs and vector search
// scans them with cosine in process.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates
// the schema. A single connection avoids write contention.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, model.E(model.KindStore, "sqlite.open", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, model.E(model.KindStore, "sqlite.open", err)
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, model.E(model.KindStore, "sqlite.migrate", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id            TEXT PRIMARY KEY,
			content       TEXT    NOT NULL,
			category      TEXT    NOT NULL DEFAULT 'fact',
			source        TEXT    NOT NULL DEFAULT '',
			surprise      REAL    NOT NULL DEFAULT 0,
			importance    REAL    NOT NULL DEFAULT 0,
			access_count  INTEGER NOT NULL DEFAULT 0,
			last_accessed INTEGER NOT NULL DEFAULT 0,
			created_at    INTEGER NOT NULL,
			embedding     BLOB,
			metadata      TEXT    NOT NULL DEFAULT '{}',
			namespace     TEXT    NOT NULL DEFAULT 'default',
			ttl           INTEGER NOT NULL DEFAULT 0,
			expires_at    INTEGER NOT NULL DEFAULT 0,
			version       INTEGER NOT NULL DEFAULT 1,
			history       TEXT    NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS idx_memories_namespace ON memories(namespace);
		CREATE INDEX IF NOT EXISTS idx_memories_category  ON memories(namespace, category);
		CREATE INDEX IF NOT EXISTS idx_memories_created   ON memories(created_at);
	`)
	return err
}

// encodeVector converts a float32 slice to a little-endian byte blob.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector converts a little-endian byte blob back to float32s.
func decodeVector(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

func msOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timeFromMS(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

const sqliteColumns = `id, content, category, source, surprise, importance,
	access_count, last_accessed, created_at, embedding, metadata, namespace,
	ttl, expires_at, version, history`

func (s *SQLiteStore) scanRecord(scan func(...any) error) (model.MemoryRecord, error) {
	var (
		rec                           model.MemoryRecord
		lastAccessed, created, expiry int64
		embedding                     []byte
		metadata, history             string
	)
	if err := scan(&rec.ID, &rec.Content, &rec.Category, &rec.Source, &rec.Surprise,
		&rec.Importance, &rec.AccessCount, &lastAccessed, &created, &embedding,
		&metadata, &rec.Namespace, &rec.TTL, &expiry, &rec.Version, &history); err != nil {
		return model.MemoryRecord{}, err
	}
	rec.LastAccessed = timeFromMS(lastAccessed)
	rec.CreatedAt = timeFromMS(created)
	rec.ExpiresAt = timeFromMS(expiry)
	rec.Embedding = decodeVector(embedding)
	if metadata != "" && metadata != "{}" {
		_ = json.Unmarshal([]byte(metadata), &rec.Metadata)
	}
	if history != "" && history != "[]" {
		_ = json.Unmarshal([]byte(history), &rec.History)
	}
	return rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (model.MemoryRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM memories WHERE id = ?`, id)
	rec, err := s.scanRecord(row.Scan)
	if err == sql.ErrNoRows {
		return model.MemoryRecord{}, ErrNotFound
	}
	if err != nil {
		return model.MemoryRecord{}, model.E(model.KindStore, "sqlite.get", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec model.MemoryRecord) error {
	metadata, _ := json.Marshal(rec.Metadata)
	if rec.Metadata == nil {
		metadata = []byte("{}")
	}
	history, _ := json.Marshal(rec.History)
	if rec.History == nil {
		history = []byte("[]")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (`+sqliteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content, category = excluded.category,
			source = excluded.source, surprise = excluded.surprise,
			importance = excluded.importance, access_count = excluded.access_count,
			last_accessed = excluded.last_accessed, embedding = excluded.embedding,
			metadata = excluded.metadata, ttl = excluded.ttl,
			expires_at = excluded.expires_at, version = excluded.version,
			history = excluded.history`,
		rec.ID, rec.Content, rec.Category, rec.Source, rec.Surprise, rec.Importance,
		rec.AccessCount, msOrZero(rec.LastAccessed), msOrZero(rec.CreatedAt),
		encodeVector(rec.Embedding), string(metadata), rec.Namespace, rec.TTL,
		msOrZero(rec.ExpiresAt), rec.Version, string(history))
	if err != nil {
		return model.E(model.KindStore, "sqlite.put", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id); err != nil {
		return model.E(model.KindStore, "sqlite.delete", err)
	}
	return nil
}

func (s *SQLiteStore) Has(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM memories WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, model.E(model.KindStore, "sqlite.has", err)
	}
	return true, nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]model.MemoryRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.Namespace != "" {
		where = append(where, "namespace = ?")
		args = append(args, f.Namespace)
	}
	if len(f.Categories) > 0 {
		where = append(where, "category IN (?"+strings.Repeat(",?", len(f.Categories)-1)+")")
		for _, c := range f.Categories {
			args = append(args, c)
		}
	}
	if f.MinImportance > 0 {
		where = append(where, "importance >= ?")
		args = append(args, f.MinImportance)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if f.MaxAgeDays > 0 {
		cutoff := time.Now().UTC().Add(-time.Duration(f.MaxAgeDays * 24 * float64(time.Hour)))
		where = append(where, "created_at >= ?")
		args = append(args, cutoff.UnixMilli())
	}

	query := `SELECT ` + sqliteColumns + ` FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + sqliteOrder(f.SortBy, f.SortOrder)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.E(model.KindStore, "sqlite.list", err)
	}
	defer rows.Close()

	var out []model.MemoryRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows.Scan)
		if err != nil {
			return nil, model.E(model.KindStore, "sqlite.list", err)
		}
		if len(f.Metadata) > 0 && !model.MetadataMatches(rec.Metadata, f.Metadata) {
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, model.E(model.KindStore, "sqlite.list", err)
	}
	return paginate(out, f.Offset, f.Limit), nil
}

func sqliteOrder(by SortBy, order SortOrder) string {
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
	return fmt.Sprintf("%s %s, id ASC", col, dir)
}

func (s *SQLiteStore) Search(ctx context.Context, query string, k int) ([]model.MemoryRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	tokens := token.Tokenize(query)
	if len(tokens) == 0 {
		tokens = []string{strings.ToLower(strings.TrimSpace(query))}
	}
	var (
		where []string
		args  []any
	)
	for _, t := range tokens {
		if t == "" {
			continue
		}
		where = append(where, "lower(content) LIKE ?")
		args = append(args, "%"+t+"%")
	}
	if len(where) == 0 {
		return nil, nil
	}
	args = append(args, k)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteColumns+` FROM memories
		WHERE `+strings.Join(where, " OR ")+`
		ORDER BY created_at DESC, id ASC
		LIMIT ?`, args...)
	if err != nil {
		return nil, model.E(model.KindStore, "sqlite.search", err)
	}
	defer rows.Close()

	var out []model.MemoryRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows.Scan)
		if err != nil {
			return nil, model.E(model.KindStore, "sqlite.search", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// VectorSearch scans stored embeddings and ranks by cosine similarity.
func (s *SQLiteStore) VectorSearch(ctx context.Context, embedding []float32, k int) ([]model.MemoryRecord, error) {
	if k <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM memories WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, model.E(model.KindStore, "sqlite.vectorsearch", err)
	}
	defer rows.Close()

	type scored struct {
		rec model.MemoryRecord
		sim float64
	}
	var hits []scored
	for rows.Next() {
		rec, err := s.scanRecord(rows.Scan)
		if err != nil {
			return nil, model.E(model.KindStore, "sqlite.vectorsearch", err)
		}
		sim, err := similarity.Cosine(embedding, rec.Embedding)
		if err != nil {
			continue
		}
		hits = append(hits, scored{rec: rec, sim: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, model.E(model.KindStore, "sqlite.vectorsearch", err)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].sim > hits[j].sim })
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]model.MemoryRecord, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out, nil
}

func (s *SQLiteStore) PutMany(ctx context.Context, recs []model.MemoryRecord) error {
	for _, rec := range recs {
		if err := s.Put(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`, args...)
	if err != nil {
		return model.E(model.KindStore, "sqlite.deletemany", err)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context, namespace string) (int, error) {
	var (
		count int
		err   error
	)
	if namespace == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM memories WHERE namespace = ?`, namespace).Scan(&count)
	}
	if err != nil {
		return 0, model.E(model.KindStore, "sqlite.count", err)
	}
	return count, nil
}

func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, model.E(model.KindStore, "sqlite.prune", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) Clear(ctx context.Context, namespace string) error {
	var err error
	if namespace == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM memories`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM memories WHERE namespace = ?`, namespace)
	}
	if err != nil {
		return model.E(model.KindStore, "sqlite.clear", err)
	}
	return nil
}

func (s *SQLiteStore) Dump(ctx context.Context) ([]model.MemoryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM memories ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, model.E(model.KindStore, "sqlite.dump", err)
	}
	defer rows.Close()
	var out []model.MemoryRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows.Scan)
		if err != nil {
			return nil, model.E(model.KindStore, "sqlite.dump", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Init satisfies Lifecycle; the constructor already ran migrations.
func (s *SQLiteStore) Init(context.Context) error { return nil }

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

var (
	_ Store          = (*SQLiteStore)(nil)
	_ VectorSearcher = (*SQLiteStore)(nil)
	_ Lifecycle      = (*SQLiteStore)(nil)
)

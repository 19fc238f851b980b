package store

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	neo4j "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Protocol-Lattice/engram/src/engram/model"
	"github.com/Protocol-Lattice/engram/src/engram/similarity"
	"github.com/Protocol-Lattice/engram/src/engram/token"
)

// Neo4jStore implements Store over Neo4j. Each record is a (:Memory)
// node; metadata and history are persisted as JSON string properties
// because Neo4j properties cannot nest maps.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore connects with basic auth and verifies connectivity.
func NewNeo4jStore(ctx context.Context, uri, username, password, database string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, model.E(model.KindStore, "neo4j.connect", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, model.E(model.KindStore, "neo4j.connect", err)
	}
	return &Neo4jStore{driver: driver, database: database}, nil
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

func neo4jProps(rec model.MemoryRecord) map[string]any {
	metadata, _ := json.Marshal(rec.Metadata)
	if rec.Metadata == nil {
		metadata = []byte("{}")
	}
	history, _ := json.Marshal(rec.History)
	if rec.History == nil {
		history = []byte("[]")
	}
	embedding := make([]float64, len(rec.Embedding))
	for i, f := range rec.Embedding {
		embedding[i] = float64(f)
	}
	return map[string]any{
		"id":            rec.ID,
		"content":       rec.Content,
		"category":      rec.Category,
		"source":        rec.Source,
		"surprise":      rec.Surprise,
		"importance":    rec.Importance,
		"access_count":  int64(rec.AccessCount),
		"last_accessed": msOrZero(rec.LastAccessed),
		"created_at":    rec.CreatedAt.UnixMilli(),
		"embedding":     embedding,
		"metadata":      string(metadata),
		"namespace":     rec.Namespace,
		"ttl":           rec.TTL,
		"expires_at":    msOrZero(rec.ExpiresAt),
		"version":       int64(rec.Version),
		"history":       string(history),
	}
}

func recordFromProps(props map[string]any) model.MemoryRecord {
	rec := model.MemoryRecord{
		ID:           model.StringFromAny(props["id"]),
		Content:      model.StringFromAny(props["content"]),
		Category:     model.StringFromAny(props["category"]),
		Source:       model.StringFromAny(props["source"]),
		Surprise:     model.FloatFromAny(props["surprise"]),
		Importance:   model.FloatFromAny(props["importance"]),
		AccessCount:  model.IntFromAny(props["access_count"]),
		LastAccessed: timeFromMS(int64(model.FloatFromAny(props["last_accessed"]))),
		CreatedAt:    timeFromMS(int64(model.FloatFromAny(props["created_at"]))),
		Namespace:    model.StringFromAny(props["namespace"]),
		TTL:          int64(model.FloatFromAny(props["ttl"])),
		ExpiresAt:    timeFromMS(int64(model.FloatFromAny(props["expires_at"]))),
		Version:      model.IntFromAny(props["version"]),
	}
	if raw, ok := props["embedding"].([]any); ok && len(raw) > 0 {
		rec.Embedding = make([]float32, len(raw))
		for i, v := range raw {
			rec.Embedding[i] = float32(model.FloatFromAny(v))
		}
	}
	if metadata := model.StringFromAny(props["metadata"]); metadata != "" && metadata != "{}" {
		_ = json.Unmarshal([]byte(metadata), &rec.Metadata)
	}
	if history := model.StringFromAny(props["history"]); history != "" && history != "[]" {
		_ = json.Unmarshal([]byte(history), &rec.History)
	}
	return rec
}

func (s *Neo4jStore) collect(ctx context.Context, cypher string, params map[string]any, op string) ([]model.MemoryRecord, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, model.E(model.KindStore, op, err)
	}
	var out []model.MemoryRecord
	for result.Next(ctx) {
		if v, ok := result.Record().Get("m"); ok {
			if node, ok := v.(neo4j.Node); ok {
				out = append(out, recordFromProps(node.Props))
			}
		}
	}
	if err := result.Err(); err != nil {
		return nil, model.E(model.KindStore, op, err)
	}
	return out, nil
}

func (s *Neo4jStore) write(ctx context.Context, cypher string, params map[string]any, op string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return model.E(model.KindStore, op, err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return model.E(model.KindStore, op, err)
	}
	return nil
}

func (s *Neo4jStore) Get(ctx context.Context, id string) (model.MemoryRecord, error) {
	records, err := s.collect(ctx,
		`MATCH (m:Memory {id: $id}) RETURN m`, map[string]any{"id": id}, "neo4j.get")
	if err != nil {
		return model.MemoryRecord{}, err
	}
	if len(records) == 0 {
		return model.MemoryRecord{}, ErrNotFound
	}
	return records[0], nil
}

func (s *Neo4jStore) Put(ctx context.Context, rec model.MemoryRecord) error {
	return s.write(ctx,
		`MERGE (m:Memory {id: $props.id}) SET m = $props`,
		map[string]any{"props": neo4jProps(rec)}, "neo4j.put")
}

func (s *Neo4jStore) Delete(ctx context.Context, id string) error {
	return s.write(ctx,
		`MATCH (m:Memory {id: $id}) DETACH DELETE m`,
		map[string]any{"id": id}, "neo4j.delete")
}

func (s *Neo4jStore) Has(ctx context.Context, id string) (bool, error) {
	records, err := s.collect(ctx,
		`MATCH (m:Memory {id: $id}) RETURN m LIMIT 1`, map[string]any{"id": id}, "neo4j.has")
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

func (s *Neo4jStore) List(ctx context.Context, f Filter) ([]model.MemoryRecord, error) {
	var (
		where  []string
		params = map[string]any{}
	)
	if f.Namespace != "" {
		where = append(where, "m.namespace = $namespace")
		params["namespace"] = f.Namespace
	}
	if len(f.Categories) > 0 {
		where = append(where, "m.category IN $categories")
		params["categories"] = f.Categories
	}
	if f.MinImportance > 0 {
		where = append(where, "m.importance >= $minImportance")
		params["minImportance"] = f.MinImportance
	}
	if !f.Since.IsZero() {
		where = append(where, "m.created_at >= $since")
		params["since"] = f.Since.UnixMilli()
	}
	if f.MaxAgeDays > 0 {
		cutoff := time.Now().UTC().Add(-time.Duration(f.MaxAgeDays * 24 * float64(time.Hour)))
		where = append(where, "m.created_at >= $maxAgeCutoff")
		params["maxAgeCutoff"] = cutoff.UnixMilli()
	}
	cypher := "MATCH (m:Memory)"
	if len(where) > 0 {
		cypher += " WHERE " + strings.Join(where, " AND ")
	}
	cypher += " RETURN m"
	records, err := s.collect(ctx, cypher, params, "neo4j.list")
	if err != nil {
		return nil, err
	}
	// Metadata equality and sorting happen in process: metadata is an
	// opaque JSON property on the node.
	if len(f.Metadata) > 0 {
		filtered := records[:0]
		for _, rec := range records {
			if model.MetadataMatches(rec.Metadata, f.Metadata) {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}
	sortRecords(records, f.SortBy, f.SortOrder)
	return paginate(records, f.Offset, f.Limit), nil
}

func (s *Neo4jStore) Search(ctx context.Context, query string, k int) ([]model.MemoryRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	tokens := token.Tokenize(query)
	if len(tokens) == 0 {
		tokens = []string{strings.ToLower(strings.TrimSpace(query))}
	}
	var clauses []string
	params := map[string]any{"k": k}
	for i, t := range tokens {
		if t == "" {
			continue
		}
		name := "tok" + strconv.Itoa(i)
		clauses = append(clauses, "toLower(m.content) CONTAINS $"+name)
		params[name] = t
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	return s.collect(ctx, `
		MATCH (m:Memory)
		WHERE `+strings.Join(clauses, " OR ")+`
		RETURN m
		ORDER BY m.created_at DESC, m.id ASC
		LIMIT $k`, params, "neo4j.search")
}

// VectorSearch fetches embedded nodes and ranks by cosine in process.
func (s *Neo4jStore) VectorSearch(ctx context.Context, embedding []float32, k int) ([]model.MemoryRecord, error) {
	if k <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	records, err := s.collect(ctx,
		`MATCH (m:Memory) WHERE size(m.embedding) > 0 RETURN m`, nil, "neo4j.vectorsearch")
	if err != nil {
		return nil, err
	}
	type scored struct {
		rec model.MemoryRecord
		sim float64
	}
	var hits []scored
	for _, rec := range records {
		sim, err := similarity.Cosine(embedding, rec.Embedding)
		if err != nil {
			continue
		}
		hits = append(hits, scored{rec: rec, sim: sim})
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

func (s *Neo4jStore) PutMany(ctx context.Context, recs []model.MemoryRecord) error {
	props := make([]map[string]any, len(recs))
	for i, rec := range recs {
		props[i] = neo4jProps(rec)
	}
	return s.write(ctx, `
		UNWIND $rows AS row
		MERGE (m:Memory {id: row.id}) SET m = row`,
		map[string]any{"rows": props}, "neo4j.putmany")
}

func (s *Neo4jStore) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.write(ctx,
		`MATCH (m:Memory) WHERE m.id IN $ids DETACH DELETE m`,
		map[string]any{"ids": ids}, "neo4j.deletemany")
}

func (s *Neo4jStore) Count(ctx context.Context, namespace string) (int, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)
	cypher := `MATCH (m:Memory) RETURN count(m) AS n`
	params := map[string]any{}
	if namespace != "" {
		cypher = `MATCH (m:Memory {namespace: $namespace}) RETURN count(m) AS n`
		params["namespace"] = namespace
	}
	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return 0, model.E(model.KindStore, "neo4j.count", err)
	}
	if result.Next(ctx) {
		if v, ok := result.Record().Get("n"); ok {
			if n, ok := v.(int64); ok {
				return int(n), nil
			}
		}
	}
	return 0, result.Err()
}

func (s *Neo4jStore) Prune(ctx context.Context, before time.Time) (int, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	result, err := session.Run(ctx, `
		MATCH (m:Memory) WHERE m.created_at < $before
		WITH collect(m) AS victims
		FOREACH (m IN victims | DETACH DELETE m)
		RETURN size(victims) AS n`,
		map[string]any{"before": before.UnixMilli()})
	if err != nil {
		return 0, model.E(model.KindStore, "neo4j.prune", err)
	}
	if result.Next(ctx) {
		if v, ok := result.Record().Get("n"); ok {
			if n, ok := v.(int64); ok {
				return int(n), nil
			}
		}
	}
	return 0, result.Err()
}

func (s *Neo4jStore) Clear(ctx context.Context, namespace string) error {
	if namespace == "" {
		return s.write(ctx, `MATCH (m:Memory) DETACH DELETE m`, nil, "neo4j.clear")
	}
	return s.write(ctx,
		`MATCH (m:Memory {namespace: $namespace}) DETACH DELETE m`,
		map[string]any{"namespace": namespace}, "neo4j.clear")
}

func (s *Neo4jStore) Dump(ctx context.Context) ([]model.MemoryRecord, error) {
	return s.collect(ctx,
		`MATCH (m:Memory) RETURN m ORDER BY m.created_at ASC, m.id ASC`, nil, "neo4j.dump")
}

// Init creates the uniqueness constraint and lookup indexes.
func (s *Neo4jStore) Init(ctx context.Context) error {
	for _, cypher := range []string{
		"CREATE CONSTRAINT IF NOT EXISTS FOR (m:Memory) REQUIRE m.id IS UNIQUE",
		"CREATE INDEX IF NOT EXISTS FOR (m:Memory) ON (m.namespace)",
		"CREATE INDEX IF NOT EXISTS FOR (m:Memory) ON (m.created_at)",
	} {
		if err := s.write(ctx, cypher, nil, "neo4j.init"); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the driver.
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

var (
	_ Store          = (*Neo4jStore)(nil)
	_ VectorSearcher = (*Neo4jStore)(nil)
	_ Lifecycle      = (*Neo4jStore)(nil)
)

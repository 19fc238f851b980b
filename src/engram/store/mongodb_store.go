package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Protocol-Lattice/engram/src/engram/model"
	"github.com/Protocol-Lattice/engram/src/engram/similarity"
	"github.com/Protocol-Lattice/engram/src/engram/token"
)

// MongoStore implements Store over a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

const mongoCloseTimeout = 5 * time.Second

// NewMongoStore connects and pings the server.
func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		return nil, errors.New("mongo collection name is required")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, model.E(model.KindStore, "mongo.connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, model.E(model.KindStore, "mongo.connect", err)
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

type mongoRecord struct {
	ID           string               `bson:"_id"`
	Content      string               `bson:"content"`
	Category     string               `bson:"category"`
	Source       string               `bson:"source,omitempty"`
	Surprise     float64              `bson:"surprise"`
	Importance   float64              `bson:"importance"`
	AccessCount  int                  `bson:"access_count"`
	LastAccessed *time.Time           `bson:"last_accessed,omitempty"`
	CreatedAt    time.Time            `bson:"created_at"`
	Embedding    []float64            `bson:"embedding,omitempty"`
	Metadata     map[string]any       `bson:"metadata,omitempty"`
	Namespace    string               `bson:"namespace"`
	TTL          int64                `bson:"ttl,omitempty"`
	ExpiresAt    *time.Time           `bson:"expires_at,omitempty"`
	Version      int                  `bson:"version"`
	History      []model.HistoryEntry `bson:"history,omitempty"`
}

func toMongoRecord(rec model.MemoryRecord) mongoRecord {
	doc := mongoRecord{
		ID:          rec.ID,
		Content:     rec.Content,
		Category:    rec.Category,
		Source:      rec.Source,
		Surprise:    rec.Surprise,
		Importance:  rec.Importance,
		AccessCount: rec.AccessCount,
		CreatedAt:   rec.CreatedAt.UTC(),
		Metadata:    rec.Metadata,
		Namespace:   rec.Namespace,
		TTL:         rec.TTL,
		Version:     rec.Version,
		History:     rec.History,
	}
	if !rec.LastAccessed.IsZero() {
		t := rec.LastAccessed.UTC()
		doc.LastAccessed = &t
	}
	if !rec.ExpiresAt.IsZero() {
		t := rec.ExpiresAt.UTC()
		doc.ExpiresAt = &t
	}
	if len(rec.Embedding) > 0 {
		doc.Embedding = make([]float64, len(rec.Embedding))
		for i, f := range rec.Embedding {
			doc.Embedding[i] = float64(f)
		}
	}
	return doc
}

func (d mongoRecord) toRecord() model.MemoryRecord {
	rec := model.MemoryRecord{
		ID:          d.ID,
		Content:     d.Content,
		Category:    d.Category,
		Source:      d.Source,
		Surprise:    d.Surprise,
		Importance:  d.Importance,
		AccessCount: d.AccessCount,
		CreatedAt:   d.CreatedAt.UTC(),
		Metadata:    d.Metadata,
		Namespace:   d.Namespace,
		TTL:         d.TTL,
		Version:     d.Version,
		History:     d.History,
	}
	if d.LastAccessed != nil {
		rec.LastAccessed = d.LastAccessed.UTC()
	}
	if d.ExpiresAt != nil {
		rec.ExpiresAt = d.ExpiresAt.UTC()
	}
	if len(d.Embedding) > 0 {
		rec.Embedding = make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			rec.Embedding[i] = float32(f)
		}
	}
	return rec
}

func (ms *MongoStore) Get(ctx context.Context, id string) (model.MemoryRecord, error) {
	var doc mongoRecord
	err := ms.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.MemoryRecord{}, ErrNotFound
	}
	if err != nil {
		return model.MemoryRecord{}, model.E(model.KindStore, "mongo.get", err)
	}
	return doc.toRecord(), nil
}

func (ms *MongoStore) Put(ctx context.Context, rec model.MemoryRecord) error {
	opts := options.Replace().SetUpsert(true)
	_, err := ms.collection.ReplaceOne(ctx, bson.M{"_id": rec.ID}, toMongoRecord(rec), opts)
	if err != nil {
		return model.E(model.KindStore, "mongo.put", err)
	}
	return nil
}

func (ms *MongoStore) Delete(ctx context.Context, id string) error {
	if _, err := ms.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return model.E(model.KindStore, "mongo.delete", err)
	}
	return nil
}

func (ms *MongoStore) Has(ctx context.Context, id string) (bool, error) {
	n, err := ms.collection.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, model.E(model.KindStore, "mongo.has", err)
	}
	return n > 0, nil
}

func (ms *MongoStore) List(ctx context.Context, f Filter) ([]model.MemoryRecord, error) {
	filter := bson.M{}
	if f.Namespace != "" {
		filter["namespace"] = f.Namespace
	}
	if len(f.Categories) > 0 {
		filter["category"] = bson.M{"$in": f.Categories}
	}
	if f.MinImportance > 0 {
		filter["importance"] = bson.M{"$gte": f.MinImportance}
	}
	created := bson.M{}
	if !f.Since.IsZero() {
		created["$gte"] = f.Since.UTC()
	}
	if f.MaxAgeDays > 0 {
		cutoff := time.Now().UTC().Add(-time.Duration(f.MaxAgeDays * 24 * float64(time.Hour)))
		if existing, ok := created["$gte"].(time.Time); !ok || cutoff.After(existing) {
			created["$gte"] = cutoff
		}
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	for k, v := range f.Metadata {
		filter["metadata."+k] = v
	}

	findOpts := options.Find().SetSort(mongoSort(f.SortBy, f.SortOrder))
	if f.Limit > 0 {
		findOpts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		findOpts.SetSkip(int64(f.Offset))
	}

	cursor, err := ms.collection.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, model.E(model.KindStore, "mongo.list", err)
	}
	defer cursor.Close(ctx)
	return decodeMongoCursor(ctx, cursor, "mongo.list")
}

func mongoSort(by SortBy, order SortOrder) bson.D {
	col := "created_at"
	switch by {
	case SortByImportance:
		col = "importance"
	case SortByAccessed:
		col = "last_accessed"
	case SortBySurprise:
		col = "surprise"
	}
	dir := -1
	if order == SortAsc {
		dir = 1
	}
	return bson.D{{Key: col, Value: dir}, {Key: "_id", Value: 1}}
}

func decodeMongoCursor(ctx context.Context, cursor *mongo.Cursor, op string) ([]model.MemoryRecord, error) {
	var out []model.MemoryRecord
	for cursor.Next(ctx) {
		var doc mongoRecord
		if err := cursor.Decode(&doc); err != nil {
			return nil, model.E(model.KindStore, op, err)
		}
		out = append(out, doc.toRecord())
	}
	if err := cursor.Err(); err != nil {
		return nil, model.E(model.KindStore, op, err)
	}
	return out, nil
}

func (ms *MongoStore) Search(ctx context.Context, query string, k int) ([]model.MemoryRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	tokens := token.Tokenize(query)
	if len(tokens) == 0 {
		tokens = []string{strings.TrimSpace(query)}
	}
	var clauses []bson.M
	for _, t := range tokens {
		if t == "" {
			continue
		}
		clauses = append(clauses, bson.M{"content": bson.M{
			"$regex":   regexQuote(t),
			"$options": "i",
		}})
	}
	if len(clauses) == 0 {
		return nil, nil
	}
	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(k))
	cursor, err := ms.collection.Find(ctx, bson.M{"$or": clauses}, findOpts)
	if err != nil {
		return nil, model.E(model.KindStore, "mongo.search", err)
	}
	defer cursor.Close(ctx)
	return decodeMongoCursor(ctx, cursor, "mongo.search")
}

func regexQuote(s string) string {
	special := `\.+*?()|[]{}^$`
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// VectorSearch fetches embedded documents and ranks by cosine in
// process; an Atlas vector index is not required.
func (ms *MongoStore) VectorSearch(ctx context.Context, embedding []float32, k int) ([]model.MemoryRecord, error) {
	if k <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	cursor, err := ms.collection.Find(ctx, bson.M{"embedding": bson.M{"$exists": true, "$ne": nil}})
	if err != nil {
		return nil, model.E(model.KindStore, "mongo.vectorsearch", err)
	}
	defer cursor.Close(ctx)
	records, err := decodeMongoCursor(ctx, cursor, "mongo.vectorsearch")
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

func (ms *MongoStore) PutMany(ctx context.Context, recs []model.MemoryRecord) error {
	for _, rec := range recs {
		if err := ms.Put(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (ms *MongoStore) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := ms.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
		return model.E(model.KindStore, "mongo.deletemany", err)
	}
	return nil
}

func (ms *MongoStore) Count(ctx context.Context, namespace string) (int, error) {
	filter := bson.M{}
	if namespace != "" {
		filter["namespace"] = namespace
	}
	n, err := ms.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, model.E(model.KindStore, "mongo.count", err)
	}
	return int(n), nil
}

func (ms *MongoStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := ms.collection.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": before.UTC()}})
	if err != nil {
		return 0, model.E(model.KindStore, "mongo.prune", err)
	}
	return int(res.DeletedCount), nil
}

func (ms *MongoStore) Clear(ctx context.Context, namespace string) error {
	filter := bson.M{}
	if namespace != "" {
		filter["namespace"] = namespace
	}
	if _, err := ms.collection.DeleteMany(ctx, filter); err != nil {
		return model.E(model.KindStore, "mongo.clear", err)
	}
	return nil
}

func (ms *MongoStore) Dump(ctx context.Context) ([]model.MemoryRecord, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := ms.collection.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, model.E(model.KindStore, "mongo.dump", err)
	}
	defer cursor.Close(ctx)
	return decodeMongoCursor(ctx, cursor, "mongo.dump")
}

// Init creates the supporting indexes.
func (ms *MongoStore) Init(ctx context.Context) error {
	_, err := ms.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "namespace", Value: 1}}},
		{Keys: bson.D{{Key: "namespace", Value: 1}, {Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return model.E(model.KindStore, "mongo.init", err)
	}
	return nil
}

// Close disconnects from the server.
func (ms *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

var (
	_ Store          = (*MongoStore)(nil)
	_ VectorSearcher = (*MongoStore)(nil)
	_ Lifecycle      = (*MongoStore)(nil)
)

package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "engram.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLitePutGetRoundTrip(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	rec := model.MemoryRecord{
		ID:           "a",
		Content:      "User prefers TypeScript",
		Category:     "preference",
		Source:       "manual",
		Surprise:     1.0,
		Importance:   1.2,
		AccessCount:  2,
		LastAccessed: time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC),
		CreatedAt:    time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Embedding:    []float32{0.25, -1.5, 3},
		Metadata:     map[string]any{"team": "infra"},
		Namespace:    "default",
		TTL:          3600,
		ExpiresAt:    time.Date(2025, 5, 1, 1, 0, 0, 0, time.UTC),
		Version:      2,
		History: []model.HistoryEntry{{
			Content:   "older text",
			Timestamp: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
			Reason:    "merged",
		}},
	}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != rec.Content || got.Category != rec.Category || got.Version != 2 || got.TTL != 3600 {
		t.Fatalf("fields lost: %#v", got)
	}
	if !reflect.DeepEqual(got.Embedding, rec.Embedding) {
		t.Fatalf("embedding lost: %#v", got.Embedding)
	}
	if got.Metadata["team"] != "infra" {
		t.Fatalf("metadata lost: %#v", got.Metadata)
	}
	if len(got.History) != 1 || got.History[0].Reason != "merged" {
		t.Fatalf("history lost: %#v", got.History)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) || !got.ExpiresAt.Equal(rec.ExpiresAt) {
		t.Fatalf("timestamps lost: %#v", got)
	}
}

func TestSQLitePutUpserts(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	rec := model.MemoryRecord{ID: "a", Content: "v1", Namespace: "default", CreatedAt: time.Now().UTC(), Version: 1}
	_ = s.Put(ctx, rec)
	rec.Content = "v2"
	rec.Version = 2
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, _ := s.Get(ctx, "a")
	if got.Content != "v2" || got.Version != 2 {
		t.Fatalf("upsert lost update: %#v", got)
	}
	n, _ := s.Count(ctx, "")
	if n != 1 {
		t.Fatalf("upsert duplicated row: %d", n)
	}
}

func TestSQLiteGetMissing(t *testing.T) {
	s := newSQLite(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteSearchAndList(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	_ = s.Put(ctx, model.MemoryRecord{ID: "a", Content: "Deploy with Vercel", Category: "skill", Importance: 0.9, Namespace: "default", CreatedAt: base, Version: 1})
	_ = s.Put(ctx, model.MemoryRecord{ID: "b", Content: "Visited Berlin", Category: "episode", Importance: 0.4, Namespace: "travel", CreatedAt: base.Add(time.Hour), Version: 1})

	hits, err := s.Search(ctx, "vercel deployment", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "a" {
		t.Fatalf("unexpected hits: %#v", hits)
	}

	got, err := s.List(ctx, Filter{Namespace: "travel"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("namespace filter failed: %#v", got)
	}

	got, _ = s.List(ctx, Filter{SortBy: SortByImportance, SortOrder: SortAsc})
	if len(got) != 2 || got[0].ID != "b" {
		t.Fatalf("importance sort failed: %#v", got)
	}
}

func TestSQLiteVectorSearchRanksByCosine(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()
	_ = s.Put(ctx, model.MemoryRecord{ID: "close", Content: "x", Namespace: "default", CreatedAt: now, Embedding: []float32{1, 0}, Version: 1})
	_ = s.Put(ctx, model.MemoryRecord{ID: "far", Content: "y", Namespace: "default", CreatedAt: now, Embedding: []float32{0, 1}, Version: 1})

	got, err := s.VectorSearch(ctx, []float32{1, 0.1}, 1)
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "close" {
		t.Fatalf("unexpected ranking: %#v", got)
	}
}

func TestSQLiteDeleteManyPruneClear(t *testing.T) {
	s := newSQLite(t)
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		_ = s.Put(ctx, model.MemoryRecord{ID: id, Content: id, Namespace: "default", CreatedAt: base.Add(time.Duration(i) * time.Hour), Version: 1})
	}
	if err := s.DeleteMany(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("deletemany: %v", err)
	}
	n, _ := s.Count(ctx, "default")
	if n != 1 {
		t.Fatalf("expected 1 left, got %d", n)
	}
	pruned, err := s.Prune(ctx, base.Add(3*time.Hour))
	if err != nil || pruned != 1 {
		t.Fatalf("prune: %d %v", pruned, err)
	}
	if err := s.Clear(ctx, "default"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, _ = s.Count(ctx, "")
	if n != 0 {
		t.Fatalf("expected empty store, got %d", n)
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	in := []float32{0, -0.5, 1.25, 3e6}
	out := decodeVector(encodeVector(in))
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("codec lost data: %#v", out)
	}
	if encodeVector(nil) != nil {
		t.Fatal("nil vector should encode to nil")
	}
	if decodeVector(nil) != nil {
		t.Fatal("nil blob should decode to nil")
	}
}

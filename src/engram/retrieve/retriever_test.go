package retrieve

import (
	"context"
	"testing"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
	"github.com/Protocol-Lattice/engram/src/engram/store"
	"github.com/Protocol-Lattice/engram/src/engram/token"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newRetriever(st store.Store, weights model.RetrievalWeights) *Retriever {
	return &Retriever{
		Store:        st,
		Cache:        token.NewCache(0),
		Weights:      weights,
		HalfLifeDays: 30,
		Clock:        func() time.Time { return testNow },
	}
}

func put(t *testing.T, st store.Store, rec model.MemoryRecord) {
	t.Helper()
	if rec.Namespace == "" {
		rec.Namespace = "default"
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = testNow.Add(-time.Hour)
	}
	if err := st.Put(context.Background(), rec); err != nil {
		t.Fatalf("put: %v", err)
	}
}

func TestRecallRelevanceOnlyOrdering(t *testing.T) {
	st := store.NewInMemoryStore()
	put(t, st, model.MemoryRecord{ID: "sky", Content: "The sky is blue", Category: "fact", Importance: 0.1})
	put(t, st, model.MemoryRecord{ID: "other", Content: "Important unrelated fact about the sky budget", Category: "fact", Importance: 0.9})

	r := newRetriever(st, model.RetrievalWeights{Relevance: 1})
	got, err := r.Recall(context.Background(), "sky blue color", nil, Options{K: 2, Namespace: "default"})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) == 0 || got[0].ID != "sky" {
		t.Fatalf("expected the lexically closest record first, got %#v", got)
	}
}

func TestRecallTruncatesToK(t *testing.T) {
	st := store.NewInMemoryStore()
	for _, id := range []string{"a", "b", "c", "d"} {
		put(t, st, model.MemoryRecord{ID: id, Content: "shared keyword topic " + id, Category: "fact", Importance: 0.5})
	}
	r := newRetriever(st, model.DefaultRetrievalWeights())
	got, err := r.Recall(context.Background(), "shared keyword", nil, Options{K: 2, Namespace: "default"})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected k=2 results, got %d", len(got))
	}
}

func TestRecallFilters(t *testing.T) {
	st := store.NewInMemoryStore()
	put(t, st, model.MemoryRecord{ID: "old", Content: "project alpha notes", Category: "fact", CreatedAt: testNow.AddDate(0, 0, -10)})
	put(t, st, model.MemoryRecord{ID: "new", Content: "project alpha roadmap", Category: "episode", CreatedAt: testNow.AddDate(0, 0, -1)})
	put(t, st, model.MemoryRecord{ID: "elsewhere", Content: "project alpha secrets", Category: "fact", Namespace: "other", CreatedAt: testNow.AddDate(0, 0, -1)})
	put(t, st, model.MemoryRecord{ID: "tagged", Content: "project alpha tagged", Category: "fact", CreatedAt: testNow.AddDate(0, 0, -1), Metadata: map[string]any{"team": "infra"}})

	r := newRetriever(st, model.DefaultRetrievalWeights())
	ctx := context.Background()

	got, _ := r.Recall(ctx, "project alpha", nil, Options{K: 10, Namespace: "default", Categories: []string{"episode"}})
	if len(got) != 1 || got[0].ID != "new" {
		t.Fatalf("category filter failed: %#v", got)
	}

	got, _ = r.Recall(ctx, "project alpha", nil, Options{K: 10, Namespace: "default", Since: testNow.AddDate(0, 0, -5)})
	for _, rec := range got {
		if rec.CreatedAt.Before(testNow.AddDate(0, 0, -5)) {
			t.Fatalf("since filter leaked %q", rec.ID)
		}
	}

	got, _ = r.Recall(ctx, "project alpha", nil, Options{K: 10, Namespace: "default"})
	for _, rec := range got {
		if rec.ID == "elsewhere" {
			t.Fatal("namespace filter leaked a foreign record")
		}
	}

	got, _ = r.Recall(ctx, "project alpha", nil, Options{K: 10, Namespace: "default", Metadata: map[string]any{"team": "infra"}})
	if len(got) != 1 || got[0].ID != "tagged" {
		t.Fatalf("metadata filter failed: %#v", got)
	}
}

func TestRecallBumpsAccessCounters(t *testing.T) {
	st := store.NewInMemoryStore()
	put(t, st, model.MemoryRecord{ID: "a", Content: "deploy with vercel", Category: "skill", Importance: 0.9, AccessCount: 2})

	r := newRetriever(st, model.DefaultRetrievalWeights())
	got, err := r.Recall(context.Background(), "vercel", nil, Options{K: 1, Namespace: "default"})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if got[0].AccessCount != 3 {
		t.Fatalf("expected returned count 3, got %d", got[0].AccessCount)
	}
	stored, _ := st.Get(context.Background(), "a")
	if stored.AccessCount != 3 {
		t.Fatalf("expected persisted count 3, got %d", stored.AccessCount)
	}
	if !stored.LastAccessed.Equal(testNow) {
		t.Fatalf("expected lastAccessed %v, got %v", testNow, stored.LastAccessed)
	}
}

func TestRecallMinImportanceAppliesToDecayedValue(t *testing.T) {
	st := store.NewInMemoryStore()
	// Raw importance is above the cutoff, decayed importance is not.
	put(t, st, model.MemoryRecord{ID: "faded", Content: "ancient fact topic", Category: "fact", Importance: 0.3, CreatedAt: testNow.AddDate(0, 0, -300)})
	put(t, st, model.MemoryRecord{ID: "fresh", Content: "current fact topic", Category: "fact", Importance: 0.3, CreatedAt: testNow.AddDate(0, 0, -1)})

	r := newRetriever(st, model.DefaultRetrievalWeights())
	got, err := r.Recall(context.Background(), "fact topic", nil, Options{K: 10, Namespace: "default", MinImportance: 0.2})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 1 || got[0].ID != "fresh" {
		t.Fatalf("expected decayed cutoff to drop the old record, got %#v", got)
	}
}

func TestRecallAnnotatesDecayedImportanceAndExplanation(t *testing.T) {
	st := store.NewInMemoryStore()
	put(t, st, model.MemoryRecord{ID: "a", Content: "deploy with vercel", Category: "skill", Importance: 0.8})

	r := newRetriever(st, model.DefaultRetrievalWeights())
	got, err := r.Recall(context.Background(), "vercel", nil, Options{K: 1, Namespace: "default", Explain: true})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if got[0].DecayedImportance <= 0 {
		t.Fatal("expected decayed importance annotation")
	}
	if got[0].Explanation == "" {
		t.Fatal("expected explanation when asked")
	}
}

func TestRecallDeterministicTieBreaks(t *testing.T) {
	st := store.NewInMemoryStore()
	created := testNow.Add(-time.Hour)
	put(t, st, model.MemoryRecord{ID: "b", Content: "same topic text", Category: "fact", Importance: 0.5, CreatedAt: created})
	put(t, st, model.MemoryRecord{ID: "a", Content: "same topic text", Category: "fact", Importance: 0.5, CreatedAt: created})

	r := newRetriever(st, model.DefaultRetrievalWeights())
	for i := 0; i < 5; i++ {
		got, err := r.Recall(context.Background(), "same topic", nil, Options{K: 2, Namespace: "default"})
		if err != nil {
			t.Fatalf("recall: %v", err)
		}
		if got[0].ID != "a" || got[1].ID != "b" {
			t.Fatalf("ordering unstable on run %d: %v, %v", i, got[0].ID, got[1].ID)
		}
	}
}

func TestRecallEmptyQueryFallsBackToImportanceAndRecency(t *testing.T) {
	st := store.NewInMemoryStore()
	put(t, st, model.MemoryRecord{ID: "weak", Content: "minor detail", Category: "fact", Importance: 0.1, CreatedAt: testNow.AddDate(0, 0, -40)})
	put(t, st, model.MemoryRecord{ID: "strong", Content: "major fact", Category: "fact", Importance: 1.5, CreatedAt: testNow.AddDate(0, 0, -1)})

	r := newRetriever(st, model.DefaultRetrievalWeights())
	got, err := r.Recall(context.Background(), "", nil, Options{K: 1, Namespace: "default"})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 1 || got[0].ID != "strong" {
		t.Fatalf("expected the important recent record, got %#v", got)
	}
}

type fixedEmbedder struct{ vec []float32 }

func (f fixedEmbedder) Embed(context.Context, string) ([]float32, error) { return f.vec, nil }

func TestRecallDimensionMismatchDemotesToKeywords(t *testing.T) {
	st := store.NewInMemoryStore()
	put(t, st, model.MemoryRecord{ID: "a", Content: "vector backed memory", Category: "fact", Importance: 0.5, Embedding: []float32{1, 2, 3}})

	r := newRetriever(st, model.RetrievalWeights{Relevance: 1})
	got, err := r.Recall(context.Background(), "vector memory", fixedEmbedder{vec: []float32{1, 2}}, Options{K: 1, Namespace: "default"})
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected keyword fallback to keep the record, got %#v", got)
	}
	if got[0].Score <= 0 {
		t.Fatalf("expected a keyword relevance score, got %v", got[0].Score)
	}
}

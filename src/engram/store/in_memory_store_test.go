package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
)

func seedStore(t *testing.T) *InMemoryStore {
	t.Helper()
	s := NewInMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	records := []model.MemoryRecord{
		{ID: "a", Content: "User prefers TypeScript", Category: "preference", Importance: 1.2, Surprise: 1.0, Namespace: "default", CreatedAt: base},
		{ID: "b", Content: "Deploy with vercel", Category: "skill", Importance: 0.9, Surprise: 0.8, Namespace: "default", CreatedAt: base.Add(time.Hour), Metadata: map[string]any{"team": "infra"}},
		{ID: "c", Content: "Visited Berlin in May", Category: "episode", Importance: 0.4, Surprise: 0.6, Namespace: "travel", CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, rec := range records {
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	return s
}

func TestInMemoryGetPutDelete(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	rec, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Content != "User prefers TypeScript" {
		t.Fatalf("unexpected record: %#v", rec)
	}

	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ok, err := s.Has(ctx, "b")
	if err != nil || !ok {
		t.Fatalf("expected b present, got %v %v", ok, err)
	}
}

func TestInMemoryGetReturnsCopy(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()
	rec, _ := s.Get(ctx, "b")
	rec.Metadata["team"] = "mutated"
	again, _ := s.Get(ctx, "b")
	if again.Metadata["team"] != "infra" {
		t.Fatal("store state leaked through returned record")
	}
}

func TestInMemoryListFilters(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	got, err := s.List(ctx, Filter{Namespace: "default"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 default-namespace records, got %d", len(got))
	}

	got, _ = s.List(ctx, Filter{Categories: []string{"episode"}})
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("category filter failed: %#v", got)
	}

	got, _ = s.List(ctx, Filter{MinImportance: 1.0})
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("minImportance filter failed: %#v", got)
	}

	got, _ = s.List(ctx, Filter{Metadata: map[string]any{"team": "infra"}})
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("metadata filter failed: %#v", got)
	}

	since := time.Date(2025, 5, 1, 0, 30, 0, 0, time.UTC)
	got, _ = s.List(ctx, Filter{Since: since})
	if len(got) != 2 {
		t.Fatalf("since filter failed: %#v", got)
	}
}

func TestInMemoryListSortAndPagination(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	got, _ := s.List(ctx, Filter{SortBy: SortByImportance, SortOrder: SortDesc})
	if got[0].ID != "a" || got[2].ID != "c" {
		t.Fatalf("importance sort failed: %v %v %v", got[0].ID, got[1].ID, got[2].ID)
	}

	got, _ = s.List(ctx, Filter{SortBy: SortByCreated, SortOrder: SortAsc, Limit: 1, Offset: 1})
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("pagination failed: %#v", got)
	}
}

func TestInMemorySearch(t *testing.T) {
	s := seedStore(t)
	got, err := s.Search(context.Background(), "vercel deployment", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != "b" {
		t.Fatalf("unexpected search hits: %#v", got)
	}
	if got, _ := s.Search(context.Background(), "vercel", 0); len(got) != 0 {
		t.Fatalf("k=0 should return nothing, got %#v", got)
	}
}

func TestInMemoryCountPruneClear(t *testing.T) {
	s := seedStore(t)
	ctx := context.Background()

	n, _ := s.Count(ctx, "")
	if n != 3 {
		t.Fatalf("expected 3 total, got %d", n)
	}
	n, _ = s.Count(ctx, "travel")
	if n != 1 {
		t.Fatalf("expected 1 in travel, got %d", n)
	}

	pruned, err := s.Prune(ctx, time.Date(2025, 5, 1, 0, 30, 0, 0, time.UTC))
	if err != nil || pruned != 1 {
		t.Fatalf("expected 1 pruned, got %d %v", pruned, err)
	}

	if err := s.Clear(ctx, "travel"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, _ = s.Count(ctx, "")
	if n != 1 {
		t.Fatalf("expected 1 after clear, got %d", n)
	}
}

func TestInMemoryDumpOrdersByCreation(t *testing.T) {
	s := seedStore(t)
	got, err := s.Dump(context.Background())
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if len(got) != 3 || got[0].ID != "a" || got[2].ID != "c" {
		t.Fatalf("unexpected dump order: %#v", got)
	}
}

package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
)

func TestJSONFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories.json")
	ctx := context.Background()

	s, err := NewJSONFileStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec := model.MemoryRecord{
		ID:        "a",
		Content:   "User prefers TypeScript",
		Category:  "preference",
		Namespace: "default",
		CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Version:   1,
	}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewJSONFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Content != rec.Content || !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("record did not survive reopen: %#v", got)
	}
}

func TestJSONFileStoreSidelinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memories.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := NewJSONFileStore(path)
	if err != nil {
		t.Fatalf("expected recovery from corruption, got %v", err)
	}
	n, _ := s.Count(context.Background(), "")
	if n != 0 {
		t.Fatalf("expected empty store after corruption, got %d", n)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	sidelined := false
	for _, e := range entries {
		if strings.Contains(e.Name(), ".corrupted.") {
			sidelined = true
		}
	}
	if !sidelined {
		t.Fatal("expected corrupt file to be moved aside")
	}
}

func TestJSONFileStoreDeleteRewritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memories.json")
	ctx := context.Background()
	s, err := NewJSONFileStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = s.Put(ctx, model.MemoryRecord{ID: "a", Content: "alpha", Namespace: "default", CreatedAt: time.Now().UTC()})
	_ = s.Put(ctx, model.MemoryRecord{ID: "b", Content: "beta", Namespace: "default", CreatedAt: time.Now().UTC()})
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	reopened, err := NewJSONFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if ok, _ := reopened.Has(ctx, "a"); ok {
		t.Fatal("deleted record resurfaced after reopen")
	}
	if ok, _ := reopened.Has(ctx, "b"); !ok {
		t.Fatal("surviving record lost after reopen")
	}
}

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
)

// JSONFileStore persists the whole memory set as a single JSON document
// and keeps a working copy in memory. Every mutation rewrites the file
// atomically (temp file + rename). A corrupt file on open is moved
// aside to <path>.corrupted.<ts> and the store resumes from empty.
type JSONFileStore struct {
	mu   sync.Mutex
	path string
	mem  *InMemoryStore
}

type jsonFileDoc struct {
	Version  int                  `json:"version"`
	Memories []model.MemoryRecord `json:"memories"`
}

// NewJSONFileStore opens (or creates) the file-backed store at path.
func NewJSONFileStore(path string) (*JSONFileStore, error) {
	s := &JSONFileStore{path: path, mem: NewInMemoryStore()}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONFileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return model.E(model.KindStore, "json.load", err)
	}
	var doc jsonFileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		sidelined := fmt.Sprintf("%s.corrupted.%d", s.path, time.Now().UnixMilli())
		if mvErr := os.Rename(s.path, sidelined); mvErr != nil {
			return model.E(model.KindStore, "json.load", mvErr)
		}
		return nil
	}
	for _, rec := range doc.Memories {
		_ = s.mem.Put(context.Background(), rec)
	}
	return nil
}

func (s *JSONFileStore) save() error {
	records, _ := s.mem.Dump(context.Background())
	doc := jsonFileDoc{Version: 1, Memories: records}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return model.E(model.KindStore, "json.save", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return model.E(model.KindStore, "json.save", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return model.E(model.KindStore, "json.save", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return model.E(model.KindStore, "json.save", err)
	}
	return nil
}

func (s *JSONFileStore) Get(ctx context.Context, id string) (model.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem.Get(ctx, id)
}

func (s *JSONFileStore) Put(ctx context.Context, rec model.MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Put(ctx, rec); err != nil {
		return err
	}
	return s.save()
}

func (s *JSONFileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Delete(ctx, id); err != nil {
		return err
	}
	return s.save()
}

func (s *JSONFileStore) Has(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem.Has(ctx, id)
}

func (s *JSONFileStore) List(ctx context.Context, f Filter) ([]model.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem.List(ctx, f)
}

func (s *JSONFileStore) Search(ctx context.Context, query string, k int) ([]model.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem.Search(ctx, query, k)
}

func (s *JSONFileStore) PutMany(ctx context.Context, recs []model.MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.PutMany(ctx, recs); err != nil {
		return err
	}
	return s.save()
}

func (s *JSONFileStore) DeleteMany(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.DeleteMany(ctx, ids); err != nil {
		return err
	}
	return s.save()
}

func (s *JSONFileStore) Count(ctx context.Context, namespace string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem.Count(ctx, namespace)
}

func (s *JSONFileStore) Prune(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.mem.Prune(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := s.save(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *JSONFileStore) Clear(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Clear(ctx, namespace); err != nil {
		return err
	}
	return s.save()
}

func (s *JSONFileStore) Dump(ctx context.Context) ([]model.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem.Dump(ctx)
}

// Init satisfies Lifecycle; the constructor already loaded the file.
func (s *JSONFileStore) Init(context.Context) error { return nil }

// Close flushes the current state one last time.
func (s *JSONFileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save()
}

var (
	_ Store     = (*JSONFileStore)(nil)
	_ Lifecycle = (*JSONFileStore)(nil)
)

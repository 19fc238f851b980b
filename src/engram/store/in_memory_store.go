package store

import (
	"context"
	"sync"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
)

// InMemoryStore implements Store for tests and lightweight deployments.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]model.MemoryRecord
}

// NewInMemoryStore returns an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]model.MemoryRecord)}
}

func (s *InMemoryStore) Get(_ context.Context, id string) (model.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return model.MemoryRecord{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *InMemoryStore) Put(_ context.Context, rec model.MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *InMemoryStore) Has(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}

func (s *InMemoryStore) List(_ context.Context, f Filter) ([]model.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now().UTC()
	var out []model.MemoryRecord
	for _, rec := range s.records {
		if matchFilter(rec, f, now) {
			out = append(out, rec.Clone())
		}
	}
	sortRecords(out, f.SortBy, f.SortOrder)
	return paginate(out, f.Offset, f.Limit), nil
}

func (s *InMemoryStore) Search(_ context.Context, query string, k int) ([]model.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]model.MemoryRecord, 0, len(s.records))
	for _, rec := range s.records {
		all = append(all, rec)
	}
	hits := searchRecords(all, query, k)
	out := make([]model.MemoryRecord, len(hits))
	for i, rec := range hits {
		out[i] = rec.Clone()
	}
	return out, nil
}

func (s *InMemoryStore) PutMany(ctx context.Context, recs []model.MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		s.records[rec.ID] = rec.Clone()
	}
	return nil
}

func (s *InMemoryStore) DeleteMany(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

func (s *InMemoryStore) Count(_ context.Context, namespace string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if namespace == "" {
		return len(s.records), nil
	}
	n := 0
	for _, rec := range s.records {
		if rec.Namespace == namespace {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.records {
		if rec.CreatedAt.Before(before) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Clear(_ context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if namespace == "" {
		s.records = make(map[string]model.MemoryRecord)
		return nil
	}
	for id, rec := range s.records {
		if rec.Namespace == namespace {
			delete(s.records, id)
		}
	}
	return nil
}

func (s *InMemoryStore) Dump(_ context.Context) ([]model.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.MemoryRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sortRecords(out, SortByCreated, SortAsc)
	return out, nil
}

var _ Store = (*InMemoryStore)(nil)

// Package store defines the persistence contract the engine consumes
// and ships six implementations of it: in-memory, JSON file, SQLite,
// Postgres, MongoDB and Neo4j.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
)

// ErrNotFound is returned by Get when no record carries the id.
var ErrNotFound = errors.New("engram: memory not found")

// SortBy names the List sort keys.
type SortBy string

const (
	SortByImportance SortBy = "importance"
	SortByCreated    SortBy = "created"
	SortByAccessed   SortBy = "accessed"
	SortBySurprise   SortBy = "surprise"
)

// SortOrder is the List sort direction.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Filter narrows List results. Zero fields are ignored.
type Filter struct {
	Namespace     string
	Categories    []string
	MinImportance float64
	MaxAgeDays    float64
	Since         time.Time
	Metadata      map[string]any
	Limit         int
	Offset        int
	SortBy        SortBy
	SortOrder     SortOrder
}

// Store is the full capability set the engine consumes. Implementations
// must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, id string) (model.MemoryRecord, error)
	Put(ctx context.Context, rec model.MemoryRecord) error
	Delete(ctx context.Context, id string) error
	Has(ctx context.Context, id string) (bool, error)

	// List returns records matching the filter.
	List(ctx context.Context, f Filter) ([]model.MemoryRecord, error)

	// Search returns an opaque keyword candidate set for a query. The
	// engine treats the result as candidates, not a ranking.
	Search(ctx context.Context, query string, k int) ([]model.MemoryRecord, error)

	PutMany(ctx context.Context, recs []model.MemoryRecord) error
	DeleteMany(ctx context.Context, ids []string) error
	Count(ctx context.Context, namespace string) (int, error)

	// Prune deletes records created before the timestamp and reports
	// how many were removed.
	Prune(ctx context.Context, before time.Time) (int, error)

	Clear(ctx context.Context, namespace string) error
	Dump(ctx context.Context) ([]model.MemoryRecord, error)
}

// VectorSearcher is the optional vector-search capability. When a store
// implements it, recall unions its results with keyword search.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, embedding []float32, k int) ([]model.MemoryRecord, error)
}

// Lifecycle is the optional init/close capability for stores holding
// external resources.
type Lifecycle interface {
	Init(ctx context.Context) error
	Close() error
}

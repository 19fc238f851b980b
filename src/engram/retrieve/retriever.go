// Package retrieve generates, filters, scores and ranks recall
// candidates for a query.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/decay"
	"github.com/Protocol-Lattice/engram/src/engram/model"
	"github.com/Protocol-Lattice/engram/src/engram/similarity"
	"github.com/Protocol-Lattice/engram/src/engram/store"
	"github.com/Protocol-Lattice/engram/src/engram/token"
)

// Embedder is the minimal embedding capability recall consumes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options narrows and shapes one recall.
type Options struct {
	K             int
	Categories    []string
	MinImportance float64
	Since         time.Time
	Namespace     string
	Metadata      map[string]any
	Explain       bool
}

// Retriever runs the recall pipeline over a store.
type Retriever struct {
	Store        store.Store
	Cache        *token.Cache
	Weights      model.RetrievalWeights
	HalfLifeDays float64
	Clock        func() time.Time
}

// overFetchFactor widens candidate generation beyond k.
const overFetchFactor = 3

// Recall runs the full pipeline. Returned records are annotated with
// Score, DecayedImportance and (optionally) Explanation, and their
// access counters have been bumped and persisted. A failing persist
// does not suppress results; it surfaces in the returned error.
func (r *Retriever) Recall(ctx context.Context, query string, embedder Embedder, opts Options) ([]model.MemoryRecord, error) {
	if opts.K <= 0 {
		return nil, nil
	}
	now := r.now()

	// Query embedding is best-effort: failures demote to keyword-only.
	var queryEmb []float32
	if embedder != nil {
		if vec, err := embedder.Embed(ctx, query); err == nil && len(vec) > 0 {
			queryEmb = vec
		}
	}

	candidates, err := r.generate(ctx, query, queryEmb, opts)
	if err != nil {
		return nil, err
	}

	queryTokens := token.Tokenize(query)
	filtered := candidates[:0]
	for _, rec := range candidates {
		if !r.passes(rec, opts) {
			continue
		}
		r.score(&rec, query, queryTokens, queryEmb, now, opts.Explain)
		filtered = append(filtered, rec)
	}

	if opts.MinImportance > 0 {
		kept := filtered[:0]
		for _, rec := range filtered {
			if rec.DecayedImportance >= opts.MinImportance {
				kept = append(kept, rec)
			}
		}
		filtered = kept
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		a, b := filtered[i], filtered[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	if len(filtered) > opts.K {
		filtered = filtered[:opts.K]
	}

	// Access bookkeeping happens after filtering, before returning.
	var persistErrs []error
	for i := range filtered {
		filtered[i].AccessCount++
		filtered[i].LastAccessed = now
		if err := r.Store.Put(ctx, filtered[i]); err != nil {
			persistErrs = append(persistErrs, err)
		}
	}
	return filtered, errors.Join(persistErrs...)
}

// generate builds the candidate set: vector search (when the store and
// an embedding allow it) unioned with keyword search, deduplicated by
// id. An empty query scans the namespace instead, so recall degrades to
// importance-and-recency ordering.
func (r *Retriever) generate(ctx context.Context, query string, queryEmb []float32, opts Options) ([]model.MemoryRecord, error) {
	fetch := opts.K * overFetchFactor
	if fetch < opts.K {
		fetch = opts.K
	}

	if query == "" {
		records, err := r.Store.List(ctx, store.Filter{Namespace: opts.Namespace})
		if err != nil {
			return nil, model.E(model.KindStore, "recall.list", err)
		}
		return records, nil
	}

	seen := make(map[string]struct{})
	var candidates []model.MemoryRecord

	if vs, ok := r.Store.(store.VectorSearcher); ok && len(queryEmb) > 0 {
		vecHits, err := vs.VectorSearch(ctx, queryEmb, fetch)
		if err == nil {
			for _, rec := range vecHits {
				if _, dup := seen[rec.ID]; dup {
					continue
				}
				seen[rec.ID] = struct{}{}
				candidates = append(candidates, rec)
			}
		}
	}

	keyHits, err := r.Store.Search(ctx, query, fetch)
	if err != nil {
		return nil, model.E(model.KindStore, "recall.search", err)
	}
	for _, rec := range keyHits {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		candidates = append(candidates, rec)
	}
	return candidates, nil
}

func (r *Retriever) passes(rec model.MemoryRecord, opts Options) bool {
	if len(opts.Categories) > 0 {
		found := false
		for _, c := range opts.Categories {
			if rec.Category == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !opts.Since.IsZero() && rec.CreatedAt.Before(opts.Since) {
		return false
	}
	if opts.Namespace != "" && rec.Namespace != opts.Namespace {
		return false
	}
	if len(opts.Metadata) > 0 && !model.MetadataMatches(rec.Metadata, opts.Metadata) {
		return false
	}
	return true
}

func (r *Retriever) score(rec *model.MemoryRecord, query string, queryTokens []string, queryEmb []float32, now time.Time, explain bool) {
	var relevance float64
	if len(queryEmb) > 0 && len(rec.Embedding) > 0 {
		if sim, err := similarity.Cosine(queryEmb, rec.Embedding); err == nil {
			relevance = sim
		} else {
			// Dimension mismatch demotes this record to keywords.
			relevance = similarity.Jaccard(queryTokens, r.Cache.Tokens(rec.ID, rec.Content))
		}
	} else {
		relevance = similarity.Jaccard(queryTokens, r.Cache.Tokens(rec.ID, rec.Content))
	}

	importance := decay.Importance(*rec, r.HalfLifeDays, now)
	ageDays := now.Sub(rec.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	recency := 1 / (1 + ageDays/30)
	accessCount := rec.AccessCount
	if accessCount > 100 {
		accessCount = 100
	}
	accessFrequency := float64(accessCount) / 100

	w := r.Weights
	score := w.Relevance*relevance + w.Importance*importance + w.Recency*recency + w.AccessFrequency*accessFrequency

	rec.Score = score
	rec.DecayedImportance = importance
	if explain {
		rec.Explanation = fmt.Sprintf(
			"relevance=%.3f importance=%.3f recency=%.3f accessFrequency=%.3f score=%.3f (%.2f×%.3f + %.2f×%.3f + %.2f×%.3f + %.2f×%.3f)",
			relevance, importance, recency, accessFrequency, score,
			w.Relevance, relevance, w.Importance, importance,
			w.Recency, recency, w.AccessFrequency, accessFrequency)
	}
}

func (r *Retriever) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

package engine

import (
	"context"
	"sort"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
	"github.com/Protocol-Lattice/engram/src/engram/similarity"
)

// DefaultMergeThreshold is the similarity at or above which two records
// in one category collapse into one.
const DefaultMergeThreshold = 0.85

// MergeOptions shape one near-duplicate consolidation pass.
type MergeOptions struct {
	// Threshold defaults to DefaultMergeThreshold.
	Threshold float64
	Namespace string
}

// MergePair records one absorption.
type MergePair struct {
	KeptID     string  `json:"keptId"`
	AbsorbedID string  `json:"absorbedId"`
	Similarity float64 `json:"similarity"`
}

// MergeResult is the single result object the merged event carries.
type MergeResult struct {
	Pairs    []MergePair `json:"pairs"`
	Absorbed []string    `json:"absorbed"`
}

// Merge collapses near-duplicates within each category, keeping the
// higher-importance record (ties go to the earlier-created one) and
// preserving provenance on the keeper.
func (e *Engine) Merge(ctx context.Context, opts MergeOptions) (MergeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultMergeThreshold
	}
	namespace := e.namespaceOr(opts.Namespace)
	records, err := e.liveSet(ctx, namespace)
	if err != nil {
		return MergeResult{}, err
	}

	groups := make(map[string][]*model.MemoryRecord)
	for i := range records {
		rec := &records[i]
		groups[rec.Category] = append(groups[rec.Category], rec)
	}
	// Deterministic pass order regardless of store iteration order.
	categories := make([]string, 0, len(groups))
	for cat := range groups {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	var (
		result   MergeResult
		absorbed = make(map[string]struct{})
		rewrite  = make(map[string]*model.MemoryRecord)
	)
	now := e.now().UTC()
	for _, cat := range categories {
		group := groups[cat]
		sort.Slice(group, func(i, j int) bool { return group[i].CreatedAt.Before(group[j].CreatedAt) })
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if _, gone := absorbed[a.ID]; gone {
					break
				}
				if _, gone := absorbed[b.ID]; gone {
					continue
				}
				sim := e.pairSimilarity(*a, *b)
				if sim < threshold {
					continue
				}
				keeper, victim := a, b
				if b.Importance > a.Importance {
					keeper, victim = b, a
				}
				e.absorb(keeper, victim, now)
				absorbed[victim.ID] = struct{}{}
				rewrite[keeper.ID] = keeper
				delete(rewrite, victim.ID)
				result.Pairs = append(result.Pairs, MergePair{
					KeptID:     keeper.ID,
					AbsorbedID: victim.ID,
					Similarity: sim,
				})
				result.Absorbed = append(result.Absorbed, victim.ID)
				if keeper == b {
					// The later record won on importance; the earlier
					// slot is gone, move on.
					break
				}
			}
		}
	}

	if len(result.Absorbed) == 0 {
		return result, nil
	}

	for _, keeper := range rewrite {
		if err := e.store.Put(ctx, *keeper); err != nil {
			return result, model.E(model.KindStore, "merge", err)
		}
	}
	if err := e.store.DeleteMany(ctx, result.Absorbed); err != nil {
		return result, model.E(model.KindStore, "merge", err)
	}
	for _, id := range result.Absorbed {
		e.cache.Invalidate(id)
	}
	e.emitMerged(result)
	return result, nil
}

// pairSimilarity is cosine when both embeddings are present and an
// embedder is configured, Jaccard otherwise.
func (e *Engine) pairSimilarity(a, b model.MemoryRecord) float64 {
	if e.embedder != nil && len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		if sim, err := similarity.Cosine(a.Embedding, b.Embedding); err == nil {
			return sim
		}
	}
	return similarity.Jaccard(
		e.cache.Tokens(a.ID, a.Content),
		e.cache.Tokens(b.ID, b.Content),
	)
}

// absorb folds the victim into the keeper: history snapshot, provenance
// metadata and a version bump.
func (e *Engine) absorb(keeper, victim *model.MemoryRecord, now time.Time) {
	if !e.opts.DisableHistory {
		keeper.History = append(keeper.History, model.HistoryEntry{
			Content:   victim.Content,
			Metadata:  victim.Metadata,
			Timestamp: now,
			Reason:    "merged",
		})
		if overflow := len(keeper.History) - e.opts.MaxHistoryPerMemory; overflow > 0 {
			keeper.History = keeper.History[overflow:]
		}
	}
	if keeper.Metadata == nil {
		keeper.Metadata = map[string]any{}
	}
	var mergedFrom []string
	switch prior := keeper.Metadata["mergedFrom"].(type) {
	case []string:
		mergedFrom = prior
	case []any:
		for _, v := range prior {
			mergedFrom = append(mergedFrom, model.StringFromAny(v))
		}
	}
	keeper.Metadata["mergedFrom"] = append(mergedFrom, victim.ID)
	keeper.Version++
}

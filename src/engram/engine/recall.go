package engine

import (
	"context"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
	"github.com/Protocol-Lattice/engram/src/engram/retrieve"
	"github.com/Protocol-Lattice/engram/src/engram/token"
)

// RecallOptions narrow one recall. Zero fields fall back to the
// engine's configuration.
type RecallOptions struct {
	K             int
	Categories    []string
	MinImportance float64
	Since         time.Time
	Namespace     string
	Metadata      map[string]any
	Explain       bool
}

// Recall returns relevance-ranked records for a query and bumps their
// access counters. A persist failure surfaces in the returned error
// without suppressing the results.
func (e *Engine) Recall(ctx context.Context, query string, opts RecallOptions) ([]model.MemoryRecord, error) {
	query = e.hookBeforeRecall(ctx, query)

	k := opts.K
	if k <= 0 {
		k = e.opts.DefaultK
	}
	retrOpts := retrieve.Options{
		K:             k,
		Categories:    opts.Categories,
		MinImportance: opts.MinImportance,
		Since:         opts.Since,
		Namespace:     e.namespaceOr(opts.Namespace),
		Metadata:      opts.Metadata,
		Explain:       opts.Explain,
	}

	records, err := e.retriever().Recall(ctx, query, e.embedder, retrOpts)
	if err != nil && records == nil {
		return nil, err
	}
	if err != nil {
		// Persist failures: results stand, the error still surfaces.
		e.emitError(model.E(model.KindStore, "recall.persist", err))
	}

	records = e.hookAfterRecall(ctx, records)
	e.emitRecalled(records, query)
	return records, err
}

// ContextWindow recalls for a query and greedily packs results by score
// into a prompt-sized budget measured with the token estimator.
func (e *Engine) ContextWindow(ctx context.Context, query string, maxTokens int) ([]model.MemoryRecord, error) {
	if maxTokens <= 0 {
		return nil, nil
	}
	records, err := e.Recall(ctx, query, RecallOptions{K: e.opts.DefaultK * 4})
	if err != nil && records == nil {
		return nil, err
	}
	var (
		out    []model.MemoryRecord
		budget = maxTokens
	)
	for _, rec := range records {
		cost := token.EstimateTokens(rec.Content)
		if cost > budget {
			continue
		}
		budget -= cost
		out = append(out, rec)
	}
	return out, err
}

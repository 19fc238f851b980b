package engine

import (
	"context"

	"github.com/Protocol-Lattice/engram/src/engram/decay"
	"github.com/Protocol-Lattice/engram/src/engram/extract"
	"github.com/Protocol-Lattice/engram/src/engram/model"
	"github.com/Protocol-Lattice/engram/src/engram/score"
	"github.com/google/uuid"
)

// RememberOptions shape one extraction-driven ingestion pass.
type RememberOptions struct {
	// Source tags every admitted record's ingestion origin.
	Source string
	// Namespace overrides the engine's active partition.
	Namespace string
	// ForceStore admits every candidate regardless of surprise.
	ForceStore bool
	// Explain attaches scoring breakdowns to rejections and records.
	Explain bool
}

// RememberResult reports what one Remember call did.
type RememberResult struct {
	Stored   []model.MemoryRecord `json:"stored"`
	Rejected []Rejection          `json:"rejected"`
}

// Remember extracts candidate facts from a transcript and admits the
// novel ones. Each admitted memory is visible to the novelty check of
// subsequent candidates in the same call.
func (e *Engine) Remember(ctx context.Context, messages []extract.Message, opts RememberOptions) (RememberResult, error) {
	if e.provider == nil {
		return RememberResult{}, model.Errorf(model.KindNoLLM, "remember", "no language model configured")
	}

	messages = e.hookBeforeExtract(ctx, messages)
	candidates, err := e.extractor().Extract(ctx, messages)
	if err != nil {
		return RememberResult{}, err
	}
	candidates = e.hookAfterExtract(ctx, candidates)

	e.mu.Lock()
	defer e.mu.Unlock()

	namespace := e.namespaceOr(opts.Namespace)
	working, err := e.liveSet(ctx, namespace)
	if err != nil {
		return RememberResult{}, err
	}

	threshold := e.opts.SurpriseThreshold
	if opts.ForceStore {
		threshold = 0
	}

	var result RememberResult
	for _, cand := range candidates {
		rec, rejection, err := e.admit(ctx, cand, working, admitParams{
			namespace: namespace,
			source:    orDefault(opts.Source, "extraction"),
			threshold: threshold,
			explain:   opts.Explain,
		})
		if err != nil {
			return result, err
		}
		if rejection != nil {
			result.Rejected = append(result.Rejected, *rejection)
			continue
		}
		result.Stored = append(result.Stored, rec)
		working = append(working, rec)
	}
	return result, nil
}

// StoreOptions shape one direct store call, bypassing extraction.
type StoreOptions struct {
	Category  string
	Source    string
	Namespace string
	Metadata  map[string]any
	// TTL is the record lifetime in seconds; 0 falls back to the
	// global retention bound.
	TTL int64
	// SkipSurprise bypasses scoring entirely; the record is admitted
	// with surprise 1.
	SkipSurprise bool
	Explain      bool
}

// Store admits one fact directly. Scoring still runs (with a forced
// threshold of 0) unless SkipSurprise is set, so surprise and
// importance stay meaningful.
func (e *Engine) Store(ctx context.Context, content string, opts StoreOptions) (model.MemoryRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	namespace := e.namespaceOr(opts.Namespace)
	cand := model.Candidate{Content: content, Category: opts.Category}.Normalize(e.opts.Categories)

	var working []model.MemoryRecord
	if !opts.SkipSurprise {
		var err error
		working, err = e.liveSet(ctx, namespace)
		if err != nil {
			return model.MemoryRecord{}, err
		}
	}

	rec, rejection, err := e.admit(ctx, cand, working, admitParams{
		namespace:    namespace,
		source:       orDefault(opts.Source, "manual"),
		threshold:    0,
		metadata:     opts.Metadata,
		ttl:          opts.TTL,
		skipSurprise: opts.SkipSurprise,
		explain:      opts.Explain,
	})
	if err != nil {
		return model.MemoryRecord{}, err
	}
	if rejection != nil {
		return model.MemoryRecord{}, model.Errorf(model.KindHookRejected, "store",
			"admission rejected: %s", rejection.Reason)
	}
	return rec, nil
}

type admitParams struct {
	namespace    string
	source       string
	threshold    float64
	metadata     map[string]any
	ttl          int64
	skipSurprise bool
	explain      bool
}

// admit runs scoring, the beforeStore hook, record construction and
// persistence for one candidate. It returns either a stored record or
// a rejection; a non-nil error is fatal to the calling operation.
func (e *Engine) admit(ctx context.Context, cand model.Candidate, working []model.MemoryRecord, p admitParams) (model.MemoryRecord, *Rejection, error) {
	surprise := 1.0
	var embedding []float32
	var explanation string

	if !p.skipSurprise {
		scored := e.scorer.Score(ctx, cand, working, e.embedder, p.explain)
		surprise = scored.Surprise
		embedding = scored.Embedding
		explanation = scored.Explanation
		// A threshold of 0 forces admission, even over the duplicate
		// fast path; without ForceStore the extraction pipeline carries
		// the positive configured threshold, so duplicates do not enter
		// through it.
		if ok, _ := score.Admit(surprise, p.threshold, e.opts.CategoryBoost(cand.Category)); !ok {
			reason := ReasonLowSurprise
			if scored.Reason != "" {
				reason = scored.Reason
			}
			rejection := &Rejection{Candidate: cand, Reason: reason, Surprise: surprise, Explanation: explanation}
			e.emitRejected(*rejection)
			return model.MemoryRecord{}, rejection, nil
		}
	} else if e.embedder != nil {
		if vec, err := e.embedder.Embed(ctx, cand.Content); err == nil {
			embedding = vec
		} else {
			e.emitError(err)
		}
	}

	cand, approved := e.hookBeforeStore(ctx, cand)
	if !approved {
		rejection := &Rejection{Candidate: cand, Reason: ReasonHookRejected, Surprise: surprise}
		e.emitRejected(*rejection)
		return model.MemoryRecord{}, rejection, nil
	}

	now := e.now().UTC()
	rec := model.MemoryRecord{
		ID:         uuid.NewString(),
		Content:    cand.Content,
		Category:   cand.Category,
		Source:     p.source,
		Surprise:   surprise,
		Importance: surprise * e.opts.CategoryBoost(cand.Category),
		CreatedAt:  now,
		Embedding:  embedding,
		Metadata:   p.metadata,
		Namespace:  p.namespace,
		TTL:        p.ttl,
		ExpiresAt:  decay.ExpiresAt(now, p.ttl, e.opts.MaxRetentionDays),
		Version:    1,
	}
	if p.explain {
		rec.Explanation = explanation
	}

	if err := e.store.Put(ctx, rec); err != nil {
		return model.MemoryRecord{}, nil, model.E(model.KindStore, "admit", err)
	}
	e.hookAfterStore(ctx, rec)
	e.emitStored(rec)
	return rec, nil, nil
}

func orDefault(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}

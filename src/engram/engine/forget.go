package engine

import (
	"context"
	"sort"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/decay"
	"github.com/Protocol-Lattice/engram/src/engram/model"
)

// ForgetOptions select the pruning mode and partition.
type ForgetOptions struct {
	// Mode defaults to decay.ModeNormal.
	Mode      decay.Mode
	Namespace string
}

// ForgetResult reports what was pruned.
type ForgetResult struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
}

// Forget prunes expired, decayed and over-capacity records from the
// namespace, honoring the beforeForget hook's veto.
func (e *Engine) Forget(ctx context.Context, opts ForgetOptions) (ForgetResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	mode := opts.Mode
	if mode == "" {
		mode = decay.ModeNormal
	}
	namespace := e.namespaceOr(opts.Namespace)
	records, err := e.liveSet(ctx, namespace)
	if err != nil {
		return ForgetResult{}, err
	}

	now := e.now().UTC()
	victims := decay.PruneSet(records, mode, e.opts.DecayHalfLifeDays, now)
	victims = e.capacityVictims(records, victims, now)

	victims = e.hookBeforeForget(ctx, victims)
	if len(victims) == 0 {
		return ForgetResult{}, nil
	}

	if err := e.store.DeleteMany(ctx, victims); err != nil {
		return ForgetResult{}, model.E(model.KindStore, "forget", err)
	}
	for _, id := range victims {
		e.cache.Invalidate(id)
	}
	e.emitForgotten(victims)
	return ForgetResult{IDs: victims, Count: len(victims)}, nil
}

// capacityVictims extends the prune set with the weakest survivors when
// the namespace exceeds its capacity.
func (e *Engine) capacityVictims(records []model.MemoryRecord, victims []string, now time.Time) []string {
	capacity := e.opts.Capacity()
	if capacity < 0 {
		return victims
	}
	gone := make(map[string]struct{}, len(victims))
	for _, id := range victims {
		gone[id] = struct{}{}
	}
	var survivors []model.MemoryRecord
	for _, rec := range records {
		if _, dead := gone[rec.ID]; !dead {
			survivors = append(survivors, rec)
		}
	}
	overflow := len(survivors) - capacity
	if overflow <= 0 {
		return victims
	}
	type scored struct {
		id    string
		value float64
	}
	ranked := make([]scored, len(survivors))
	for i, rec := range survivors {
		ranked[i] = scored{id: rec.ID, value: decay.Importance(rec, e.opts.DecayHalfLifeDays, now)}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].value != ranked[j].value {
			return ranked[i].value < ranked[j].value
		}
		return ranked[i].id < ranked[j].id
	})
	for i := 0; i < overflow; i++ {
		victims = append(victims, ranked[i].id)
	}
	return victims
}

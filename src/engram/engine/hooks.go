package engine

import (
	"context"

	"github.com/Protocol-Lattice/engram/src/engram/extract"
	"github.com/Protocol-Lattice/engram/src/engram/model"
)

// Hooks are user-supplied interceptors at named pipeline points. Each
// receives the current value and may return a modified one.
//
// Error semantics: BeforeStore returning an error (or a nil candidate)
// rejects the admission with reason "hook_rejected". Errors from every
// other hook are swallowed and the original value passes through;
// AfterStore errors are always swallowed.
type Hooks struct {
	BeforeExtract func(ctx context.Context, messages []extract.Message) ([]extract.Message, error)
	AfterExtract  func(ctx context.Context, candidates []model.Candidate) ([]model.Candidate, error)
	BeforeStore   func(ctx context.Context, cand model.Candidate) (*model.Candidate, error)
	AfterStore    func(ctx context.Context, rec model.MemoryRecord) error
	BeforeRecall  func(ctx context.Context, query string) (string, error)
	AfterRecall   func(ctx context.Context, records []model.MemoryRecord) ([]model.MemoryRecord, error)
	BeforeForget  func(ctx context.Context, ids []string) ([]string, error)
}

func (e *Engine) hookBeforeExtract(ctx context.Context, messages []extract.Message) []extract.Message {
	if e.hooks.BeforeExtract == nil {
		return messages
	}
	out, err := e.hooks.BeforeExtract(ctx, messages)
	if err != nil {
		e.logf("beforeExtract hook: %v", err)
		return messages
	}
	return out
}

func (e *Engine) hookAfterExtract(ctx context.Context, candidates []model.Candidate) []model.Candidate {
	if e.hooks.AfterExtract == nil {
		return candidates
	}
	out, err := e.hooks.AfterExtract(ctx, candidates)
	if err != nil {
		e.logf("afterExtract hook: %v", err)
		return candidates
	}
	return out
}

// hookBeforeStore returns the (possibly rewritten) candidate, or false
// when the hook vetoed the admission.
func (e *Engine) hookBeforeStore(ctx context.Context, cand model.Candidate) (model.Candidate, bool) {
	if e.hooks.BeforeStore == nil {
		return cand, true
	}
	out, err := e.hooks.BeforeStore(ctx, cand)
	if err != nil || out == nil {
		return cand, false
	}
	return *out, true
}

func (e *Engine) hookAfterStore(ctx context.Context, rec model.MemoryRecord) {
	if e.hooks.AfterStore == nil {
		return
	}
	if err := e.hooks.AfterStore(ctx, rec); err != nil {
		e.logf("afterStore hook: %v", err)
	}
}

func (e *Engine) hookBeforeRecall(ctx context.Context, query string) string {
	if e.hooks.BeforeRecall == nil {
		return query
	}
	out, err := e.hooks.BeforeRecall(ctx, query)
	if err != nil {
		e.logf("beforeRecall hook: %v", err)
		return query
	}
	return out
}

func (e *Engine) hookAfterRecall(ctx context.Context, records []model.MemoryRecord) []model.MemoryRecord {
	if e.hooks.AfterRecall == nil {
		return records
	}
	out, err := e.hooks.AfterRecall(ctx, records)
	if err != nil {
		e.logf("afterRecall hook: %v", err)
		return records
	}
	return out
}

func (e *Engine) hookBeforeForget(ctx context.Context, ids []string) []string {
	if e.hooks.BeforeForget == nil {
		return ids
	}
	out, err := e.hooks.BeforeForget(ctx, ids)
	if err != nil {
		e.logf("beforeForget hook: %v", err)
		return ids
	}
	return out
}

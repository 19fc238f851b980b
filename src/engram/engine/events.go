package engine

import "github.com/Protocol-Lattice/engram/src/engram/model"

// Rejection describes a candidate that did not become a record.
type Rejection struct {
	Candidate   model.Candidate `json:"candidate"`
	Reason      string          `json:"reason"`
	Surprise    float64         `json:"surprise"`
	Explanation string          `json:"explanation,omitempty"`
}

// Rejection reasons beyond the scorer's duplicate_content.
const (
	ReasonLowSurprise  = "low_surprise"
	ReasonHookRejected = "hook_rejected"
)

// Events are emitted at well-defined moments of the pipeline. Handlers
// run synchronously on the calling goroutine; nil handlers are skipped.
type Events struct {
	// Stored fires after successful admission and hook approval.
	Stored func(rec model.MemoryRecord)
	// Rejected fires when admission fails for any reason other than an
	// exception.
	Rejected func(info Rejection)
	// Recalled fires after access counters are updated.
	Recalled func(records []model.MemoryRecord, query string)
	// Forgotten fires after deletion.
	Forgotten func(ids []string, count int)
	// Merged fires once per merge pass with the single result object.
	Merged func(result MergeResult)
	// Error fires for recall persist failures, embedder failures while
	// storing with SkipSurprise or importing, and decay-worker sweep
	// failures. Errors swallowed from hooks are only logged, and
	// embedder failures inside scoring and retrieval fall back to
	// keywords; neither fires Error.
	Error func(err error)
}

func (e *Engine) emitStored(rec model.MemoryRecord) {
	e.metrics.IncStored()
	if e.events.Stored != nil {
		e.events.Stored(rec)
	}
}

func (e *Engine) emitRejected(info Rejection) {
	e.metrics.IncRejected()
	if e.events.Rejected != nil {
		e.events.Rejected(info)
	}
}

func (e *Engine) emitRecalled(records []model.MemoryRecord, query string) {
	e.metrics.IncRecalled(len(records))
	if e.events.Recalled != nil {
		e.events.Recalled(records, query)
	}
}

func (e *Engine) emitForgotten(ids []string) {
	e.metrics.IncForgotten(len(ids))
	if e.events.Forgotten != nil {
		e.events.Forgotten(ids, len(ids))
	}
}

func (e *Engine) emitMerged(result MergeResult) {
	e.metrics.IncMerged(len(result.Pairs))
	if e.events.Merged != nil {
		e.events.Merged(result)
	}
}

func (e *Engine) emitError(err error) {
	if err == nil {
		return
	}
	e.logf("%v", err)
	if e.events.Error != nil {
		e.events.Error(err)
	}
}

// Package engine orchestrates ingestion, retrieval, forgetting and
// merging over a store adapter and optional collaborators.
package engine

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/embed"
	"github.com/Protocol-Lattice/engram/src/engram/extract"
	"github.com/Protocol-Lattice/engram/src/engram/llm"
	"github.com/Protocol-Lattice/engram/src/engram/model"
	"github.com/Protocol-Lattice/engram/src/engram/retrieve"
	"github.com/Protocol-Lattice/engram/src/engram/score"
	"github.com/Protocol-Lattice/engram/src/engram/store"
	"github.com/Protocol-Lattice/engram/src/engram/token"
)

// Engine owns configuration, the store adapter and the optional
// collaborators. The language model, embedder and store are three
// independently optional capabilities: operations adapt (keyword-only
// recall without an embedder) or fail cleanly (Remember without a
// language model).
type Engine struct {
	store    store.Store
	opts     model.Options
	embedder embed.Embedder
	provider llm.LLM
	cache    *token.Cache
	scorer   *score.Scorer
	hooks    Hooks
	events   Events
	metrics  *Metrics
	logger   *log.Logger
	clock    func() time.Time

	// mu serializes mutating passes (ingestion, forget, merge) on this
	// instance; a deliberate strengthening over per-call isolation.
	mu sync.Mutex

	cancelDecay context.CancelFunc
}

// New constructs an engine over a store. Invalid configuration is fatal.
func New(st store.Store, opts model.Options) (*Engine, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	cache := token.NewCache(0)
	return &Engine{
		store:   st,
		opts:    opts,
		cache:   cache,
		scorer:  score.New(cache),
		metrics: &Metrics{},
		logger:  log.New(os.Stderr, "engram: ", log.LstdFlags),
		clock:   opts.Clock,
	}, nil
}

// WithEmbedder sets the embedding collaborator.
func (e *Engine) WithEmbedder(embedder embed.Embedder) *Engine {
	e.embedder = embedder
	return e
}

// WithLLM sets the language-model collaborator used by Remember.
func (e *Engine) WithLLM(provider llm.LLM) *Engine {
	e.provider = provider
	return e
}

// WithHooks installs the interception points.
func (e *Engine) WithHooks(hooks Hooks) *Engine {
	e.hooks = hooks
	return e
}

// WithEvents installs the event handlers.
func (e *Engine) WithEvents(events Events) *Engine {
	e.events = events
	return e
}

// WithLogger overrides the default logger.
func (e *Engine) WithLogger(logger *log.Logger) *Engine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// Options returns the resolved configuration.
func (e *Engine) Options() model.Options { return e.opts }

// MetricsSnapshot returns a copy of the runtime counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// Init runs the store's lifecycle hook when it has one.
func (e *Engine) Init(ctx context.Context) error {
	if lc, ok := e.store.(store.Lifecycle); ok {
		if err := lc.Init(ctx); err != nil {
			return model.E(model.KindStore, "init", err)
		}
	}
	return nil
}

// Close stops the decay worker and closes the store when it supports it.
func (e *Engine) Close() error {
	if e.cancelDecay != nil {
		e.cancelDecay()
		e.cancelDecay = nil
	}
	if lc, ok := e.store.(store.Lifecycle); ok {
		return lc.Close()
	}
	return nil
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}

// namespaceOr resolves the namespace for one operation.
func (e *Engine) namespaceOr(ns string) string {
	if ns != "" {
		return ns
	}
	return e.opts.Namespace
}

// liveSet loads the active records of a namespace.
func (e *Engine) liveSet(ctx context.Context, namespace string) ([]model.MemoryRecord, error) {
	records, err := e.store.List(ctx, store.Filter{Namespace: namespace})
	if err != nil {
		return nil, model.E(model.KindStore, "list", err)
	}
	return records, nil
}

// extractor builds the extraction collaborator lazily so WithLLM can be
// called in any order relative to New.
func (e *Engine) extractor() *extract.Extractor {
	return extract.New(e.provider, e.opts.Categories)
}

// retriever builds the recall pipeline bound to this engine's state.
func (e *Engine) retriever() *retrieve.Retriever {
	return &retrieve.Retriever{
		Store:        e.store,
		Cache:        e.cache,
		Weights:      e.opts.RetrievalWeights,
		HalfLifeDays: e.opts.DecayHalfLifeDays,
		Clock:        e.now,
	}
}

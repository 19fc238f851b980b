// Package score decides whether a candidate fact is novel enough to
// keep, given what a namespace already holds.
package score

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Protocol-Lattice/engram/src/engram/model"
	"github.com/Protocol-Lattice/engram/src/engram/similarity"
	"github.com/Protocol-Lattice/engram/src/engram/token"
)

// Embedder is the minimal embedding capability the scorer consumes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ReasonDuplicate is the rejection reason for the exact-duplicate fast path.
const ReasonDuplicate = "duplicate_content"

// Weights of the surprise blend.
const (
	semanticWeight = 0.6
	keywordWeight  = 0.3
	rarityWeight   = 0.1

	keywordOnlyWeight = 0.8
	rarityOnlyWeight  = 0.2
)

// Result reports a scoring pass over one candidate.
type Result struct {
	Surprise  float64
	Reason    string // non-empty only on the duplicate fast path
	Embedding []float32
	// Explanation is a deterministic breakdown, filled only when asked.
	Explanation string
}

// Scorer computes surprise against a working set of existing memories.
type Scorer struct {
	Cache *token.Cache
}

// New returns a Scorer sharing the given token cache.
func New(cache *token.Cache) *Scorer {
	if cache == nil {
		cache = token.NewCache(0)
	}
	return &Scorer{Cache: cache}
}

// Score runs the admission algorithm: exact-duplicate fast path, then
// semantic novelty (when an embedder is available), keyword novelty,
// category rarity, and the weighted blend. Embedder failures silently
// demote to the keyword-only path.
func (s *Scorer) Score(ctx context.Context, cand model.Candidate, existing []model.MemoryRecord, embedder Embedder, explain bool) Result {
	normalized := model.NormalizedContent(cand.Content)
	for _, mem := range existing {
		if model.NormalizedContent(mem.Content) == normalized {
			res := Result{Surprise: 0, Reason: ReasonDuplicate}
			if explain {
				res.Explanation = fmt.Sprintf("duplicate of %s (exact content match)", mem.ID)
			}
			return res
		}
	}

	var (
		embedding    []float32
		semantic     float64
		haveSemantic bool
		closestID    string
		closestSim   = math.Inf(-1)
	)
	if embedder != nil {
		if vec, err := embedder.Embed(ctx, cand.Content); err == nil && len(vec) > 0 {
			embedding = vec
			semantic = 1.0
			haveSemantic = true
			for _, mem := range existing {
				if len(mem.Embedding) == 0 {
					continue
				}
				sim, err := similarity.Cosine(vec, mem.Embedding)
				if err != nil {
					continue
				}
				if sim > closestSim {
					closestSim = sim
					closestID = mem.ID
				}
				if novelty := 1 - sim; novelty < semantic {
					semantic = novelty
				}
			}
		}
	}

	candTokens := token.Tokenize(cand.Content)
	keyword := 1.0
	for _, mem := range existing {
		sim := similarity.Jaccard(candTokens, s.Cache.Tokens(mem.ID, mem.Content))
		if !haveSemantic && sim > closestSim {
			closestSim = sim
			closestID = mem.ID
		}
		if novelty := 1 - sim; novelty < keyword {
			keyword = novelty
		}
	}

	inCategory := 0
	for _, mem := range existing {
		if mem.Category == cand.Category {
			inCategory++
		}
	}
	rarity := 1.0
	if inCategory > 0 {
		rarity = 1 / math.Log2(float64(2+inCategory))
	}

	var surprise float64
	if haveSemantic {
		surprise = semanticWeight*semantic + keywordWeight*keyword + rarityWeight*rarity
	} else {
		surprise = keywordOnlyWeight*keyword + rarityOnlyWeight*rarity
	}
	surprise = clamp01(surprise)

	res := Result{Surprise: surprise, Embedding: embedding}
	if explain {
		var b strings.Builder
		if haveSemantic {
			fmt.Fprintf(&b, "path=semantic semantic=%.3f keyword=%.3f rarity=%.3f", semantic, keyword, rarity)
		} else {
			fmt.Fprintf(&b, "path=keyword keyword=%.3f rarity=%.3f", keyword, rarity)
		}
		fmt.Fprintf(&b, " surprise=%.3f", surprise)
		if closestID != "" {
			fmt.Fprintf(&b, " closest=%s similarity=%.3f", closestID, closestSim)
		}
		res.Explanation = b.String()
	}
	return res
}

// Admit applies the admission decision: store iff surprise ≥ threshold.
// A threshold of 0 forces admission. The returned importance is
// surprise × categoryBoost.
func Admit(surprise, threshold, categoryBoost float64) (ok bool, importance float64) {
	return surprise >= threshold, surprise * categoryBoost
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package model

import (
	"math"
	"time"
)

// RetrievalWeights blend the four recall signals. They are applied as
// given and need not sum to 1.
type RetrievalWeights struct {
	Relevance       float64 `json:"relevance"`
	Importance      float64 `json:"importance"`
	Recency         float64 `json:"recency"`
	AccessFrequency float64 `json:"accessFrequency"`
}

// DefaultRetrievalWeights returns the standard blend.
func DefaultRetrievalWeights() RetrievalWeights {
	return RetrievalWeights{Relevance: 0.5, Importance: 0.3, Recency: 0.2}
}

// Options configures one engine instance. The zero value is usable:
// WithDefaults fills every unset field.
type Options struct {
	// SurpriseThreshold is the minimum surprise for admission through
	// the extraction pipeline.
	SurpriseThreshold float64

	// ImportanceBoost multiplies surprise per category to produce
	// importance.
	ImportanceBoost map[string]float64

	// Categories is the admissible category set. Unknown labels
	// collapse to DefaultCategory.
	Categories []string

	// DecayHalfLifeDays is the half-life of the exponential importance
	// decay.
	DecayHalfLifeDays float64

	// MaxRetentionDays bounds record age when no TTL is set.
	MaxRetentionDays float64

	// MaxMemories triggers capacity-driven pruning. Nil means the
	// default of 10,000; a negative value disables the capacity check;
	// zero is honored literally.
	MaxMemories *int

	// DefaultK is the recall result count when the caller gives none.
	DefaultK int

	// RetrievalWeights blends relevance, decayed importance, recency
	// and access frequency during recall.
	RetrievalWeights RetrievalWeights

	// Namespace is the active partition for this instance.
	Namespace string

	// DisableHistory turns off per-record merge snapshots. History is
	// tracked by default.
	DisableHistory bool

	// MaxHistoryPerMemory caps the history list; oldest entries evict first.
	MaxHistoryPerMemory int

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// DefaultCategories is the built-in admissible set.
func DefaultCategories() []string {
	return []string{"fact", "preference", "skill", "episode", "context"}
}

// DefaultImportanceBoost returns the built-in per-category multipliers.
func DefaultImportanceBoost() map[string]float64 {
	return map[string]float64{
		"fact":       1.0,
		"preference": 1.2,
		"skill":      1.3,
		"episode":    0.8,
		"context":    0.9,
	}
}

// DefaultOptions returns a fully-populated Options value.
func DefaultOptions() Options {
	return Options{}.WithDefaults()
}

// WithDefaults fills unset fields and returns the result.
func (o Options) WithDefaults() Options {
	if o.SurpriseThreshold == 0 {
		o.SurpriseThreshold = 0.3
	}
	if o.ImportanceBoost == nil {
		o.ImportanceBoost = DefaultImportanceBoost()
	}
	if len(o.Categories) == 0 {
		o.Categories = DefaultCategories()
	}
	if o.DecayHalfLifeDays == 0 {
		o.DecayHalfLifeDays = 30
	}
	if o.MaxRetentionDays == 0 {
		o.MaxRetentionDays = 90
	}
	if o.MaxMemories == nil {
		n := 10_000
		o.MaxMemories = &n
	}
	if o.DefaultK == 0 {
		o.DefaultK = 5
	}
	if o.RetrievalWeights == (RetrievalWeights{}) {
		o.RetrievalWeights = DefaultRetrievalWeights()
	}
	if o.Namespace == "" {
		o.Namespace = "default"
	}
	if o.MaxHistoryPerMemory == 0 {
		o.MaxHistoryPerMemory = 10
	}
	if o.MaxHistoryPerMemory < 0 {
		o.DisableHistory = true
		o.MaxHistoryPerMemory = 0
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

// Capacity resolves the effective memory cap. Negative means unlimited.
func (o Options) Capacity() int {
	if o.MaxMemories == nil {
		return 10_000
	}
	return *o.MaxMemories
}

// CategoryBoost returns the importance multiplier for a category,
// defaulting to 1.
func (o Options) CategoryBoost(category string) float64 {
	if b, ok := o.ImportanceBoost[category]; ok {
		return b
	}
	return 1.0
}

// Validate rejects configurations the engine cannot run with.
func (o Options) Validate() error {
	for _, w := range []struct {
		name  string
		value float64
	}{
		{"relevance", o.RetrievalWeights.Relevance},
		{"importance", o.RetrievalWeights.Importance},
		{"recency", o.RetrievalWeights.Recency},
		{"accessFrequency", o.RetrievalWeights.AccessFrequency},
	} {
		if math.IsNaN(w.value) || math.IsInf(w.value, 0) {
			return Errorf(KindConfig, "options", "retrieval weight %s is not a number", w.name)
		}
	}
	if o.SurpriseThreshold < 0 || o.SurpriseThreshold > 1 {
		return Errorf(KindConfig, "options", "surprise threshold %v outside [0,1]", o.SurpriseThreshold)
	}
	if o.DecayHalfLifeDays < 0 {
		return Errorf(KindConfig, "options", "decay half-life %v is negative", o.DecayHalfLifeDays)
	}
	if o.MaxRetentionDays < 0 {
		return Errorf(KindConfig, "options", "max retention %v is negative", o.MaxRetentionDays)
	}
	for cat, boost := range o.ImportanceBoost {
		if math.IsNaN(boost) || math.IsInf(boost, 0) || boost < 0 {
			return Errorf(KindConfig, "options", "importance boost for %q is invalid", cat)
		}
	}
	return nil
}

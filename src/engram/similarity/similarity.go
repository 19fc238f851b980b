// Package similarity provides the two distance kernels the engine
// ranks with: cosine over embedding vectors and Jaccard over token sets.
package similarity

import (
	"math"

	"github.com/Protocol-Lattice/engram/src/engram/model"
)

// Cosine computes (a·b)/(‖a‖·‖b‖). It returns 0 when either norm is
// zero and a dimension_mismatch error when the lengths differ.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, model.Errorf(model.KindDimensionMismatch, "cosine",
			"vector lengths differ: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// Jaccard computes |A ∩ B| / |A ∪ B| over two token lists, treating
// them as sets. Two empty sets are defined as identical (1.0); exactly
// one empty set yields 0.
func Jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

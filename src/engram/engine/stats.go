package engine

import (
	"context"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
)

// Stats aggregates the whole store across namespaces.
type Stats struct {
	Total         int            `json:"total"`
	ByCategory    map[string]int `json:"byCategory"`
	ByNamespace   map[string]int `json:"byNamespace"`
	AvgImportance float64        `json:"avgImportance"`
	AvgSurprise   float64        `json:"avgSurprise"`
	AvgAgeDays    float64        `json:"avgAgeDays"`
	Oldest        time.Time      `json:"oldest,omitzero"`
	Newest        time.Time      `json:"newest,omitzero"`
}

// Stats walks every record once and aggregates counts and averages.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	records, err := e.store.Dump(ctx)
	if err != nil {
		return Stats{}, model.E(model.KindStore, "stats", err)
	}
	stats := Stats{
		ByCategory:  make(map[string]int),
		ByNamespace: make(map[string]int),
	}
	if len(records) == 0 {
		return stats, nil
	}
	now := e.now().UTC()
	var sumImportance, sumSurprise, sumAgeDays float64
	for _, rec := range records {
		stats.Total++
		stats.ByCategory[rec.Category]++
		stats.ByNamespace[rec.Namespace]++
		sumImportance += rec.Importance
		sumSurprise += rec.Surprise
		sumAgeDays += now.Sub(rec.CreatedAt).Hours() / 24
		if stats.Oldest.IsZero() || rec.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = rec.CreatedAt
		}
		if rec.CreatedAt.After(stats.Newest) {
			stats.Newest = rec.CreatedAt
		}
	}
	n := float64(stats.Total)
	stats.AvgImportance = sumImportance / n
	stats.AvgSurprise = sumSurprise / n
	stats.AvgAgeDays = sumAgeDays / n
	return stats, nil
}

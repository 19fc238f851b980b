package store

import (
	"sort"
	"strings"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
	"github.com/Protocol-Lattice/engram/src/engram/token"
)

// matchFilter reports whether a record passes every set filter field.
func matchFilter(rec model.MemoryRecord, f Filter, now time.Time) bool {
	if f.Namespace != "" && rec.Namespace != f.Namespace {
		return false
	}
	if len(f.Categories) > 0 {
		found := false
		for _, c := range f.Categories {
			if rec.Category == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinImportance > 0 && rec.Importance < f.MinImportance {
		return false
	}
	if f.MaxAgeDays > 0 {
		cutoff := now.Add(-time.Duration(f.MaxAgeDays * 24 * float64(time.Hour)))
		if rec.CreatedAt.Before(cutoff) {
			return false
		}
	}
	if !f.Since.IsZero() && rec.CreatedAt.Before(f.Since) {
		return false
	}
	if len(f.Metadata) > 0 && !model.MetadataMatches(rec.Metadata, f.Metadata) {
		return false
	}
	return true
}

// sortRecords orders records per the filter's sort key, defaulting to
// creation time descending. Ties break on id so ordering is stable
// across calls.
func sortRecords(records []model.MemoryRecord, by SortBy, order SortOrder) {
	if by == "" {
		by = SortByCreated
	}
	desc := order != SortAsc
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		var less bool
		switch by {
		case SortByImportance:
			if a.Importance == b.Importance {
				return a.ID < b.ID
			}
			less = a.Importance < b.Importance
		case SortByAccessed:
			if a.LastAccessed.Equal(b.LastAccessed) {
				return a.ID < b.ID
			}
			less = a.LastAccessed.Before(b.LastAccessed)
		case SortBySurprise:
			if a.Surprise == b.Surprise {
				return a.ID < b.ID
			}
			less = a.Surprise < b.Surprise
		default:
			if a.CreatedAt.Equal(b.CreatedAt) {
				return a.ID < b.ID
			}
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if desc {
			return !less
		}
		return less
	})
}

// paginate applies offset/limit after sorting.
func paginate(records []model.MemoryRecord, offset, limit int) []model.MemoryRecord {
	if offset > 0 {
		if offset >= len(records) {
			return nil
		}
		records = records[offset:]
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

// keywordMatch scores a record against query tokens: the count of query
// tokens present in the content, with a substring fallback for
// stopword-only queries.
func keywordMatch(queryTokens []string, query string, rec model.MemoryRecord) int {
	content := strings.ToLower(rec.Content)
	if len(queryTokens) == 0 {
		if q := strings.ToLower(strings.TrimSpace(query)); q != "" && strings.Contains(content, q) {
			return 1
		}
		return 0
	}
	hits := 0
	for _, t := range queryTokens {
		if strings.Contains(content, t) {
			hits++
		}
	}
	return hits
}

// searchRecords is the shared keyword search used by the scanning
// stores: rank by matched-token count, break ties by recency.
func searchRecords(records []model.MemoryRecord, query string, k int) []model.MemoryRecord {
	if k <= 0 {
		return nil
	}
	queryTokens := token.Tokenize(query)
	type hit struct {
		rec   model.MemoryRecord
		score int
	}
	var hits []hit
	for _, rec := range records {
		if score := keywordMatch(queryTokens, query, rec); score > 0 {
			hits = append(hits, hit{rec: rec, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if !hits[i].rec.CreatedAt.Equal(hits[j].rec.CreatedAt) {
			return hits[i].rec.CreatedAt.After(hits[j].rec.CreatedAt)
		}
		return hits[i].rec.ID < hits[j].rec.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]model.MemoryRecord, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out
}

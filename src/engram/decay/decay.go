// Package decay implements time-weighted importance and the pruning
// policies built on it.
package decay

import (
	"math"
	"sort"
	"time"

	"github.com/Protocol-Lattice/engram/src/engram/model"
)

// Mode selects how aggressively Forget prunes.
type Mode string

const (
	// ModeGentle prunes only expired records.
	ModeGentle Mode = "gentle"
	// ModeNormal also prunes records whose decayed importance has
	// dropped below MinImportance.
	ModeNormal Mode = "normal"
	// ModeAggressive additionally sheds the weakest decile of what
	// remains.
	ModeAggressive Mode = "aggressive"
)

// MinImportance is the decayed-importance floor below which ModeNormal
// prunes.
const MinImportance = 0.01

const msPerDay = 86_400_000

// Importance computes the time-decayed, access-boosted importance:
//
//	decay       = exp(-ln2/halfLife × ageDays)
//	accessBoost = 1 + log2(1+accessCount) × 0.1
//	decayed     = importance × decay × accessBoost
func Importance(rec model.MemoryRecord, halfLifeDays float64, now time.Time) float64 {
	ageDays := now.Sub(rec.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	decayed := rec.Importance
	if halfLifeDays > 0 {
		lambda := math.Ln2 / halfLifeDays
		decayed *= math.Exp(-lambda * ageDays)
	}
	decayed *= 1 + math.Log2(1+float64(rec.AccessCount))*0.1
	return decayed
}

// ExpiresAt derives a record's expiration: created + ttl when a TTL is
// set, otherwise created + the global retention bound.
func ExpiresAt(createdAt time.Time, ttlSeconds int64, maxRetentionDays float64) time.Time {
	if ttlSeconds > 0 {
		return createdAt.Add(time.Duration(ttlSeconds) * time.Second)
	}
	return createdAt.Add(time.Duration(maxRetentionDays * float64(msPerDay) * float64(time.Millisecond)))
}

// Expired reports whether a record's expiration has passed.
func Expired(rec model.MemoryRecord, now time.Time) bool {
	return !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(now)
}

// PruneSet returns the ids to delete under a mode, walking the full
// namespace set. Aggressive mode appends the lowest ceil(10%) of the
// surviving records ordered by decayed importance ascending.
func PruneSet(records []model.MemoryRecord, mode Mode, halfLifeDays float64, now time.Time) []string {
	var prune []string
	pruned := make(map[string]struct{})
	mark := func(id string) {
		if _, ok := pruned[id]; !ok {
			pruned[id] = struct{}{}
			prune = append(prune, id)
		}
	}

	for _, rec := range records {
		if Expired(rec, now) {
			mark(rec.ID)
			continue
		}
		if mode == ModeNormal || mode == ModeAggressive {
			if Importance(rec, halfLifeDays, now) < MinImportance {
				mark(rec.ID)
			}
		}
	}

	if mode != ModeAggressive {
		return prune
	}

	type scored struct {
		id    string
		value float64
	}
	var remaining []scored
	for _, rec := range records {
		if _, gone := pruned[rec.ID]; gone {
			continue
		}
		remaining = append(remaining, scored{id: rec.ID, value: Importance(rec, halfLifeDays, now)})
	}
	if len(remaining) == 0 {
		return prune
	}
	sort.Slice(remaining, func(i, j int) bool {
		if remaining[i].value != remaining[j].value {
			return remaining[i].value < remaining[j].value
		}
		return remaining[i].id < remaining[j].id
	})
	shed := (len(remaining) + 9) / 10
	for i := 0; i < shed; i++ {
		mark(remaining[i].id)
	}
	return prune
}

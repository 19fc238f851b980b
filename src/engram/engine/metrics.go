package engine

import "sync/atomic"

// Metrics captures lightweight runtime counters for observability.
type Metrics struct {
	stored    atomic.Int64
	rejected  atomic.Int64
	recalled  atomic.Int64
	forgotten atomic.Int64
	merged    atomic.Int64
}

func (m *Metrics) IncStored()         { m.stored.Add(1) }
func (m *Metrics) IncRejected()       { m.rejected.Add(1) }
func (m *Metrics) IncRecalled(n int)  { m.recalled.Add(int64(n)) }
func (m *Metrics) IncForgotten(n int) { m.forgotten.Add(int64(n)) }
func (m *Metrics) IncMerged(n int)    { m.merged.Add(int64(n)) }

// MetricsSnapshot holds the current values for reporting/logging.
type MetricsSnapshot struct {
	Stored    int64 `json:"stored"`
	Rejected  int64 `json:"rejected"`
	Recalled  int64 `json:"recalled"`
	Forgotten int64 `json:"forgotten"`
	Merged    int64 `json:"merged"`
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Stored:    m.stored.Load(),
		Rejected:  m.rejected.Load(),
		Recalled:  m.recalled.Load(),
		Forgotten: m.forgotten.Load(),
		Merged:    m.merged.Load(),
	}
}

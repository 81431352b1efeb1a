package scrapers

import "sync/atomic"

// RunStats holds the live counters shared by every concurrently-running
// category invocation within one execution. Each engine run owns exactly one
// instance; increments are atomic so in-flight categories never lose updates.
type RunStats struct {
	added   atomic.Int64
	updated atomic.Int64
	failed  atomic.Int64
}

func NewRunStats() *RunStats { return &RunStats{} }

func (s *RunStats) AddAdded(n int)   { s.added.Add(int64(n)) }
func (s *RunStats) AddUpdated(n int) { s.updated.Add(int64(n)) }
func (s *RunStats) AddFailed(n int)  { s.failed.Add(int64(n)) }

// Snapshot returns a consistent-enough view of the counters for a heartbeat.
// Increments are commutative, so reading the three counters independently is
// acceptable.
func (s *RunStats) Snapshot() (added, updated, failed int64) {
	return s.added.Load(), s.updated.Load(), s.failed.Load()
}

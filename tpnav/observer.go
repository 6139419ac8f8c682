package tpnav

import (
	"sync"
	"time"
)

// StatusSnapshot is the observer-readable record of the most recent tick,
// the in-memory analogue of the original's CLogFileRecord kept behind the
// "second lock" spec.md §5 calls out, instead of being serialized to a
// .reactivenavlog file (persistence/log formats are out of core scope).
type StatusSnapshot struct {
	Timestamp     time.Time
	State         NavigationState
	Pose          Pose2D
	ChosenIndex   int
	ChosenIsNOP   bool
	Candidates    []map[string]float64
	DeltaSense    time.Duration
	DeltaCmd      time.Duration
}

// statusObserver is embedded into Navigator to hold the second lock.
type statusObserver struct {
	statusMu sync.Mutex
	snapshot StatusSnapshot
}

func (o *statusObserver) setSnapshot(s StatusSnapshot) {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	o.snapshot = s
}

// Snapshot returns a copy of the last recorded tick, safe to call
// concurrently with step() (it takes the second lock, never the first).
func (o *statusObserver) Snapshot() StatusSnapshot {
	o.statusMu.Lock()
	defer o.statusMu.Unlock()
	return o.snapshot
}

package traffic

import (
	"sync/atomic"
	"time"
)

// Snapshot is one published set of counts.
type Snapshot struct {
	Counts    Counts    `json:"counts"`
	Seq       uint64    `json:"seq"`        // 0 before the first publish
	UpdatedAt time.Time `json:"updated_at"` // Zero before the first publish
}

// State holds the latest Snapshot. Publish must be called from a single goroutine;
// Read and Snapshot are safe from any number of goroutines. The zero value reads zeros.
type State struct {
	cur atomic.Pointer[Snapshot]
}

// NewState returns an empty State.
func NewState() *State {
	return &State{}
}

// Publish replaces the current counts as one unit and returns the new snapshot.
func (s *State) Publish(c Counts) Snapshot {
	var seq uint64 = 1
	if prev := s.cur.Load(); prev != nil {
		seq = prev.Seq + 1
	}
	snap := &Snapshot{Counts: c, Seq: seq, UpdatedAt: time.Now()}
	s.cur.Store(snap)
	return *snap
}

// Read returns the latest counts.
func (s *State) Read() Counts {
	return s.Snapshot().Counts
}

// Snapshot returns the latest snapshot.
func (s *State) Snapshot() Snapshot {
	if snap := s.cur.Load(); snap != nil {
		return *snap
	}
	return Snapshot{}
}

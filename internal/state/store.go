package state

import (
	"sync"
	"time"

	"github.com/signalsfoundry/leo-serving-planner/internal/pipeline"
	"github.com/signalsfoundry/leo-serving-planner/model"
)

// ServingSet is one immutable planning-cycle result. Readers receive the
// pointer and must not mutate it; a new cycle swaps in a new snapshot.
type ServingSet struct {
	Version    uint64
	UpdatedAt  time.Time
	Candidates []model.SatelliteScore
	Stats      pipeline.FilterStatistics
}

// Store holds the planner's only shared mutable state: the current serving
// set and the current backup pool. Single writer per snapshot kind, any
// number of readers; a reader always observes a fully formed snapshot.
type Store struct {
	mu      sync.RWMutex
	version uint64
	serving *ServingSet
	pool    *model.PoolSnapshot
}

// NewStore returns a store with empty but non-nil snapshots so readers
// never have to nil-check before the first cycle completes.
func NewStore() *Store {
	return &Store{
		serving: &ServingSet{},
		pool:    &model.PoolSnapshot{},
	}
}

// Serving returns the current serving-set snapshot.
func (s *Store) Serving() *ServingSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serving
}

// SetServing swaps in a new serving-set snapshot and returns it with its
// assigned version.
func (s *Store) SetServing(candidates []model.SatelliteScore, stats pipeline.FilterStatistics, now time.Time) *ServingSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	s.serving = &ServingSet{
		Version:    s.version,
		UpdatedAt:  now,
		Candidates: candidates,
		Stats:      stats,
	}
	return s.serving
}

// Pool returns the current backup-pool snapshot.
func (s *Store) Pool() *model.PoolSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pool
}

// SetPool swaps in a new backup-pool snapshot.
func (s *Store) SetPool(p *model.PoolSnapshot) {
	if p == nil {
		p = &model.PoolSnapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = p
}

// ServingIDs returns the IDs in the current serving set, for building
// exclusion sets when the pool is re-established.
func (s *Store) ServingIDs() map[string]struct{} {
	snap := s.Serving()
	ids := make(map[string]struct{}, len(snap.Candidates))
	for _, c := range snap.Candidates {
		ids[c.SatelliteID] = struct{}{}
	}
	return ids
}

package index

import (
	"sync"

	"github.com/paulmach/osm"
)

// MultipolygonWaySet is C3: the set of way ids that participate in any
// multipolygon relation. Built exclusively by pass 1's single indexer
// worker (per §5, no sharing during build) and read-only afterwards.
// Grounded on the teacher's own use of a Go map as a membership set
// (index/grid.go's `cells map[CellIndex]CellIndex` lookup table) — spec.md
// asks for "open-addressing hash set of 64-bit ints"; Go's built-in hash
// map is used as that set directly, without hand-rolled probing (see
// DESIGN.md for why no third-party set library from the retrieved pack
// fits here).
type MultipolygonWaySet struct {
	mu  sync.RWMutex
	ids map[osm.WayID]struct{}
}

func NewMultipolygonWaySet() *MultipolygonWaySet {
	return &MultipolygonWaySet{ids: map[osm.WayID]struct{}{}}
}

func (s *MultipolygonWaySet) Add(wayID osm.WayID) {
	s.mu.Lock()
	s.ids[wayID] = struct{}{}
	s.mu.Unlock()
}

func (s *MultipolygonWaySet) Contains(wayID osm.WayID) bool {
	s.mu.RLock()
	_, ok := s.ids[wayID]
	s.mu.RUnlock()
	return ok
}

func (s *MultipolygonWaySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Ids returns every way id currently in the set. Used only by the
// optional pass-2 debug assertion (§4.4: "for_all w ∈ C3: C4.has(w)");
// not on any hot path.
func (s *MultipolygonWaySet) Ids() []osm.WayID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]osm.WayID, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	return ids
}

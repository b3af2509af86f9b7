package index

import (
	"sync"
	"sync/atomic"

	"github.com/paulmach/osm"
)

// RelationInfo is the opaque payload a Profile chooses to retain per
// relation during pass 1 (see reader.Profile.PreprocessRelation). Per the
// Design Notes ("Dynamic relation-info types"), the concrete shape is up
// to the Profile; this module only needs a retained-size estimate for
// memory accounting.
type RelationInfo interface {
	SizeBytes() int
}

// RelationInfoTable is C5: relation_id -> list of opaque RelationInfo.
// Built exclusively by pass 1's single indexer worker, read-only in pass 2.
type RelationInfoTable struct {
	mu        sync.RWMutex
	infos     map[osm.RelationID][]RelationInfo
	totalSize atomic.Int64
}

func NewRelationInfoTable() *RelationInfoTable {
	return &RelationInfoTable{infos: map[osm.RelationID][]RelationInfo{}}
}

// Put appends info to the list kept for relationID.
func (t *RelationInfoTable) Put(relationID osm.RelationID, info RelationInfo) {
	t.mu.Lock()
	t.infos[relationID] = append(t.infos[relationID], info)
	t.mu.Unlock()

	t.totalSize.Add(int64(info.SizeBytes()))
}

// Get returns the infos recorded for relationID, or nil if none were.
func (t *RelationInfoTable) Get(relationID osm.RelationID) []RelationInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.infos[relationID]
}

// TotalSizeBytes returns the running sum of every stored info's SizeBytes(),
// for the memory-accounting use the Design Notes describe.
func (t *RelationInfoTable) TotalSizeBytes() int64 {
	return t.totalSize.Load()
}

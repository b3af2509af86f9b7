package index

import (
	"path"

	"github.com/paulmach/osm"
)

// WayToRelationFolder and RelationParentFolder are the sub-folders (under
// an index base folder) holding each pairIndex's shard files.
const (
	WayToRelationFolder  = "way-to-relation"
	RelationParentFolder = "relation-to-parent-relation"
)

// WayToRelationIndex is C2: an append-only, build-then-seal, one-to-many
// way_id -> {relation_id} multiset index, populated in pass 1 whenever a
// relation's way members are discovered (see reader.OsmTwoPassReader).
type WayToRelationIndex struct {
	*pairIndex
}

func NewWayToRelationIndex(baseFolder string) *WayToRelationIndex {
	return &WayToRelationIndex{pairIndex: newPairIndex(path.Join(baseFolder, WayToRelationFolder))}
}

// Put records that relationID references wayID as a member.
func (w *WayToRelationIndex) Put(wayID osm.WayID, relationID osm.RelationID) error {
	return w.put(uint64(wayID), uint64(relationID))
}

// Seal sorts the index by way id; no mutation is permitted afterwards.
func (w *WayToRelationIndex) Seal() error {
	return w.seal()
}

// Get returns the (possibly empty) list of relation ids that reference wayID.
func (w *WayToRelationIndex) Get(wayID osm.WayID) ([]osm.RelationID, error) {
	values, err := w.get(uint64(wayID))
	if err != nil {
		return nil, err
	}

	relationIDs := make([]osm.RelationID, len(values))
	for i, v := range values {
		relationIDs[i] = osm.RelationID(v)
	}
	return relationIDs, nil
}

// RelationParentIndex is the supplemental equivalent of C2 for
// relation-in-relation membership: child_relation_id -> {parent_relation_id}.
// See SPEC_FULL.md "SUPPLEMENTED FEATURES".
type RelationParentIndex struct {
	*pairIndex
}

func NewRelationParentIndex(baseFolder string) *RelationParentIndex {
	return &RelationParentIndex{pairIndex: newPairIndex(path.Join(baseFolder, RelationParentFolder))}
}

func (r *RelationParentIndex) Put(childRelationID, parentRelationID osm.RelationID) error {
	return r.put(uint64(childRelationID), uint64(parentRelationID))
}

func (r *RelationParentIndex) Seal() error {
	return r.seal()
}

func (r *RelationParentIndex) Get(childRelationID osm.RelationID) ([]osm.RelationID, error) {
	values, err := r.get(uint64(childRelationID))
	if err != nil {
		return nil, err
	}

	parentIDs := make([]osm.RelationID, len(values))
	for i, v := range values {
		parentIDs[i] = osm.RelationID(v)
	}
	return parentIDs, nil
}

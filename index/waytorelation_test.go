package index

import (
	"testing"

	"github.com/paulmach/osm"

	"osmsort/internal/testutil"
)

// TestWayToRelationIndex_getReturnsAllRelationsAfterSeal is spec.md §8
// property 6: a way referenced by multiple relations must return every one
// of them from Get once the index is built and sealed.
func TestWayToRelationIndex_getReturnsAllRelationsAfterSeal(t *testing.T) {
	idx := NewWayToRelationIndex(t.TempDir())

	testutil.AssertNil(t, idx.Put(osm.WayID(1), osm.RelationID(10)))
	testutil.AssertNil(t, idx.Put(osm.WayID(1), osm.RelationID(20)))
	testutil.AssertNil(t, idx.Put(osm.WayID(2), osm.RelationID(30)))

	testutil.AssertNil(t, idx.Seal())

	got, err := idx.Get(osm.WayID(1))
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, 2, len(got))

	seen := map[osm.RelationID]bool{}
	for _, relID := range got {
		seen[relID] = true
	}
	testutil.AssertTrue(t, seen[osm.RelationID(10)])
	testutil.AssertTrue(t, seen[osm.RelationID(20)])

	got2, err := idx.Get(osm.WayID(2))
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, []osm.RelationID{osm.RelationID(30)}, got2)
}

// TestWayToRelationIndex_unknownWayReturnsEmpty covers a way never put:
// Get must return an empty, not nil-panicking, result.
func TestWayToRelationIndex_unknownWayReturnsEmpty(t *testing.T) {
	idx := NewWayToRelationIndex(t.TempDir())
	testutil.AssertNil(t, idx.Seal())

	got, err := idx.Get(osm.WayID(99))
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, 0, len(got))
}

// TestRelationParentIndex_getReturnsParentAfterSeal exercises the
// supplemental relation-in-relation index directly (reader_test.go
// exercises it end to end through OsmTwoPassReader.Pass1).
func TestRelationParentIndex_getReturnsParentAfterSeal(t *testing.T) {
	idx := NewRelationParentIndex(t.TempDir())

	testutil.AssertNil(t, idx.Put(osm.RelationID(100), osm.RelationID(200)))
	testutil.AssertNil(t, idx.Seal())

	got, err := idx.Get(osm.RelationID(100))
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, []osm.RelationID{osm.RelationID(200)}, got)
}

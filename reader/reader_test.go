package reader

import (
	"testing"

	"github.com/paulmach/osm"

	"osmsort/internal/testutil"
	"osmsort/mergesort"
	"osmsort/stats"
)

// fakeScanner replays a fixed slice of osm.Objects, mimicking osm.Scanner
// for tests without needing a real PBF/XML file on disk.
type fakeScanner struct {
	objs []osm.Object
	idx  int
}

func (s *fakeScanner) Scan() bool {
	if s.idx >= len(s.objs) {
		return false
	}
	s.idx++
	return true
}

func (s *fakeScanner) Object() osm.Object { return s.objs[s.idx-1] }
func (s *fakeScanner) Err() error         { return nil }
func (s *fakeScanner) Close() error       { return nil }

func newFakeScanner(objs ...osm.Object) *fakeScanner {
	return &fakeScanner{objs: objs}
}

// ingest drives a fresh OsmTwoPassReader over objs through both passes and
// collects the resulting RenderedFeatures in sorted order.
func ingest(t *testing.T, objs []osm.Object) ([]mergesort.Entry, *OsmTwoPassReader) {
	t.Helper()

	counters := stats.NewCounters()
	r := New(t.TempDir(), 2, true, counters)

	profile := DefaultProfile{}

	testutil.AssertNil(t, r.Pass1(newFakeScanner(objs...), profile))

	sink, err := mergesort.New(mergesort.Config{Workers: 2, TempDir: t.TempDir()}, counters)
	testutil.AssertNil(t, err)

	testutil.AssertNil(t, r.Pass2(newFakeScanner(objs...), profile, profile, sink))
	testutil.AssertNil(t, sink.Sort())

	it, err := sink.Iterator()
	testutil.AssertNil(t, err)

	var got []mergesort.Entry
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, e)
	}
	testutil.AssertNil(t, it.Err())
	testutil.AssertNil(t, sink.Close())

	return got, r
}

// TestPass_emptyInputYieldsNoFeatures is scenario S1.
func TestPass_emptyInputYieldsNoFeatures(t *testing.T) {
	got, r := ingest(t, nil)
	testutil.AssertEqual(t, 0, len(got))
	testutil.AssertNil(t, r.Close())
}

// TestPass_singleNodeYieldsOneFeature is scenario S2.
func TestPass_singleNodeYieldsOneFeature(t *testing.T) {
	node := &osm.Node{
		ID:  osm.NodeID(1),
		Lon: 7.0,
		Lat: 51.0,
		Tags: osm.Tags{
			{Key: "amenity", Value: "cafe"},
		},
	}

	got, r := ingest(t, []osm.Object{node})
	testutil.AssertEqual(t, 1, len(got))
	testutil.AssertEqual(t, int64(1)<<2, got[0].SortKey) // node type tag is 0
	testutil.AssertNil(t, r.Close())
}

// TestPass_wayOfTwoNodesYieldsOneFeature is scenario S3.
func TestPass_wayOfTwoNodesYieldsOneFeature(t *testing.T) {
	n1 := &osm.Node{ID: osm.NodeID(1), Lon: 7.0, Lat: 51.0}
	n2 := &osm.Node{ID: osm.NodeID(2), Lon: 7.1, Lat: 51.1}
	way := &osm.Way{
		ID: osm.WayID(10),
		Nodes: osm.WayNodes{
			{ID: osm.NodeID(1), Lon: 7.0, Lat: 51.0},
			{ID: osm.NodeID(2), Lon: 7.1, Lat: 51.1},
		},
		Tags: osm.Tags{{Key: "highway", Value: "residential"}},
	}

	got, r := ingest(t, []osm.Object{n1, n2, way})
	testutil.AssertEqual(t, 1, len(got))
	testutil.AssertNil(t, r.Close())
}

// TestPass_multipolygonRelationYieldsOneFeature is scenario S4: a
// multipolygon relation whose single way member forms a closed ring.
func TestPass_multipolygonRelationYieldsOneFeature(t *testing.T) {
	n1 := &osm.Node{ID: osm.NodeID(1), Lon: 0, Lat: 0}
	n2 := &osm.Node{ID: osm.NodeID(2), Lon: 1, Lat: 0}
	n3 := &osm.Node{ID: osm.NodeID(3), Lon: 1, Lat: 1}
	n4 := &osm.Node{ID: osm.NodeID(4), Lon: 0, Lat: 0}

	way := &osm.Way{
		ID: osm.WayID(20),
		Nodes: osm.WayNodes{
			{ID: osm.NodeID(1), Lon: 0, Lat: 0},
			{ID: osm.NodeID(2), Lon: 1, Lat: 0},
			{ID: osm.NodeID(3), Lon: 1, Lat: 1},
			{ID: osm.NodeID(4), Lon: 0, Lat: 0},
		},
	}
	rel := &osm.Relation{
		ID:   osm.RelationID(30),
		Tags: osm.Tags{{Key: "type", Value: "multipolygon"}, {Key: "landuse", Value: "forest"}},
		Members: osm.Members{
			{Type: osm.TypeWay, Ref: int64(way.ID), Role: "outer"},
		},
	}

	got, r := ingest(t, []osm.Object{n1, n2, n3, n4, way, rel})

	// The way itself has >=2 nodes, so it also yields its own feature
	// alongside the multipolygon relation's feature.
	testutil.AssertEqual(t, 2, len(got))
	testutil.AssertNil(t, r.Close())
}

// TestPass_wayWithMissingNodeDropsThatNode is scenario S6: a way
// referencing a node never seen in pass 1 skips it and still emits a
// feature from the remaining resolvable nodes, while bumping the
// MissingNodeRefs counter.
func TestPass_wayWithMissingNodeDropsThatNode(t *testing.T) {
	n1 := &osm.Node{ID: osm.NodeID(1), Lon: 7.0, Lat: 51.0}
	n2 := &osm.Node{ID: osm.NodeID(2), Lon: 7.1, Lat: 51.1}
	way := &osm.Way{
		ID: osm.WayID(11),
		Nodes: osm.WayNodes{
			{ID: osm.NodeID(1), Lon: 7.0, Lat: 51.0},
			{ID: osm.NodeID(999), Lon: 0, Lat: 0}, // never indexed in pass 1
			{ID: osm.NodeID(2), Lon: 7.1, Lat: 51.1},
		},
	}

	got, r := ingest(t, []osm.Object{n1, n2, way})
	testutil.AssertEqual(t, 1, len(got))
	testutil.AssertEqual(t, int64(1), r.Stats().Snapshot().MissingNodeRefs)
	testutil.AssertNil(t, r.Close())
}

// TestPass_wayWithOnlyMissingNodesYieldsNoFeature covers the edge case
// where every referenced node is missing: fewer than two points remain, so
// no feature at all is produced for the way.
func TestPass_wayWithOnlyMissingNodesYieldsNoFeature(t *testing.T) {
	way := &osm.Way{
		ID: osm.WayID(12),
		Nodes: osm.WayNodes{
			{ID: osm.NodeID(901), Lon: 0, Lat: 0},
			{ID: osm.NodeID(902), Lon: 0, Lat: 0},
		},
	}

	got, r := ingest(t, []osm.Object{way})
	testutil.AssertEqual(t, 0, len(got))
	testutil.AssertEqual(t, int64(2), r.Stats().Snapshot().MissingNodeRefs)
	testutil.AssertNil(t, r.Close())
}

// TestRelationParents_recordsChildToParentMembership exercises the
// supplemental relation-in-relation index: a route_master relation whose
// member is another relation must make that member's parent lookup return
// the route_master's id.
func TestRelationParents_recordsChildToParentMembership(t *testing.T) {
	child := &osm.Relation{
		ID:   osm.RelationID(100),
		Tags: osm.Tags{{Key: "type", Value: "route"}},
	}
	parent := &osm.Relation{
		ID:   osm.RelationID(200),
		Tags: osm.Tags{{Key: "type", Value: "route_master"}},
		Members: osm.Members{
			{Type: osm.TypeRelation, Ref: int64(child.ID), Role: "route"},
		},
	}

	counters := stats.NewCounters()
	r := New(t.TempDir(), 2, false, counters)
	profile := DefaultProfile{}

	testutil.AssertNil(t, r.Pass1(newFakeScanner(child, parent), profile))

	parents, err := r.RelationParents().Get(child.ID)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, []osm.RelationID{parent.ID}, parents)

	noParents, err := r.RelationParents().Get(parent.ID)
	testutil.AssertNil(t, err)
	testutil.AssertEqual(t, 0, len(noParents))

	testutil.AssertNil(t, r.Close())
}

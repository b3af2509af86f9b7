package feature

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"osmsort/index"
)

// SourceFeature is the tagged variant produced ephemerally by pass 2 of the
// two-pass reader (see reader.OsmTwoPassReader). Its lifetime is bounded by
// one worker loop iteration: a worker builds one, hands it to the Profile,
// and discards it.
type SourceFeature struct {
	Type OsmObjectType
	ID   uint64
	Tags osm.Tags

	// Node: the decoded point. Way: the assembled line. Multipolygon: one
	// orb.Polygon holding one ring per resolvable way member. The reader
	// never emits a feature whose geometry could not be assembled: a way
	// with fewer than two resolvable nodes, or a multipolygon with no
	// resolvable way member, yields no feature at all.
	Geometry orb.Geometry

	// RelationInfos carries, for a Way feature only, the RelationInfo
	// entries (C5) recorded for every relation that references this way as
	// a member (looked up via WayToRelationIndex/C2 during pass 2). This is
	// how a non-multipolygon relation's preprocessed summary reaches a
	// feature, per §4.5's "non-multipolygon relations are skipped here
	// (they were handled via C5 during way processing)". Always nil for
	// Node and Multipolygon features.
	RelationInfos []index.RelationInfo
}

// RenderedFeature is a single entry accepted by mergesort.ExternalMergeSort.
// Payload is opaque to everything in this module; only the tile encoder that
// consumes the sorted stream downstream knows how to interpret it.
type RenderedFeature struct {
	SortKey int64
	Payload []byte
}

// RenderableSink collects renderables emitted by Profile.ProcessFeature.
// The concrete renderable type is defined by the caller's Profile/Renderer
// pair; this module only needs to shuttle it through.
type RenderableSink struct {
	Renderables []any
}

func (s *RenderableSink) Emit(renderable any) {
	s.Renderables = append(s.Renderables, renderable)
}

// RenderedSink collects RenderedFeatures produced by a FeatureRenderer.
type RenderedSink struct {
	Features []RenderedFeature
}

func (s *RenderedSink) Emit(f RenderedFeature) {
	s.Features = append(s.Features, f)
}

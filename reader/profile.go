package reader

import (
	"github.com/paulmach/osm"

	"osmsort/feature"
	"osmsort/index"
)

// Profile is the user-supplied tag-to-feature mapping (§6, deliberately
// out of scope for this module's own logic — OsmTwoPassReader only calls
// it at the two points the protocol fixes).
type Profile interface {
	// PreprocessRelation is called once per relation during pass 1, before
	// any way geometry exists. A nil/empty result means "this profile
	// does not care about this relation": no C5/C2 entries are recorded
	// for it (see OsmTwoPassReader.Pass1).
	PreprocessRelation(rel *osm.Relation) ([]index.RelationInfo, error)

	// ProcessFeature is called once per SourceFeature produced during pass
	// 2. It may push zero or more renderables onto sink; each is later
	// handed to a FeatureRenderer.
	ProcessFeature(src feature.SourceFeature, sink *feature.RenderableSink) error
}

// FeatureRenderer converts a renderable emitted by Profile.ProcessFeature
// into zero or more RenderedFeatures (§6).
type FeatureRenderer interface {
	Render(renderable any, sink *feature.RenderedSink) error
}

// tagSizeInfo is the minimal RelationInfo DefaultProfile records: just
// enough retained-size accounting to exercise RelationInfoTable's
// TotalSizeBytes (§6 "RelationInfo.size_bytes()").
type tagSizeInfo struct {
	tagCount int
}

func (t tagSizeInfo) SizeBytes() int {
	// Rough per-tag overhead for a (key, value) string pair header; real
	// Profiles will have a more precise estimate for their own payload.
	return 32 + t.tagCount*48
}

// DefaultProfile is a minimal, pass-through Profile+FeatureRenderer used by
// the ingest CLI command when no domain-specific plug-in is wired.
// It is not a stand-in for the real Profile contract (§1 places the actual
// tag->feature mapping out of scope) — it exists only so this module's CLI
// entry points are runnable end to end without an external dependency.
type DefaultProfile struct{}

func (DefaultProfile) PreprocessRelation(rel *osm.Relation) ([]index.RelationInfo, error) {
	if len(rel.Tags) == 0 {
		return nil, nil
	}
	return []index.RelationInfo{tagSizeInfo{tagCount: len(rel.Tags)}}, nil
}

// ProcessFeature emits every feature with a geometry, except untagged nodes
// (plain way vertices), which yield nothing.
func (DefaultProfile) ProcessFeature(src feature.SourceFeature, sink *feature.RenderableSink) error {
	if src.Geometry == nil {
		return nil
	}
	if src.Type == feature.OsmObjNode && len(src.Tags) == 0 {
		return nil
	}
	sink.Emit(src)
	return nil
}

// Render turns the SourceFeature renderable back into a RenderedFeature:
// sort_key packs the object type into the low bits so nodes/ways/relations
// with the same numeric id never collide, payload is the tag set encoded
// as "key=value\n" lines, which is enough for a downstream tile encoder
// stand-in to exercise the sorted stream.
func (DefaultProfile) Render(renderable any, sink *feature.RenderedSink) error {
	src, ok := renderable.(feature.SourceFeature)
	if !ok {
		return nil
	}

	sortKey := int64(src.ID)<<2 | int64(src.Type)

	var payload []byte
	for _, tag := range src.Tags {
		payload = append(payload, tag.Key...)
		payload = append(payload, '=')
		payload = append(payload, tag.Value...)
		payload = append(payload, '\n')
	}

	sink.Emit(feature.RenderedFeature{SortKey: sortKey, Payload: payload})
	return nil
}

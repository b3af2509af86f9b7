// Package reader implements OsmTwoPassReader (C6): the orchestrator that
// drives a PBF/XML source through pass 1 (index building) and pass 2
// (feature reconstruction + rendering), coordinating the ways-done barrier
// so every way is fully processed before any relation begins.
//
// Grounded on the teacher's importing/import.go (osmpbf.New/osmxml.New
// scanner dispatch, switch osmObj := obj.(type)) generalized from its
// single-pass grid-cell import into the two-pass protocol §4.5 describes,
// with pass 2's fan-out/fan-in built on pipeline.Runtime/Queue (C8),
// grounded on the teacher's addAdditionalIdsToObjectsInCells worker pool
// (index/grid_writer.go).
package reader

import (
	"sync"
	"time"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"

	"osmsort/feature"
	"osmsort/geo"
	"osmsort/index"
	"osmsort/mergesort"
	"osmsort/pipeline"
	"osmsort/stats"
)

// multipolygonWayGeometryCacheSize bounds how many shard files' parsed
// geometry stay resident at once in MultipolygonWayGeometry's LRU cache.
const multipolygonWayGeometryCacheSize = 64

// OsmTwoPassReader is C6. It exclusively owns C1-C5 (see §3's ownership
// rule) for its lifetime and releases them on Close.
type OsmTwoPassReader struct {
	indexBaseFolder string
	workers         int
	debugAssert     bool
	stats           *stats.Counters

	nodeLocations    *index.NodeLocationStore
	wayToRelation    *index.WayToRelationIndex
	relationParents  *index.RelationParentIndex
	multipolygonWays *index.MultipolygonWaySet
	wayGeometry      *index.MultipolygonWayGeometry
	relationInfo     *index.RelationInfoTable

	pass1Sealed bool
}

// New creates an OsmTwoPassReader rooted at indexBaseFolder, using workers
// pass-2 processor goroutines. counters may be nil to skip stats
// bookkeeping. debugAssert enables the extra invariant checks §4.4/§5
// describe as optional ("may assert"), intended for tests and development
// builds, not production ingest runs over untrusted data.
func New(indexBaseFolder string, workers int, debugAssert bool, counters *stats.Counters) *OsmTwoPassReader {
	if workers <= 0 {
		workers = 1
	}
	if counters == nil {
		counters = stats.NewCounters()
	}

	return &OsmTwoPassReader{
		indexBaseFolder:  indexBaseFolder,
		workers:          workers,
		debugAssert:      debugAssert,
		stats:            counters,
		nodeLocations:    index.NewNodeLocationStore(indexBaseFolder),
		wayToRelation:    index.NewWayToRelationIndex(indexBaseFolder),
		relationParents:  index.NewRelationParentIndex(indexBaseFolder),
		multipolygonWays: index.NewMultipolygonWaySet(),
		wayGeometry:      index.NewMultipolygonWayGeometry(indexBaseFolder, debugAssert, multipolygonWayGeometryCacheSize),
		relationInfo:     index.NewRelationInfoTable(),
	}
}

// Stats returns the counters this reader updates as it runs.
func (r *OsmTwoPassReader) Stats() *stats.Counters {
	return r.stats
}

// RelationParents returns the relation-in-relation membership index (the
// supplemental equivalent of C2 for parent relations) built during pass 1.
// Safe to query only after Pass1 has returned, since pass 1 is what seals it.
func (r *OsmTwoPassReader) RelationParents() *index.RelationParentIndex {
	return r.relationParents
}

// Pass1 drives scanner once, populating C1 (node locations), C2
// (way->relation), C3 (multipolygon way ids), C5 (relation info) and the
// supplemental relation-parent index, then seals the disk-backed ones (C1,
// C2 and the relation-parent index). C3 and C5 are in-memory maps with no
// seal step; nothing rejects writes to them after pass 1.
// Per §4.5's "single pipeline: PBF reader pool -> 1 indexer", the PBF
// scanner's own internal parallelism (wired via its constructor) feeds a
// single serial indexer goroutine; there is no fan-out in pass 1.
func (r *OsmTwoPassReader) Pass1(scanner osm.Scanner, profile Profile) error {
	start := time.Now()

	runtime := pipeline.NewRuntime()
	runtime.Go(func() error {
		for scanner.Scan() {
			switch obj := scanner.Object().(type) {
			case *osm.Node:
				r.stats.Nodes.Add(1)
				if err := r.nodeLocations.Put(uint64(obj.ID), geo.Encode(obj.Lon, obj.Lat)); err != nil {
					return err
				}
			case *osm.Way:
				r.stats.Ways.Add(1)
			case *osm.Relation:
				r.stats.Relations.Add(1)
				if err := r.indexRelation(obj, profile); err != nil {
					return err
				}
			}
		}
		return scanner.Err()
	})

	if err := runtime.Await(); err != nil {
		return errors.Wrap(err, "pass 1 failed")
	}

	if err := r.seal(); err != nil {
		return err
	}

	sigolo.Infof("pass 1 done in %s: %d nodes, %d ways, %d relations", time.Since(start),
		r.stats.Nodes.Load(), r.stats.Ways.Load(), r.stats.Relations.Load())
	return nil
}

// tagValue returns the value for key in tags, or "" if absent. osm.Tags is
// a plain slice of (Key, Value) pairs, not a map, so relation-type checks
// (§4.5: "rel.tags['type'] == 'multipolygon'") scan it directly.
func tagValue(tags osm.Tags, key string) string {
	for _, tag := range tags {
		if tag.Key == key {
			return tag.Value
		}
	}
	return ""
}

func (r *OsmTwoPassReader) indexRelation(rel *osm.Relation, profile Profile) error {
	infos, err := profile.PreprocessRelation(rel)
	if err != nil {
		return errors.Wrapf(err, "preprocessing relation %d", rel.ID)
	}

	isMultipolygon := tagValue(rel.Tags, "type") == "multipolygon"

	for _, member := range rel.Members {
		switch member.Type {
		case osm.TypeWay:
			wayID := osm.WayID(member.Ref)
			if len(infos) > 0 {
				if err := r.wayToRelation.Put(wayID, rel.ID); err != nil {
					return err
				}
			}
			if isMultipolygon {
				r.multipolygonWays.Add(wayID)
			}
		case osm.TypeRelation:
			if err := r.relationParents.Put(osm.RelationID(member.Ref), rel.ID); err != nil {
				return err
			}
		}
	}

	for _, info := range infos {
		r.relationInfo.Put(rel.ID, info)
	}

	return nil
}

func (r *OsmTwoPassReader) seal() error {
	if r.pass1Sealed {
		return nil
	}
	if err := r.nodeLocations.Seal(); err != nil {
		return errors.Wrap(err, "sealing node location store")
	}
	if err := r.wayToRelation.Seal(); err != nil {
		return errors.Wrap(err, "sealing way-to-relation index")
	}
	if err := r.relationParents.Seal(); err != nil {
		return errors.Wrap(err, "sealing relation-parent index")
	}
	r.pass1Sealed = true
	return nil
}

// Pass2 drives scanner a second time, fanning element processing out
// across r.workers goroutines and funneling every RenderedFeature into
// sink through a single serialized producer (§5: ExternalMergeSort.Add is
// single-threaded). Every worker observes the ways-done barrier exactly
// once, per §5's protocol, before it processes its first relation.
func (r *OsmTwoPassReader) Pass2(scanner osm.Scanner, profile Profile, renderer FeatureRenderer, sink *mergesort.ExternalMergeSort) error {
	start := time.Now()

	queueSize := r.workers * 4
	elements := pipeline.NewQueue[osm.Object](queueSize)
	rendered := pipeline.NewQueue[feature.RenderedFeature](queueSize)

	runtime := pipeline.NewRuntime()
	barrier := pipeline.NewWaysDoneBarrier(r.workers)

	var barrierOnce sync.Once
	var workersWG sync.WaitGroup
	workersWG.Add(r.workers)

	// Source stage: one goroutine scanning serially (osm.Scanner is not
	// safe for concurrent Scan/Object calls), feeding the bounded queue.
	runtime.Go(func() error {
		defer elements.Close()
		for scanner.Scan() {
			if runtime.Cancelled() {
				break
			}
			elements.Put(scanner.Object())
		}
		return scanner.Err()
	})

	// N processor workers, fanned out over the shared elements queue.
	for w := 0; w < r.workers; w++ {
		runtime.Go(func() error {
			defer workersWG.Done()

			seenRelation := false
			var workerErr error

			elements.Range(func(obj osm.Object) bool {
				switch o := obj.(type) {
				case *osm.Relation:
					if !seenRelation {
						seenRelation = true
						barrier.ArriveAndWait()
						// Every C4 Put has happened by now; flush its buffered
						// shard writers so Get can read the geometries back.
						barrierOnce.Do(func() {
							if err := r.wayGeometry.Close(); err != nil {
								workerErr = err
								runtime.Cancel(err)
								return
							}
							if r.debugAssert {
								if err := r.assertWaysMaterialized(); err != nil {
									workerErr = err
									runtime.Cancel(err)
								}
							}
						})
					}
					if runtime.Cancelled() {
						return true
					}
					if err := r.processRelation(o, profile, renderer, rendered); err != nil {
						workerErr = err
						runtime.Cancel(err)
					}
				case *osm.Way:
					if runtime.Cancelled() {
						return true
					}
					if err := r.processWay(o, profile, renderer, rendered); err != nil {
						workerErr = err
						runtime.Cancel(err)
					}
				case *osm.Node:
					if runtime.Cancelled() {
						return true
					}
					if err := r.processNode(o, profile, renderer, rendered); err != nil {
						workerErr = err
						runtime.Cancel(err)
					}
				}
				return true
			})

			if !seenRelation {
				barrier.Arrive()
			}
			return workerErr
		})
	}

	// Closes the rendered queue once every worker has exited, so the sink
	// stage below can range over it without racing the fan-in.
	runtime.Go(func() error {
		workersWG.Wait()
		rendered.Close()
		return nil
	})

	// Sink stage: one goroutine, the sole caller of ExternalMergeSort.Add.
	runtime.Go(func() error {
		var sinkErr error
		rendered.Range(func(f feature.RenderedFeature) bool {
			if runtime.Cancelled() && sinkErr != nil {
				return true
			}
			if err := sink.Add(mergesort.Entry{SortKey: f.SortKey, Payload: f.Payload}); err != nil {
				sinkErr = err
				runtime.Cancel(err)
				return true
			}
			return true
		})
		return sinkErr
	})

	if err := runtime.Await(); err != nil {
		return errors.Wrap(err, "pass 2 failed")
	}

	sigolo.Infof("pass 2 done in %s", time.Since(start))
	return nil
}

func (r *OsmTwoPassReader) processNode(n *osm.Node, profile Profile, renderer FeatureRenderer, rendered *pipeline.Queue[feature.RenderedFeature]) error {
	src := feature.SourceFeature{
		Type:     feature.OsmObjNode,
		ID:       uint64(n.ID),
		Tags:     n.Tags,
		Geometry: orb.Point{n.Lon, n.Lat},
	}
	return r.emit(src, profile, renderer, rendered)
}

// processWay assembles the way's geometry from C1, materializing it into
// C4 first if the way is a multipolygon member (§4.4/§4.5), then emits a
// Way SourceFeature if at least two nodes resolved (§4.5 edge case: a
// missing node is dropped; fewer than 2 remaining points yields nothing).
func (r *OsmTwoPassReader) processWay(w *osm.Way, profile Profile, renderer FeatureRenderer, rendered *pipeline.Queue[feature.RenderedFeature]) error {
	locs := make([]geo.PackedLocation, 0, len(w.Nodes))
	line := make(orb.LineString, 0, len(w.Nodes))

	for _, ref := range w.Nodes {
		loc := r.nodeLocations.Get(uint64(ref.ID))
		if loc == geo.MISSING {
			r.stats.MissingNodeRefs.Add(1)
			sigolo.Debugf("way %d references missing node %d", w.ID, ref.ID)
			continue
		}
		lon, lat := geo.Decode(loc)
		locs = append(locs, loc)
		line = append(line, orb.Point{lon, lat})
	}

	if r.multipolygonWays.Contains(w.ID) {
		if err := r.wayGeometry.Put(w.ID, locs); err != nil {
			return errors.Wrapf(err, "materializing geometry for way %d", w.ID)
		}
	}

	if len(line) < 2 {
		return nil
	}

	relationIDs, err := r.wayToRelation.Get(w.ID)
	if err != nil {
		return errors.Wrapf(err, "looking up relations for way %d", w.ID)
	}
	var infos []index.RelationInfo
	for _, relID := range relationIDs {
		infos = append(infos, r.relationInfo.Get(relID)...)
	}

	src := feature.SourceFeature{
		Type:          feature.OsmObjWay,
		ID:            uint64(w.ID),
		Tags:          w.Tags,
		Geometry:      line,
		RelationInfos: infos,
	}
	return r.emit(src, profile, renderer, rendered)
}

// processRelation handles only multipolygon relations (§4.5: non-
// multipolygon relations were already handled via C5 during way
// processing). A way member absent from C4 is a data error: its ring is
// dropped; if every ring drops, the relation yields no feature.
func (r *OsmTwoPassReader) processRelation(rel *osm.Relation, profile Profile, renderer FeatureRenderer, rendered *pipeline.Queue[feature.RenderedFeature]) error {
	if tagValue(rel.Tags, "type") != "multipolygon" {
		return nil
	}

	var rings orb.Polygon
	for _, member := range rel.Members {
		if member.Type != osm.TypeWay {
			continue
		}
		wayID := osm.WayID(member.Ref)

		locs, err := r.wayGeometry.Get(wayID)
		if err != nil {
			return errors.Wrapf(err, "looking up geometry for way %d in multipolygon %d", wayID, rel.ID)
		}
		if len(locs) == 0 {
			r.stats.MissingWayRefs.Add(1)
			sigolo.Debugf("multipolygon %d references way %d with no materialized geometry", rel.ID, wayID)
			continue
		}

		ring := make(orb.Ring, len(locs))
		for i, loc := range locs {
			lon, lat := geo.Decode(loc)
			ring[i] = orb.Point{lon, lat}
		}
		rings = append(rings, ring)
	}

	if len(rings) == 0 {
		return nil
	}

	src := feature.SourceFeature{
		Type:     feature.OsmObjRelation,
		ID:       uint64(rel.ID),
		Tags:     rel.Tags,
		Geometry: rings,
	}
	return r.emit(src, profile, renderer, rendered)
}

func (r *OsmTwoPassReader) emit(src feature.SourceFeature, profile Profile, renderer FeatureRenderer, rendered *pipeline.Queue[feature.RenderedFeature]) error {
	renderableSink := &feature.RenderableSink{}
	if err := profile.ProcessFeature(src, renderableSink); err != nil {
		return errors.Wrapf(err, "processing %s %d", src.Type, src.ID)
	}

	for _, renderable := range renderableSink.Renderables {
		renderedSink := &feature.RenderedSink{}
		if err := renderer.Render(renderable, renderedSink); err != nil {
			return errors.Wrapf(err, "rendering %s %d", src.Type, src.ID)
		}
		for _, rf := range renderedSink.Features {
			rendered.Put(rf)
		}
	}
	return nil
}

// assertWaysMaterialized checks §4.4's optional invariant: every way
// MultipolygonWaySet (C3) names must have a materialized geometry (C4) by
// the time relation processing begins. Called at most once, right after
// the ways-done barrier opens, guarded by debugAssert since it is an
// O(|C3|) scan not meant for production-sized runs over untrusted data.
func (r *OsmTwoPassReader) assertWaysMaterialized() error {
	for _, wayID := range r.multipolygonWays.Ids() {
		has, err := r.wayGeometry.Has(wayID)
		if err != nil {
			return errors.Wrapf(err, "asserting way-geometry materialization for way %d", wayID)
		}
		if !has {
			return errors.Errorf("invariant violation: way %d is in MultipolygonWaySet but has no materialized geometry at the ways-done barrier", wayID)
		}
	}
	return nil
}

// Close releases in-memory index state. Per §3's ownership rule, the
// caller that created indexBaseFolder is responsible for removing it from
// disk; Close only drops OsmTwoPassReader's own in-memory references.
func (r *OsmTwoPassReader) Close() error {
	r.nodeLocations.Close()
	return r.wayGeometry.Close()
}

package index

import (
	"encoding/binary"
	"os"
	"path"
	"sync"

	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"

	"osmsort/geo"
)

// MultipolygonWayGeometryFolder is the sub-folder holding C4's shard files.
const MultipolygonWayGeometryFolder = "multipolygon-way-geometry"

// MultipolygonWayGeometry is C4: an ordered way_id -> []PackedLocation
// mapping, populated opportunistically by pass 2 workers the first time
// each way that MultipolygonWaySet (C3) marks as relevant is encountered
// (see SPEC_FULL.md's "C4 materialization timing" decision). Writes for
// different way ids may race across pass-2 workers (§5: "concurrent put
// from pass 2 workers must be safe"); writes for the *same* way id must
// never race, since OSM guarantees a way appears once, so debug builds
// assert that instead of paying for per-key locking.
//
// Grounded on the teacher's lruFeatureCache (index/cache.go): shard files
// are read fully into memory and cached by filename on first access, with
// entries evicted least-recently-used when the cache grows past maxSize.
type MultipolygonWayGeometry struct {
	writers *shardWriterCache

	debugAssert bool
	seenMu      sync.Mutex
	seen        map[osm.WayID]struct{}

	cache *lruGeometryCache
}

func NewMultipolygonWayGeometry(baseFolder string, debugAssert bool, cacheSize int) *MultipolygonWayGeometry {
	folder := path.Join(baseFolder, MultipolygonWayGeometryFolder)
	return &MultipolygonWayGeometry{
		writers:     newShardWriterCache(folder),
		debugAssert: debugAssert,
		seen:        map[osm.WayID]struct{}{},
		cache:       newLRUGeometryCache(folder, cacheSize),
	}
}

// Put records the ordered node locations for wayID. Safe for concurrent
// callers putting different way ids. When debugAssert is enabled, a second
// Put for the same wayID panics instead of silently corrupting the shard
// file, per §5's "should assert it in debug".
func (g *MultipolygonWayGeometry) Put(wayID osm.WayID, locations []geo.PackedLocation) error {
	if g.debugAssert {
		g.seenMu.Lock()
		if _, ok := g.seen[wayID]; ok {
			g.seenMu.Unlock()
			panic(errors.Errorf("MultipolygonWayGeometry: concurrent/duplicate put for way %d", wayID).Error())
		}
		g.seen[wayID] = struct{}{}
		g.seenMu.Unlock()
	}

	data := make([]byte, 8+4+len(locations)*8)
	binary.BigEndian.PutUint64(data[0:], uint64(wayID))
	binary.BigEndian.PutUint32(data[8:], uint32(len(locations)))
	for i, loc := range locations {
		binary.BigEndian.PutUint64(data[12+i*8:], uint64(loc))
	}

	return g.writers.write(nodeLocationShard(uint64(wayID)), data)
}

// Has reports whether wayID has been materialized. Used to assert, at the
// ways-done barrier, that every way MultipolygonWaySet (C3) names has a
// geometry before relation processing begins (§4.4).
func (g *MultipolygonWayGeometry) Has(wayID osm.WayID) (bool, error) {
	locs, err := g.Get(wayID)
	if err != nil {
		return false, err
	}
	return locs != nil, nil
}

// Get returns the ordered node locations recorded for wayID, or nil if it
// was never put.
func (g *MultipolygonWayGeometry) Get(wayID osm.WayID) ([]geo.PackedLocation, error) {
	return g.cache.get(nodeLocationShard(uint64(wayID)), wayID, g.writers.path(nodeLocationShard(uint64(wayID))))
}

// Close flushes and closes every shard writer; a later Put reopens the
// shard file in append mode. The shard files themselves are not removed
// here or by the owning reader's Close; removing the index base folder is
// up to the caller that created it.
func (g *MultipolygonWayGeometry) Close() error {
	return g.writers.closeAll()
}

// lruGeometryCache parses shard files on first access into a way_id ->
// locations map and evicts the least-recently-used shard's parsed map when
// full, exactly mirroring the teacher's lruFeatureCache (index/cache.go).
type lruGeometryCache struct {
	mu          sync.Mutex
	maxSize     int
	parsed      map[int]map[osm.WayID][]geo.PackedLocation
	lastAccess  map[int]int64
	accessClock int64
}

func newLRUGeometryCache(_ string, maxSize int) *lruGeometryCache {
	if maxSize <= 0 {
		maxSize = 64
	}
	return &lruGeometryCache{
		maxSize:    maxSize,
		parsed:     map[int]map[osm.WayID][]geo.PackedLocation{},
		lastAccess: map[int]int64{},
	}
}

func (c *lruGeometryCache) get(shard int, wayID osm.WayID, filename string) ([]geo.PackedLocation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byWay, ok := c.parsed[shard]
	if !ok {
		var err error
		byWay, err = parseGeometryShardFile(filename)
		if err != nil {
			return nil, err
		}
		c.insertLocked(shard, byWay)
	}

	c.accessClock++
	c.lastAccess[shard] = c.accessClock

	return byWay[wayID], nil
}

func (c *lruGeometryCache) insertLocked(shard int, byWay map[osm.WayID][]geo.PackedLocation) {
	if len(c.parsed) >= c.maxSize {
		var oldest int
		oldestAccess := int64(1<<63 - 1)
		for s, t := range c.lastAccess {
			if t < oldestAccess {
				oldestAccess = t
				oldest = s
			}
		}
		delete(c.parsed, oldest)
		delete(c.lastAccess, oldest)
	}
	c.parsed[shard] = byWay
}

func parseGeometryShardFile(filename string) (map[osm.WayID][]geo.PackedLocation, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return map[osm.WayID][]geo.PackedLocation{}, nil
		}
		return nil, errors.Wrapf(err, "unable to read way-geometry shard file %s", filename)
	}

	byWay := map[osm.WayID][]geo.PackedLocation{}
	for pos := 0; pos+12 <= len(data); {
		wayID := osm.WayID(binary.BigEndian.Uint64(data[pos:]))
		count := int(binary.BigEndian.Uint32(data[pos+8:]))
		pos += 12

		if pos+count*8 > len(data) {
			return nil, errors.Errorf("way-geometry shard file %s is truncated for way %d", filename, wayID)
		}

		locs := make([]geo.PackedLocation, count)
		for i := 0; i < count; i++ {
			locs[i] = geo.PackedLocation(binary.BigEndian.Uint64(data[pos:]))
			pos += 8
		}

		byWay[wayID] = locs
		sigolo.Tracef("parsed way geometry %d with %d points from %s", wayID, count, filename)
	}

	return byWay, nil
}

package index

import (
	"encoding/binary"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"

	"osmsort/geo"
)

// NodeLocationStoreFolder is the sub-folder (under an index base folder)
// holding the node-location shard files.
const NodeLocationStoreFolder = "node-locations"

// nodeLocationRecordSize is the on-disk width of one (id, packed location)
// record: an 8-byte id followed by the 8-byte packed location.
const nodeLocationRecordSize = 16

// nodeLocationShardBits determines how node ids are distributed across
// shard files: ids sharing the top bits beyond this shift land in the same
// shard file. OSM node ids run up to roughly 1e10, so a 20-bit shard width
// keeps each shard to about a million records, comparable in shape to the
// teacher's per-cell files.
const nodeLocationShardBits = 20

// NodeLocationStore is C1: a disk-backed total function from node id to
// PackedLocation, with a MISSING sentinel for anything never put. Writes
// only happen during pass 1 (see reader.OsmTwoPassReader); Seal makes it
// safe for concurrent reads during pass 2. Reads are not lock-free: each
// Get takes a short mutex to look up the shard's cached records, and the
// binary search then runs without it. This mirrors the teacher's
// GridIndex: an append-only build phase backed by per-shard files
// (getCellFile) followed by a read phase backed by a cache of
// fully-materialized shard contents. Unlike the teacher's LRU cache, this
// one is a plain map with no eviction: every shard read stays resident
// until Close.
type NodeLocationStore struct {
	baseFolder string
	writers    *shardWriterCache

	sealed bool

	cacheMu sync.Mutex
	cache   map[int][]nodeLocationRecord // shard -> sorted records, populated lazily post-seal
}

type nodeLocationRecord struct {
	id       uint64
	location geo.PackedLocation
}

// NewNodeLocationStore creates a store rooted at baseFolder/NodeLocationStoreFolder.
func NewNodeLocationStore(baseFolder string) *NodeLocationStore {
	folder := path.Join(baseFolder, NodeLocationStoreFolder)
	return &NodeLocationStore{
		baseFolder: folder,
		writers:    newShardWriterCache(folder),
		cache:      map[int][]nodeLocationRecord{},
	}
}

func nodeLocationShard(id uint64) int {
	return int(id >> nodeLocationShardBits)
}

// Put records the location for id. Safe for concurrent callers putting
// different ids; per §5, concurrent put during pass 1 must be safe, which
// this achieves via shardWriterCache's per-shard locks. Idempotent for
// equal values. If called twice for the same id with different values,
// both records are appended; Seal's sort is not stable and Get returns
// the first record with a matching id, so which of the two values Get
// returns is not defined. Other ids are unaffected.
func (s *NodeLocationStore) Put(id uint64, location geo.PackedLocation) error {
	if s.sealed {
		return errors.Errorf("NodeLocationStore: put after seal for id %d", id)
	}

	var buf [nodeLocationRecordSize]byte
	binary.BigEndian.PutUint64(buf[0:], id)
	binary.BigEndian.PutUint64(buf[8:], uint64(location))

	return s.writers.write(nodeLocationShard(id), buf[:])
}

// Seal flushes buffered writes and sorts every shard file by id, after
// which Get is safe to call concurrently without locking.
func (s *NodeLocationStore) Seal() error {
	if s.sealed {
		return nil
	}

	if err := s.writers.closeAll(); err != nil {
		return err
	}

	entries, err := os.ReadDir(s.baseFolder)
	if err != nil {
		if os.IsNotExist(err) {
			s.sealed = true
			return nil
		}
		return errors.Wrapf(err, "unable to list shard folder %s", s.baseFolder)
	}

	for _, entry := range entries {
		filename := path.Join(s.baseFolder, entry.Name())
		if err := sortRecordFile(filename, nodeLocationRecordSize, func(a, b []byte) bool {
			return binary.BigEndian.Uint64(a) < binary.BigEndian.Uint64(b)
		}); err != nil {
			return err
		}
	}

	s.sealed = true
	sigolo.Debugf("NodeLocationStore sealed, %d shard files", len(entries))

	return nil
}

// Get returns the location for id, or geo.MISSING if id was never put.
// Total: never errors, matching §4.1's "total" contract.
func (s *NodeLocationStore) Get(id uint64) geo.PackedLocation {
	shard := nodeLocationShard(id)

	records, err := s.loadShard(shard)
	if err != nil {
		sigolo.Errorf("NodeLocationStore: unable to load shard %d: %+v", shard, err)
		return geo.MISSING
	}

	i := sort.Search(len(records), func(i int) bool { return records[i].id >= id })
	if i < len(records) && records[i].id == id {
		return records[i].location
	}
	return geo.MISSING
}

func (s *NodeLocationStore) loadShard(shard int) ([]nodeLocationRecord, error) {
	s.cacheMu.Lock()
	if records, ok := s.cache[shard]; ok {
		s.cacheMu.Unlock()
		return records, nil
	}
	s.cacheMu.Unlock()

	filename := s.writers.path(shard)
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			s.cacheMu.Lock()
			s.cache[shard] = nil
			s.cacheMu.Unlock()
			return nil, nil
		}
		return nil, errors.Wrapf(err, "unable to read shard file %s", filename)
	}

	records := make([]nodeLocationRecord, 0, len(data)/nodeLocationRecordSize)
	for pos := 0; pos+nodeLocationRecordSize <= len(data); pos += nodeLocationRecordSize {
		records = append(records, nodeLocationRecord{
			id:       binary.BigEndian.Uint64(data[pos:]),
			location: geo.PackedLocation(binary.BigEndian.Uint64(data[pos+8:])),
		})
	}

	s.cacheMu.Lock()
	s.cache[shard] = records
	s.cacheMu.Unlock()

	return records, nil
}

// Close releases in-memory shard caches. The on-disk shard files are left
// in place; reader.OsmTwoPassReader.Close does not remove them either, so
// removing the index base folder is up to the caller that created it.
func (s *NodeLocationStore) Close() {
	s.cacheMu.Lock()
	s.cache = map[int][]nodeLocationRecord{}
	s.cacheMu.Unlock()
}

package index

import (
	"encoding/binary"
	"os"
	"path"
	"sort"
	"sync"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
)

// pairIndexRecordSize is the width of one (key, value) edge: two 64-bit ids.
const pairIndexRecordSize = 16

// pairIndex is an append-only, disk-backed one-to-many uint64 -> uint64
// multiset index: build by appending (key, value) edges in any order,
// seal to sort by key, then query by binary search for the first matching
// key and scanning forward while it still matches. WayToRelationIndex (C2)
// and the supplemental RelationParentIndex both have exactly this shape,
// so they're both thin wrappers around one implementation, grounded on the
// teacher's TagIndex build-then-sort discipline (index/tag.go: keys and
// values accumulate unsorted during import, then sort.Strings(values) runs
// once at the end) generalized from in-memory slices to sharded files.
type pairIndex struct {
	baseFolder string
	writers    *shardWriterCache
	sealed     bool

	cacheMu sync.Mutex
	cache   map[int][]pairRecord // shard -> sorted records, populated lazily post-seal
}

type pairRecord struct {
	key   uint64
	value uint64
}

func newPairIndex(baseFolder string) *pairIndex {
	return &pairIndex{
		baseFolder: baseFolder,
		writers:    newShardWriterCache(baseFolder),
		cache:      map[int][]pairRecord{},
	}
}

// put appends a (key, value) edge. Duplicates are tolerated and preserved
// per spec.md §9 (open question on C2 duplicate edges: resolved as
// "preserved verbatim", see SPEC_FULL.md).
func (p *pairIndex) put(key, value uint64) error {
	if p.sealed {
		return errors.Errorf("pairIndex: put after seal for key %d", key)
	}

	var buf [pairIndexRecordSize]byte
	binary.BigEndian.PutUint64(buf[0:], key)
	binary.BigEndian.PutUint64(buf[8:], value)

	return p.writers.write(nodeLocationShard(key), buf[:])
}

// seal flushes buffered writes and sorts every shard file by key.
func (p *pairIndex) seal() error {
	if p.sealed {
		return nil
	}

	if err := p.writers.closeAll(); err != nil {
		return err
	}

	entries, err := os.ReadDir(p.baseFolder)
	if err != nil {
		if os.IsNotExist(err) {
			p.sealed = true
			return nil
		}
		return errors.Wrapf(err, "unable to list pair-index folder %s", p.baseFolder)
	}

	for _, entry := range entries {
		filename := path.Join(p.baseFolder, entry.Name())
		if err := sortRecordFile(filename, pairIndexRecordSize, func(a, b []byte) bool {
			return binary.BigEndian.Uint64(a) < binary.BigEndian.Uint64(b)
		}); err != nil {
			return err
		}
	}

	p.sealed = true
	sigolo.Debugf("pairIndex %s sealed, %d shard files", p.baseFolder, len(entries))

	return nil
}

// get returns every value recorded for key. Order among values for the
// same key is unspecified but stable across repeated queries (they are
// read back from the same sorted file every time), matching §4.2.
func (p *pairIndex) get(key uint64) ([]uint64, error) {
	shard := nodeLocationShard(key)

	records, err := p.loadShard(shard)
	if err != nil {
		return nil, err
	}

	start := sort.Search(len(records), func(i int) bool { return records[i].key >= key })

	var values []uint64
	for i := start; i < len(records) && records[i].key == key; i++ {
		values = append(values, records[i].value)
	}

	return values, nil
}

func (p *pairIndex) loadShard(shard int) ([]pairRecord, error) {
	p.cacheMu.Lock()
	if records, ok := p.cache[shard]; ok {
		p.cacheMu.Unlock()
		return records, nil
	}
	p.cacheMu.Unlock()

	filename := p.writers.path(shard)
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			p.cacheMu.Lock()
			p.cache[shard] = nil
			p.cacheMu.Unlock()
			return nil, nil
		}
		return nil, errors.Wrapf(err, "unable to read pair-index shard file %s", filename)
	}

	records := make([]pairRecord, 0, len(data)/pairIndexRecordSize)
	for pos := 0; pos+pairIndexRecordSize <= len(data); pos += pairIndexRecordSize {
		records = append(records, pairRecord{
			key:   binary.BigEndian.Uint64(data[pos:]),
			value: binary.BigEndian.Uint64(data[pos+8:]),
		})
	}

	p.cacheMu.Lock()
	p.cache[shard] = records
	p.cacheMu.Unlock()
	return records, nil
}

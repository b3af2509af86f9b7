package mergesort

import (
	"fmt"
	"os"
	"path"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"

	"osmsort/pipeline"
	"osmsort/stats"
)

type state int32

const (
	stateBuilding state = iota
	stateSorting
	stateReading
)

// ExternalMergeSort is C7: a bounded-memory sort over (sort_key, payload)
// entries. Entries stream into per-chunk spill files during Building;
// Sort() sorts each chunk in place and moves the sort to Reading, from
// which Iterator() drains entries in non-decreasing sort_key order via a
// k-way merge.
type ExternalMergeSort struct {
	cfg     Config
	tempDir string
	stats   *stats.Counters

	state atomic.Int32

	mu            sync.Mutex // guards Add's chunk-rollover bookkeeping
	current       *chunkBuilder
	bytesInMemory int64
	chunks        []chunkInfo

	nextChunkID int
}

// New constructs an ExternalMergeSort, validating cfg and creating its own
// spill subdirectory under cfg.TempDir (or os.TempDir() if empty). Counters
// is optional; pass nil to skip stats bookkeeping.
func New(cfg Config, counters *stats.Counters) (*ExternalMergeSort, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	parent := cfg.TempDir
	if parent == "" {
		parent = os.TempDir()
	}

	tempDir, err := os.MkdirTemp(parent, "osmsort-mergesort-*")
	if err != nil {
		return nil, newConfigurationError("mergesort: temp dir %s is not writable: %s", parent, err.Error())
	}

	if counters == nil {
		counters = stats.NewCounters()
	}

	return &ExternalMergeSort{cfg: cfg, tempDir: tempDir, stats: counters}, nil
}

func (m *ExternalMergeSort) requireState(want state, op string) {
	if state(m.state.Load()) != want {
		panic(errors.Errorf("mergesort: precondition violation: %s called in state %d, expected %d", op, m.state.Load(), want).Error())
	}
}

// Add appends one entry to the chunk currently being built, rolling over
// to a new chunk once the in-memory accounting exceeds ChunkSizeLimit.
// Single-producer by contract (§5); Add is not safe for concurrent callers.
func (m *ExternalMergeSort) Add(e Entry) error {
	m.requireState(stateBuilding, "Add")

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		if err := m.startChunkLocked(); err != nil {
			return err
		}
	}

	if err := m.current.add(e); err != nil {
		return err
	}
	m.bytesInMemory += int64(fixedPerEntryBytes + len(e.Payload))

	if m.bytesInMemory > m.cfg.ChunkSizeLimit {
		if err := m.closeCurrentChunkLocked(); err != nil {
			return err
		}
	}

	return nil
}

func (m *ExternalMergeSort) startChunkLocked() error {
	chunkPath := path.Join(m.tempDir, fmt.Sprintf("chunk-%06d.bin", m.nextChunkID))
	m.nextChunkID++

	builder, err := newChunkBuilder(chunkPath)
	if err != nil {
		return err
	}
	m.current = builder
	m.bytesInMemory = 0
	return nil
}

func (m *ExternalMergeSort) closeCurrentChunkLocked() error {
	info, err := m.current.close()
	if err != nil {
		return err
	}
	m.chunks = append(m.chunks, info)
	m.current = nil
	m.bytesInMemory = 0
	m.stats.ChunksWritten.Add(1)
	sigolo.Debugf("mergesort: spilled chunk %s with %d entries", info.path, info.itemCount)
	return nil
}

// Sort closes the in-progress chunk (if any), sorts every chunk file in
// place across cfg.Workers parallel workers, and transitions to Reading.
func (m *ExternalMergeSort) Sort() error {
	m.requireState(stateBuilding, "Sort")

	m.mu.Lock()
	if m.current != nil {
		if err := m.closeCurrentChunkLocked(); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	chunks := m.chunks
	m.mu.Unlock()

	m.state.Store(int32(stateSorting))

	queue := pipeline.NewQueue[int](len(chunks))
	for i := range chunks {
		queue.Put(i)
	}
	queue.Close()

	runtime := pipeline.NewRuntime()
	for w := 0; w < m.cfg.Workers; w++ {
		runtime.Go(func() error {
			var workerErr error
			queue.Range(func(i int) bool {
				if runtime.Cancelled() {
					return false
				}
				if err := m.sortChunk(chunks[i]); err != nil {
					workerErr = err
					return false
				}
				return true
			})
			return workerErr
		})
	}

	if err := runtime.Await(); err != nil {
		return err
	}

	m.state.Store(int32(stateReading))
	return nil
}

func (m *ExternalMergeSort) sortChunk(c chunkInfo) error {
	entries, err := c.readFull()
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].SortKey < entries[j].SortKey })

	if err := c.overwrite(entries); err != nil {
		return err
	}

	m.stats.ChunksSorted.Add(1)
	sigolo.Debugf("mergesort: sorted chunk %s (%d entries)", c.path, c.itemCount)
	return nil
}

// Iterator returns a single-pass, non-restartable iterator over every
// entry in non-decreasing sort_key order.
func (m *ExternalMergeSort) Iterator() (*Iterator, error) {
	m.requireState(stateReading, "Iterator")
	return newIterator(m.chunks)
}

// Close deletes this sort's spill directory and everything in it (§3: "C7
// owns its temp directory and spill files; deletes them on drop/close").
func (m *ExternalMergeSort) Close() error {
	return errors.Wrapf(os.RemoveAll(m.tempDir), "unable to remove mergesort temp dir %s", m.tempDir)
}

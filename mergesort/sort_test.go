package mergesort

import (
	"testing"

	"osmsort/internal/testutil"
)

func collect(t *testing.T, m *ExternalMergeSort) []Entry {
	it, err := m.Iterator()
	testutil.AssertNil(t, err)

	var got []Entry
	for {
		e, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, e)
	}
	testutil.AssertNil(t, it.Err())
	return got
}

// TestSort_outOfOrderKeysAcrossMultipleChunks is scenario S5: entries
// added out of order, with a chunk size small enough to force several
// spill files, must come back in non-decreasing sort_key order.
func TestSort_outOfOrderKeysAcrossMultipleChunks(t *testing.T) {
	m, err := New(Config{ChunkSizeLimit: fixedPerEntryBytes + 1, Workers: 2, TempDir: t.TempDir()}, nil)
	testutil.AssertNil(t, err)
	defer m.Close()

	keys := []int64{5, 1, 9, 3, 1}
	for _, k := range keys {
		testutil.AssertNil(t, m.Add(Entry{SortKey: k, Payload: []byte{byte(k)}}))
	}

	testutil.AssertNil(t, m.Sort())
	testutil.AssertTrue(t, len(m.chunks) >= 3)

	got := collect(t, m)
	testutil.AssertEqual(t, 5, len(got))

	gotKeys := make([]int64, len(got))
	for i, e := range got {
		gotKeys[i] = e.SortKey
	}
	testutil.AssertEqual(t, []int64{1, 1, 3, 5, 9}, gotKeys)
}

func TestSort_emptyInputYieldsEmptyIterator(t *testing.T) {
	m, err := New(Config{Workers: 2, TempDir: t.TempDir()}, nil)
	testutil.AssertNil(t, err)
	defer m.Close()

	testutil.AssertNil(t, m.Sort())

	got := collect(t, m)
	testutil.AssertEqual(t, 0, len(got))
}

func TestSort_preservesMultisetAcrossManyEntries(t *testing.T) {
	m, err := New(Config{ChunkSizeLimit: 256, Workers: 4, TempDir: t.TempDir()}, nil)
	testutil.AssertNil(t, err)
	defer m.Close()

	want := map[int64]int{}
	for i := int64(0); i < 500; i++ {
		key := (i * 7919) % 997
		want[key]++
		testutil.AssertNil(t, m.Add(Entry{SortKey: key, Payload: []byte{byte(i)}}))
	}

	testutil.AssertNil(t, m.Sort())

	got := collect(t, m)
	testutil.AssertEqual(t, 500, len(got))

	gotCounts := map[int64]int{}
	lastKey := int64(-1 << 62)
	for _, e := range got {
		testutil.AssertTrue(t, e.SortKey >= lastKey)
		lastKey = e.SortKey
		gotCounts[e.SortKey]++
	}
	testutil.AssertEqual(t, len(want), len(gotCounts))
	for k, n := range want {
		testutil.AssertEqual(t, n, gotCounts[k])
	}
}

func TestAdd_afterSortPanics(t *testing.T) {
	m, err := New(Config{Workers: 1, TempDir: t.TempDir()}, nil)
	testutil.AssertNil(t, err)
	defer m.Close()

	testutil.AssertNil(t, m.Sort())

	defer func() {
		testutil.AssertNotNil(t, recover())
	}()
	m.Add(Entry{SortKey: 1})
}

func TestIterator_beforeSortPanics(t *testing.T) {
	m, err := New(Config{Workers: 1, TempDir: t.TempDir()}, nil)
	testutil.AssertNil(t, err)
	defer m.Close()

	defer func() {
		testutil.AssertNotNil(t, recover())
	}()
	m.Iterator()
}

func TestDeriveChunkBudget_capsAtOneGiB(t *testing.T) {
	testutil.AssertEqual(t, int64(oneGiB), DeriveChunkBudget(100*oneGiB, 1))
}

func TestDeriveChunkBudget_splitsAcrossWorkers(t *testing.T) {
	testutil.AssertEqual(t, int64(oneGiB/4), DeriveChunkBudget(oneGiB, 2))
}

func TestNew_rejectsConfigurationThatExceedsMemoryBudget(t *testing.T) {
	_, err := New(Config{ChunkSizeLimit: oneGiB, Workers: 8, MaxHeapBytes: oneGiB, TempDir: t.TempDir()}, nil)
	testutil.AssertNotNil(t, err)
}

// TestSort_chunkCountMatchesUniformEntryPacking is property 3: for uniform
// entries, the number of produced chunks is determined by how many whole
// entries fit under chunk_size_limit before a rollover is triggered.
func TestSort_chunkCountMatchesUniformEntryPacking(t *testing.T) {
	const entryCost = fixedPerEntryBytes // zero-length payload
	const limit = 640
	entriesPerChunk := int(limit/entryCost) + 1 // rollover fires once cumulative bytes exceed limit
	wantChunks := 4
	n := entriesPerChunk * wantChunks

	m, err := New(Config{ChunkSizeLimit: limit, Workers: 2, TempDir: t.TempDir()}, nil)
	testutil.AssertNil(t, err)
	defer m.Close()

	for i := 0; i < n; i++ {
		testutil.AssertNil(t, m.Add(Entry{SortKey: int64(i)}))
	}

	testutil.AssertNil(t, m.Sort())
	testutil.AssertEqual(t, wantChunks, len(m.chunks))
}

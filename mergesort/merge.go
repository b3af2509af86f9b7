package mergesort

import (
	"bufio"
	"container/heap"
	"io"
	"os"

	"github.com/pkg/errors"
)

// chunkReader streams one sorted chunk file, buffering exactly one entry
// ahead so its current sort_key can be compared without consuming it.
type chunkReader struct {
	path    string
	file    *os.File
	r       *bufio.Reader
	peeked  Entry
	hasMore bool
}

func openChunkReader(path string) (*chunkReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open sorted chunk file %s", path)
	}

	cr := &chunkReader{path: path, file: f, r: bufio.NewReader(f)}
	if err := cr.advance(); err != nil {
		f.Close()
		return nil, err
	}
	return cr, nil
}

// advance reads the next entry into peeked. hasMore is false once the
// file is exhausted.
func (cr *chunkReader) advance() error {
	e, err := readEntry(cr.r)
	if err == io.EOF {
		cr.hasMore = false
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "chunk file %s", cr.path)
	}
	cr.peeked = e
	cr.hasMore = true
	return nil
}

func (cr *chunkReader) close() error {
	return errors.Wrapf(cr.file.Close(), "unable to close chunk file %s", cr.path)
}

// readerHeap is a min-heap of chunkReaders ordered by each reader's
// currently peeked sort_key, the k-way merge's priority queue.
type readerHeap []*chunkReader

func (h readerHeap) Len() int            { return len(h) }
func (h readerHeap) Less(i, j int) bool  { return h[i].peeked.SortKey < h[j].peeked.SortKey }
func (h readerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *readerHeap) Push(x any)         { *h = append(*h, x.(*chunkReader)) }
func (h *readerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Iterator yields every Entry across all sorted chunks in non-decreasing
// sort_key order. It is single-pass and non-restartable (§4.6).
type Iterator struct {
	heap readerHeap
	err  error
}

func newIterator(chunks []chunkInfo) (*Iterator, error) {
	it := &Iterator{}
	for _, c := range chunks {
		if c.itemCount == 0 {
			continue
		}
		cr, err := openChunkReader(c.path)
		if err != nil {
			it.closeAll()
			return nil, err
		}
		if cr.hasMore {
			it.heap = append(it.heap, cr)
		} else if err := cr.close(); err != nil {
			it.closeAll()
			return nil, err
		}
	}
	heap.Init(&it.heap)
	return it, nil
}

// Next returns the next entry in order, or ok=false once every chunk is
// exhausted. Once Err returns non-nil, Next always returns ok=false.
func (it *Iterator) Next() (entry Entry, ok bool) {
	if it.err != nil || it.heap.Len() == 0 {
		return Entry{}, false
	}

	top := it.heap[0]
	entry = top.peeked

	if err := top.advance(); err != nil {
		it.err = err
		it.closeAll()
		return Entry{}, false
	}

	if top.hasMore {
		heap.Fix(&it.heap, 0)
	} else {
		heap.Pop(&it.heap)
		if err := top.close(); err != nil {
			it.err = err
		}
	}

	return entry, true
}

// Err returns the first I/O error encountered while merging, if any (§4.6:
// "an I/O error during read is fatal for the iteration").
func (it *Iterator) Err() error {
	return it.err
}

func (it *Iterator) closeAll() {
	for _, cr := range it.heap {
		cr.close()
	}
	it.heap = nil
}

// Package mergesort implements ExternalMergeSort (C7): a bounded-memory
// sort over billions of (sort_key, payload) entries. Entries are built up
// as sorted runs ("chunks") spilled to disk, then merged by a k-way
// priority queue into a single ordered iterator.
//
// Grounded on the teacher's length-prefixed binary record framing
// (index/grid_writer.go's getWayData/writeData) generalized to the
// sort_key/len/payload layout fixed by this module's wire format, and on
// SnellerInc/sneller's vm-sort.go for the chunk-id bookkeeping and
// kheap-shaped k-way merge, implemented here over stdlib container/heap.
package mergesort

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Entry is one (sort_key, payload) pair. Ordering is by SortKey ascending;
// Payload is opaque to this package.
type Entry struct {
	SortKey int64
	Payload []byte
}

// entryHeaderSize is the width of the sort_key:i64_be + len:i32_be prefix.
const entryHeaderSize = 8 + 4

func writeEntry(w *bufio.Writer, e Entry) error {
	var header [entryHeaderSize]byte
	binary.BigEndian.PutUint64(header[0:], uint64(e.SortKey))
	binary.BigEndian.PutUint32(header[8:], uint32(len(e.Payload)))

	if _, err := w.Write(header[:]); err != nil {
		return errors.Wrap(err, "unable to write chunk entry header")
	}
	if _, err := w.Write(e.Payload); err != nil {
		return errors.Wrap(err, "unable to write chunk entry payload")
	}
	return nil
}

// readEntry reads one entry from r. It returns io.EOF only when the stream
// ends exactly on an entry boundary (no bytes of a new header were read);
// any other truncation is a DataConsistencyError.
func readEntry(r *bufio.Reader) (Entry, error) {
	var header [entryHeaderSize]byte
	n, err := io.ReadFull(r, header[:])
	if err == io.EOF && n == 0 {
		return Entry{}, io.EOF
	}
	if err != nil {
		return Entry{}, newDataConsistencyError("chunk file ended mid entry-header: %s", err.Error())
	}

	sortKey := int64(binary.BigEndian.Uint64(header[0:]))
	payloadLen := binary.BigEndian.Uint32(header[8:])

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Entry{}, newDataConsistencyError("chunk file ended mid entry-payload for sort_key %d: %s", sortKey, err.Error())
	}

	return Entry{SortKey: sortKey, Payload: payload}, nil
}

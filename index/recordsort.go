package index

import (
	"os"
	"sort"

	"github.com/pkg/errors"
)

// sortRecordFile reads filename fully into memory as fixed-width records,
// sorts them with less, and overwrites the file with the sorted bytes.
// This is the fixed-width counterpart of the build-then-sort discipline
// spec.md asks for in C2 ("sort-by-key after build, then binary-search"),
// applied here to any fixed-width shard file (used by both
// NodeLocationStore and WayToRelationIndex/RelationParentIndex).
func sortRecordFile(filename string, recordSize int, less func(a, b []byte) bool) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "unable to read record file %s", filename)
	}

	if len(data)%recordSize != 0 {
		return errors.Errorf("record file %s has size %d, not a multiple of record size %d", filename, len(data), recordSize)
	}

	numRecords := len(data) / recordSize
	indices := make([]int, numRecords)
	for i := range indices {
		indices[i] = i
	}

	sort.Slice(indices, func(i, j int) bool {
		a := data[indices[i]*recordSize : (indices[i]+1)*recordSize]
		b := data[indices[j]*recordSize : (indices[j]+1)*recordSize]
		return less(a, b)
	})

	sorted := make([]byte, len(data))
	for newPos, oldIdx := range indices {
		copy(sorted[newPos*recordSize:(newPos+1)*recordSize], data[oldIdx*recordSize:(oldIdx+1)*recordSize])
	}

	return errors.Wrapf(os.WriteFile(filename, sorted, 0666), "unable to rewrite sorted record file %s", filename)
}

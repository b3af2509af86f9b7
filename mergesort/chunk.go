package mergesort

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

// chunkInfo describes one closed, on-disk chunk file: its path and the
// item count recorded while building it, the bound readFull checks to
// detect a short read (§6: "itemCount kept in memory per chunk suffices
// to bound reads").
type chunkInfo struct {
	path      string
	itemCount int
}

// chunkBuilder accumulates entries for the chunk currently being built.
type chunkBuilder struct {
	path      string
	file      *os.File
	writer    *bufio.Writer
	itemCount int
}

func newChunkBuilder(path string) (*chunkBuilder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create chunk file %s", path)
	}
	return &chunkBuilder{path: path, file: f, writer: bufio.NewWriter(f)}, nil
}

func (b *chunkBuilder) add(e Entry) error {
	if err := writeEntry(b.writer, e); err != nil {
		return err
	}
	b.itemCount++
	return nil
}

// close flushes and closes the chunk file, returning its chunkInfo.
func (b *chunkBuilder) close() (chunkInfo, error) {
	if err := b.writer.Flush(); err != nil {
		return chunkInfo{}, errors.Wrapf(err, "unable to flush chunk file %s", b.path)
	}
	if err := b.file.Close(); err != nil {
		return chunkInfo{}, errors.Wrapf(err, "unable to close chunk file %s", b.path)
	}
	return chunkInfo{path: b.path, itemCount: b.itemCount}, nil
}

// readFull reads every entry out of the chunk file described by c,
// verifying the file actually held itemCount entries.
func (c chunkInfo) readFull() ([]Entry, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open chunk file %s", c.path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	entries := make([]Entry, 0, c.itemCount)
	for {
		e, err := readEntry(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "chunk file %s", c.path)
		}
		entries = append(entries, e)
	}

	if len(entries) != c.itemCount {
		return nil, newDataConsistencyError(
			"chunk file %s held %d entries, expected %d", c.path, len(entries), c.itemCount)
	}

	return entries, nil
}

// overwrite replaces the chunk file's contents with entries, in order,
// using the same framing.
func (c chunkInfo) overwrite(entries []Entry) error {
	f, err := os.Create(c.path)
	if err != nil {
		return errors.Wrapf(err, "unable to reopen chunk file %s for sorted write", c.path)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range entries {
		if err := writeEntry(w, e); err != nil {
			return err
		}
	}
	return errors.Wrapf(w.Flush(), "unable to flush sorted chunk file %s", c.path)
}

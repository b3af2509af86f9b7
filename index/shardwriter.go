package index

import (
	"bufio"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/pkg/errors"
)

// shardWriterCache manages one buffered, append-only file handle per shard
// name, opening and creating files lazily and caching the writer so repeated
// writes to the same shard don't re-open it. This is the same mechanism the
// teacher's GridIndex uses for its per-cell files (getCellFile, plus the
// per-writer mutex in cacheFileMutexes), generalized here so NodeLocationStore,
// WayToRelationIndex and MultipolygonWayGeometry can all shard their build
// buffers across disk files the same way.
type shardWriterCache struct {
	baseFolder string

	mu      sync.Mutex
	files   map[string]*os.File
	writers map[string]*bufio.Writer
	locks   map[string]*sync.Mutex
}

func newShardWriterCache(baseFolder string) *shardWriterCache {
	return &shardWriterCache{
		baseFolder: baseFolder,
		files:      map[string]*os.File{},
		writers:    map[string]*bufio.Writer{},
		locks:      map[string]*sync.Mutex{},
	}
}

func shardFileName(shard int) string {
	return strconv.Itoa(shard) + ".shard"
}

// writer returns the buffered writer for the given shard, creating the
// backing file (and base folder) on first use.
func (c *shardWriterCache) writer(shard int) (*bufio.Writer, *sync.Mutex, error) {
	name := shardFileName(shard)

	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.writers[name]; ok {
		return w, c.locks[name], nil
	}

	if err := os.MkdirAll(c.baseFolder, os.ModePerm); err != nil {
		return nil, nil, errors.Wrapf(err, "unable to create shard folder %s", c.baseFolder)
	}

	filename := path.Join(c.baseFolder, name)
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "unable to open shard file %s", filename)
	}

	w := bufio.NewWriter(f)
	lock := &sync.Mutex{}

	c.files[name] = f
	c.writers[name] = w
	c.locks[name] = lock

	return w, lock, nil
}

// write appends data to the given shard, serialized with that shard's lock.
func (c *shardWriterCache) write(shard int, data []byte) error {
	w, lock, err := c.writer(shard)
	if err != nil {
		return err
	}

	lock.Lock()
	defer lock.Unlock()

	_, err = w.Write(data)
	return errors.Wrapf(err, "unable to write to shard %d in %s", shard, c.baseFolder)
}

// closeAll flushes and closes every open shard file. Returns the first
// error encountered but still attempts to close every handle.
func (c *shardWriterCache) closeAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for name, w := range c.writers {
		if err := w.Flush(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "unable to flush shard writer %s", name)
		}
	}
	for name, f := range c.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "unable to close shard file %s", name)
		}
	}

	c.files = map[string]*os.File{}
	c.writers = map[string]*bufio.Writer{}
	c.locks = map[string]*sync.Mutex{}

	return firstErr
}

func (c *shardWriterCache) path(shard int) string {
	return path.Join(c.baseFolder, shardFileName(shard))
}

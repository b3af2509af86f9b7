// Package stats holds the progress counters observed by the diagnostics
// endpoint (see package diagstatus). Per the Design Notes in spec.md
// ("Global counters / progress"), these are plain atomics: workers update
// them as a side effect, and readers only ever see a snapshot, never a
// source of truth for control flow.
package stats

import "sync/atomic"

// Counters tracks the element- and chunk-level progress of one import run.
type Counters struct {
	Nodes     atomic.Int64
	Ways      atomic.Int64
	Relations atomic.Int64

	MissingNodeRefs int64Atomic // node refs on a way that resolved to geo.MISSING
	MissingWayRefs  int64Atomic // way refs on a multipolygon that resolved to no geometry

	ChunksWritten atomic.Int64
	ChunksSorted  atomic.Int64
}

type int64Atomic = atomic.Int64

func NewCounters() *Counters {
	return &Counters{}
}

// Snapshot is a point-in-time, JSON-friendly copy of Counters.
type Snapshot struct {
	Nodes           int64 `json:"nodes"`
	Ways            int64 `json:"ways"`
	Relations       int64 `json:"relations"`
	MissingNodeRefs int64 `json:"missing_node_refs"`
	MissingWayRefs  int64 `json:"missing_way_refs"`
	ChunksWritten   int64 `json:"chunks_written"`
	ChunksSorted    int64 `json:"chunks_sorted"`
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Nodes:           c.Nodes.Load(),
		Ways:            c.Ways.Load(),
		Relations:       c.Relations.Load(),
		MissingNodeRefs: c.MissingNodeRefs.Load(),
		MissingWayRefs:  c.MissingWayRefs.Load(),
		ChunksWritten:   c.ChunksWritten.Load(),
		ChunksSorted:    c.ChunksSorted.Load(),
	}
}

// Package pipeline provides TopologyRuntime, the staged-pipeline primitive
// shared by the OSM reader and the external merge sort: a bounded queue
// feeding a pool of worker goroutines, with cooperative cancellation and a
// single captured error surfaced from Await.
//
// Grounded on the teacher's addAdditionalIdsToObjectsInCells (bounded
// channel + sync.WaitGroup worker pool, index/grid_writer.go), generalized
// from one hard-coded cell-processing loop into a reusable primitive.
package pipeline

import (
	"sync"
	"sync/atomic"
)

// Runtime tracks a topology's worker pool: it starts workers with Go, lets
// any of them abort the whole topology by returning an error, and blocks
// until all of them exit via Await.
type Runtime struct {
	cancelled atomic.Bool

	errOnce sync.Once
	err     error

	wg sync.WaitGroup
}

func NewRuntime() *Runtime {
	return &Runtime{}
}

// Cancelled reports whether the topology has been aborted. Workers should
// check this at queue boundaries (between dequeuing one element and the
// next) and stop pulling further work once it is true.
func (r *Runtime) Cancelled() bool {
	return r.cancelled.Load()
}

// Cancel aborts the topology. Only the first call's cause is kept; later
// calls (e.g. from sibling workers failing after the first) are no-ops.
func (r *Runtime) Cancel(cause error) {
	r.errOnce.Do(func() {
		r.err = cause
		r.cancelled.Store(true)
	})
}

// Go runs worker as part of the topology. If worker returns a non-nil
// error, the whole runtime is cancelled with that error as the cause.
func (r *Runtime) Go(worker func() error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := worker(); err != nil {
			r.Cancel(err)
		}
	}()
}

// Await blocks until every worker started with Go has exited, then returns
// the first error any of them reported (nil if the topology drained
// cleanly).
func (r *Runtime) Await() error {
	r.wg.Wait()
	return r.err
}

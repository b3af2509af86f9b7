package pipeline

import (
	"testing"

	"github.com/pkg/errors"

	"osmsort/internal/testutil"
)

func TestRuntime_awaitReturnsNilWhenAllWorkersSucceed(t *testing.T) {
	r := NewRuntime()
	for i := 0; i < 4; i++ {
		r.Go(func() error { return nil })
	}

	testutil.AssertNil(t, r.Await())
	testutil.AssertFalse(t, r.Cancelled())
}

func TestRuntime_awaitSurfacesFirstWorkerError(t *testing.T) {
	r := NewRuntime()
	cause := errors.New("boom")

	r.Go(func() error { return cause })
	r.Go(func() error { return nil })

	err := r.Await()
	testutil.AssertNotNil(t, err)
	testutil.AssertEqual(t, cause.Error(), err.Error())
	testutil.AssertTrue(t, r.Cancelled())
}

func TestQueue_rangeStopsWhenClosed(t *testing.T) {
	q := NewQueue[int](4)
	for i := 0; i < 3; i++ {
		q.Put(i)
	}
	q.Close()

	var sum int
	q.Range(func(v int) bool {
		sum += v
		return true
	})

	testutil.AssertEqual(t, 3, sum)
}

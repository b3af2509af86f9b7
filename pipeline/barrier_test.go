package pipeline

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"osmsort/internal/testutil"
)

func TestWaysDoneBarrier_blocksUntilEveryWorkerArrives(t *testing.T) {
	barrier := NewWaysDoneBarrier(3)

	var arrived atomic.Int32
	var wg sync.WaitGroup

	release := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			barrier.ArriveAndWait()
			arrived.Add(1)
		}()
	}

	// Give the two waiting workers a head start; neither should be able to
	// proceed past ArriveAndWait until the third worker also arrives.
	time.Sleep(20 * time.Millisecond)
	testutil.AssertEqual(t, int32(0), arrived.Load())

	go func() {
		<-release
		barrier.ArriveAndWait()
	}()
	close(release)

	wg.Wait()
	testutil.AssertEqual(t, int32(2), arrived.Load())
}

func TestWaysDoneBarrier_arriveWithoutWaitUnblocksPeers(t *testing.T) {
	barrier := NewWaysDoneBarrier(2)

	done := make(chan struct{})
	go func() {
		barrier.ArriveAndWait()
		close(done)
	}()

	// Simulates a worker that shuts down having never dequeued a relation.
	barrier.Arrive()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ArriveAndWait never unblocked after peer called Arrive")
	}
}

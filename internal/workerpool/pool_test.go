package workerpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool_runsAllSubmittedTasks(t *testing.T) {
	p := New(3, 10)

	var n int64

	for i := 0; i < 50; i++ {
		p.Submit(func() { atomic.AddInt64(&n, 1) })
	}

	p.Close()
	p.Wait()

	require.EqualValues(t, 50, n)
}

func TestPool_clampsWorkerCountToOne(t *testing.T) {
	p := New(0, 1)

	var running int32

	var maxSeen int32

	done := make(chan struct{})

	p.Submit(func() {
		cur := atomic.AddInt32(&running, 1)
		if cur > atomic.LoadInt32(&maxSeen) {
			atomic.StoreInt32(&maxSeen, cur)
		}

		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		close(done)
	})

	<-done
	p.Close()
	p.Wait()

	require.EqualValues(t, 1, maxSeen)
}

func TestPool_waitBlocksUntilDrained(t *testing.T) {
	p := New(2, 4)

	started := make(chan struct{})
	release := make(chan struct{})

	p.Submit(func() {
		close(started)
		<-release
	})

	<-started

	done := make(chan struct{})

	go func() {
		p.Close()
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before the in-flight task finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-done
}

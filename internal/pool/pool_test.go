package pool_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowfs/afio/internal/pool"
	"github.com/stretchr/testify/assert"
)

func Test_Pool_SubmitRunsAndReturnsResult(t *testing.T) {
	p := pool.New(4)
	defer p.Close()

	fut := pool.Submit(p, func() (int, error) { return 42, nil })
	v, err := fut.Wait()
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}

func Test_Pool_SubmitPropagatesError(t *testing.T) {
	p := pool.New(2)
	defer p.Close()

	wantErr := errors.New("boom")
	fut := pool.Submit(p, func() (int, error) { return 0, wantErr })
	_, err := fut.Wait()
	assert.ErrorIs(t, err, wantErr)
}

func Test_Pool_AllSubmittedTasksRun(t *testing.T) {
	p := pool.New(4)
	defer p.Close()

	const n = 200
	var counter atomic.Int64
	futs := make([]*pool.Future[struct{}], n)
	for i := range n {
		futs[i] = pool.Submit(p, func() (struct{}, error) {
			counter.Add(1)
			return struct{}{}, nil
		})
	}
	for _, f := range futs {
		_, _ = f.Wait()
	}
	assert.Equal(t, int64(n), counter.Load())
}

func Test_Pool_FutureReadyBeforeAndAfterCompletion(t *testing.T) {
	p := pool.New(1)
	defer p.Close()

	release := make(chan struct{})
	fut := pool.Submit(p, func() (int, error) {
		<-release
		return 1, nil
	})
	assert.False(t, fut.Ready())
	close(release)
	_, _ = fut.Wait()
	assert.True(t, fut.Ready())
}

func Test_Microqueue_RunsInInstallationOrder(t *testing.T) {
	var mq pool.Microqueue
	var order []int
	for i := range 5 {
		i := i
		mq.Enqueue(func() { order = append(order, i) })
	}
	mq.Flush()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func Test_Microqueue_TasksEnqueuedDuringFlushAlsoRun(t *testing.T) {
	var mq pool.Microqueue
	var ran []string
	mq.Enqueue(func() {
		ran = append(ran, "first")
		mq.Enqueue(func() { ran = append(ran, "nested") })
	})
	mq.Flush()
	assert.Equal(t, []string{"first", "nested"}, ran)
}

func Test_Pool_CloseWaitsForInFlight(t *testing.T) {
	p := pool.New(2)
	started := make(chan struct{})
	var finished atomic.Bool
	pool.Submit(p, func() (int, error) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return 0, nil
	})
	<-started
	p.Close()
	assert.True(t, finished.Load())
}

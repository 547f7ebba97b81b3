package barrier_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/flowfs/afio/internal/barrier"
	"github.com/stretchr/testify/assert"
)

func Test_State_OnlyLastArriverFansOut(t *testing.T) {
	var fannedOut []int
	var mu sync.Mutex
	s := barrier.New(3, func(idx int, res barrier.Result) {
		mu.Lock()
		fannedOut = append(fannedOut, idx)
		mu.Unlock()
	})

	last0 := s.Arrive(0, barrier.Result{})
	assert.False(t, last0)
	assert.Empty(t, fannedOut)

	last1 := s.Arrive(1, barrier.Result{})
	assert.False(t, last1)
	assert.Empty(t, fannedOut)

	last2 := s.Arrive(2, barrier.Result{})
	assert.True(t, last2)
	assert.ElementsMatch(t, []int{0, 1}, fannedOut)
}

func Test_State_EachSiblingGetsItsOwnResult(t *testing.T) {
	errA := errors.New("op a failed")
	got := map[int]barrier.Result{}
	s := barrier.New(3, func(idx int, res barrier.Result) {
		got[idx] = res
	})

	s.Arrive(0, barrier.Result{Err: errA})
	s.Arrive(1, barrier.Result{})
	s.Arrive(2, barrier.Result{})

	assert.Same(t, errA, got[0].Err)
	assert.NoError(t, got[1].Err)
}

func Test_State_ConcurrentArrivalsExactlyOneLast(t *testing.T) {
	const n = 50
	var lastCount atomic.Int64
	s := barrier.New(n, func(idx int, res barrier.Result) {})

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if s.Arrive(idx, barrier.Result{}) {
				lastCount.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(1), lastCount.Load())
}

func Test_State_N(t *testing.T) {
	s := barrier.New(7, func(idx int, res barrier.Result) {})
	assert.Equal(t, 7, s.N())
}

package backend_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/flowfs/afio/internal/backend"
	"github.com/stretchr/testify/assert"
)

func Test_DirCache_SharesOneHandleAcrossConcurrentAcquires(t *testing.T) {
	c := backend.NewDirCache()
	var opens int32
	var mu sync.Mutex

	open := func(p string) (backend.Handle, error) {
		mu.Lock()
		opens++
		mu.Unlock()
		return backend.Handle{Path: p, Descriptor: 1, IsDir: true}, nil
	}

	var wg sync.WaitGroup
	handles := make([]backend.Handle, 10)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := c.Acquire("/some/dir", open)
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	wg.Wait()

	mu.Lock()
	assert.Equal(t, int32(1), opens)
	mu.Unlock()
	for _, h := range handles {
		assert.Equal(t, handles[0], h)
	}
}

func Test_DirCache_ClosesOnlyAfterLastRelease(t *testing.T) {
	c := backend.NewDirCache()
	var closed bool
	open := func(p string) (backend.Handle, error) {
		return backend.Handle{Path: p, Descriptor: 1, IsDir: true}, nil
	}
	closeFn := func(backend.Handle) error {
		closed = true
		return nil
	}

	_, err := c.Acquire("/d", open)
	assert.NoError(t, err)
	_, err = c.Acquire("/d", open)
	assert.NoError(t, err)

	assert.NoError(t, c.Release("/d", closeFn))
	assert.False(t, closed, "must stay open while a second reference remains")

	assert.NoError(t, c.Release("/d", closeFn))
	assert.True(t, closed)
}

func Test_DirCache_ReopensAfterFullyReleased(t *testing.T) {
	c := backend.NewDirCache()
	var opens int
	open := func(p string) (backend.Handle, error) {
		opens++
		return backend.Handle{Path: p, Descriptor: uintptr(opens), IsDir: true}, nil
	}
	closeFn := func(backend.Handle) error { return nil }

	h1, err := c.Acquire("/d", open)
	assert.NoError(t, err)
	assert.NoError(t, c.Release("/d", closeFn))

	h2, err := c.Acquire("/d", open)
	assert.NoError(t, err)

	assert.Equal(t, 2, opens)
	assert.NotEqual(t, h1.Descriptor, h2.Descriptor)
}

func Test_DirCache_OpenFailureDoesNotPoisonFutureAcquires(t *testing.T) {
	c := backend.NewDirCache()
	boom := errors.New("boom")
	first := true
	open := func(p string) (backend.Handle, error) {
		if first {
			first = false
			return backend.Handle{}, boom
		}
		return backend.Handle{Path: p, Descriptor: 1, IsDir: true}, nil
	}

	_, err := c.Acquire("/d", open)
	assert.ErrorIs(t, err, boom)

	h, err := c.Acquire("/d", open)
	assert.NoError(t, err)
	assert.Equal(t, uintptr(1), h.Descriptor)
}

func Test_DirCache_ReleaseOfUnknownDirIsNoop(t *testing.T) {
	c := backend.NewDirCache()
	called := false
	assert.NoError(t, c.Release("/never-acquired", func(backend.Handle) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}

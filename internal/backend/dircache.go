package backend

import (
	"path/filepath"
	"sync"
)

// DirCache is the weak, refcounted cache of open directory handles spec
// §4.7 gestures at ("on systems that can open a containing directory for
// durable directory metadata... optionally also open and cache that
// directory handle"): a directory handle is opened once per distinct
// parent path and shared by every caller wanting to fsync that directory
// for create/rename/unlink durability, closed again once the last such
// caller releases it. Shared by both concrete backends since neither the
// open/close syscalls nor the refcounting are backend-specific.
type DirCache struct {
	entries sync.Map // string (cleaned path) -> *dirCacheEntry
}

type dirCacheEntry struct {
	mu   sync.Mutex
	h    Handle
	refs int
}

// NewDirCache returns an empty cache.
func NewDirCache() *DirCache { return &DirCache{} }

// Acquire returns the cached directory Handle for dir, opening it via open
// if this is the first caller interested in it. Every successful Acquire
// must be matched by exactly one Release.
func (c *DirCache) Acquire(dir string, open func(path string) (Handle, error)) (Handle, error) {
	key := filepath.Clean(dir)
	v, _ := c.entries.LoadOrStore(key, &dirCacheEntry{})
	e := v.(*dirCacheEntry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.refs == 0 {
		h, err := open(key)
		if err != nil {
			c.entries.CompareAndDelete(key, e)
			return Handle{}, err
		}
		e.h = h
	}
	e.refs++
	return e.h, nil
}

// Release drops one reference to dir's cached handle, closing it via
// closeFn once the last reference is gone.
func (c *DirCache) Release(dir string, closeFn func(Handle) error) error {
	key := filepath.Clean(dir)
	v, ok := c.entries.Load(key)
	if !ok {
		return nil
	}
	e := v.(*dirCacheEntry)

	e.mu.Lock()
	e.refs--
	if e.refs > 0 {
		e.mu.Unlock()
		return nil
	}
	h := e.h
	e.h = Handle{}
	e.mu.Unlock()

	c.entries.CompareAndDelete(key, e)
	return closeFn(h)
}

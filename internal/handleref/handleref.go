// Package handleref defines HandleRef, the owning reference to an open
// file or directory that flows through every completed operation's public
// future.
package handleref

import (
	"sync/atomic"
)

// Deregisterer is called on Close to remove a HandleRef from whatever
// registry tracked it by descriptor. The dispatcher wires this to its
// registry.Registry.Remove so that handleref need not import registry
// (which would create an import cycle, since registry entries point back
// at handles).
type Deregisterer func(descriptor uintptr)

// Ref is the owned, open-resource descriptor referenced by an operation's
// future. Ref is not safe for concurrent use by two goroutines racing the
// same handle unless the caller has explicitly chained both operations onto
// the same precondition — the dispatch graph guarantees no overlapping op
// on a handle otherwise.
type Ref struct {
	Descriptor uintptr // OS-level fd/handle, 0 for non-I/O sentinel handles
	Path       string
	IsDir      bool
	AutoFlush  bool

	bytesRead            atomic.Int64
	bytesWritten         atomic.Int64
	bytesWrittenAtSync   atomic.Int64

	closer    func() error // OS close, nil for sentinel handles
	sync      func() error // OS fsync, nil for sentinel handles
	deregister Deregisterer
	closed    atomic.Bool
}

// Option configures a new Ref.
type Option func(*Ref)

func WithCloser(fn func() error) Option { return func(r *Ref) { r.closer = fn } }
func WithSyncer(fn func() error) Option { return func(r *Ref) { r.sync = fn } }
func WithDeregisterer(fn Deregisterer) Option { return func(r *Ref) { r.deregister = fn } }

// New builds a Ref. descriptor may be 0 for a non-I/O sentinel handle (e.g.
// a directory op that did not request FlagRead).
func New(descriptor uintptr, path string, isDir, autoFlush bool, opts ...Option) *Ref {
	r := &Ref{Descriptor: descriptor, Path: path, IsDir: isDir, AutoFlush: autoFlush}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Ref) AddBytesRead(n int64)    { r.bytesRead.Add(n) }
func (r *Ref) AddBytesWritten(n int64) { r.bytesWritten.Add(n) }
func (r *Ref) BytesRead() int64        { return r.bytesRead.Load() }
func (r *Ref) BytesWritten() int64     { return r.bytesWritten.Load() }

// MarkSynced records that a sync has happened, for autoflush-on-close
// bookkeeping.
func (r *Ref) MarkSynced() { r.bytesWrittenAtSync.Store(r.bytesWritten.Load()) }

// DirtySinceSync reports whether writes have landed since the last sync.
func (r *Ref) DirtySinceSync() bool { return r.bytesWritten.Load() != r.bytesWrittenAtSync.Load() }

// Close flushes (if AutoFlush and dirty) and closes the underlying
// descriptor, then deregisters it. Close is idempotent: subsequent calls
// are no-ops and return nil.
func (r *Ref) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if r.AutoFlush && r.DirtySinceSync() && r.sync != nil {
		err = r.sync()
	}
	if r.closer != nil {
		if cerr := r.closer(); err == nil {
			err = cerr
		}
	}
	if r.deregister != nil && r.Descriptor != 0 {
		r.deregister(r.Descriptor)
	}
	return err
}

// Valid reports whether r is non-nil. A nil *Ref stands for "no handle"
// (e.g. the result of a failed chain); a sentinel Ref with a zero
// Descriptor, or an already-closed Ref, still reports true.
func (r *Ref) Valid() bool { return r != nil }

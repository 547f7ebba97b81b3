package afio

import (
	"github.com/flowfs/afio/internal/backend"
	"github.com/flowfs/afio/internal/handleref"
	"github.com/flowfs/afio/internal/optable"
	"github.com/flowfs/afio/internal/pool"
)

// Sync fsyncs each handle (a no-op for a non-I/O sentinel) and bumps its
// bytes-written-at-last-sync counter, each handle chained on itself as its
// own precondition — "sync" is an operation *on* an already-open handle,
// not a new resource.
func (d *Dispatcher) Sync(hs []Handle) ([]Handle, error) {
	if err := validateHandles(hs, d); err != nil {
		return nil, err
	}
	out := make([]Handle, len(hs))
	var mq pool.Microqueue
	for i, h := range hs {
		fn := func(id optable.ID, in *handleref.Ref, inErr error) (bool, *handleref.Ref, error) {
			if inErr != nil {
				return propagate(inErr)
			}
			if in == nil || in.Descriptor == 0 {
				return true, in, nil
			}
			if err := d.back.Sync(toBackendHandle(in)); err != nil {
				return true, in, err
			}
			in.MarkSynced()
			return true, in, nil
		}
		out[i] = d.chainOp(&mq, optable.KindSync, h, 0, fn)
	}
	mq.Flush()
	return out, nil
}

// Close flushes (if autoflush and dirty) and closes each handle. Close is
// idempotent at the HandleRef level — closing an already-closed handle is
// a no-op, not an error — so chaining Close twice on handles that share a
// precondition never double-closes the descriptor.
func (d *Dispatcher) Close(hs []Handle) ([]Handle, error) {
	if err := validateHandles(hs, d); err != nil {
		return nil, err
	}
	out := make([]Handle, len(hs))
	var mq pool.Microqueue
	for i, h := range hs {
		fn := func(id optable.ID, in *handleref.Ref, inErr error) (bool, *handleref.Ref, error) {
			if inErr != nil {
				return propagate(inErr)
			}
			if in == nil {
				return true, in, nil
			}
			err := in.Close()
			return true, in, err
		}
		out[i] = d.chainOp(&mq, optable.KindClose, h, 0, fn)
	}
	mq.Flush()
	return out, nil
}

// Read issues a vectored read at req.Offset into req.Buffers, chained on
// req.Precondition. FlagImmediateCompletion is set unconditionally — per
// spec §4.1, a read/write completion callback is cheap, and re-hopping
// through the worker pool just to run it would waste a context switch.
func (d *Dispatcher) Read(reqs []DataOpReq) ([]Handle, error) {
	return d.transfer(reqs, optable.KindRead, false)
}

// Write is Read's write-side mirror: the same vectored transfer, issued
// against the backend's Write instead of Read, with byte accounting on
// in.AddBytesWritten instead of AddBytesRead.
func (d *Dispatcher) Write(reqs []DataOpReq) ([]Handle, error) {
	return d.transfer(reqs, optable.KindWrite, true)
}

func (d *Dispatcher) transfer(reqs []DataOpReq, kind optable.Kind, write bool) ([]Handle, error) {
	for i, r := range reqs {
		if err := d.validatePrecondition(r.Precondition); err != nil {
			return nil, err
		}
		if len(r.Buffers) == 0 {
			return nil, invalidArgf("afio: data request %d has no buffers", i)
		}
	}
	out := make([]Handle, len(reqs))
	var mq pool.Microqueue
	for i, r := range reqs {
		buffers, offset := r.Buffers, r.Offset
		fn := func(id optable.ID, in *handleref.Ref, inErr error) (bool, *handleref.Ref, error) {
			if inErr != nil {
				return propagate(inErr)
			}
			if in == nil || in.Descriptor == 0 {
				return true, nil, invalidArgf("afio: %s on a handle with no open descriptor", kindName(write))
			}
			req := backend.DataOpReq{Buffers: toIOVecs(buffers), Offset: offset}
			complete := func(n int, err error) {
				accountBytes(in, write, n, err)
				d.complete(id, in, err)
			}
			var done bool
			var n int
			var err error
			if write {
				done, n, err = d.back.Write(toBackendHandle(in), req, complete)
			} else {
				done, n, err = d.back.Read(toBackendHandle(in), req, complete)
			}
			if !done {
				return false, nil, nil
			}
			accountBytes(in, write, n, err)
			return true, in, err
		}
		out[i] = d.chainOp(&mq, kind, r.Precondition, optable.FlagImmediateCompletion|optable.FlagDetachedFuture, fn)
	}
	mq.Flush()
	return out, nil
}

func accountBytes(in *handleref.Ref, write bool, n int, err error) {
	if err != nil || n == 0 {
		return
	}
	if write {
		in.AddBytesWritten(int64(n))
	} else {
		in.AddBytesRead(int64(n))
	}
}

func kindName(write bool) string {
	if write {
		return "write"
	}
	return "read"
}

// Truncate sets each handle's file size, chaining each size request on its
// handle.
func (d *Dispatcher) Truncate(hs []Handle, sizes []uint64) ([]Handle, error) {
	if len(hs) != len(sizes) {
		return nil, invalidArgf("afio: truncate: %d handles but %d sizes", len(hs), len(sizes))
	}
	if err := validateHandles(hs, d); err != nil {
		return nil, err
	}
	out := make([]Handle, len(hs))
	var mq pool.Microqueue
	for i, h := range hs {
		size := sizes[i]
		fn := func(id optable.ID, in *handleref.Ref, inErr error) (bool, *handleref.Ref, error) {
			if inErr != nil {
				return propagate(inErr)
			}
			if in == nil || in.Descriptor == 0 {
				return true, nil, invalidArgf("afio: truncate on a handle with no open descriptor")
			}
			if err := d.back.Truncate(toBackendHandle(in), size); err != nil {
				return true, in, err
			}
			return true, in, nil
		}
		out[i] = d.chainOp(&mq, optable.KindTruncate, h, 0, fn)
	}
	mq.Flush()
	return out, nil
}

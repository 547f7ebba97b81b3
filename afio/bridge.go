package afio

import (
	"github.com/flowfs/afio/internal/backend"
	"github.com/flowfs/afio/internal/handleref"
)

// toBackendHandle narrows a HandleRef down to the view a Backend method
// needs. HandleRef outlives any one such call; Backend never retains it.
func toBackendHandle(in *handleref.Ref) backend.Handle {
	if in == nil {
		return backend.Handle{}
	}
	return backend.Handle{
		Descriptor: in.Descriptor,
		Path:       in.Path,
		IsDir:      in.IsDir,
		AutoFlush:  in.AutoFlush,
	}
}

// wrapHandle builds the HandleRef an op publishes from the Handle a
// Backend returned, wiring its Close/Sync to the same backend and
// registering it in d.reg if it carries a live descriptor. A zero
// descriptor (a non-I/O sentinel handle, e.g. a Dir op without FlagRead)
// gets a Ref with no closer/syncer — closing it is a no-op.
func (d *Dispatcher) wrapHandle(h backend.Handle) *handleref.Ref {
	if h.Descriptor == 0 {
		return handleref.New(0, h.Path, h.IsDir, h.AutoFlush)
	}
	ref := handleref.New(h.Descriptor, h.Path, h.IsDir, h.AutoFlush,
		handleref.WithCloser(func() error { return d.back.Close(h) }),
		handleref.WithSyncer(func() error { return d.back.Sync(h) }),
		handleref.WithDeregisterer(d.reg.Remove),
	)
	d.reg.Add(h.Descriptor, ref)
	return ref
}

func toIOVecs(buffers [][]byte) []backend.IOVec {
	iovs := make([]backend.IOVec, len(buffers))
	for i, b := range buffers {
		iovs[i] = backend.IOVec{Buf: b}
	}
	return iovs
}

package afio

import (
	"github.com/flowfs/afio/internal/backend"
	"github.com/flowfs/afio/internal/handleref"
	"github.com/flowfs/afio/internal/optable"
	"github.com/flowfs/afio/internal/pool"
)

// Dir creates (if requested) and opens each directory. "Already exists" is
// a silent success unless FlagCreateOnlyIfNotExist was set. If FlagRead is
// not set, the resulting HandleRef is a non-I/O sentinel: it carries the
// path but no descriptor.
func (d *Dispatcher) Dir(reqs []PathOpReq) ([]Handle, error) {
	if err := validatePathReqs(reqs, d); err != nil {
		return nil, err
	}
	out := make([]Handle, len(reqs))
	var mq pool.Microqueue
	for i, r := range reqs {
		path, flags := r.Path, d.toBackendFlags(r.Flags)
		fn := func(id optable.ID, in *handleref.Ref, inErr error) (bool, *handleref.Ref, error) {
			if inErr != nil {
				return propagate(inErr)
			}
			h, err := d.back.Dir(backend.PathOpReq{Path: path, Flags: flags})
			if err != nil {
				return true, nil, err
			}
			return true, d.wrapHandle(h), nil
		}
		out[i] = d.chainOp(&mq, optable.KindDir, r.Precondition, 0, fn)
	}
	mq.Flush()
	return out, nil
}

// Rmdir unlinks each directory. Carries no HandleRef payload beyond a
// sentinel recording the path that was removed.
func (d *Dispatcher) Rmdir(reqs []PathOpReq) ([]Handle, error) {
	if err := validatePathReqs(reqs, d); err != nil {
		return nil, err
	}
	out := make([]Handle, len(reqs))
	var mq pool.Microqueue
	for i, r := range reqs {
		path := r.Path
		fn := func(id optable.ID, in *handleref.Ref, inErr error) (bool, *handleref.Ref, error) {
			if inErr != nil {
				return propagate(inErr)
			}
			if err := d.back.Rmdir(backend.PathOpReq{Path: path}); err != nil {
				return true, nil, err
			}
			return true, handleref.New(0, path, true, false), nil
		}
		out[i] = d.chainOp(&mq, optable.KindRmdir, r.Precondition, 0, fn)
	}
	mq.Flush()
	return out, nil
}

// File opens (and, per flags, creates/truncates) each file, registering
// the resulting HandleRef in the dispatcher's handle registry.
func (d *Dispatcher) File(reqs []PathOpReq) ([]Handle, error) {
	if err := validatePathReqs(reqs, d); err != nil {
		return nil, err
	}
	out := make([]Handle, len(reqs))
	var mq pool.Microqueue
	for i, r := range reqs {
		path, flags := r.Path, d.toBackendFlags(r.Flags)
		fn := func(id optable.ID, in *handleref.Ref, inErr error) (bool, *handleref.Ref, error) {
			if inErr != nil {
				return propagate(inErr)
			}
			h, err := d.back.File(backend.PathOpReq{Path: path, Flags: flags})
			if err != nil {
				return true, nil, err
			}
			return true, d.wrapHandle(h), nil
		}
		out[i] = d.chainOp(&mq, optable.KindFile, r.Precondition, 0, fn)
	}
	mq.Flush()
	return out, nil
}

// Rmfile unlinks each file.
func (d *Dispatcher) Rmfile(reqs []PathOpReq) ([]Handle, error) {
	if err := validatePathReqs(reqs, d); err != nil {
		return nil, err
	}
	out := make([]Handle, len(reqs))
	var mq pool.Microqueue
	for i, r := range reqs {
		path := r.Path
		fn := func(id optable.ID, in *handleref.Ref, inErr error) (bool, *handleref.Ref, error) {
			if inErr != nil {
				return propagate(inErr)
			}
			if err := d.back.Rmfile(backend.PathOpReq{Path: path}); err != nil {
				return true, nil, err
			}
			return true, handleref.New(0, path, false, false), nil
		}
		out[i] = d.chainOp(&mq, optable.KindRmfile, r.Precondition, 0, fn)
	}
	mq.Flush()
	return out, nil
}

package afio

import (
	"github.com/flowfs/afio/internal/handleref"
	"github.com/flowfs/afio/internal/optable"
	"github.com/flowfs/afio/internal/pool"
)

// Handle is the caller-facing object bundling an op's id with its public,
// once-settable future. The zero Handle is "no precondition": the id field
// reads 0, which optable.ID reserves for exactly that meaning.
type Handle struct {
	id   optable.ID
	fut  *pool.Future[*handleref.Ref]
	disp *Dispatcher
}

// ID reports the underlying operation id, for diagnostics. Ids are
// monotonically increasing per dispatcher and never zero for a chained op.
func (h Handle) ID() uint64 { return uint64(h.id) }

// Wait blocks until the op this handle names has reached its terminal
// completion and returns its resulting HandleRef, or the error it failed
// with.
func (h Handle) Wait() (*handleref.Ref, error) {
	if h.fut == nil {
		return nil, nil
	}
	return h.fut.Wait()
}

// Ready reports whether Wait would return immediately.
func (h Handle) Ready() bool {
	return h.fut == nil || h.fut.Ready()
}

func (h Handle) valid() bool { return h.id != 0 }

// FileFlags is a bitset over the open/create semantics a Dir or File op
// requests, matching the original design's FileFlags bitset bit for bit so
// it casts directly onto internal/backend.Flags without a translation
// table.
type FileFlags uint16

const (
	FlagRead FileFlags = 1 << iota
	FlagWrite
	FlagReadWrite
	FlagAppend
	FlagTruncate
	FlagCreate
	FlagCreateOnlyIfNotExist
	FlagAutoFlush
	FlagOSDirect
	FlagOSSync
	FlagWillBeSequentiallyAccessed
	FlagFastDirectoryEnumeration
)

func (f FileFlags) Has(bit FileFlags) bool { return f&bit != 0 }

// PathOpReq is one item in a Dir/Rmdir/File/Rmfile batch.
type PathOpReq struct {
	Precondition Handle
	Path         string
	Flags        FileFlags
}

// DataOpReq is one item in a Read/Write batch. Buffers are the caller's own
// backing slices; a backend reads into or writes from them directly, so
// the caller must not touch them until the returned Handle is ready.
type DataOpReq struct {
	Precondition Handle
	Buffers      [][]byte
	Offset       uint64
}

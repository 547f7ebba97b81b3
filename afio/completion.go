package afio

import (
	"github.com/flowfs/afio/internal/handleref"
	"github.com/flowfs/afio/internal/optable"
	"github.com/flowfs/afio/internal/pool"
)

// CompletionFlags mirrors optable.Flags for the subset a caller-supplied
// completion callback may request.
type CompletionFlags uint8

const (
	CompletionImmediate CompletionFlags = 1 << iota
	CompletionDetached
)

func (f CompletionFlags) toOpFlags() optable.Flags {
	var o optable.Flags
	if f&CompletionImmediate != 0 {
		o |= optable.FlagImmediateCompletion
	}
	if f&CompletionDetached != 0 {
		o |= optable.FlagDetachedFuture
	}
	return o
}

// CompletionCallback pairs a user-supplied continuation with the flags
// that control how it is scheduled.
type CompletionCallback struct {
	Flags CompletionFlags
	Fn    func(id uint64, h *handleref.Ref) (*handleref.Ref, error)
}

// Completion chains an arbitrary transform onto each handle: a generalised
// Call that lets the caller name the resulting HandleRef, not just an
// ancillary value, and pick the op's own scheduling flags.
func (d *Dispatcher) Completion(hs []Handle, cbs []CompletionCallback) ([]Handle, error) {
	if len(hs) != len(cbs) {
		return nil, invalidArgf("afio: completion: %d handles but %d callbacks", len(hs), len(cbs))
	}
	if err := validateHandles(hs, d); err != nil {
		return nil, err
	}
	out := make([]Handle, len(hs))
	var mq pool.Microqueue
	for i, h := range hs {
		cb := cbs[i]
		fn := func(id optable.ID, in *handleref.Ref, inErr error) (bool, *handleref.Ref, error) {
			if inErr != nil {
				return propagate(inErr)
			}
			res, err := cb.Fn(uint64(id), in)
			return true, res, err
		}
		out[i] = d.chainOp(&mq, optable.KindUserCall, h, cb.Flags.toOpFlags(), fn)
	}
	mq.Flush()
	return out, nil
}

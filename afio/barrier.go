package afio

import (
	"github.com/flowfs/afio/internal/barrier"
	"github.com/flowfs/afio/internal/handleref"
	"github.com/flowfs/afio/internal/optable"
	"github.com/flowfs/afio/internal/pool"
)

// Barrier joins N inputs and produces N outputs such that output i
// completes with input i's own outcome — not a collapsed, collective one —
// only once every input has finished. Grounded directly on dobarrier and
// barrier_count_completed_state in original_source/triplegit/src/
// async_file_io.cpp: each sub-op records its own (id, outcome) into the
// shared internal/barrier.State when it arrives, so the last arriver (the
// "closer") can read every other sibling's id straight out of already-
// populated state rather than from some table it would otherwise have to
// build up-front and risk reading before a concurrently-running sibling
// has written its own entry.
func (d *Dispatcher) Barrier(hs []Handle) ([]Handle, error) {
	if err := validateHandles(hs, d); err != nil {
		return nil, err
	}
	n := len(hs)
	out := make([]Handle, n)

	state := barrier.New(n, func(idx int, res barrier.Result) {
		d.complete(res.ID, res.Val, res.Err)
	})

	var mq pool.Microqueue
	for i, h := range hs {
		idx := i
		fn := func(id optable.ID, in *handleref.Ref, inErr error) (bool, *handleref.Ref, error) {
			if state.Arrive(idx, barrier.Result{ID: id, Val: in, Err: inErr}) {
				return true, in, inErr
			}
			return false, nil, nil
		}
		out[idx] = d.chainOp(&mq, optable.KindBarrier, h, optable.FlagImmediateCompletion|optable.FlagDetachedFuture, fn)
	}
	mq.Flush()
	return out, nil
}

package afio

import (
	"fmt"

	"github.com/flowfs/afio/internal/handleref"
	"github.com/flowfs/afio/internal/optable"
	"github.com/flowfs/afio/internal/pool"
)

// opFunc is the shape every backend op implementation (C7) presents to the
// chaining engine: given this op's own id, its precondition's resolved
// handle (nil if there was none, or if the precondition failed), and the
// precondition's error (nil on success), it either finishes now
// (done=true, out/err are the result) or parks (done=false) to be
// completed later out-of-band — by an OS completion callback for async
// read/write, or by a barrier's closer. Every ordinary op's fn is
// responsible for propagating inErr itself (typically as its very first
// statement); chainOp no longer special-cases that so that barrier's
// sub-op, which must run its counting logic even when its own precondition
// failed, does not need a second code path.
type opFunc func(id optable.ID, in *handleref.Ref, inErr error) (done bool, out *handleref.Ref, err error)

// propagate is the one-line guard clause ordinary op functions open with:
// a failed precondition fails this op the same way, without running its
// body.
func propagate(inErr error) (bool, *handleref.Ref, error) { return true, nil, inErr }

// chainOp is chain_async_op (C4): allocate an id, install the op's own
// publish closure, insert the record, then either attach boundf as a
// continuation of precondition (if precondition is still in the table) or
// run it immediately (on the pool, or into mq if flags requests
// immediate_completion). mq is flushed by the caller once it has chained
// every op belonging to the same public API call, implementing "tasks
// pushed into the deferred micro-queue during one dispatcher method call
// must all run synchronously before that call returns."
//
// Insert happens before any attach attempt, not after as the step
// ordering in the original reads — in that design the entire sequence
// runs under one reentrant lock, so ordering within it is invisible to
// everyone else; here, with Go's non-reentrant mutex, a continuation
// appended to a concurrently-completing parent could fire before this op
// exists in the table unless Insert happens first.
func (d *Dispatcher) chainOp(mq *pool.Microqueue, kind optable.Kind, precondition Handle, flags optable.Flags, fn opFunc) Handle {
	id := d.table.NextID()
	fut, publish := pool.NewPromise[*handleref.Ref]()
	rec := &optable.Record{Kind: kind, Flags: flags, Publish: publish}
	d.table.Insert(id, rec)

	run := func(in *handleref.Ref, inErr error) {
		done, out, err := fn(id, in, inErr)
		if done {
			d.complete(id, out, err)
		}
	}

	dispatch := func(in *handleref.Ref, inErr error) {
		if flags.Has(optable.FlagImmediateCompletion) {
			mq.Enqueue(func() { run(in, inErr) })
		} else {
			d.pool.Go(func() { run(in, inErr) })
		}
	}

	if precondition.valid() {
		attached := d.table.AppendContinuation(precondition.id, optable.Continuation{
			Child: id,
			Flags: flags,
			// run, not dispatch: by the time this fires, complete()'s own
			// loop has already chosen the execution context (a scoped
			// microqueue or the pool) based on this same flag. Routing
			// through dispatch a second time would re-enqueue into mq,
			// the caller's long-since-flushed-and-discarded queue, and
			// the op would never run.
			Run: func(h *handleref.Ref, err error) { run(h, err) },
		})
		if !attached {
			// gone: precondition already reached complete() before we
			// could attach. complete() erases the id before it publishes,
			// so Wait here blocks at most until that publish call.
			in, inErr := precondition.fut.Wait()
			d.submitOrUndo(id, publish, func() { dispatch(in, inErr) })
		}
	} else {
		d.submitOrUndo(id, publish, func() { dispatch(nil, nil) })
	}

	return Handle{id: id, fut: fut, disp: d}
}

// submitOrUndo runs submit, which performs this op's own synchronous
// submission to the pool or microqueue. If the dispatcher has already been
// closed, that submission panics (send on a closed channel); submitOrUndo
// recovers, removes id from the table, and fails id's own future instead of
// leaving a record in the table with no way to ever reach completion — spec
// Testable Property 7, "no op-table leak on cancel path". publish is safe to
// call here: a panic happens before submit's own fn ever runs, so nothing
// else has published to this id yet.
func (d *Dispatcher) submitOrUndo(id optable.ID, publish func(*handleref.Ref, error), submit func()) {
	defer func() {
		if r := recover(); r != nil {
			d.table.Remove(id)
			publish(nil, fmt.Errorf("afio: dispatcher closed: %v", r))
		}
	}()
	submit()
}

// complete is complete_async_op (C5): take this id's continuations and
// publish closure out of the table (erasing id in the same step — see
// optable.Table.Complete), route each continuation to the pool or a
// microqueue scoped to this call per the child's own immediate_completion
// flag, then fulfil id's own public future. Continuations run before the
// publish call so that a continuation which happens to block briefly never
// delays the id's own Wait() callers beyond necessity, though nothing here
// depends on that ordering for correctness — both sides of
// table.Complete's return are already fully resolved values by this point.
func (d *Dispatcher) complete(id optable.ID, out *handleref.Ref, err error) {
	publish, continuations, terr := d.table.Complete(id)
	if terr != nil {
		d.log.Error("complete: op table invariant violation", "id", id, "err", terr)
		return
	}

	var mq pool.Microqueue
	for _, c := range continuations {
		c := c
		if c.Flags.Has(optable.FlagImmediateCompletion) {
			mq.Enqueue(func() { c.Run(out, err) })
		} else {
			d.pool.Go(func() { c.Run(out, err) })
		}
	}
	mq.Flush()

	if publish != nil {
		publish(out, err)
	}
}

// Package optable implements the dispatch graph: the append-only map from
// operation id to in-flight operation record that the chaining and
// completion engines read and mutate under a single table-wide lock.
package optable

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/flowfs/afio/internal/handleref"
	"github.com/negrel/assert"
)

// ID identifies an operation for the lifetime of a dispatcher. Zero means
// "no operation". IDs increase strictly and are never reused.
type ID uint64

// Kind tags what an operation record represents.
type Kind uint8

const (
	KindUserCall Kind = iota
	KindDir
	KindRmdir
	KindFile
	KindRmfile
	KindSync
	KindClose
	KindRead
	KindWrite
	KindTruncate
	KindBarrier
)

// Flags is a small bitset controlling how a record's continuations run and
// how its public future is published.
type Flags uint8

const (
	// FlagImmediateCompletion routes continuations through the caller's
	// deferred micro-queue instead of the worker pool.
	FlagImmediateCompletion Flags = 1 << iota
	// FlagDetachedFuture means the record's public future is backed by a
	// promise the op implementation fulfils on its own schedule, not by
	// the return value of the op function.
	FlagDetachedFuture
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Continuation is a thunk installed on a parent record, to run once the
// parent reaches its terminal completion. Child is the continuation's own
// op id; Flags mirrors the child record's own Flags at the time it was
// installed, so the completion engine can decide pool-vs-microqueue
// routing without a second table lookup. Run receives the parent's result
// directly, the same way the original design binds a completion thunk to
// handle_or_error at dispatch time rather than having it read back through
// a future — among other things, this is what keeps the completion engine
// from ever blocking a continuation on its own parent's not-yet-fulfilled
// promise.
type Continuation struct {
	Child ID
	Flags Flags
	Run   func(h *handleref.Ref, err error)
}

// Record is the table's entry for one in-flight (or, for the instant
// between terminal completion and erase, just-finished) operation.
type Record struct {
	Kind  Kind
	Flags Flags

	// Publish fulfils this op's own publicly observed future. Every
	// record gets one at chain time regardless of FlagDetachedFuture:
	// in this implementation the public future is always promise-backed
	// (see internal/pool.NewPromise), so the spec's distinction between
	// "future backed by op_fn's return" and "future backed by a
	// separately-settable promise" collapses to whether Publish is
	// called from the op's own synchronous return path or from some
	// later, out-of-band caller (an OS completion callback, or a
	// barrier's closer). Called at most once — see INV-3.
	Publish func(h *handleref.Ref, err error)

	// Continuations installed by children that attached to this record
	// while it was still in the table.
	continuations []Continuation
}

// Table is the dispatch graph: id -> Record, guarded by one mutex. Go's
// sync.Mutex cannot be taken twice by the same goroutine, so unlike the
// spec's reentrant-mutex description, callers here never call back into a
// Table method while already holding the lock from an enclosing Table
// call; completion fan-out always copies what it needs out from under the
// lock first (see Table.Complete).
type Table struct {
	mu      sync.Mutex
	records map[ID]*Record
	counter atomic.Uint64
}

// New returns an empty table.
func New() *Table {
	return &Table{records: make(map[ID]*Record)}
}

// NextID allocates the next strictly-increasing, non-zero id. Safe to call
// without holding the table lock.
func (t *Table) NextID() ID {
	for {
		n := t.counter.Add(1)
		if n != 0 {
			return ID(n)
		}
	}
}

// Insert adds rec under id. Called exactly once per id, at chain time.
func (t *Table) Insert(id ID, rec *Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	assert.True(id != 0, "op id must not be zero")
	_, exists := t.records[id]
	assert.False(exists, "op id inserted twice")
	t.records[id] = rec
}

// Remove drops id without running anything. Used by chainOp's
// submitOrUndo: if an op's own synchronous submission to the pool panics
// because the dispatcher has already been closed, the id must not be left
// behind in the table with no path to ever reach Complete (spec's "undo
// scope on chain failure").
func (t *Table) Remove(id ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.records, id)
}

// AppendContinuation appends c to parent's continuation list if parent is
// still in the table. Returns false ("gone") if parent has already
// completed; the caller must then run c itself (via the pool or its
// microqueue, per c's flags). INV-2 ("a
// continuation is appended only while the parent is still in the table")
// is enforced by holding the table lock across both the presence check and
// the append below, not by a separate assert call.
func (t *Table) AppendContinuation(parent ID, c Continuation) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[parent]
	if !ok {
		return false
	}
	rec.continuations = append(rec.continuations, c)
	return true
}

// Complete atomically takes id's Publish closure and continuation list and
// erases id from the table, all under one critical section — mirroring the
// completion engine's single locked section in spec §4.5 step 1-3, and
// closing the narrow window a separate take-then-erase would leave open for
// a continuation appended between the two calls to be silently dropped.
// Called exactly once per id, at terminal completion.
func (t *Table) Complete(id ID) (publish func(*handleref.Ref, error), continuations []Continuation, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	if !ok {
		return nil, nil, fmt.Errorf("optable: complete target %d not found: %w", id, ErrInternal)
	}
	delete(t.records, id)
	return rec.Publish, rec.continuations, nil
}

// Find looks up id without modifying the table.
func (t *Table) Find(id ID) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	return rec, ok
}

// Len reports how many operations are currently in flight. Backs
// diagnostics and the shutdown drain loop.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// ErrInternal marks a dispatch-graph invariant violation: an id that should
// be present (per INV-1) was not found. A library cannot terminate its
// embedder's process, so this is returned and logged rather than fatal, per
// SPEC_FULL.md's narrowing of the original "debug: terminate" behavior.
var ErrInternal = fmt.Errorf("optable: internal invariant violation")

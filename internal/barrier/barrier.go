// Package barrier implements the N-input join primitive (C6): a set of
// sub-ops, one per input, each completing with its own input's outcome only
// once every sibling has reached the barrier. Grounded on
// original_source/triplegit/src/async_file_io.cpp's dobarrier and
// barrier_count_completed_state: the last arriver fans out completion to
// every other sibling by inspecting that sibling's own recorded outcome
// directly, rather than through any kind of shared/ambient exception state.
package barrier

import (
	"sync/atomic"

	"github.com/flowfs/afio/internal/handleref"
	"github.com/flowfs/afio/internal/optable"
)

// Result is one input's own outcome, recorded at the index that input owns
// in the barrier. ID is that sub-op's own id, recorded by the sub-op
// itself when it arrives — not supplied by whoever chained the siblings —
// so that the closer's fan-out never reads an id some other goroutine
// hasn't written yet: a sibling's Result is only ever consulted after that
// same sibling has already called Arrive, which is exactly when ID was set.
type Result struct {
	ID  optable.ID
	Val *handleref.Ref
	Err error
}

// State is shared by every sub-op spawned for one Barrier call. completeSibling
// is supplied by the afio package at construction and receives each
// sibling's recorded Result, whose ID is that sibling's own OpID; it must be
// safe to call from whichever goroutine happens to be the last arriver.
type State struct {
	togo            atomic.Int64
	results         []Result
	completeSibling func(idx int, res Result)
}

// New allocates join state for n inputs. completeSibling is called exactly
// once per sibling index other than the last arriver's own, after Arrive
// has recorded every input's Result.
func New(n int, completeSibling func(idx int, res Result)) *State {
	s := &State{
		results:         make([]Result, n),
		completeSibling: completeSibling,
	}
	s.togo.Store(int64(n))
	return s
}

// Arrive records idx's own result and reports whether idx is the last input
// to reach the barrier. A non-last caller must leave its own sub-op pending
// (done=false) — it will be completed later, by whichever input arrives
// last, via completeSibling. The last caller fans out completion to every
// other index first, then returns true so its own sub-op completes normally
// by the same path an ordinary op does (including rethrowing its own
// precondition's error, if any — the caller already has res.Err for that).
func (s *State) Arrive(idx int, res Result) (last bool) {
	s.results[idx] = res
	if s.togo.Add(-1) != 0 {
		return false
	}
	for i, r := range s.results {
		if i == idx {
			continue
		}
		s.completeSibling(i, r)
	}
	return true
}

// N reports how many inputs this barrier joins.
func (s *State) N() int { return len(s.results) }

package afio

import (
	"os"

	"github.com/flowfs/afio/internal/handleref"
	"github.com/flowfs/afio/internal/optable"
	"github.com/flowfs/afio/internal/pool"
)

// Enumerate lists the immediate children of each path, chained on the
// matching precondition handle. One call per input directory, each
// producing its own []string via an independent future — deliberately not
// the infinite-loop / unstable-path-reference variants the original
// source's enumerate helper exhibits (spec §9's Open Question): this walks
// exactly the directory's immediate entries via os.ReadDir, no recursion,
// no symlink resolution.
func (d *Dispatcher) Enumerate(hs []Handle, paths []string) ([]*pool.Future[[]string], []Handle, error) {
	if len(hs) != len(paths) {
		return nil, nil, invalidArgf("afio: enumerate: %d handles but %d paths", len(hs), len(paths))
	}
	if err := validateHandles(hs, d); err != nil {
		return nil, nil, err
	}
	for i, p := range paths {
		if p == "" {
			return nil, nil, invalidArgf("afio: enumerate: path %d is empty", i)
		}
	}

	futs := make([]*pool.Future[[]string], len(hs))
	out := make([]Handle, len(hs))
	var mq pool.Microqueue
	for i, h := range hs {
		path := paths[i]
		fut, publish := pool.NewPromise[[]string]()
		futs[i] = fut
		fn := func(id optable.ID, in *handleref.Ref, inErr error) (bool, *handleref.Ref, error) {
			if inErr != nil {
				publish(nil, inErr)
				return propagate(inErr)
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				publish(nil, err)
				return true, in, err
			}
			names := make([]string, len(entries))
			for j, e := range entries {
				names[j] = e.Name()
			}
			publish(names, nil)
			return true, in, nil
		}
		out[i] = d.chainOp(&mq, optable.KindUserCall, h, 0, fn)
	}
	mq.Flush()
	return futs, out, nil
}

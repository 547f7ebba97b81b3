package afio

import (
	"github.com/flowfs/afio/internal/handleref"
	"github.com/flowfs/afio/internal/optable"
	"github.com/flowfs/afio/internal/pool"
)

// Call runs an arbitrary user callback for each handle, chained on that
// handle. Per S6: a callback's return value resolves the corresponding
// future; a callback that returns an error fails both that future and the
// callback's own Handle, so anything chained after it observes the
// failure the same way any other op failure propagates.
func (d *Dispatcher) Call(hs []Handle, fns []func() (any, error)) ([]*pool.Future[any], []Handle, error) {
	if len(hs) != len(fns) {
		return nil, nil, invalidArgf("afio: call: %d handles but %d callbacks", len(hs), len(fns))
	}
	if err := validateHandles(hs, d); err != nil {
		return nil, nil, err
	}
	futs := make([]*pool.Future[any], len(hs))
	out := make([]Handle, len(hs))
	var mq pool.Microqueue
	for i, h := range hs {
		userFn := fns[i]
		fut, publish := pool.NewPromise[any]()
		futs[i] = fut
		fn := func(id optable.ID, in *handleref.Ref, inErr error) (bool, *handleref.Ref, error) {
			if inErr != nil {
				publish(nil, inErr)
				return propagate(inErr)
			}
			v, err := userFn()
			publish(v, err)
			return true, in, err
		}
		out[i] = d.chainOp(&mq, optable.KindUserCall, h, 0, fn)
	}
	mq.Flush()
	return futs, out, nil
}

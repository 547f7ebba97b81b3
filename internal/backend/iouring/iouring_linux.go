//go:build linux

// Package iouring implements the Backend interface on top of Linux
// io_uring (github.com/aethne0/giouring), the OS-backed completion layer
// spec §4.7 calls "the native backend": Read/Write submit an SQE and
// return done=false; the ring-reaping loop calls the caller's complete
// func once the CQE lands. The ring-submission loop's three-stage shape
// (collect queued ops non-blockingly, submit, reap completions) is
// adapted directly from internal/iomgr.ringlord, generalized from its
// fixed single-purpose Op struct to carry an arbitrary CompleteFunc per
// operation instead of a bare channel-close signal.
package iouring

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"unsafe"

	"github.com/aethne0/giouring"
	"github.com/flowfs/afio/internal/backend"
	"github.com/flowfs/afio/internal/backend/portable"
	"github.com/flowfs/afio/internal/queue"
	"golang.org/x/sys/unix"
)

const (
	ringEntries  = 0x100
	ringDepthTrg = 0x40
	opQueueSize  = 0x100
	opMaxBufs    = 24
	opSlots      = 0x200
)

type opCode uint8

const (
	opRead opCode = iota
	opWrite
	opSync
	opTruncateGrow
)

// op is one in-flight SQE chain: up to opMaxBufs linked buffer transfers
// (mirroring the teacher's Op.Bufs/Lens/Offs arrays), or a single fsync /
// fallocate SQE.
type op struct {
	fd       int
	code     opCode
	bufs     [opMaxBufs]uintptr
	lens     [opMaxBufs]uint32
	offs     [opMaxBufs]uint64
	count    uint16
	seen     uint16
	complete backend.CompleteFunc
	res      int32
}

// Backend drives one io_uring instance and one reaper goroutine for
// Read/Write/grow-Truncate. Dir/Rmdir/File/Rmfile/Sync/Close/shrink-
// Truncate delegate to an embedded *portable.Backend (see the comments
// above Truncate and at the end of this file) rather than duplicating
// that logic.
type Backend struct {
	*portable.Backend

	log     *slog.Logger
	ring    *giouring.Ring
	opQueue chan *op
	opSem   chan struct{}
	opSlots queue.TicketPool[*op]
	exit    chan struct{}
}

// New creates an io_uring instance and starts its reaper goroutine.
// log defaults to slog.Default() if nil.
func New(log *slog.Logger) (*Backend, error) {
	if log == nil {
		log = slog.Default()
	}
	ring, err := giouring.CreateRing(ringEntries)
	if err != nil {
		return nil, fmt.Errorf("iouring: create ring: %w", err)
	}
	b := &Backend{
		Backend: portable.New(),
		log:     log.With("component", "iouring"),
		ring:    ring,
		opQueue: make(chan *op, opQueueSize),
		opSem:   make(chan struct{}, ringEntries),
		opSlots: queue.NewTicketPool[*op](opSlots),
		exit:    make(chan struct{}),
	}
	go b.reaperLoop()
	return b, nil
}

// Shutdown stops the ring and the reaper goroutine. In-flight ops are not
// cancelled; per spec §5 there is no cancellation, so Shutdown should only
// be called once the dispatcher has drained its operation table. Named
// distinctly from the embedded *portable.Backend's Close(h Handle) so that
// method is not shadowed — Backend must keep satisfying
// backend.Backend.Close for per-handle closes.
func (b *Backend) Shutdown() {
	close(b.exit)
	b.ring.QueueExit()
}

// submit reserves one opSem token per SQE the op will post (a single-SQE
// op, e.g. fsync or fallocate, still posts exactly one SQE even though its
// count field — a buffer count — reads 0), then hands the op to the
// reaper. Reservation count here must track prepSQEs/reaperLoop's
// max(o.count, 1) SQE-counting convention exactly, or the reaper's
// one-token-per-CQE release in its CQE loop drains tokens never pushed
// here.
func (b *Backend) submit(o *op) {
	for range max(o.count, 1) {
		b.opSem <- struct{}{}
	}
	b.opQueue <- o
}

func (b *Backend) prepSQEs(o *op) {
	o.seen = 0
	switch o.code {
	case opRead:
		for i := range o.count {
			sqe := b.ring.GetSQE()
			sqe.PrepareRead(o.fd, o.bufs[i], o.lens[i], o.offs[i])
			sqe.UserData = uint64(uintptr(unsafe.Pointer(o)))
			if i < o.count-1 {
				sqe.Flags |= giouring.SqeIOLink
			}
		}
	case opWrite:
		for i := range o.count {
			sqe := b.ring.GetSQE()
			sqe.PrepareWrite(o.fd, o.bufs[i], o.lens[i], o.offs[i])
			sqe.UserData = uint64(uintptr(unsafe.Pointer(o)))
			if i < o.count-1 {
				sqe.Flags |= giouring.SqeIOLink
			}
		}
	case opSync:
		sqe := b.ring.GetSQE()
		sqe.PrepareFsync(o.fd, 0)
		sqe.UserData = uint64(uintptr(unsafe.Pointer(o)))
	case opTruncateGrow:
		sqe := b.ring.GetSQE()
		sqe.PrepareFallocate(o.fd, 0, o.offs[0], uint64(o.lens[0]))
		sqe.UserData = uint64(uintptr(unsafe.Pointer(o)))
	}
}

// reaperLoop mirrors internal/iomgr.ringlord's three stages: collect
// queued ops, submit them, reap whatever CQEs are ready.
func (b *Backend) reaperLoop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var queued, inflight uint
	for {
		select {
		case <-b.exit:
			return
		default:
		}

		if inflight == 0 && queued == 0 {
			select {
			case o := <-b.opQueue:
				b.prepSQEs(o)
				queued += uint(o.count)
				if o.count == 0 {
					queued++
				}
			case <-b.exit:
				return
			}
		}
	collect:
		for {
			select {
			case o := <-b.opQueue:
				b.prepSQEs(o)
				queued += uint(o.count)
				if o.count == 0 {
					queued++
				}
			default:
				break collect
			}
		}

		if queued > 0 {
			var submitted uint
			var err error
			if inflight+queued > ringDepthTrg {
				submitted, err = b.ring.SubmitAndWait(8)
			} else {
				submitted, err = b.ring.Submit()
			}
			if err != nil && err != unix.ETIME && err != unix.EINTR {
				b.log.Error("submit", "err", err)
			}
			queued -= submitted
			inflight += submitted
		}

		for inflight > 0 {
			cqe, err := b.ring.PeekCQE()
			if err == unix.EAGAIN || err == unix.EINTR || err == unix.ETIME {
				break
			}
			if err != nil {
				b.log.Error("peek cqe", "err", err)
				break
			}
			if cqe == nil {
				break
			}
			inflight--

			o := (*op)(unsafe.Pointer(uintptr(cqe.UserData)))
			o.seen++
			if cqe.Res < 0 {
				// one failed SQE in the linked chain fails the whole op;
				// any bytes already accumulated from earlier-completing
				// siblings in the chain are discarded along with it.
				atomic.StoreInt32(&o.res, cqe.Res)
				b.finish(o)
			} else {
				// each linked SQE posts its own CQE carrying only that
				// buffer's own byte count, so a multi-buffer op's total
				// must be summed across every CQE in the chain rather
				// than taking the last one's count alone.
				atomic.AddInt32(&o.res, cqe.Res)
				if o.seen >= max(o.count, 1) {
					b.finish(o)
				}
			}
			b.ring.CQESeen(cqe)
			<-b.opSem
		}
	}
}

func (b *Backend) finish(o *op) {
	n := int(o.res)
	var err error
	if o.res < 0 {
		n = 0
		err = unix.Errno(-o.res)
	}
	cb := o.complete
	*o = op{}
	if cb != nil {
		cb(n, err)
	}
}

func (b *Backend) Read(h backend.Handle, req backend.DataOpReq, complete backend.CompleteFunc) (bool, int, error) {
	o, err := b.buildTransferOp(opRead, h, req, complete)
	if err != nil {
		return true, 0, err
	}
	b.submit(o)
	return false, 0, nil
}

func (b *Backend) Write(h backend.Handle, req backend.DataOpReq, complete backend.CompleteFunc) (bool, int, error) {
	o, err := b.buildTransferOp(opWrite, h, req, complete)
	if err != nil {
		return true, 0, err
	}
	b.submit(o)
	return false, 0, nil
}

func (b *Backend) buildTransferOp(code opCode, h backend.Handle, req backend.DataOpReq, complete backend.CompleteFunc) (*op, error) {
	if len(req.Buffers) > opMaxBufs {
		return nil, fmt.Errorf("iouring: %d buffers exceeds max of %d per op", len(req.Buffers), opMaxBufs)
	}
	o := &op{fd: int(h.Descriptor), code: code, complete: complete, count: uint16(len(req.Buffers))}
	off := req.Offset
	for i, v := range req.Buffers {
		if len(v.Buf) == 0 {
			continue
		}
		o.bufs[i] = uintptr(unsafe.Pointer(&v.Buf[0]))
		o.lens[i] = uint32(len(v.Buf))
		o.offs[i] = off
		off += uint64(len(v.Buf))
	}
	return o, nil
}

// Sync completes synchronously: fsync is not latency-sensitive the way
// read/write are, so routing it through the ring buys nothing the calling
// pool worker doesn't already give for free. The embedded *portable.Backend
// handles it identically to the portable path.
//
// Truncate only routes through the ring when growing a file, where
// fallocate avoids the write-amplification of a naive Ftruncate-then-write
// pattern (see growViaFallocate); shrinking delegates to the embedded
// portable backend's plain Ftruncate.
func (b *Backend) Truncate(h backend.Handle, size uint64) error {
	var cur unix.Stat_t
	if err := unix.Fstat(int(h.Descriptor), &cur); err != nil {
		return &backend.OSError{Path: h.Path, Err: err}
	}
	if uint64(cur.Size) >= size {
		return b.Backend.Truncate(h, size)
	}
	return b.growViaFallocate(h, size)
}

// growViaFallocate extends a file through the ring using
// IORING_OP_FALLOCATE, mirroring internal/iomgr's OpAllocate; fallocate
// cannot shrink a file, so Truncate only calls this when growing.
func (b *Backend) growViaFallocate(h backend.Handle, size uint64) error {
	done := make(chan struct{})
	var resErr error
	o := &op{
		fd:   int(h.Descriptor),
		code: opTruncateGrow,
		complete: func(n int, err error) {
			resErr = err
			close(done)
		},
	}
	o.offs[0] = 0
	o.lens[0] = uint32(size)
	o.count = 0
	b.submit(o)
	<-done
	if resErr != nil {
		return &backend.OSError{Path: h.Path, Err: resErr}
	}
	return nil
}

// Dir, Rmdir, File, Rmfile, and Close are not on the latency-critical
// read/write path this backend exists for, and io_uring offers them no
// meaningful advantage at this engine's target concurrency, so they come
// for free from the embedded *portable.Backend above.

//go:build unix

// Package portable implements the Backend interface using ordinary
// synchronous syscalls: every op completes on the calling pool worker, none
// ever defers. This is the "POSIX compat" side of spec §9's capability-set
// design note, grounded on internal/backend/pager's construction style and
// on ojaai-asyncfs/file_unix.go's syscall use, generalized off that
// package's single-buffer Read/Write to the spec's vectored DataOpReq.
package portable

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/flowfs/afio/internal/backend"
	"golang.org/x/sys/unix"
)

// Backend is the always-available fallback async-I/O backend. Read/Write
// always report done=true: there is no OS async completion path here, so
// complete is never invoked (every caller must still check done==true
// before relying on n/err — the unused complete is accepted only to
// satisfy the shared interface).
type Backend struct {
	// seekLock serialises the seek+read/write sequence on platforms (or
	// handle kinds) lacking positional I/O. Pread/Pwrite are positional on
	// every unix target this builds for, so this lock is currently unused
	// here — it exists so Read/Write's signature and locking discipline
	// match the spinlock the spec calls for on platforms that need it
	// (see backend/portable/portable_windows.go), and so test code can
	// exercise both backends through one code path.
	seekLock sync.Mutex

	dirs *backend.DirCache
}

func New() *Backend { return &Backend{dirs: backend.NewDirCache()} }

func (b *Backend) Dir(req backend.PathOpReq) (backend.Handle, error) {
	if req.Flags.Has(backend.FlagCreate) || req.Flags.Has(backend.FlagCreateOnlyIfNotExist) {
		err := unix.Mkdir(req.Path, 0o755)
		if err != nil {
			if err == unix.EEXIST && !req.Flags.Has(backend.FlagCreateOnlyIfNotExist) {
				// already exists: silent success, unless the caller asked
				// for create-only-if-not-exist semantics.
			} else {
				return backend.Handle{}, &backend.OSError{Path: req.Path, Err: err}
			}
		}
	}

	var st unix.Stat_t
	if err := unix.Stat(req.Path, &st); err != nil {
		return backend.Handle{}, &backend.OSError{Path: req.Path, Err: err}
	}
	if st.Mode&unix.S_IFMT != unix.S_IFDIR {
		return backend.Handle{}, backend.ErrNotADirectory
	}

	if !req.Flags.Has(backend.FlagRead) {
		return backend.Handle{Path: req.Path, IsDir: true}, nil
	}

	fd, err := unix.Open(req.Path, unix.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return backend.Handle{}, &backend.OSError{Path: req.Path, Err: err}
	}
	return backend.Handle{Descriptor: uintptr(fd), Path: req.Path, IsDir: true}, nil
}

func (b *Backend) Rmdir(req backend.PathOpReq) error {
	if err := unix.Rmdir(req.Path); err != nil {
		return &backend.OSError{Path: req.Path, Err: err}
	}
	return nil
}

func (b *Backend) File(req backend.PathOpReq) (backend.Handle, error) {
	flags := translateFileFlags(req.Flags)
	fd, err := unix.Open(req.Path, flags, 0o644)
	if err != nil {
		return backend.Handle{}, &backend.OSError{Path: req.Path, Err: err}
	}

	if req.Flags.Has(backend.FlagOSSync) && (req.Flags.Has(backend.FlagCreate) || req.Flags.Has(backend.FlagCreateOnlyIfNotExist)) {
		if derr := b.syncContainingDir(req.Path); derr != nil {
			unix.Close(fd)
			return backend.Handle{}, derr
		}
	}

	return backend.Handle{
		Descriptor: uintptr(fd),
		Path:       req.Path,
		AutoFlush:  req.Flags.Has(backend.FlagAutoFlush),
	}, nil
}

// syncContainingDir fsyncs path's parent directory so a newly created
// directory entry survives a crash, per spec §4.7's "on systems that can
// open a containing directory for durable directory metadata" note. The
// directory handle comes from b.dirs, so concurrent creates in the same
// directory share one open fd rather than each opening their own; every
// call still issues its own fsync on that fd.
func (b *Backend) syncContainingDir(path string) error {
	dir := filepath.Dir(path)
	h, err := b.dirs.Acquire(dir, func(p string) (backend.Handle, error) {
		fd, err := unix.Open(p, unix.O_RDONLY|unix.O_DIRECTORY, 0)
		if err != nil {
			return backend.Handle{}, &backend.OSError{Path: p, Err: err}
		}
		return backend.Handle{Descriptor: uintptr(fd), Path: p, IsDir: true}, nil
	})
	if err != nil {
		return err
	}
	defer b.dirs.Release(dir, func(h backend.Handle) error { return unix.Close(int(h.Descriptor)) })

	if err := unix.Fsync(int(h.Descriptor)); err != nil {
		return &backend.OSError{Path: dir, Err: err}
	}
	return nil
}

func translateFileFlags(f backend.Flags) int {
	flags := 0
	switch {
	case f.Has(backend.FlagReadWrite):
		flags |= unix.O_RDWR
	case f.Has(backend.FlagWrite):
		flags |= unix.O_WRONLY
	case f.Has(backend.FlagRead):
		flags |= unix.O_RDONLY
	default:
		flags |= unix.O_RDONLY
	}
	if f.Has(backend.FlagAppend) {
		flags |= unix.O_APPEND
	}
	if f.Has(backend.FlagTruncate) {
		flags |= unix.O_TRUNC
	}
	if f.Has(backend.FlagCreate) || f.Has(backend.FlagCreateOnlyIfNotExist) {
		flags |= unix.O_CREAT
	}
	if f.Has(backend.FlagCreateOnlyIfNotExist) {
		flags |= unix.O_EXCL
	}
	if f.Has(backend.FlagOSDirect) {
		flags |= unix.O_DIRECT
	}
	if f.Has(backend.FlagOSSync) {
		flags |= unix.O_SYNC
	}
	return flags
}

func (b *Backend) Rmfile(req backend.PathOpReq) error {
	if err := unix.Unlink(req.Path); err != nil {
		return &backend.OSError{Path: req.Path, Err: err}
	}
	return nil
}

func (b *Backend) Sync(h backend.Handle) error {
	if err := unix.Fsync(int(h.Descriptor)); err != nil {
		return &backend.OSError{Path: h.Path, Err: err}
	}
	return nil
}

func (b *Backend) Close(h backend.Handle) error {
	if h.Descriptor == 0 {
		return nil
	}
	if err := unix.Close(int(h.Descriptor)); err != nil {
		return &backend.OSError{Path: h.Path, Err: err}
	}
	return nil
}

// Read loops through req.Buffers, chunked at IOV_MAX, using Preadv so each
// chunk is one positional vectored syscall; it sums bytes transferred and
// fails with ErrShortTransfer if the total falls short of what was
// requested.
func (b *Backend) Read(h backend.Handle, req backend.DataOpReq, _ backend.CompleteFunc) (bool, int, error) {
	n, err := b.transferv(int(h.Descriptor), req, false)
	return true, n, err
}

func (b *Backend) Write(h backend.Handle, req backend.DataOpReq, _ backend.CompleteFunc) (bool, int, error) {
	n, err := b.transferv(int(h.Descriptor), req, true)
	return true, n, err
}

const iovMax = 1024

func (b *Backend) transferv(fd int, req backend.DataOpReq, write bool) (int, error) {
	total := 0
	off := int64(req.Offset)
	bufs := req.Buffers
	for len(bufs) > 0 {
		chunk := bufs
		if len(chunk) > iovMax {
			chunk = chunk[:iovMax]
		}
		iovs := make([][]byte, len(chunk))
		for i, v := range chunk {
			iovs[i] = v.Buf
		}
		var n int
		var err error
		if write {
			n, err = unix.Pwritev(fd, iovs, off)
		} else {
			n, err = unix.Preadv(fd, iovs, off)
		}
		if err != nil {
			return total + max(n, 0), fmt.Errorf("backend/portable: %w", err)
		}
		total += n
		off += int64(n)
		bufs = bufs[len(chunk):]
	}
	if total != req.TotalLen() {
		if !write && total < req.TotalLen() {
			return total, backend.ErrShortTransfer
		}
		if write {
			return total, backend.ErrShortTransfer
		}
	}
	return total, nil
}

func (b *Backend) Truncate(h backend.Handle, size uint64) error {
	if err := unix.Ftruncate(int(h.Descriptor), int64(size)); err != nil {
		return &backend.OSError{Path: h.Path, Err: err}
	}
	return nil
}

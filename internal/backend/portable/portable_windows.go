//go:build windows

package portable

import (
	"os"
	"sync"

	"github.com/flowfs/afio/internal/backend"
)

// Backend is the Windows fallback. Windows' os.File has no positional
// pread/pwrite equivalent exposed here, so every transfer is a seek then
// read/write pair serialized behind seekLock — the literal analogue of
// spec §4.7's "serialising seek+read pairs behind a dispatcher-wide short
// spinlock if the platform lacks positional vectored reads", grounded on
// original_source/triplegit/src/async_file_io.cpp's #ifdef WIN32 preadv/
// pwritev emulation (lock, _lseeki64, loop read/write).
type Backend struct {
	seekLock sync.Mutex
	files    sync.Map // descriptor(uintptr) -> *os.File
}

func New() *Backend { return &Backend{} }

func (b *Backend) register(f *os.File) backend.Handle {
	fd := uintptr(f.Fd())
	b.files.Store(fd, f)
	return backend.Handle{Descriptor: fd, Path: f.Name()}
}

func (b *Backend) lookup(h backend.Handle) (*os.File, bool) {
	v, ok := b.files.Load(h.Descriptor)
	if !ok {
		return nil, false
	}
	return v.(*os.File), true
}

func (b *Backend) Dir(req backend.PathOpReq) (backend.Handle, error) {
	if req.Flags.Has(backend.FlagCreate) || req.Flags.Has(backend.FlagCreateOnlyIfNotExist) {
		if err := os.Mkdir(req.Path, 0o755); err != nil {
			if !os.IsExist(err) || req.Flags.Has(backend.FlagCreateOnlyIfNotExist) {
				return backend.Handle{}, &backend.OSError{Path: req.Path, Err: err}
			}
		}
	}
	fi, err := os.Stat(req.Path)
	if err != nil {
		return backend.Handle{}, &backend.OSError{Path: req.Path, Err: err}
	}
	if !fi.IsDir() {
		return backend.Handle{}, backend.ErrNotADirectory
	}
	h := backend.Handle{Path: req.Path, IsDir: true}
	if req.Flags.Has(backend.FlagRead) {
		f, err := os.Open(req.Path)
		if err != nil {
			return backend.Handle{}, &backend.OSError{Path: req.Path, Err: err}
		}
		h = b.register(f)
		h.IsDir = true
	}
	return h, nil
}

func (b *Backend) Rmdir(req backend.PathOpReq) error {
	if err := os.Remove(req.Path); err != nil {
		return &backend.OSError{Path: req.Path, Err: err}
	}
	return nil
}

// File does not fsync the containing directory the way the unix build's
// File does (see syncContainingDir in portable_unix.go): Windows has no
// directory-handle-fsync equivalent to FlushFileBuffers a directory entry
// durably, so FlagOSSync on a newly created file only flushes the file
// itself, never its parent's metadata.
func (b *Backend) File(req backend.PathOpReq) (backend.Handle, error) {
	flags := os.O_RDONLY
	switch {
	case req.Flags.Has(backend.FlagReadWrite):
		flags = os.O_RDWR
	case req.Flags.Has(backend.FlagWrite):
		flags = os.O_WRONLY
	}
	if req.Flags.Has(backend.FlagAppend) {
		flags |= os.O_APPEND
	}
	if req.Flags.Has(backend.FlagTruncate) {
		flags |= os.O_TRUNC
	}
	if req.Flags.Has(backend.FlagCreateOnlyIfNotExist) {
		flags |= os.O_CREATE | os.O_EXCL
	} else if req.Flags.Has(backend.FlagCreate) {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(req.Path, flags, 0o644)
	if err != nil {
		return backend.Handle{}, &backend.OSError{Path: req.Path, Err: err}
	}
	h := b.register(f)
	h.AutoFlush = req.Flags.Has(backend.FlagAutoFlush)
	return h, nil
}

func (b *Backend) Rmfile(req backend.PathOpReq) error {
	if err := os.Remove(req.Path); err != nil {
		return &backend.OSError{Path: req.Path, Err: err}
	}
	return nil
}

func (b *Backend) Sync(h backend.Handle) error {
	f, ok := b.lookup(h)
	if !ok {
		return &backend.OSError{Path: h.Path, Err: os.ErrClosed}
	}
	if err := f.Sync(); err != nil {
		return &backend.OSError{Path: h.Path, Err: err}
	}
	return nil
}

func (b *Backend) Close(h backend.Handle) error {
	f, ok := b.lookup(h)
	if !ok {
		return nil
	}
	b.files.Delete(h.Descriptor)
	if err := f.Close(); err != nil {
		return &backend.OSError{Path: h.Path, Err: err}
	}
	return nil
}

func (b *Backend) Read(h backend.Handle, req backend.DataOpReq, _ backend.CompleteFunc) (bool, int, error) {
	n, err := b.transfer(h, req, false)
	return true, n, err
}

func (b *Backend) Write(h backend.Handle, req backend.DataOpReq, _ backend.CompleteFunc) (bool, int, error) {
	n, err := b.transfer(h, req, true)
	return true, n, err
}

func (b *Backend) transfer(h backend.Handle, req backend.DataOpReq, write bool) (int, error) {
	f, ok := b.lookup(h)
	if !ok {
		return 0, &backend.OSError{Path: h.Path, Err: os.ErrClosed}
	}

	b.seekLock.Lock()
	defer b.seekLock.Unlock()

	if _, err := f.Seek(int64(req.Offset), 0); err != nil {
		return 0, &backend.OSError{Path: h.Path, Err: err}
	}
	total := 0
	for _, v := range req.Buffers {
		var n int
		var err error
		if write {
			n, err = f.Write(v.Buf)
		} else {
			n, err = f.Read(v.Buf)
		}
		total += n
		if err != nil {
			return total, &backend.OSError{Path: h.Path, Err: err}
		}
	}
	if total != req.TotalLen() {
		return total, backend.ErrShortTransfer
	}
	return total, nil
}

// Truncate retries the size-set loop until the observed size matches, since
// SetFilePointer+SetEndOfFile is not atomic with other writers on the same
// handle (spec §4.7). It makes at most 8 attempts; if the size still does
// not match after the last one, it fails with os.ErrInvalid.
func (b *Backend) Truncate(h backend.Handle, size uint64) error {
	f, ok := b.lookup(h)
	if !ok {
		return &backend.OSError{Path: h.Path, Err: os.ErrClosed}
	}
	for range 8 {
		if err := f.Truncate(int64(size)); err != nil {
			return &backend.OSError{Path: h.Path, Err: err}
		}
		fi, err := f.Stat()
		if err != nil {
			return &backend.OSError{Path: h.Path, Err: err}
		}
		if uint64(fi.Size()) == size {
			return nil
		}
	}
	return &backend.OSError{Path: h.Path, Err: os.ErrInvalid}
}

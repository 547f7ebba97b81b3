package afio

import (
	"errors"
	"fmt"

	"github.com/flowfs/afio/internal/backend"
)

// Sentinel errors matching the error kinds named in the original design:
// invalid_argument (synchronous validation), not_a_directory, short_transfer,
// and internal (an op-table invariant violation). No call in this package
// returns ErrInternal: the dispatcher's complete logs such a violation and
// returns, and no future receives it. os_error is not a sentinel — it is
// whatever *backend.OSError a syscall produced, which already wraps the
// underlying error and path; callers use errors.As/Is against that type or
// the standard library's os.IsNotExist-style helpers.
var (
	ErrInvalidArgument = errors.New("afio: invalid argument")
	ErrNotADirectory   = backend.ErrNotADirectory
	ErrShortTransfer   = backend.ErrShortTransfer
	ErrInternal        = errors.New("afio: internal invariant violation")
)

func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidArgument)
}

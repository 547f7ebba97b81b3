//go:build !linux

package afio

import (
	"log/slog"

	"github.com/flowfs/afio/internal/backend"
	"github.com/flowfs/afio/internal/backend/portable"
)

// defaultBackend is the portable syscall-based backend everywhere the
// native io_uring path isn't available (every non-Linux target this
// module builds for, per internal/backend/portable's unix/windows split).
func defaultBackend(_ *slog.Logger) backend.Backend {
	return portable.New()
}

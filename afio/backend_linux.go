//go:build linux

package afio

import (
	"log/slog"

	"github.com/flowfs/afio/internal/backend"
	"github.com/flowfs/afio/internal/backend/iouring"
	"github.com/flowfs/afio/internal/backend/portable"
)

// defaultBackend prefers the io_uring-backed native backend on Linux,
// falling back to the always-available portable backend if the ring
// cannot be created (e.g. a seccomp profile or an old kernel denies it).
func defaultBackend(log *slog.Logger) backend.Backend {
	b, err := iouring.New(log)
	if err != nil {
		log.Warn("io_uring backend unavailable, falling back to portable", "err", err)
		return portable.New()
	}
	return b
}

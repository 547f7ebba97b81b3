// Package afio implements the asynchronous file I/O dispatch engine: a
// dispatcher that chains directory and file operations into a dependency
// graph at submission time and drives them to completion on a fixed
// worker pool, publishing a future-typed Handle for every op it chains.
package afio

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowfs/afio/internal/backend"
	"github.com/flowfs/afio/internal/optable"
	"github.com/flowfs/afio/internal/pool"
	"github.com/flowfs/afio/internal/registry"
)

// Dispatcher owns one operation table, one worker pool, one handle
// registry, and one backend. Safe for concurrent use by multiple
// goroutines: every exported method may be called concurrently with every
// other.
type Dispatcher struct {
	table *optable.Table
	pool  *pool.Pool
	reg   *registry.Registry
	back  backend.Backend
	log   *slog.Logger

	flagsForce FileFlags
	flagsMask  FileFlags
}

type config struct {
	workers    int
	logger     *slog.Logger
	back       backend.Backend
	flagsForce FileFlags
	flagsMask  FileFlags
}

// Option configures a Dispatcher at construction.
type Option func(*config)

// WithWorkers sets the fixed worker-pool size. n <= 0 defaults to
// runtime.NumCPU(), matching internal/pool.New.
func WithWorkers(n int) Option { return func(c *config) { c.workers = n } }

// WithLogger overrides the default logger (slog.Default()).
func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// WithBackend overrides the automatically selected backend — mainly useful
// for tests that want a backend double, or an embedder that wants to force
// the portable backend even on Linux.
func WithBackend(b backend.Backend) Option { return func(c *config) { c.back = b } }

// WithFlagsForce ORs force into every PathOpReq.Flags passed to Dir/File
// before it reaches the backend, letting an embedder require e.g.
// FlagOSSync process-wide. Grounded on original_source's
// async_file_io_dispatcher_base fileflags constructor argument.
func WithFlagsForce(force FileFlags) Option { return func(c *config) { c.flagsForce = force } }

// WithFlagsMask clears mask out of every PathOpReq.Flags before it reaches
// the backend, letting an embedder disable e.g. FlagOSDirect on a
// filesystem known not to support it.
func WithFlagsMask(mask FileFlags) Option { return func(c *config) { c.flagsMask = mask } }

// New constructs a Dispatcher and starts its worker pool. The backend
// defaults to the platform's native async implementation
// (internal/backend/iouring on Linux) with automatic fallback to
// internal/backend/portable if that cannot be constructed.
func New(opts ...Option) *Dispatcher {
	cfg := config{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	back := cfg.back
	if back == nil {
		back = defaultBackend(cfg.logger)
	}
	return &Dispatcher{
		table:      optable.New(),
		pool:       pool.New(cfg.workers),
		reg:        registry.New(),
		back:       back,
		log:        cfg.logger,
		flagsForce: cfg.flagsForce,
		flagsMask:  cfg.flagsMask,
	}
}

// QueueDepth reports how many operations are currently in flight — a
// direct expose of the op table's size, for the same diagnostic purpose as
// the original's wait_queue_depth().
func (d *Dispatcher) QueueDepth() int { return d.table.Len() }

// RegistrySize reports how many open handles are currently registered.
func (d *Dispatcher) RegistrySize() int { return d.reg.Count() }

type shutdowner interface{ Shutdown() }

// Drain waits for the operation table to drain (Testable Property 6:
// "table drain at shutdown") and then stops the worker pool and, if the
// backend keeps a background resource (the io_uring reaper goroutine),
// stops that too. It polls optable.Table.Len() on a short ticker until it
// reaches zero or ctx is cancelled; a cancelled ctx returns ctx.Err()
// without stopping the pool or backend, leaving the dispatcher usable for
// a later drain attempt with operations still in flight.
func (d *Dispatcher) Drain(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for d.table.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	d.pool.Close()
	if sd, ok := d.back.(shutdowner); ok {
		sd.Shutdown()
	}
	return nil
}

// Shutdown is Drain(context.Background()): an uncancellable drain-then-stop
// for callers that never need to abandon the wait.
func (d *Dispatcher) Shutdown() {
	_ = d.Drain(context.Background())
}

func (d *Dispatcher) effectiveFlags(f FileFlags) FileFlags {
	return (f &^ d.flagsMask) | d.flagsForce
}

func (d *Dispatcher) toBackendFlags(f FileFlags) backend.Flags {
	return backend.Flags(d.effectiveFlags(f))
}

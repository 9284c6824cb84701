package runtime

import (
	"context"
	"errors"
	"time"

	cfgpkg "github.com/kevadb/keva/internal/config"
	"github.com/kevadb/keva/internal/ledger"
	pebblestore "github.com/kevadb/keva/internal/storage/pebble"
	"github.com/kevadb/keva/internal/telemetry"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Metrics, when set, observes storage read and commit latency.
	Metrics *telemetry.Metrics
}

// Runtime wires storage, config, and the version ledger for a single-node
// instance.
type Runtime struct {
	db     *pebblestore.DB
	led    *ledger.Ledger
	config cfgpkg.Config
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	storeOpts := pebblestore.Options{
		DataDir:       cfg.DataDir,
		Fsync:         fsyncMode(cfg.Fsync),
		FsyncInterval: time.Duration(cfg.FsyncIntervalMs) * time.Millisecond,
	}
	if opts.Metrics != nil {
		storeOpts.Metrics = opts.Metrics
	}
	db, err := pebblestore.Open(storeOpts)
	if err != nil {
		return nil, err
	}
	led := ledger.Open(db, ledger.Options{LockStripes: cfg.LockStripes})
	return &Runtime{db: db, led: led, config: cfg}, nil
}

func fsyncMode(s string) pebblestore.FsyncMode {
	switch s {
	case "never":
		return pebblestore.FsyncModeNever
	case "interval":
		return pebblestore.FsyncModeInterval
	default:
		return pebblestore.FsyncModeAlways
	}
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple storage liveness check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Ledger returns the version ledger.
func (r *Runtime) Ledger() *ledger.Ledger { return r.led }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	cfgpkg "github.com/kevadb/keva/internal/config"
	"github.com/kevadb/keva/internal/runtime"
	httpserver "github.com/kevadb/keva/internal/server/http"
	kvsvc "github.com/kevadb/keva/internal/services/kv"
	"github.com/kevadb/keva/internal/telemetry"
	logpkg "github.com/kevadb/keva/pkg/log"
)

// Options for running the server.
type Options struct {
	Config cfgpkg.Config
}

// Run starts the HTTP server and blocks until ctx is cancelled or a
// termination signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if cfg.DataDir == "" {
		cfg.DataDir = cfgpkg.DefaultDataDir()
	}
	cfg.DataDir = filepath.Join(cfg.DataDir, "store")

	procLogger, err := logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		procLogger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel), logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	// Pebble logs through the stdlib; route them into the same pipeline.
	logpkg.RedirectStdLog(procLogger)

	metrics := telemetry.New()
	rt, err := runtime.Open(runtime.Options{Config: cfg, Metrics: metrics})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("starting keva server",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Int("keep_last", cfg.RetentionKeepLast),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
	)

	svc := kvsvc.New(rt.Ledger(), kvsvc.Options{
		Logger:            procLogger.With(logpkg.Component("kv")),
		Metrics:           metrics,
		RetentionKeepLast: cfg.RetentionKeepLast,
		ArchiveTrimmed:    cfg.ArchiveTrimmed,
		PayloadMaxBytes:   cfg.PayloadMaxBytes,
	})
	hsrv := httpserver.New(rt, svc, metrics, procLogger.With(logpkg.Component("http")))

	errCh := make(chan error, 1)
	go func() { errCh <- hsrv.ListenAndServe(sctx, cfg.HTTPAddr) }()

	select {
	case <-sctx.Done():
		hsrv.Close()
		<-errCh
		return nil
	case err := <-errCh:
		hsrv.Close()
		return err
	}
}

package serverrun

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/kevadb/keva/internal/config"
)

// TestRunStartsAndStops boots the server on an ephemeral port and cancels
// shortly after; Run must return cleanly on cancellation.
func TestRunStartsAndStops(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping server startup test in short mode")
	}

	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.Fsync = "never"
	cfg.Log.Level = "error"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := Run(ctx, Options{Config: cfg}); err != nil {
		t.Fatalf("run: %v", err)
	}
}

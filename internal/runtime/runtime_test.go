package runtime

import (
	"context"
	"testing"

	cfgpkg "github.com/kevadb/keva/internal/config"
	"github.com/kevadb/keva/internal/kbkey"
	"github.com/kevadb/keva/internal/ledger"
)

func testConfig(t *testing.T) cfgpkg.Config {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rt.Ledger() == nil {
		t.Fatalf("ledger not wired")
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t)})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()

	key, err := kbkey.Parse("session:s1:chat:timeline:main")
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	rec, err := rt.Ledger().Append(context.Background(), ledger.AppendRequest{Key: key, Value: []byte("x")})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if rec.Version != 1 {
		t.Fatalf("version = %d", rec.Version)
	}
	got, err := rt.Ledger().Latest("session:s1:chat:timeline:main")
	if err != nil || string(got.Value) != "x" {
		t.Fatalf("latest = %+v err=%v", got, err)
	}
}

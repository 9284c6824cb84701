package client

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	cfgpkg "github.com/kevadb/keva/internal/config"
	"github.com/kevadb/keva/internal/runtime"
	httpserver "github.com/kevadb/keva/internal/server/http"
	kvsvc "github.com/kevadb/keva/internal/services/kv"
	logpkg "github.com/kevadb/keva/pkg/log"
)

func newTestEndpoint(t *testing.T, authToken string) *httptest.Server {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.AuthToken = authToken
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	svc := kvsvc.New(rt.Ledger(), kvsvc.Options{Logger: logger})
	srv := httpserver.New(rt, svc, nil, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestClientStoreGetRoundTrip(t *testing.T) {
	ts := newTestEndpoint(t, "")
	c := NewClient(ts.URL, "")
	ctx := context.Background()

	content, err := c.Store(ctx, StoreParams{Key: "session:s1:chat:timeline:main", Value: json.RawMessage(`{"n":1}`)})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if content["status"] != "STORED" || content["version"] != float64(1) {
		t.Fatalf("store content: %+v", content)
	}

	content, err = c.Get(ctx, GetParams{Key: "session:s1:chat:timeline:main"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if content["status"] != "VALUE" {
		t.Fatalf("get content: %+v", content)
	}
}

func TestClientConflictSurfacesCode(t *testing.T) {
	ts := newTestEndpoint(t, "")
	c := NewClient(ts.URL, "")
	ctx := context.Background()
	key := "session:s1:chat:timeline:main"

	for i := 0; i < 2; i++ {
		if _, err := c.Store(ctx, StoreParams{Key: key, Value: json.RawMessage(`{}`)}); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	_, err := c.Store(ctx, StoreParams{Key: key, Value: json.RawMessage(`{}`), IfMatch: "v1"})
	if err == nil || !strings.Contains(err.Error(), "CONFLICT") {
		t.Fatalf("want CONFLICT error, got %v", err)
	}
}

func TestClientBearerToken(t *testing.T) {
	ts := newTestEndpoint(t, "secret")
	ctx := context.Background()
	params := StoreParams{Key: "session:s1:chat:timeline:main", Value: json.RawMessage(`{}`)}

	if _, err := NewClient(ts.URL, "wrong").Store(ctx, params); err == nil || !strings.Contains(err.Error(), "UNAUTHORIZED") {
		t.Fatalf("want UNAUTHORIZED, got %v", err)
	}
	if _, err := NewClient(ts.URL, "secret").Store(ctx, params); err != nil {
		t.Fatalf("authorized store: %v", err)
	}
}

func TestClientHistoryAndDump(t *testing.T) {
	ts := newTestEndpoint(t, "")
	c := NewClient(ts.URL, "")
	ctx := context.Background()

	for _, key := range []string{"session:s1:chat:timeline:main", "session:s1:agent:kb:note"} {
		for i := 0; i < 2; i++ {
			if _, err := c.Store(ctx, StoreParams{Key: key, Value: json.RawMessage(`{"v":1}`)}); err != nil {
				t.Fatalf("seed store: %v", err)
			}
		}
	}

	content, err := c.History(ctx, HistoryParams{Key: "session:s1:chat:timeline:main"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	records, ok := content["records"].([]interface{})
	if !ok || len(records) != 2 {
		t.Fatalf("history content: %+v", content)
	}

	content, err = c.Dump(ctx, "s1", "")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	entries, ok := content["entries"].([]interface{})
	if !ok || len(entries) != 2 {
		t.Fatalf("dump content: %+v", content)
	}
}

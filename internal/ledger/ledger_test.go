package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kevadb/keva/internal/kbkey"
	pebblestore "github.com/kevadb/keva/internal/storage/pebble"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return Open(db, Options{})
}

func mustKey(t *testing.T, raw string) kbkey.Key {
	t.Helper()
	k, err := kbkey.Parse(raw)
	if err != nil {
		t.Fatalf("parse key %q: %v", raw, err)
	}
	return k
}

func TestAppendAssignsContiguousVersions(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	k := mustKey(t, "session:s1:chat:timeline:main")

	for want := uint64(1); want <= 3; want++ {
		rec, err := l.Append(ctx, AppendRequest{Key: k, ContentType: "application/json", Value: []byte(`{"n":1}`)})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if rec.Version != want {
			t.Fatalf("want version %d, got %d", want, rec.Version)
		}
	}
	cur, err := l.Latest(k.String())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if cur.Version != 3 {
		t.Fatalf("want current v3, got v%d", cur.Version)
	}
}

func TestAppendDurableAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	l := Open(db, Options{})
	ctx := context.Background()
	k := mustKey(t, "session:s1:chat:timeline:main")
	if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("a")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db2, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("reopen pebble: %v", err)
	}
	t.Cleanup(func() { _ = db2.Close() })
	l2 := Open(db2, Options{})
	rec, err := l2.Append(ctx, AppendRequest{Key: k, Value: []byte("b")})
	if err != nil {
		t.Fatalf("append after reopen: %v", err)
	}
	if rec.Version != 2 {
		t.Fatalf("want v2 after reopen, got v%d", rec.Version)
	}
}

func TestIfMatchStaleTokenConflicts(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	k := mustKey(t, "session:s1:chat:timeline:main")

	if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("1")}); err != nil {
		t.Fatalf("append v1: %v", err)
	}
	if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("2")}); err != nil {
		t.Fatalf("append v2: %v", err)
	}
	_, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("x"), IfMatch: "v1"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	// No side effects: ledger still ends at v2, current.
	cur, err := l.Latest(k.String())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if cur.Version != 2 {
		t.Fatalf("want current v2 after conflict, got v%d", cur.Version)
	}
	n, err := l.LiveCount(k.String())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 live records, got %d", n)
	}
}

func TestIfMatchCurrentTokenSucceeds(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	k := mustKey(t, "session:s1:chat:timeline:main")

	first, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("1")})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	// Version token.
	rec, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("2"), IfMatch: "v1"})
	if err != nil {
		t.Fatalf("append if_match=v1: %v", err)
	}
	if rec.Version != 2 {
		t.Fatalf("want v2, got v%d", rec.Version)
	}
	// Etag token works interchangeably.
	if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("3"), IfMatch: rec.ETag}); err != nil {
		t.Fatalf("append if_match=etag: %v", err)
	}
	if first.ETag == rec.ETag {
		t.Fatalf("etags must be unique per version")
	}
}

func TestIfMatchOnMissingCurrentConflicts(t *testing.T) {
	l := newTestLedger(t)
	k := mustKey(t, "session:s1:chat:timeline:main")
	_, err := l.Append(context.Background(), AppendRequest{Key: k, Value: []byte("x"), IfMatch: "v1"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on empty key, got %v", err)
	}
}

func TestTombstoneKeepsPreviousCurrent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	k := mustKey(t, "session:s1:chat:timeline:main")

	if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("1")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	tomb, err := l.Append(ctx, AppendRequest{Key: k, Delete: true})
	if err != nil {
		t.Fatalf("tombstone: %v", err)
	}
	if tomb.Version != 2 || !tomb.Deleted {
		t.Fatalf("unexpected tombstone record: %+v", tomb)
	}
	cur, err := l.Latest(k.String())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if cur.Version != 1 {
		t.Fatalf("current should stay at newest non-deleted version, got v%d", cur.Version)
	}
	// The tombstone remains retrievable by explicit version.
	got, err := l.GetVersion(k.String(), 2)
	if err != nil {
		t.Fatalf("get v2: %v", err)
	}
	if !got.Deleted {
		t.Fatalf("expected deleted record")
	}
}

func TestGetVersionIgnoresCurrent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	k := mustKey(t, "session:s1:chat:timeline:main")

	if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("old")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("new")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	rec, err := l.GetVersion(k.String(), 1)
	if err != nil {
		t.Fatalf("get v1: %v", err)
	}
	if string(rec.Value) != "old" {
		t.Fatalf("value mismatch: %q", rec.Value)
	}
	if _, err := l.GetVersion(k.String(), 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for absent version, got %v", err)
	}
}

func TestAsOfPicksGreatestCreatedAtAtOrBefore(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	l := newTestLedgerWithClock(t, func() time.Time { return clock })
	ctx := context.Background()
	k := mustKey(t, "session:s1:chat:timeline:main")

	if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("1")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	clock = now.Add(10 * time.Second)
	if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("2")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	clock = now.Add(20 * time.Second)
	if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("3")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	rec, err := l.AsOf(k.String(), now.Add(15*time.Second))
	if err != nil {
		t.Fatalf("as_of: %v", err)
	}
	if rec.Version != 2 {
		t.Fatalf("want v2 as of +15s, got v%d", rec.Version)
	}
	// Before the first write there is nothing.
	if _, err := l.AsOf(k.String(), now.Add(-time.Second)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first write, got %v", err)
	}
	// Exact timestamp is inclusive.
	rec, err = l.AsOf(k.String(), now.Add(20*time.Second))
	if err != nil {
		t.Fatalf("as_of inclusive: %v", err)
	}
	if rec.Version != 3 {
		t.Fatalf("want v3 at exact ts, got v%d", rec.Version)
	}
}

func TestAsOfTieBreaksByGreatestVersion(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLedgerWithClock(t, func() time.Time { return now })
	ctx := context.Background()
	k := mustKey(t, "session:s1:chat:timeline:main")

	for i := 0; i < 3; i++ {
		if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte{byte('a' + i)}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	rec, err := l.AsOf(k.String(), now)
	if err != nil {
		t.Fatalf("as_of: %v", err)
	}
	if rec.Version != 3 {
		t.Fatalf("equal timestamps must resolve to greatest version, got v%d", rec.Version)
	}
}

func TestAsOfSkipsDeleted(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	l := newTestLedgerWithClock(t, func() time.Time { return clock })
	ctx := context.Background()
	k := mustKey(t, "session:s1:chat:timeline:main")

	if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("1")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	clock = now.Add(10 * time.Second)
	if _, err := l.Append(ctx, AppendRequest{Key: k, Delete: true}); err != nil {
		t.Fatalf("tombstone: %v", err)
	}
	rec, err := l.AsOf(k.String(), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("as_of: %v", err)
	}
	if rec.Version != 1 {
		t.Fatalf("as_of must skip tombstones, got v%d", rec.Version)
	}
}

func TestHistoryPaginatesOldestFirst(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	k := mustKey(t, "session:s1:chat:timeline:main")

	for i := 0; i < 5; i++ {
		if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte{byte('0' + i)}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	page, next, err := l.History(k.String(), Token{}, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(page) != 2 || page[0].Version != 1 || page[1].Version != 2 {
		t.Fatalf("unexpected first page: %+v", page)
	}
	if next.Version() != 3 {
		t.Fatalf("want resume token at v3, got v%d", next.Version())
	}
	rest, next2, err := l.History(k.String(), next, 0)
	if err != nil {
		t.Fatalf("history resume: %v", err)
	}
	if len(rest) != 3 || rest[0].Version != 3 || rest[2].Version != 5 {
		t.Fatalf("unexpected resumed page: %+v", rest)
	}
	if next2.Version() != 0 {
		t.Fatalf("want zero token at end, got v%d", next2.Version())
	}
}

func TestTrimKeepLastArchivesAndSparesCurrent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	k := mustKey(t, "session:s1:chat:timeline:main")

	for i := 0; i < 5; i++ {
		if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte{byte('0' + i)}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	res, err := l.TrimToKeepLast(ctx, k.String(), 2, true)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if res.Deleted != 3 || res.Archived != 3 {
		t.Fatalf("want 3 deleted+archived, got %+v", res)
	}
	n, err := l.LiveCount(k.String())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 live records, got %d", n)
	}
	// Current survives and still reads.
	cur, err := l.Latest(k.String())
	if err != nil {
		t.Fatalf("latest after trim: %v", err)
	}
	if cur.Version != 5 {
		t.Fatalf("want current v5, got v%d", cur.Version)
	}
	// Trimmed versions still resolve from the archive area.
	old, err := l.GetVersion(k.String(), 1)
	if err != nil {
		t.Fatalf("get archived v1: %v", err)
	}
	if !old.Archived || string(old.Value) != "0" {
		t.Fatalf("unexpected archived record: %+v", old)
	}
	arch, err := l.ArchivedHistory(k.String())
	if err != nil {
		t.Fatalf("archived history: %v", err)
	}
	if len(arch) != 3 {
		t.Fatalf("want 3 archived, got %d", len(arch))
	}
}

func TestTrimNeverRemovesCurrent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	k := mustKey(t, "session:s1:chat:timeline:main")

	// v1 stays current because v2..v4 are tombstones.
	if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("keep")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := l.Append(ctx, AppendRequest{Key: k, Delete: true}); err != nil {
			t.Fatalf("tombstone: %v", err)
		}
	}
	if _, err := l.TrimToKeepLast(ctx, k.String(), 1, false); err != nil {
		t.Fatalf("trim: %v", err)
	}
	cur, err := l.Latest(k.String())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if cur.Version != 1 || string(cur.Value) != "keep" {
		t.Fatalf("current record was trimmed: %+v", cur)
	}
}

func TestConcurrentUnconditionalAppends(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	k := mustKey(t, "session:s1:chat:timeline:main")

	const writers = 16
	var wg sync.WaitGroup
	versions := make([]uint64, writers)
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte(fmt.Sprintf("w%d", i))})
			versions[i], errs[i] = rec.Version, err
		}(i)
	}
	wg.Wait()

	seen := map[uint64]bool{}
	for i := 0; i < writers; i++ {
		if errs[i] != nil {
			t.Fatalf("writer %d: %v", i, errs[i])
		}
		if seen[versions[i]] {
			t.Fatalf("duplicate version %d", versions[i])
		}
		seen[versions[i]] = true
	}
	for v := uint64(1); v <= writers; v++ {
		if !seen[v] {
			t.Fatalf("gap at version %d", v)
		}
	}
	cur, err := l.Latest(k.String())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if cur.Version != writers {
		t.Fatalf("want current v%d, got v%d", writers, cur.Version)
	}
}

func TestConcurrentCASExactlyOneWins(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	k := mustKey(t, "session:s1:chat:timeline:main")

	if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("seed")}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	results := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = l.Append(ctx, AppendRequest{Key: k, Value: []byte("racer"), IfMatch: "v1"})
		}(i)
	}
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || conflicts != racers-1 {
		t.Fatalf("want exactly one winner, got ok=%d conflicts=%d", ok, conflicts)
	}
	cur, err := l.Latest(k.String())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if cur.Version != 2 {
		t.Fatalf("want current v2 after race, got v%d", cur.Version)
	}
}

func TestListScope(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	k1 := mustKey(t, "session:s1:chat:timeline:main")
	k2 := mustKey(t, "session:s1:nlu:facts:offers")
	other := mustKey(t, "session:s2:chat:timeline:main")
	for _, k := range []kbkey.Key{k1, k2, other} {
		if _, err := l.Append(ctx, AppendRequest{Key: k, Value: []byte("x")}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := l.Append(ctx, AppendRequest{Key: k1, Value: []byte("y")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := l.ListScope("s1")
	if err != nil {
		t.Fatalf("list scope: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("want 2 keys in scope, got %d", len(entries))
	}
	if entries[0].Key != k1.String() || entries[0].LastVersion != 2 {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
}

func newTestLedgerWithClock(t *testing.T, clock func() time.Time) *Ledger {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return Open(db, Options{Clock: clock})
}

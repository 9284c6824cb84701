package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/kevadb/keva/internal/kbkey"
	pebblestore "github.com/kevadb/keva/internal/storage/pebble"
)

var (
	// ErrNotFound is returned when no record satisfies a lookup.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an if-match token does not name the
	// current record. No state is mutated.
	ErrConflict = errors.New("version conflict")
)

// Options configures a Ledger.
type Options struct {
	// LockStripes sizes the per-key mutex table. Defaults to 128.
	LockStripes int
	// Clock overrides time source; used by tests.
	Clock func() time.Time
	// NewETag overrides etag minting; used by tests.
	NewETag func() string
}

// Ledger is the versioned, append-only record store. Every key owns a
// contiguous version sequence 1..N plus a current pointer naming the newest
// non-deleted version (0 when none exists).
//
// Serialization strategy: a striped mutex table keyed by hash(key) guards
// the whole read-compare-append sequence, and the new record plus the
// updated meta pointer commit in a single Pebble batch. Two appenders on
// one key can therefore never draw the same version, and no reader ever
// observes a record without its pointer flip (or the reverse). Writers on
// different keys only contend on the rare stripe collision.
type Ledger struct {
	db      *pebblestore.DB
	locks   []sync.Mutex
	clock   func() time.Time
	newETag func() string
}

// Open returns a Ledger over db.
func Open(db *pebblestore.DB, opts Options) *Ledger {
	stripes := opts.LockStripes
	if stripes <= 0 {
		stripes = 128
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	etag := opts.NewETag
	if etag == nil {
		etag = uuid.NewString
	}
	return &Ledger{
		db:      db,
		locks:   make([]sync.Mutex, stripes),
		clock:   clock,
		newETag: etag,
	}
}

func (l *Ledger) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &l.locks[h.Sum32()%uint32(len(l.locks))]
}

// AppendRequest describes one STORE.
type AppendRequest struct {
	Key         kbkey.Key
	ContentType string
	Value       []byte
	Tags        []string
	CreatedBy   string
	// IfMatch is the optional compare-and-swap token: "vN" or an etag.
	// Empty means unconditional append.
	IfMatch string
	// Delete appends a tombstone version. The current pointer keeps naming
	// the newest non-deleted record.
	Delete bool
}

// Append assigns the next version for the key and commits the record and
// the meta pointer as one atomic batch. With IfMatch set, the append only
// proceeds when the token names the current record; otherwise ErrConflict
// is returned with no state change.
func (l *Ledger) Append(ctx context.Context, req AppendRequest) (Record, error) {
	key := req.Key.String()
	mu := l.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	m, err := l.readMeta(key)
	if err != nil {
		return Record{}, err
	}

	if req.IfMatch != "" {
		cur, err := l.currentLocked(key, m)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// A token implies the caller believed a version existed.
				return Record{}, fmt.Errorf("%w: no current record for if_match %q", ErrConflict, req.IfMatch)
			}
			return Record{}, err
		}
		if !tokenMatches(req.IfMatch, cur) {
			return Record{}, fmt.Errorf("%w: current v%d, got if_match %q", ErrConflict, cur.Version, req.IfMatch)
		}
	}

	rec := Record{
		Key:         key,
		Version:     m.lastVersion + 1,
		ETag:        l.newETag(),
		ContentType: req.ContentType,
		Value:       req.Value,
		Tags:        req.Tags,
		ScopeID:     req.Key.ScopeID(),
		CreatedBy:   req.CreatedBy,
		CreatedAt:   l.clock().UTC().Truncate(time.Millisecond),
		Deleted:     req.Delete,
	}
	val, err := encodeRecord(rec)
	if err != nil {
		return Record{}, err
	}

	next := meta{lastVersion: rec.Version, currentVersion: m.currentVersion}
	if !rec.Deleted {
		next.currentVersion = rec.Version
	}

	b := l.db.NewBatch()
	defer b.Close()
	if err := b.Set(keyEntry(key, rec.Version), val, nil); err != nil {
		return Record{}, err
	}
	if err := b.Set(keyMeta(key), encodeMeta(next), nil); err != nil {
		return Record{}, err
	}
	if rec.ScopeID != "" {
		var vb [8]byte
		binary.BigEndian.PutUint64(vb[:], rec.Version)
		if err := b.Set(keyScopeIndex(rec.ScopeID, key), vb[:], nil); err != nil {
			return Record{}, err
		}
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ScopeEntry is one key under a scope, with its last written version.
type ScopeEntry struct {
	Key         string
	LastVersion uint64
}

// ListScope returns every key written under scope, in key order.
func (l *Ledger) ListScope(scope string) ([]ScopeEntry, error) {
	low, hi := scopeBounds(scope)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []ScopeEntry
	for ok := iter.First(); ok; ok = iter.Next() {
		k := iter.Key()
		if len(k) <= len(low) {
			continue
		}
		e := ScopeEntry{Key: string(k[len(low):])}
		if v := iter.Value(); len(v) >= 8 {
			e.LastVersion = binary.BigEndian.Uint64(v[:8])
		}
		out = append(out, e)
	}
	return out, nil
}

func (l *Ledger) readMeta(key string) (meta, error) {
	b, err := l.db.Get(keyMeta(key))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return meta{}, nil
		}
		return meta{}, err
	}
	return decodeMeta(b), nil
}

// currentLocked loads the current record under the caller's stripe lock.
func (l *Ledger) currentLocked(key string, m meta) (Record, error) {
	if m.currentVersion == 0 {
		return Record{}, ErrNotFound
	}
	return l.loadEntry(key, m.currentVersion)
}

func (l *Ledger) loadEntry(key string, version uint64) (Record, error) {
	b, err := l.db.Get(keyEntry(key, version))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec, ok := decodeRecord(key, version, b)
	if !ok {
		return Record{}, fmt.Errorf("corrupt record %s v%d", key, version)
	}
	return rec, nil
}

// tokenMatches reports whether token names cur, either as "vN" or as the
// record's etag.
func tokenMatches(token string, cur Record) bool {
	if strings.HasPrefix(token, "v") {
		if n, err := strconv.ParseUint(token[1:], 10, 64); err == nil {
			return n == cur.Version
		}
	}
	return token == cur.ETag
}

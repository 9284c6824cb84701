// Package ledger implements the versioned, append-only record store.
//
// # Overview
//
// Every record key owns an append-only history persisted in Pebble. Keys
// are lexicographically ordered for efficient range scans:
//   - kb/{key}/m            (meta: lastVersion, currentVersion)
//   - kb/{key}/e/{ver_be8}  (live records)
//   - kb/{key}/a/{ver_be8}  (archived records relocated by trims)
//   - scope/{scope}/{key}   (scope index for dumps)
//
// Records are stored as: varint headerLen | header | value | crc32c, where
// the header carries the write timestamp and JSON metadata (etag,
// content_type, tags, scope, deleted).
//
// # Invariants
//
// Versions per key form a contiguous sequence 1..N assigned under a striped
// per-key mutex; record plus meta pointer commit in one batch, so the
// current pointer can never be observed half-flipped. The current pointer
// names the newest non-deleted version and is 0 when none exists. Etags are
// minted once per write and never reused, trims included.
//
// API surface (internal)
//
//	l := ledger.Open(db, ledger.Options{})
//	rec, _ := l.Append(ctx, ledger.AppendRequest{Key: k, Value: v})
//	cur, _ := l.Latest(k.String())
//	old, _ := l.GetVersion(k.String(), 1)
//	at, _ := l.AsOf(k.String(), ts)
//	page, next, _ := l.History(k.String(), ledger.Token{}, 100)
//	_, _ = l.TrimToKeepLast(ctx, k.String(), 20, true)
package ledger

package ledger

import (
	"context"

	"github.com/cockroachdb/pebble"
)

// TrimResult reports what a retention pass removed.
type TrimResult struct {
	Deleted    int
	Archived   int
	MinVersion uint64
	MaxVersion uint64
}

// TrimToKeepLast caps the live history of key at keep records, removing the
// oldest entries beyond the bound. With archive set, removed records are
// copied to the archive area in the same batch as the deletes, so a trim
// is either fully applied or not at all. The current record is never
// removed, even when it falls inside the excess range.
//
// Trimming is best-effort cleanup: callers run it after a successful append
// and must not fail the original write on a trim error.
func (l *Ledger) TrimToKeepLast(ctx context.Context, key string, keep int, archive bool) (TrimResult, error) {
	if keep <= 0 {
		return TrimResult{}, nil
	}

	mu := l.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	m, err := l.readMeta(key)
	if err != nil {
		return TrimResult{}, err
	}

	low, hi := entryBounds(key)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return TrimResult{}, err
	}
	defer iter.Close()

	var versions []uint64
	for ok := iter.First(); ok; ok = iter.Next() {
		versions = append(versions, versionFromKey(iter.Key()))
	}
	excess := len(versions) - keep
	if excess <= 0 {
		return TrimResult{}, nil
	}

	b := l.db.NewBatch()
	defer b.Close()

	var res TrimResult
	for _, v := range versions {
		if res.Deleted >= excess {
			break
		}
		if v == m.currentVersion {
			continue
		}
		if archive {
			val, err := l.db.Get(keyEntry(key, v))
			if err != nil {
				return TrimResult{}, err
			}
			if err := b.Set(keyArchive(key, v), val, nil); err != nil {
				return TrimResult{}, err
			}
			res.Archived++
		}
		if err := b.Delete(keyEntry(key, v), nil); err != nil {
			return TrimResult{}, err
		}
		if res.Deleted == 0 {
			res.MinVersion = v
		}
		res.MaxVersion = v
		res.Deleted++
	}
	if res.Deleted == 0 {
		return TrimResult{}, nil
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return TrimResult{}, err
	}
	return res, nil
}

// LiveCount returns the number of live (untrimmed) records for key.
func (l *Ledger) LiveCount(key string) (int, error) {
	low, hi := entryBounds(key)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	n := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		n++
	}
	return n, nil
}

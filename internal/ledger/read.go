package ledger

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/kevadb/keva/internal/storage/pebble"
)

// Token encodes a restartable history position as a version (8 bytes BE).
// The zero Token starts from the oldest live record.
type Token [8]byte

// TokenFromVersion builds a Token that resumes at version (inclusive).
func TokenFromVersion(version uint64) Token {
	var t Token
	binary.BigEndian.PutUint64(t[:], version)
	return t
}

// Version returns the version the token resumes at.
func (t Token) Version() uint64 { return binary.BigEndian.Uint64(t[:]) }

// Latest returns the current, non-deleted record for key.
func (l *Ledger) Latest(key string) (Record, error) {
	m, err := l.readMeta(key)
	if err != nil {
		return Record{}, err
	}
	if m.currentVersion == 0 {
		return Record{}, ErrNotFound
	}
	return l.loadEntry(key, m.currentVersion)
}

// GetVersion returns the exact version of key regardless of current or
// deleted status. Records relocated to the archive area by retention
// trimming are still served, marked Archived.
func (l *Ledger) GetVersion(key string, version uint64) (Record, error) {
	if version == 0 {
		return Record{}, ErrNotFound
	}
	rec, err := l.loadEntry(key, version)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Record{}, err
	}
	b, aerr := l.db.Get(keyArchive(key, version))
	if aerr != nil {
		if errors.Is(aerr, pebblestore.ErrNotFound) {
			return Record{}, ErrNotFound
		}
		return Record{}, aerr
	}
	arec, ok := decodeRecord(key, version, b)
	if !ok {
		return Record{}, ErrNotFound
	}
	arec.Archived = true
	return arec, nil
}

// AsOf returns the newest non-deleted record with CreatedAt <= ts. Equal
// timestamps resolve to the greatest version because the scan walks
// versions descending.
func (l *Ledger) AsOf(key string, ts time.Time) (Record, error) {
	low, hi := entryBounds(key)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return Record{}, err
	}
	defer iter.Close()

	cutoff := ts.UnixMilli()
	for ok := iter.Last(); ok; ok = iter.Prev() {
		version := versionFromKey(iter.Key())
		rec, okDec := decodeRecord(key, version, iter.Value())
		if !okDec || rec.Deleted {
			continue
		}
		if rec.CreatedAt.UnixMilli() <= cutoff {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

// History returns up to limit live records for key, oldest first, starting
// at the token position (inclusive). limit <= 0 means no limit. The second
// return is the resume token for the next page; it is the zero Token when
// the page is the last one.
func (l *Ledger) History(key string, start Token, limit int) ([]Record, Token, error) {
	low, hi := entryBounds(key)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return nil, Token{}, err
	}
	defer iter.Close()

	records := make([]Record, 0, max(1, limit))
	var next Token
	if start.Version() == 0 {
		if !iter.First() {
			return records, next, nil
		}
	} else {
		if !iter.SeekGE(keyEntry(key, start.Version())) {
			return records, next, nil
		}
	}
	for iter.Valid() && (limit <= 0 || len(records) < limit) {
		version := versionFromKey(iter.Key())
		if rec, ok := decodeRecord(key, version, iter.Value()); ok {
			records = append(records, rec)
		}
		if !iter.Next() {
			return records, next, nil
		}
	}
	if iter.Valid() {
		next = TokenFromVersion(versionFromKey(iter.Key()))
	}
	return records, next, nil
}

// ArchivedHistory returns trimmed records for key, oldest first.
func (l *Ledger) ArchivedHistory(key string) ([]Record, error) {
	low, hi := archiveBounds(key)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var records []Record
	for ok := iter.First(); ok; ok = iter.Next() {
		version := versionFromKey(iter.Key())
		if rec, okDec := decodeRecord(key, version, iter.Value()); okDec {
			rec.Archived = true
			records = append(records, rec)
		}
	}
	return records, nil
}

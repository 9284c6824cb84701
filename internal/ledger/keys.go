package ledger

import "encoding/binary"

// Keyspace helpers for Pebble keys.
//
// Record keys use [a-z0-9._:-] only, so '/' is a safe separator and the
// layout stays lexicographically sortable:
// - kb/{key}/m            (per-key meta: lastVersion BE8 | currentVersion BE8)
// - kb/{key}/e/{ver_be8}  (live versioned records)
// - kb/{key}/a/{ver_be8}  (archive area for trimmed records)
// - scope/{scope}/{key}   (scope index: last version BE8, for dumps)

var (
	kbPrefix    = []byte("kb/")
	scopePrefix = []byte("scope/")
	metaSuffix  = []byte("/m")
	entrySeg    = []byte("/e/")
	archiveSeg  = []byte("/a/")
	sep         = byte('/')
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyMeta builds the per-key metadata key.
func keyMeta(key string) []byte {
	k := make([]byte, 0, len(kbPrefix)+len(key)+len(metaSuffix))
	k = append(k, kbPrefix...)
	k = append(k, key...)
	k = append(k, metaSuffix...)
	return k
}

// keyEntry builds a live record key with a big-endian version for ordering.
func keyEntry(key string, version uint64) []byte {
	k := make([]byte, 0, len(kbPrefix)+len(key)+len(entrySeg)+8)
	k = append(k, kbPrefix...)
	k = append(k, key...)
	k = append(k, entrySeg...)
	k = appendBE8(k, version)
	return k
}

// keyArchive builds an archived record key.
func keyArchive(key string, version uint64) []byte {
	k := make([]byte, 0, len(kbPrefix)+len(key)+len(archiveSeg)+8)
	k = append(k, kbPrefix...)
	k = append(k, key...)
	k = append(k, archiveSeg...)
	k = appendBE8(k, version)
	return k
}

// entryBounds returns iterator bounds covering every live record of key.
func entryBounds(key string) (low, hi []byte) {
	low = keyEntry(key, 0)
	hi = keyEntry(key, ^uint64(0))
	hi = append(hi, 0x00)
	return low, hi
}

// archiveBounds returns iterator bounds covering every archived record of key.
func archiveBounds(key string) (low, hi []byte) {
	low = keyArchive(key, 0)
	hi = keyArchive(key, ^uint64(0))
	hi = append(hi, 0x00)
	return low, hi
}

// keyScopeIndex builds the scope index key for (scope, key).
func keyScopeIndex(scope, key string) []byte {
	k := make([]byte, 0, len(scopePrefix)+len(scope)+1+len(key))
	k = append(k, scopePrefix...)
	k = append(k, scope...)
	k = append(k, sep)
	k = append(k, key...)
	return k
}

// scopeBounds returns iterator bounds covering every key indexed under scope.
func scopeBounds(scope string) (low, hi []byte) {
	low = make([]byte, 0, len(scopePrefix)+len(scope)+1)
	low = append(low, scopePrefix...)
	low = append(low, scope...)
	low = append(low, sep)
	hi = append(append([]byte(nil), low...), 0xff)
	return low, hi
}

// versionFromKey extracts the trailing big-endian version from an entry or
// archive key.
func versionFromKey(k []byte) uint64 {
	if len(k) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(k[len(k)-8:])
}

// meta is the per-key pointer pair updated atomically with every append.
type meta struct {
	lastVersion    uint64
	currentVersion uint64 // 0 = no current (no non-deleted record)
}

func encodeMeta(m meta) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], m.lastVersion)
	binary.BigEndian.PutUint64(b[8:], m.currentVersion)
	return b
}

func decodeMeta(b []byte) meta {
	if len(b) < 16 {
		return meta{}
	}
	return meta{
		lastVersion:    binary.BigEndian.Uint64(b[:8]),
		currentVersion: binary.BigEndian.Uint64(b[8:]),
	}
}

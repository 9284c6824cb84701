package ledger

import (
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"time"
)

// Record is one immutable version of a key's value.
type Record struct {
	Key         string
	Version     uint64
	ETag        string
	ContentType string
	Value       []byte
	Tags        []string
	ScopeID     string
	CreatedBy   string
	CreatedAt   time.Time
	Deleted     bool
	// Archived marks records served from the archive area after a trim.
	Archived bool
}

// headerMeta is the JSON part of a stored record header.
type headerMeta struct {
	ETag        string   `json:"etag"`
	ContentType string   `json:"content_type"`
	Tags        []string `json:"tags,omitempty"`
	ScopeID     string   `json:"scope_id,omitempty"`
	CreatedBy   string   `json:"created_by,omitempty"`
	Deleted     bool     `json:"deleted,omitempty"`
}

// Stored record layout: varint headerLen | header | value | crc32c(header|value).
// The header is an 8-byte big-endian created-at (ms) followed by JSON metadata.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func encodeRecord(r Record) ([]byte, error) {
	hm := headerMeta{
		ETag:        r.ETag,
		ContentType: r.ContentType,
		Tags:        r.Tags,
		ScopeID:     r.ScopeID,
		CreatedBy:   r.CreatedBy,
		Deleted:     r.Deleted,
	}
	metaJSON, err := json.Marshal(hm)
	if err != nil {
		return nil, err
	}
	header := make([]byte, 8, 8+len(metaJSON))
	binary.BigEndian.PutUint64(header[:8], uint64(r.CreatedAt.UnixMilli()))
	header = append(header, metaJSON...)

	out := make([]byte, 0, 10+len(header)+len(r.Value)+4)
	var tmp [10]byte
	n := binary.PutUvarint(tmp[:], uint64(len(header)))
	out = append(out, tmp[:n]...)
	out = append(out, header...)
	out = append(out, r.Value...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, r.Value)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc)
	out = append(out, crcb[:]...)
	return out, nil
}

func decodeRecord(key string, version uint64, b []byte) (Record, bool) {
	if len(b) < 1+8+4 {
		return Record{}, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || int(hlen) < 8 {
		return Record{}, false
	}
	if n+int(hlen)+4 > len(b) {
		return Record{}, false
	}
	header := b[n : n+int(hlen)]
	value := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, value)
	if crc != expect {
		return Record{}, false
	}
	var hm headerMeta
	if err := json.Unmarshal(header[8:], &hm); err != nil {
		return Record{}, false
	}
	ms := int64(binary.BigEndian.Uint64(header[:8]))
	return Record{
		Key:         key,
		Version:     version,
		ETag:        hm.ETag,
		ContentType: hm.ContentType,
		Value:       append([]byte(nil), value...),
		Tags:        hm.Tags,
		ScopeID:     hm.ScopeID,
		CreatedBy:   hm.CreatedBy,
		CreatedAt:   time.UnixMilli(ms).UTC(),
		Deleted:     hm.Deleted,
	}, true
}

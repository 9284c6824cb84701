package ledger

import (
	"testing"
	"time"
)

func TestRecordRoundTrip(t *testing.T) {
	in := Record{
		Key:         "session:s1:chat:timeline:main",
		Version:     7,
		ETag:        "etag-7",
		ContentType: "application/json",
		Value:       []byte(`{"text":"hi"}`),
		Tags:        []string{"facts", "nlu"},
		ScopeID:     "s1",
		CreatedBy:   "coordinator",
		CreatedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	b, err := encodeRecord(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, ok := decodeRecord(in.Key, in.Version, b)
	if !ok {
		t.Fatalf("decode failed")
	}
	if out.ETag != in.ETag || out.ContentType != in.ContentType || string(out.Value) != string(in.Value) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) {
		t.Fatalf("created_at mismatch: %v", out.CreatedAt)
	}
}

func TestDecodeRejectsCorruptPayload(t *testing.T) {
	b, err := encodeRecord(Record{Key: "a:b:c:d:e", Version: 1, ETag: "e", CreatedAt: time.Now(), Value: []byte("payload")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b[len(b)-6] ^= 0xff
	if _, ok := decodeRecord("a:b:c:d:e", 1, b); ok {
		t.Fatalf("expected crc failure")
	}
}

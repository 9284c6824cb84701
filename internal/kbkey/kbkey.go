package kbkey

import (
	"errors"
	"fmt"
	"strings"
)

// Segments is the required number of colon-separated segments in a record key.
const Segments = 5

// ErrInvalidKey is returned when a key does not match the required grammar.
var ErrInvalidKey = errors.New("invalid key")

// Key is a validated 5-segment record key, e.g.
// "session:s1:chat:timeline:main". Each segment is limited to
// [a-z0-9._-]. The second segment of keys rooted at "session" doubles as
// the scope identifier used for correlation and dumps.
type Key struct {
	raw      string
	segments [Segments]string
}

// Parse validates raw against the key grammar and returns the parsed Key.
// The check is a pure function; no storage is touched.
func Parse(raw string) (Key, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != Segments {
		return Key{}, fmt.Errorf("%w: want %d segments, got %d", ErrInvalidKey, Segments, len(parts))
	}
	var k Key
	for i, p := range parts {
		if !validSegment(p) {
			return Key{}, fmt.Errorf("%w: segment %d %q", ErrInvalidKey, i+1, p)
		}
		k.segments[i] = p
	}
	k.raw = raw
	return k, nil
}

// Validate reports whether raw is a well-formed record key.
func Validate(raw string) error {
	_, err := Parse(raw)
	return err
}

// String returns the raw key.
func (k Key) String() string { return k.raw }

// Segment returns the i-th segment (0-based).
func (k Key) Segment(i int) string { return k.segments[i] }

// ScopeID returns the scope identifier carried by the key, or "" when the
// key is not scope-rooted. Keys shaped "session:{id}:..." carry {id}.
func (k Key) ScopeID() string {
	if k.segments[0] == "session" {
		return k.segments[1]
	}
	return ""
}

func validSegment(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}

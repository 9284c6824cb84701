package kvsvc

import (
	"errors"
	"fmt"
	"time"

	"github.com/kevadb/keva/internal/ledger"
)

// Code is a stable, enumerable reason code carried by service errors.
type Code string

const (
	CodeInvalidKey      Code = "INVALID_KEY"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodePayloadTooLarge Code = "PAYLOAD_TOO_LARGE"
	CodeConflict        Code = "CONFLICT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeInternal        Code = "INTERNAL"
)

// Error pairs a reason code with the underlying cause.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with a reason code.
func E(code Code, err error) *Error { return &Error{Code: code, Err: err} }

// Errorf wraps a formatted message with a reason code.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf extracts the reason code from err, defaulting to INTERNAL.
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternal
}

// StoreRequest describes one STORE operation.
type StoreRequest struct {
	Key         string
	ContentType string
	Value       []byte
	Tags        []string
	CreatedBy   string
	// IfMatch is the optional compare-and-swap token ("vN" or an etag).
	IfMatch string
	// Delete appends a tombstone version instead of a value.
	Delete bool
}

// StoreResult reports the committed record.
type StoreResult struct {
	Key       string    `json:"key"`
	Version   uint64    `json:"version"`
	ETag      string    `json:"etag"`
	CreatedAt time.Time `json:"created_at"`
	Deleted   bool      `json:"deleted,omitempty"`
}

// GetRequest selects one record: by exact Version, by AsOf timestamp, or
// the current record when neither is set. Version and AsOf are mutually
// exclusive.
type GetRequest struct {
	Key     string
	Version uint64
	AsOf    *time.Time
}

// GetResult carries the selected record.
type GetResult struct {
	Record ledger.Record
}

// HistoryRequest pages through the live (and optionally archived) history
// of a key, oldest first.
type HistoryRequest struct {
	Key string
	// Start resumes a prior page; zero starts from the oldest record.
	Start ledger.Token
	// Limit caps the page size; <= 0 means no limit.
	Limit int
	// Filter is an optional CEL expression evaluated per record.
	Filter string
	// IncludeArchived prepends records relocated by retention trimming.
	IncludeArchived bool
}

// DumpEntry is one key under a scope with its newest state.
type DumpEntry struct {
	Key         string `json:"key"`
	LastVersion uint64 `json:"last_version"`
	// Current is nil when every version of the key is deleted.
	Current *ledger.Record `json:"current,omitempty"`
}

// DumpRequest lists the keys recorded under one scope.
type DumpRequest struct {
	Scope string
	// Filter is an optional CEL expression evaluated against each entry's
	// current record; entries without a current record are kept.
	Filter string
}

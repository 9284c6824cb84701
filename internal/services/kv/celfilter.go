package kvsvc

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/kevadb/keva/internal/ledger"
)

// celFilter wraps a compiled CEL program evaluated against one record.
// When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("version", cel.IntType),
		cel.Variable("etag", cel.StringType),
		cel.Variable("content_type", cel.StringType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("created_by", cel.StringType),
		cel.Variable("created_at_ms", cel.IntType),
		cel.Variable("age_ms", cel.IntType),
		cel.Variable("deleted", cel.BoolType),
		cel.Variable("archived", cel.BoolType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		// Parsed JSON value for field-level predicates
		cel.Variable("json", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against rec. Evaluation errors
// exclude the record.
func (f celFilter) Eval(rec ledger.Record) bool {
	if !f.enabled {
		return true
	}
	var jsonObj any
	_ = json.Unmarshal(rec.Value, &jsonObj)
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	nowMs := time.Now().UnixMilli()
	createdMs := rec.CreatedAt.UnixMilli()
	out, _, err := f.prog.Eval(map[string]any{
		"version":       int64(rec.Version),
		"etag":          rec.ETag,
		"content_type":  rec.ContentType,
		"tags":          tags,
		"created_by":    rec.CreatedBy,
		"created_at_ms": createdMs,
		"age_ms":        nowMs - createdMs,
		"deleted":       rec.Deleted,
		"archived":      rec.Archived,
		"size":          int64(len(rec.Value)),
		"text":          string(rec.Value),
		"json":          jsonObj,
		"now_ms":        nowMs,
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

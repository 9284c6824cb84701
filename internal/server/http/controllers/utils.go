package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/kevadb/keva/internal/envelope"
	"github.com/kevadb/keva/internal/ledger"
	kvsvc "github.com/kevadb/keva/internal/services/kv"
)

const serviceAddress = "keva@local"

// writeEnvelope wraps content in an ACL message correlated to the caller's
// conversation fields and writes it as JSON.
func writeEnvelope(w http.ResponseWriter, status int, pf envelope.Performative, corr corrFields, content map[string]interface{}) {
	msg, err := envelope.New(pf, serviceAddress, corr.sender(), content)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	msg.ConversationID = corr.ConversationID
	msg.InReplyTo = corr.ReplyWith
	msg.ReplyWith = envelope.NewReplyID("kb")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(msg)
}

// corrFields carries the optional envelope correlation of a request.
type corrFields struct {
	Sender         string `json:"sender,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	ReplyWith      string `json:"reply_with,omitempty"`
}

func (c corrFields) sender() string {
	if c.Sender == "" {
		return "client@local"
	}
	return c.Sender
}

func corrFromQuery(r *http.Request) corrFields {
	q := r.URL.Query()
	return corrFields{
		Sender:         q.Get("sender"),
		ConversationID: q.Get("conversation_id"),
		ReplyWith:      q.Get("reply_with"),
	}
}

// WriteRefusal writes a REFUSE envelope with a stable reason code. Exported
// for the authorization middleware.
func WriteRefusal(w http.ResponseWriter, status int, code, detail string) {
	writeEnvelope(w, status, envelope.Refuse, corrFields{}, map[string]interface{}{
		"status": "ERROR",
		"code":   code,
		"detail": detail,
	})
}

// writeServiceError maps a service error to HTTP status and envelope
// performative: caller faults REFUSE, server faults FAILURE.
func writeServiceError(w http.ResponseWriter, corr corrFields, err error) {
	code := kvsvc.CodeOf(err)
	status := http.StatusInternalServerError
	pf := envelope.Failure
	switch code {
	case kvsvc.CodeInvalidKey, kvsvc.CodeInvalidArgument:
		status, pf = http.StatusBadRequest, envelope.Refuse
	case kvsvc.CodePayloadTooLarge:
		status, pf = http.StatusRequestEntityTooLarge, envelope.Refuse
	case kvsvc.CodeConflict:
		status, pf = http.StatusConflict, envelope.Refuse
	case kvsvc.CodeNotFound:
		status, pf = http.StatusNotFound, envelope.Refuse
	case kvsvc.CodeUnauthorized:
		status, pf = http.StatusUnauthorized, envelope.Refuse
	}
	writeEnvelope(w, status, pf, corr, map[string]interface{}{
		"status": "ERROR",
		"code":   string(code),
		"detail": err.Error(),
	})
}

// recordContent flattens a record for envelope content.
func recordContent(rec ledger.Record) map[string]interface{} {
	out := map[string]interface{}{
		"key":          rec.Key,
		"version":      rec.Version,
		"etag":         rec.ETag,
		"content_type": rec.ContentType,
		"value":        json.RawMessage(rec.Value),
		"created_at":   rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		"created_by":   rec.CreatedBy,
	}
	if len(rec.Tags) > 0 {
		out["tags"] = rec.Tags
	}
	if rec.Deleted {
		out["deleted"] = true
	}
	if rec.Archived {
		out["archived"] = true
	}
	return out
}

// parseVersion parses a version query value; 0 means unset.
func parseVersion(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

// parseAsOf accepts RFC3339 or Unix milliseconds.
func parseAsOf(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t := time.UnixMilli(ms).UTC()
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseLimit returns 0 for empty or invalid values.
func parseLimit(s string) int {
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return 0
}

func parseBool(s string) bool { return s == "true" || s == "1" }

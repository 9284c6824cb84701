package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/kevadb/keva/internal/envelope"
	"github.com/kevadb/keva/internal/ledger"
	kvsvc "github.com/kevadb/keva/internal/services/kv"
)

// KBController serves the knowledge-store operations.
type KBController struct {
	svc *kvsvc.Service
}

// NewKBController creates the knowledge-store controller.
func NewKBController(svc *kvsvc.Service) *KBController {
	return &KBController{svc: svc}
}

// RegisterRoutes registers the store/get/history/dump endpoints.
func (c *KBController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/kb/store", c.handleStore)
	mux.HandleFunc("/v1/kb/get", c.handleGet)
	mux.HandleFunc("/v1/kb/history", c.handleHistory)
	mux.HandleFunc("/v1/kb/dump", c.handleDump)
}

type storeReq struct {
	corrFields
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	ContentType string          `json:"content_type,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
	CreatedBy   string          `json:"created_by,omitempty"`
	IfMatch     string          `json:"if_match,omitempty"`
	Delete      bool            `json:"delete,omitempty"`
}

func (c *KBController) handleStore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteRefusal(w, http.StatusMethodNotAllowed, string(kvsvc.CodeInvalidArgument), "POST required")
		return
	}
	var req storeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteRefusal(w, http.StatusBadRequest, string(kvsvc.CodeInvalidArgument), "invalid request body")
		return
	}
	res, err := c.svc.Store(r.Context(), kvsvc.StoreRequest{
		Key:         req.Key,
		ContentType: req.ContentType,
		Value:       req.Value,
		Tags:        req.Tags,
		CreatedBy:   req.CreatedBy,
		IfMatch:     req.IfMatch,
		Delete:      req.Delete,
	})
	if err != nil {
		writeServiceError(w, req.corrFields, err)
		return
	}
	writeEnvelope(w, http.StatusOK, envelope.Inform, req.corrFields, map[string]interface{}{
		"status":     "STORED",
		"key":        res.Key,
		"version":    res.Version,
		"etag":       res.ETag,
		"created_at": res.CreatedAt,
		"deleted":    res.Deleted,
	})
}

func (c *KBController) handleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteRefusal(w, http.StatusMethodNotAllowed, string(kvsvc.CodeInvalidArgument), "GET required")
		return
	}
	corr := corrFromQuery(r)
	q := r.URL.Query()
	version, err := parseVersion(q.Get("version"))
	if err != nil {
		WriteRefusal(w, http.StatusBadRequest, string(kvsvc.CodeInvalidArgument), "invalid version")
		return
	}
	asOf, err := parseAsOf(q.Get("as_of"))
	if err != nil {
		WriteRefusal(w, http.StatusBadRequest, string(kvsvc.CodeInvalidArgument), "invalid as_of")
		return
	}
	res, err := c.svc.Get(r.Context(), kvsvc.GetRequest{Key: q.Get("key"), Version: version, AsOf: asOf})
	if err != nil {
		writeServiceError(w, corr, err)
		return
	}
	content := recordContent(res.Record)
	content["status"] = "VALUE"
	writeEnvelope(w, http.StatusOK, envelope.Inform, corr, content)
}

func (c *KBController) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteRefusal(w, http.StatusMethodNotAllowed, string(kvsvc.CodeInvalidArgument), "GET required")
		return
	}
	corr := corrFromQuery(r)
	q := r.URL.Query()
	start, err := parseVersion(q.Get("start"))
	if err != nil {
		WriteRefusal(w, http.StatusBadRequest, string(kvsvc.CodeInvalidArgument), "invalid start")
		return
	}
	records, next, err := c.svc.History(r.Context(), kvsvc.HistoryRequest{
		Key:             q.Get("key"),
		Start:           ledger.TokenFromVersion(start),
		Limit:           parseLimit(q.Get("limit")),
		Filter:          q.Get("filter"),
		IncludeArchived: parseBool(q.Get("include_archived")),
	})
	if err != nil {
		writeServiceError(w, corr, err)
		return
	}
	items := make([]map[string]interface{}, 0, len(records))
	for _, rec := range records {
		items = append(items, recordContent(rec))
	}
	content := map[string]interface{}{
		"status":  "HISTORY",
		"key":     q.Get("key"),
		"records": items,
	}
	if v := next.Version(); v != 0 {
		content["next"] = v
	}
	writeEnvelope(w, http.StatusOK, envelope.Inform, corr, content)
}

func (c *KBController) handleDump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteRefusal(w, http.StatusMethodNotAllowed, string(kvsvc.CodeInvalidArgument), "GET required")
		return
	}
	corr := corrFromQuery(r)
	q := r.URL.Query()
	entries, err := c.svc.Dump(r.Context(), kvsvc.DumpRequest{Scope: q.Get("scope"), Filter: q.Get("filter")})
	if err != nil {
		writeServiceError(w, corr, err)
		return
	}
	items := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		item := map[string]interface{}{
			"key":          e.Key,
			"last_version": e.LastVersion,
		}
		if e.Current != nil {
			item["current"] = recordContent(*e.Current)
		}
		items = append(items, item)
	}
	writeEnvelope(w, http.StatusOK, envelope.Inform, corr, map[string]interface{}{
		"status":  "DUMP",
		"scope":   q.Get("scope"),
		"entries": items,
	})
}

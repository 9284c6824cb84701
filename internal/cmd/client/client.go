package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/kevadb/keva/internal/envelope"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// baseURLFromEnv returns the server address from KEVA_HTTP or a default.
func baseURLFromEnv() string {
	if v := os.Getenv("KEVA_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8787"
}

func tokenFromEnv() string { return os.Getenv("KEVA_TOKEN") }

// Client is a thin envelope-aware HTTP client. Every call opens a
// conversation, registers the expected reply in a correlation book, and
// verifies the response envelope correlates before trusting it.
type Client struct {
	base  string
	token string
	http  *http.Client
	book  *envelope.CorrBook
	// sender identifies this CLI process in request envelopes.
	sender string
}

// NewClient builds a Client for base. An empty base falls back to KEVA_HTTP.
func NewClient(base, token string) *Client {
	if base == "" {
		base = baseURLFromEnv()
	}
	if token == "" {
		token = tokenFromEnv()
	}
	return &Client{
		base:   base,
		token:  token,
		http:   &http.Client{Timeout: 30 * time.Second},
		book:   envelope.NewCorrBook(time.Minute),
		sender: "kevactl@local",
	}
}

// StoreParams describes one store call.
type StoreParams struct {
	Key         string
	Value       json.RawMessage
	ContentType string
	Tags        []string
	CreatedBy   string
	IfMatch     string
	Delete      bool
}

// Store writes one version and returns the reply content.
func (c *Client) Store(ctx context.Context, p StoreParams) (map[string]interface{}, error) {
	conv, rw := c.register()
	body, err := json.Marshal(map[string]interface{}{
		"sender":          c.sender,
		"conversation_id": conv,
		"reply_with":      rw,
		"key":             p.Key,
		"value":           p.Value,
		"content_type":    p.ContentType,
		"tags":            p.Tags,
		"created_by":      p.CreatedBy,
		"if_match":        p.IfMatch,
		"delete":          p.Delete,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/kb/store", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// GetParams selects one record.
type GetParams struct {
	Key     string
	Version uint64
	AsOf    string
}

// Get reads one record and returns the reply content.
func (c *Client) Get(ctx context.Context, p GetParams) (map[string]interface{}, error) {
	conv, rw := c.register()
	q := url.Values{"key": {p.Key}}
	if p.Version != 0 {
		q.Set("version", strconv.FormatUint(p.Version, 10))
	}
	if p.AsOf != "" {
		q.Set("as_of", p.AsOf)
	}
	return c.get(ctx, "/v1/kb/get", q, conv, rw)
}

// HistoryParams pages a key's history.
type HistoryParams struct {
	Key             string
	Start           uint64
	Limit           int
	Filter          string
	IncludeArchived bool
}

// History lists versions oldest first and returns the reply content.
func (c *Client) History(ctx context.Context, p HistoryParams) (map[string]interface{}, error) {
	conv, rw := c.register()
	q := url.Values{"key": {p.Key}}
	if p.Start != 0 {
		q.Set("start", strconv.FormatUint(p.Start, 10))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Filter != "" {
		q.Set("filter", p.Filter)
	}
	if p.IncludeArchived {
		q.Set("include_archived", "true")
	}
	return c.get(ctx, "/v1/kb/history", q, conv, rw)
}

// Dump lists every key under a scope and returns the reply content.
func (c *Client) Dump(ctx context.Context, scope, filter string) (map[string]interface{}, error) {
	conv, rw := c.register()
	q := url.Values{"scope": {scope}}
	if filter != "" {
		q.Set("filter", filter)
	}
	return c.get(ctx, "/v1/kb/dump", q, conv, rw)
}

func (c *Client) register() (conv, rw string) {
	conv = envelope.NewReplyID("conv")
	rw = envelope.NewReplyID("kb")
	c.book.Register(conv, rw, envelope.Expectation{
		AllowPerformatives: []envelope.Performative{envelope.Inform, envelope.Refuse, envelope.Failure},
	})
	return conv, rw
}

func (c *Client) get(ctx context.Context, path string, q url.Values, conv, rw string) (map[string]interface{}, error) {
	q.Set("sender", c.sender)
	q.Set("conversation_id", conv)
	q.Set("reply_with", rw)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (map[string]interface{}, error) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	msg, err := envelope.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("malformed reply (HTTP %d): %w", resp.StatusCode, err)
	}
	if msg.Performative != envelope.Inform {
		// Refusals from middleware predate the conversation, so surface
		// the reason code before insisting on correlation.
		code, _ := msg.Content["code"].(string)
		detail, _ := msg.Content["detail"].(string)
		return nil, fmt.Errorf("%s: %s", code, detail)
	}
	if !c.book.Match(msg.ConversationID, msg.InReplyTo, msg.Sender, msg.Performative) {
		return nil, fmt.Errorf("uncorrelated reply: conversation %q in_reply_to %q", msg.ConversationID, msg.InReplyTo)
	}
	return msg.Content, nil
}

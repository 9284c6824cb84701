package envelope

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kevadb/keva/pkg/id"
)

// Performative is the FIPA-ACL speech act of a message.
type Performative string

const (
	AcceptProposal  Performative = "ACCEPT-PROPOSAL"
	Agree           Performative = "AGREE"
	Cancel          Performative = "CANCEL"
	CFP             Performative = "CFP"
	Confirm         Performative = "CONFIRM"
	Disconfirm      Performative = "DISCONFIRM"
	Failure         Performative = "FAILURE"
	Inform          Performative = "INFORM"
	InformIf        Performative = "INFORM-IF"
	InformRef       Performative = "INFORM-REF"
	NotUnderstood   Performative = "NOT-UNDERSTOOD"
	Propose         Performative = "PROPOSE"
	QueryIf         Performative = "QUERY-IF"
	QueryRef        Performative = "QUERY-REF"
	Refuse          Performative = "REFUSE"
	RejectProposal  Performative = "REJECT-PROPOSAL"
	Request         Performative = "REQUEST"
	RequestWhen     Performative = "REQUEST-WHEN"
	RequestWhenever Performative = "REQUEST-WHENEVER"
	Subscribe       Performative = "SUBSCRIBE"
)

var validPerformatives = map[Performative]struct{}{
	AcceptProposal: {}, Agree: {}, Cancel: {}, CFP: {}, Confirm: {},
	Disconfirm: {}, Failure: {}, Inform: {}, InformIf: {}, InformRef: {},
	NotUnderstood: {}, Propose: {}, QueryIf: {}, QueryRef: {}, Refuse: {},
	RejectProposal: {}, Request: {}, RequestWhen: {}, RequestWhenever: {},
	Subscribe: {},
}

var spaceOrUnderscore = regexp.MustCompile(`[ _]+`)
var dashRuns = regexp.MustCompile(`-{2,}`)

// compactForms maps performatives written without separators to canonical.
var compactForms = map[string]string{
	"ACCEPTPROPOSAL":  "ACCEPT-PROPOSAL",
	"REJECTPROPOSAL":  "REJECT-PROPOSAL",
	"INFORMIF":        "INFORM-IF",
	"INFORMREF":       "INFORM-REF",
	"QUERYIF":         "QUERY-IF",
	"QUERYREF":        "QUERY-REF",
	"REQUESTWHEN":     "REQUEST-WHEN",
	"REQUESTWHENEVER": "REQUEST-WHENEVER",
}

// Normalize canonicalizes a performative: trims, uppercases, converts
// spaces and underscores to dashes, and expands compact spellings.
func Normalize(pf string) Performative {
	s := spaceOrUnderscore.ReplaceAllString(strings.TrimSpace(pf), "-")
	s = strings.ToUpper(s)
	if canonical, ok := compactForms[strings.ReplaceAll(s, "-", "")]; ok {
		s = canonical
	}
	s = dashRuns.ReplaceAllString(s, "-")
	return Performative(s)
}

// Valid reports whether p is a known performative.
func (p Performative) Valid() bool {
	_, ok := validPerformatives[p]
	return ok
}

// DefaultProtocol returns the interaction protocol conventionally paired
// with the performative.
func (p Performative) DefaultProtocol() string {
	switch {
	case strings.HasPrefix(string(p), "QUERY-"):
		return "fipa-query"
	case p == Subscribe:
		return "fipa-subscribe"
	case p == CFP || p == Propose || p == AcceptProposal || p == RejectProposal:
		return "fipa-contract-net"
	default:
		return "fipa-request"
	}
}

// Message is one ACL envelope exchanged with the store's single caller.
type Message struct {
	Performative   Performative           `json:"performative"`
	Sender         string                 `json:"sender"`
	Receiver       string                 `json:"receiver"`
	Ontology       string                 `json:"ontology"`
	Protocol       string                 `json:"protocol"`
	Language       string                 `json:"language"`
	Timestamp      string                 `json:"timestamp"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	ReplyWith      string                 `json:"reply_with,omitempty"`
	InReplyTo      string                 `json:"in_reply_to,omitempty"`
	Content        map[string]interface{} `json:"content"`
}

// NowISO returns the envelope timestamp format for the current time.
func NowISO() string { return time.Now().UTC().Format("2006-01-02T15:04:05Z") }

var replyGen = id.NewGenerator()

// NewReplyID mints a correlation identifier with the given prefix.
func NewReplyID(prefix string) string {
	if prefix == "" {
		prefix = "msg"
	}
	return prefix + "-" + replyGen.Next().String()[:24]
}

// New builds a validated message, filling ontology, protocol, language and
// timestamp defaults.
func New(pf Performative, sender, receiver string, content map[string]interface{}) (Message, error) {
	pf = Normalize(string(pf))
	if !pf.Valid() {
		return Message{}, fmt.Errorf("unknown performative %q", pf)
	}
	return Message{
		Performative: pf,
		Sender:       sender,
		Receiver:     receiver,
		Ontology:     "MAS.Core",
		Protocol:     pf.DefaultProtocol(),
		Language:     "application/json",
		Timestamp:    NowISO(),
		Content:      content,
	}, nil
}

// Reply builds a response envelope correlated to m: conversation carries
// over, in_reply_to echoes m's reply_with, sender/receiver swap.
func (m Message) Reply(pf Performative, content map[string]interface{}) (Message, error) {
	out, err := New(pf, m.Receiver, m.Sender, content)
	if err != nil {
		return Message{}, err
	}
	out.ConversationID = m.ConversationID
	out.InReplyTo = m.ReplyWith
	out.Ontology = m.Ontology
	return out, nil
}

// Encode serializes the message to JSON.
func (m Message) Encode() ([]byte, error) {
	if !m.Performative.Valid() {
		return nil, fmt.Errorf("unknown performative %q", m.Performative)
	}
	return json.Marshal(m)
}

// Decode parses and validates a message from JSON.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, err
	}
	m.Performative = Normalize(string(m.Performative))
	if !m.Performative.Valid() {
		return Message{}, fmt.Errorf("unknown performative %q", m.Performative)
	}
	if m.Protocol == "" {
		m.Protocol = m.Performative.DefaultProtocol()
	}
	return m, nil
}

// Bare strips the resource part of a JID-style address ("a@b/res" -> "a@b").
func Bare(addr string) string {
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		return addr[:i]
	}
	return addr
}

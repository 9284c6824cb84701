package envelope

import (
	"sync"
	"time"
)

// Expectation describes one awaited reply registered in a CorrBook.
type Expectation struct {
	// AllowFrom restricts which bare senders may satisfy the
	// expectation. Empty means any sender.
	AllowFrom []string
	// AllowPerformatives restricts which performatives satisfy the
	// expectation. Empty means any performative.
	AllowPerformatives []Performative
	// ConsumeOn lists the performatives that retire the expectation
	// once matched. Empty means every match consumes it, so
	// intermediate acknowledgements (AGREE before INFORM) need an
	// explicit ConsumeOn to keep the slot open.
	ConsumeOn []Performative
	// Note is free-form context carried for diagnostics.
	Note string

	expiresAt time.Time
}

// CorrBook tracks outstanding reply expectations keyed by
// (conversation_id, reply_with) with a fixed TTL.
type CorrBook struct {
	mu  sync.Mutex
	ttl time.Duration
	// conversation -> reply_with -> expectation
	open map[string]map[string]*Expectation

	now func() time.Time
}

// NewCorrBook creates a correlation book whose entries expire ttl after
// registration.
func NewCorrBook(ttl time.Duration) *CorrBook {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &CorrBook{ttl: ttl, open: make(map[string]map[string]*Expectation), now: time.Now}
}

// Register records that a reply carrying in_reply_to=replyWith is expected
// on the given conversation.
func (c *CorrBook) Register(conversation, replyWith string, exp Expectation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp.expiresAt = c.now().Add(c.ttl)
	byReply, ok := c.open[conversation]
	if !ok {
		byReply = make(map[string]*Expectation)
		c.open[conversation] = byReply
	}
	byReply[replyWith] = &exp
}

// Match checks an inbound reply against the book. It returns true when an
// unexpired expectation accepts the (sender, performative) pair; the
// expectation is retired when pf is in its ConsumeOn set (or the set is
// empty). Expired entries are dropped on sight.
func (c *CorrBook) Match(conversation, inReplyTo, sender string, pf Performative) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	byReply, ok := c.open[conversation]
	if !ok {
		return false
	}
	exp, ok := byReply[inReplyTo]
	if !ok {
		return false
	}
	if c.now().After(exp.expiresAt) {
		c.dropLocked(conversation, inReplyTo)
		return false
	}
	if len(exp.AllowFrom) > 0 && !containsString(exp.AllowFrom, Bare(sender)) {
		return false
	}
	if len(exp.AllowPerformatives) > 0 && !containsPf(exp.AllowPerformatives, pf) {
		return false
	}
	if len(exp.ConsumeOn) == 0 || containsPf(exp.ConsumeOn, pf) {
		c.dropLocked(conversation, inReplyTo)
	}
	return true
}

// Sweep drops every expired expectation and returns how many were removed.
func (c *CorrBook) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for conv, byReply := range c.open {
		for rw, exp := range byReply {
			if now.After(exp.expiresAt) {
				delete(byReply, rw)
				removed++
			}
		}
		if len(byReply) == 0 {
			delete(c.open, conv)
		}
	}
	return removed
}

// Pending returns the number of outstanding expectations.
func (c *CorrBook) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, byReply := range c.open {
		n += len(byReply)
	}
	return n
}

func (c *CorrBook) dropLocked(conversation, replyWith string) {
	byReply := c.open[conversation]
	delete(byReply, replyWith)
	if len(byReply) == 0 {
		delete(c.open, conversation)
	}
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

func containsPf(xs []Performative, p Performative) bool {
	for _, x := range xs {
		if x == p {
			return true
		}
	}
	return false
}

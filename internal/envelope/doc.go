// Package envelope implements the ACL message framing the store speaks
// over its transport: FIPA performatives, conversation threading via
// conversation_id / reply_with / in_reply_to, and a correlation book that
// tracks outstanding replies with a TTL.
package envelope

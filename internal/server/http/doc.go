// Package httpserver exposes the knowledge store over HTTP. Responses are
// wrapped in ACL envelopes (INFORM on success, REFUSE for caller errors,
// FAILURE for server errors) so agent callers can correlate them.
package httpserver

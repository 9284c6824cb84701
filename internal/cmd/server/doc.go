// Package serverrun owns the server start sequence: logging, metrics,
// runtime, service wiring, HTTP listener, and signal-driven shutdown.
package serverrun

// Package kvsvc is the service facade over the version ledger. It owns
// key validation, the STORE/GET/History/Dump operations, the stable error
// reason codes surfaced to transports, telemetry observation, and the
// post-store retention pass.
package kvsvc

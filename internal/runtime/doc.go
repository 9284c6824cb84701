// Package runtime assembles the storage engine, configuration, and the
// version ledger into one process-wide handle used by transports and the
// CLI.
package runtime

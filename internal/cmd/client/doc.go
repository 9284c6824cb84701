// Package client implements the kb command group: an envelope-aware HTTP
// client plus the cobra subcommands store, get, history, and dump.
package client
